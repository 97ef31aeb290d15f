package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	assert.NoError(t, metrics.Track("notification:publish").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, metrics.Track("notification:publish").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("notification:publish", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runs.WithLabelValues("notification:publish", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.failures.WithLabelValues("notification:publish")))
}

func TestTrackerCountsRows(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())

	tracker := metrics.Track("notification:prune")
	tracker.Rows(12)
	tracker.Rows(0)
	assert.NoError(t, tracker.End(nil))

	assert.Equal(t, 12.0, testutil.ToFloat64(metrics.rows.WithLabelValues("notification:prune")))
}

func TestNilMetricsTrackerPassesErrorThrough(t *testing.T) {
	var metrics *Metrics
	boom := errors.New("boom")
	tracker := metrics.Track("x")
	tracker.Rows(3)
	assert.ErrorIs(t, tracker.End(boom), boom)
}
