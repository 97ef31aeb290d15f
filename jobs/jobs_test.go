package jobs

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-erp/kampus/internal/notification"
)

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func TestHealthReportsQueue(t *testing.T) {
	h := NewHandler(stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 3, Failed: 1}}, nil)
	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":3,"active":0,"failed":1}`, rr.Body.String())
}

func TestHealthWithoutInspector(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(nil, nil).Health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"failed":0}`, rr.Body.String())
}

func TestHealthInspectorFailure(t *testing.T) {
	h := NewHandler(stubInspector{err: errors.New("redis down")}, nil)
	rr := httptest.NewRecorder()
	h.Health(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestNotificationRegistrations(t *testing.T) {
	handlers := NotificationHandlers(
		notification.NewPublishHandler(nil, nil, nil, nil),
		notification.NewPruneHandler(nil, nil, nil),
	)
	require.Len(t, handlers, 2)
	assert.Equal(t, notification.TaskTypePublish, handlers[0].Type)
	assert.Equal(t, notification.TaskTypePrune, handlers[1].Type)

	cron, err := NotificationCron(30 * 24 * time.Hour)
	require.NoError(t, err)
	require.Len(t, cron, 1)
	assert.Equal(t, PruneSchedule, cron[0].Spec)
	assert.Equal(t, notification.TaskTypePrune, cron[0].Task.Type())
	assert.JSONEq(t, `{"retention_days":30}`, string(cron[0].Task.Payload()))
}
