package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	sessionTransitions *prometheus.CounterVec
	resolutions        *prometheus.CounterVec
	resolveDuration    prometheus.Histogram
	workspaces         prometheus.Gauge
	staleResults       prometheus.Counter
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kampus_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kampus_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kampus_session_transitions_total",
		Help: "Transisi state sesi berdasarkan state tujuan.",
	}, []string{"state"})
	resolutions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "kampus_identity_resolutions_total",
		Help: "Hasil resolusi identitas ke profil.",
	}, []string{"outcome"})
	resolveDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "kampus_identity_resolution_duration_seconds",
		Help:    "Durasi resolusi identitas termasuk retry.",
		Buckets: prometheus.DefBuckets,
	})
	workspaces := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "kampus_workspaces_active",
		Help: "Jumlah workspace sesi yang sedang aktif.",
	})
	stale := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "kampus_identity_stale_results_total",
		Help: "Hasil resolusi yang dibuang karena identitas sudah berganti.",
	})
	registry.MustRegister(requests, duration, transitions, resolutions, resolveDuration, workspaces, stale)
	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:      requests,
		requestDuration:    duration,
		sessionTransitions: transitions,
		resolutions:        resolutions,
		resolveDuration:    resolveDuration,
		workspaces:         workspaces,
		staleResults:       stale,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// SessionTransition mencatat perpindahan state sesi.
func (m *Metrics) SessionTransition(state string) {
	if m == nil {
		return
	}
	m.sessionTransitions.WithLabelValues(state).Inc()
}

// IdentityResolved mencatat hasil dan durasi satu resolusi identitas.
func (m *Metrics) IdentityResolved(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.resolveDuration.Observe(elapsed.Seconds())
}

// WorkspaceOpened dan WorkspaceClosed menjaga gauge workspace aktif.
func (m *Metrics) WorkspaceOpened() {
	if m == nil {
		return
	}
	m.workspaces.Inc()
}

func (m *Metrics) WorkspaceClosed() {
	if m == nil {
		return
	}
	m.workspaces.Dec()
}

// StaleResultDiscarded mencatat hasil resolusi dari generasi lama.
func (m *Metrics) StaleResultDiscarded() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
