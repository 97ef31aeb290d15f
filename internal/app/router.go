package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/kampus-erp/kampus/internal/auth"
	"github.com/kampus-erp/kampus/internal/navigation"
	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/observability"
	"github.com/kampus-erp/kampus/internal/shared"
	"github.com/kampus-erp/kampus/internal/staff"
	"github.com/kampus-erp/kampus/internal/workspace"
	"github.com/kampus-erp/kampus/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	SessionManager      *shared.SessionManager
	CSRFManager         *shared.CSRFManager
	Workspaces          *workspace.Registry
	Entitlements        *navigation.Entitlements
	AuthHandler         *auth.Handler
	WorkspaceHandler    *workspace.Handler
	NotificationHandler *notification.Handler
	StaffHandler        *staff.Handler
	JobHandler          *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with Kampus defaults. Every page and
// API route is registered through the navigation guard.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		for _, mw := range MiddlewareStack(MiddlewareConfig{
			Logger:         params.Logger,
			Config:         params.Config,
			SessionManager: params.SessionManager,
			CSRFManager:    params.CSRFManager,
			Metrics:        params.Metrics,
			Workspaces:     params.Workspaces,
		}) {
			r.Use(mw)
		}
		r.Use(chimw.Logger)

		guard := navigation.NewGuard(params.Entitlements, workspace.Viewer, params.Logger)
		r.Route("/auth", func(r chi.Router) {
			params.AuthHandler.MountRoutes(r, guard.RedirectAuthenticated)
		})

		if h := params.WorkspaceHandler; h != nil {
			guard.Handle(r, http.MethodGet, navigation.RootRoute, h.Dashboard)
			guard.Handle(r, http.MethodGet, "/profile", h.Profile)
			guard.Handle(r, http.MethodGet, "/api/navigation", h.Navigation)
			guard.Handle(r, http.MethodGet, "/settings/{key}", h.Setting)
		}
		if h := params.NotificationHandler; h != nil {
			guard.Handle(r, http.MethodGet, "/api/notifications", h.List)
			guard.Handle(r, http.MethodPost, "/api/notifications/{id}/read", h.MarkRead)
			guard.Handle(r, http.MethodPost, "/api/notifications/read-all", h.MarkAllRead)
		}
		if h := params.StaffHandler; h != nil {
			guard.Handle(r, http.MethodGet, "/classes/mine", h.MyClasses)
		}
		if params.JobHandler != nil {
			guard.Handle(r, http.MethodGet, "/jobs/health", params.JobHandler.Health)
		}
	})

	return r
}
