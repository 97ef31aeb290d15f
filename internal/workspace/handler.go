package workspace

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kampus-erp/kampus/internal/navigation"
	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/platform/httpx"
	"github.com/kampus-erp/kampus/internal/shared"
	"github.com/kampus-erp/kampus/internal/staff"
	"github.com/kampus-erp/kampus/internal/tenant"
)

// UnlinkedMessage is shown to signed-in users without a profile.
const UnlinkedMessage = "Akun Anda belum terhubung dengan profil sekolah. Hubungi administrator."

// Handler serves the workspace-level pages.
type Handler struct {
	settings *tenant.Settings
	logger   *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(settings *tenant.Settings, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{settings: settings, logger: logger}
}

type dashboardResponse struct {
	Snapshot
	Message string          `json:"message,omitempty"`
	Menu    navigation.Menu `json:"menu"`
}

// Dashboard serves GET /. It renders every resolution state itself.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ws := FromContext(r.Context())
	if ws == nil {
		navigation.RequireLogin(w, r)
		return
	}
	snap := ws.Snapshot()
	switch snap.Status {
	case StatusSignedOut:
		navigation.RequireLogin(w, r)
	case StatusUnavailable, StatusResolving:
		httpx.Unavailable(w, "profil belum dapat dimuat, muat ulang halaman")
	case StatusUnlinked:
		httpx.JSON(w, http.StatusOK, dashboardResponse{Snapshot: snap, Message: UnlinkedMessage, Menu: ws.Menu(r.URL.Path)})
	default:
		httpx.JSON(w, http.StatusOK, dashboardResponse{Snapshot: snap, Menu: ws.Menu(r.URL.Path)})
	}
}

// Navigation serves GET /api/navigation?path=.
func (h *Handler) Navigation(w http.ResponseWriter, r *http.Request) {
	ws := FromContext(r.Context())
	if ws == nil {
		navigation.RequireLogin(w, r)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		path = navigation.RootRoute
	}
	httpx.JSON(w, http.StatusOK, ws.Menu(path))
}

// Profile serves GET /profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	ws := FromContext(r.Context())
	if ws == nil || ws.Profile() == nil {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, ws.Profile())
}

// Setting serves GET /settings/{key} within the caller's tenant scope.
func (h *Handler) Setting(w http.ResponseWriter, r *http.Request) {
	ws := FromContext(r.Context())
	if ws == nil {
		navigation.RequireLogin(w, r)
		return
	}
	key := chi.URLParam(r, "key")
	value, err := h.settings.Lookup(r.Context(), ws.Scope(), key)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			h.logger.Warn("lookup tenant setting", slog.String("key", key), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"key": key, "value": value})
}

// Inbox adapts the request workspace for the notification handler.
func Inbox(r *http.Request) (*notification.Inbox, bool) {
	ws := FromContext(r.Context())
	if ws == nil || ws.Status() != StatusReady {
		return nil, false
	}
	return ws.Inbox(), true
}

// Caller adapts the request workspace for the staff handler.
func Caller(r *http.Request) (staff.Caller, bool) {
	ws := FromContext(r.Context())
	if ws == nil {
		return staff.Caller{}, false
	}
	id := ws.Identity()
	if id == nil || ws.Status() != StatusReady {
		return staff.Caller{}, false
	}
	return staff.Caller{Identity: *id, Scope: ws.Scope()}, true
}
