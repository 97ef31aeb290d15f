package staff

import (
	"log/slog"
	"net/http"

	"github.com/kampus-erp/kampus/internal/platform/httpx"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/tenant"
)

// Caller is the resolved requester.
type Caller struct {
	Identity provider.Identity
	Scope    tenant.Scope
}

// CallerFunc extracts the Caller of a request.
type CallerFunc func(*http.Request) (Caller, bool)

// Handler serves staff endpoints.
type Handler struct {
	service *Service
	caller  CallerFunc
	logger  *slog.Logger
}

// NewHandler constructs the handler.
func NewHandler(service *Service, caller CallerFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, caller: caller, logger: logger}
}

// MyClasses serves GET /classes/mine.
func (h *Handler) MyClasses(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(r)
	if !ok {
		httpx.JSON(w, http.StatusOK, MyClasses{Classes: []Class{}, Prompt: NotLinkedPrompt})
		return
	}
	out, err := h.service.MyClasses(r.Context(), caller.Scope, caller.Identity)
	if err != nil {
		h.logger.Error("load my classes", slog.String("identity", caller.Identity.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
