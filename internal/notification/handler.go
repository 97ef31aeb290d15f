package notification

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kampus-erp/kampus/internal/platform/httpx"
	"github.com/kampus-erp/kampus/internal/shared"
)

// InboxFunc returns the inbox of the request's caller, or false when the
// caller has no resolved profile.
type InboxFunc func(*http.Request) (*Inbox, bool)

// Handler exposes the inbox over JSON.
type Handler struct {
	inbox  InboxFunc
	logger *slog.Logger
}

// NewHandler constructs the HTTP handler.
func NewHandler(inbox InboxFunc, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inbox: inbox, logger: logger}
}

type listResponse struct {
	Items       []Item `json:"items"`
	UnreadCount int    `json:"unread_count"`
}

// List returns the cached items and the unread count.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	inbox, ok := h.inbox(r)
	if !ok {
		httpx.JSON(w, http.StatusOK, listResponse{Items: []Item{}})
		return
	}
	items := inbox.Items()
	if items == nil {
		items = []Item{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Items: items, UnreadCount: inbox.UnreadCount()})
}

// MarkRead flags the item named by the id URL parameter.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	inbox, ok := h.inbox(r)
	if !ok {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	if err := inbox.MarkRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"unread_count": inbox.UnreadCount()})
}

// MarkAllRead flags every cached item.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	inbox, ok := h.inbox(r)
	if !ok {
		httpx.JSON(w, http.StatusOK, map[string]int{"unread_count": 0})
		return
	}
	if err := inbox.MarkAllRead(r.Context()); err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"unread_count": inbox.UnreadCount()})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	if !errors.Is(err, shared.ErrNotFound) {
		h.logger.Warn("notification request failed", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
