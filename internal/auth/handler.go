// Package auth serves the sign-in and sign-out endpoints of the browser
// session.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kampus-erp/kampus/internal/navigation"
	"github.com/kampus-erp/kampus/internal/platform/httpx"
	"github.com/kampus-erp/kampus/internal/shared"
	"github.com/kampus-erp/kampus/internal/workspace"
)

// InvalidCredentialsMessage is returned for any rejected sign-in.
const InvalidCredentialsMessage = "Email atau password tidak valid"

// Workspaces opens and drops the workspace of a browser session.
type Workspaces interface {
	Get(ctx context.Context, sessionID string) (*workspace.Workspace, error)
	Remove(sessionID string)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	workspaces     Workspaces
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, workspaces Workspaces, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		workspaces:     workspaces,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router. The login page is
// wrapped by redirect so signed-in callers land on the root route.
func (h *Handler) MountRoutes(r chi.Router, redirect func(http.Handler) http.Handler) {
	if redirect == nil {
		redirect = func(next http.Handler) http.Handler { return next }
	}
	r.With(redirect).Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type loginPage struct {
	CSRFToken string            `json:"csrf_token"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, loginPage{CSRFToken: csrfToken})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)

	form, err := h.decode(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "format permintaan tidak valid")
		return
	}
	errs := make(map[string]string)
	if err := h.validator.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fieldErr := range fieldErrs {
				errs[strings.ToLower(fieldErr.Field())] = fieldErr.Tag()
			}
		}
	}
	if len(errs) > 0 {
		httpx.JSON(w, http.StatusBadRequest, loginPage{CSRFToken: csrfToken, Errors: errs})
		return
	}

	ws, err := h.workspaces.Get(r.Context(), sess.ID)
	if err != nil {
		h.logger.Error("open workspace for login", slog.Any("error", err))
		httpx.Unavailable(w, "layanan masuk belum tersedia, coba lagi")
		return
	}
	if err := ws.SignIn(r.Context(), form.Email, form.Password); err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) || errors.Is(err, shared.ErrUnauthorized) {
			httpx.JSON(w, http.StatusBadRequest, loginPage{
				CSRFToken: csrfToken,
				Errors:    map[string]string{"general": InvalidCredentialsMessage},
			})
			return
		}
		h.logger.Warn("sign in", slog.Any("error", err))
		httpx.Unavailable(w, "layanan masuk belum tersedia, coba lagi")
		return
	}
	if id := ws.Identity(); id != nil {
		sess.SetSubject(id.ID)
	}
	http.Redirect(w, r, navigation.RootRoute, http.StatusSeeOther)
}

func (h *Handler) decode(r *http.Request) (loginForm, error) {
	var form loginForm
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		err := httpx.DecodeJSON(r, &form)
		return form, err
	}
	if err := r.ParseForm(); err != nil {
		return form, err
	}
	form.Email = r.PostFormValue("email")
	form.Password = r.PostFormValue("password")
	return form, nil
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if ws := workspace.FromContext(r.Context()); ws != nil {
			if err := ws.SignOut(r.Context()); err != nil {
				h.logger.Warn("sign out", slog.Any("error", err))
			}
		}
		h.workspaces.Remove(sess.ID)
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, navigation.LoginRoute, http.StatusSeeOther)
}
