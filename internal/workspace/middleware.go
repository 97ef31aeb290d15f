package workspace

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/kampus-erp/kampus/internal/navigation"
	"github.com/kampus-erp/kampus/internal/platform/httpx"
	"github.com/kampus-erp/kampus/internal/session"
	"github.com/kampus-erp/kampus/internal/shared"
)

type contextKey struct{}

// WithWorkspace stores w in ctx.
func WithWorkspace(ctx context.Context, w *Workspace) context.Context {
	return context.WithValue(ctx, contextKey{}, w)
}

// FromContext returns the workspace of the request, or nil.
func FromContext(ctx context.Context) *Workspace {
	w, _ := ctx.Value(contextKey{}).(*Workspace)
	return w
}

// MiddlewareConfig tunes the per-request pipeline step.
type MiddlewareConfig struct {
	// RefreshLeeway revalidates the session this long before expiry.
	RefreshLeeway time.Duration
	// Settle bounds how long a request waits for a running resolution.
	Settle time.Duration
}

// Middleware attaches the workspace of the cookie session to the request.
// Fresh browser sessions get none until they sign in. A session torn down
// behind the user's back is sent to the login page exactly once.
func (r *Registry) Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.RefreshLeeway <= 0 {
		cfg.RefreshLeeway = session.DefaultRefreshLeeway
	}
	if cfg.Settle <= 0 {
		cfg.Settle = 5 * time.Second
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess := shared.SessionFromContext(req.Context())
			if sess == nil || sess.IsNew() {
				next.ServeHTTP(w, req)
				return
			}
			ctx := req.Context()
			ws, err := r.Get(ctx, sess.ID)
			if err != nil {
				r.deps.Logger.Error("open workspace", slog.Any("error", err))
				httpx.Unavailable(w, "sesi belum dapat dipulihkan, muat ulang halaman")
				return
			}
			if ws.Session().NeedsRefresh(cfg.RefreshLeeway) {
				if err := ws.Refresh(ctx); err != nil {
					r.deps.Logger.Warn("refresh session", slog.Any("error", err))
				}
			}
			settle, cancel := context.WithTimeout(ctx, cfg.Settle)
			_, _ = ws.Wait(settle)
			cancel()

			if ws.ConsumeRedirect() {
				navigation.RequireLogin(w, req)
				return
			}
			if id := ws.Identity(); id != nil {
				sess.SetSubject(id.ID)
			}
			next.ServeHTTP(w, req.WithContext(WithWorkspace(ctx, ws)))
		})
	}
}

// Viewer adapts the request workspace for the route guard.
func Viewer(req *http.Request) navigation.Viewer {
	ws := FromContext(req.Context())
	if ws == nil {
		return navigation.Viewer{}
	}
	return ws.Viewer()
}
