package navigation

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kampus-erp/kampus/internal/platform/httpx"
	"github.com/kampus-erp/kampus/internal/roles"
)

// LoginRoute is where unauthenticated requests are sent.
const LoginRoute = "/auth/login"

// Viewer is what the guard knows about the caller.
type Viewer struct {
	Authenticated bool
	// Role is Unknown until a profile is resolved.
	Role roles.Role
	// Unavailable is set when profile resolution gave up on transient
	// failures.
	Unavailable bool
}

// ViewerFunc extracts the Viewer of a request.
type ViewerFunc func(*http.Request) Viewer

// Guard wraps protected routes with the entitlement check.
type Guard struct {
	entitlements *Entitlements
	viewer       ViewerFunc
	logger       *slog.Logger
}

// NewGuard constructs a Guard.
func NewGuard(entitlements *Entitlements, viewer ViewerFunc, logger *slog.Logger) *Guard {
	if entitlements == nil {
		entitlements = Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{entitlements: entitlements, viewer: viewer, logger: logger}
}

// Handle registers h on r under pattern, protected by the guard.
func (g *Guard) Handle(r chi.Router, method, pattern string, h http.HandlerFunc) {
	r.With(g.Protect(pattern)).Method(method, pattern, h)
}

// Protect returns the middleware guarding pattern. The root route only
// requires authentication; its handler renders unresolved states itself.
func (g *Guard) Protect(pattern string) func(http.Handler) http.Handler {
	if !g.entitlements.Known(pattern) {
		g.logger.Warn("guarded route missing from allow-list", slog.String("pattern", pattern))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := g.viewer(r)
			switch {
			case !v.Authenticated:
				RequireLogin(w, r)
				return
			case pattern == RootRoute:
			case v.Unavailable:
				httpx.Unavailable(w, "profil belum dapat dimuat, muat ulang halaman")
				return
			case !g.entitlements.CanAccess(v.Role, pattern):
				g.logger.Debug("route denied", slog.String("pattern", pattern), slog.String("role", v.Role.String()))
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "akses ditolak")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireLogin sends pages to the login route and answers API calls with 401.
func RequireLogin(w http.ResponseWriter, r *http.Request) {
	if isAPI(r) {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "silakan masuk terlebih dahulu")
		return
	}
	http.Redirect(w, r, LoginRoute, http.StatusSeeOther)
}

// RedirectAuthenticated sends signed-in callers of the login page to the
// root route.
func (g *Guard) RedirectAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet && g.viewer(r).Authenticated {
			http.Redirect(w, r, RootRoute, http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isAPI(r *http.Request) bool {
	return strings.HasPrefix(r.URL.Path, "/api/") ||
		strings.Contains(r.Header.Get("Accept"), "application/json")
}
