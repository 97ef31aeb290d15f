package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/kampus-erp/kampus/internal/auth"
	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/profile"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/provider/memory"
	"github.com/kampus-erp/kampus/internal/roles"
	"github.com/kampus-erp/kampus/internal/session"
	"github.com/kampus-erp/kampus/internal/shared"
	"github.com/kampus-erp/kampus/internal/workspace"
	_ "github.com/kampus-erp/kampus/testing"
)

type stubResolver struct{}

func (stubResolver) Resolve(_ context.Context, identity provider.Identity) profile.Result {
	return profile.Result{Outcome: profile.OutcomeLinked, Profile: &profile.Profile{
		ID: identity.ID, Role: roles.Principal, TenantID: "t-1", Email: identity.Email,
	}}
}

type emptyInbox struct{}

func (emptyInbox) ListRecent(context.Context, string, int) ([]notification.Item, error) {
	return nil, nil
}
func (emptyInbox) MarkRead(context.Context, string, string) error     { return nil }
func (emptyInbox) MarkAllRead(context.Context, string) (int64, error) { return 0, nil }
func (emptyInbox) Insert(context.Context, notification.Item) error    { return nil }

type fixture struct {
	redis    *miniredis.Miniredis
	handler  *auth.Handler
	sessions *shared.SessionManager
	registry *workspace.Registry
}

func newAuthHandler(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")

	idp := memory.New(time.Hour)
	if err := idp.AddUser("user-1", "kepsek@test.local", "correctpass"); err != nil {
		t.Fatalf("add user: %v", err)
	}
	registry := workspace.NewRegistry(workspace.Deps{
		Provider: idp,
		Vault: func(id string) session.Vault {
			return session.NewRedisVault(redisClient, id, time.Hour)
		},
		Resolver:      stubResolver{},
		Notifications: emptyInbox{},
	}, 8, time.Hour)
	t.Cleanup(registry.Close)

	handler := auth.NewHandler(nil, registry, sessionManager, csrfManager)
	return &fixture{redis: mr, handler: handler, sessions: sessionManager, registry: registry}
}

// serve runs one request through the handler with the cookie session loaded
// and committed around it.
func (f *fixture) serve(t *testing.T, req *http.Request, h http.HandlerFunc, ws *workspace.Workspace) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	ctx := shared.ContextWithSession(req.Context(), sess)
	if ws != nil {
		ctx = workspace.WithWorkspace(ctx, ws)
	}
	req = req.WithContext(ctx)
	res := httptest.NewRecorder()
	h(res, req)
	if err := f.sessions.Commit(ctx, res, req, sess); err != nil {
		t.Fatalf("commit session: %v", err)
	}
	return res, sess
}

func (f *fixture) routes() http.HandlerFunc {
	r := chi.NewRouter()
	f.handler.MountRoutes(r, nil)
	return r.ServeHTTP
}

func TestLoginPage(t *testing.T) {
	f := newAuthHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	res, sess := f.serve(t, req, f.routes(), nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["csrf_token"] == "" || body["csrf_token"] != sess.Get(shared.CSRFSessionKey) {
		t.Fatalf("expected csrf token bound to session, got %v", body["csrf_token"])
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthHandler(t)

	postData := url.Values{}
	postData.Set("email", "kepsek@test.local")
	postData.Set("password", "wrongpass")
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(postData.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, _ := f.serve(t, req, f.routes(), nil)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), auth.InvalidCredentialsMessage) {
		t.Fatalf("expected error message in response, got %s", res.Body.String())
	}
}

func TestLoginValidation(t *testing.T) {
	f := newAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"bukan-email","password":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	res, _ := f.serve(t, req, f.routes(), nil)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	var body struct {
		Errors map[string]string `json:"errors"`
	}
	if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Errors["email"] != "email" || body.Errors["password"] != "min" {
		t.Fatalf("unexpected validation errors: %v", body.Errors)
	}
	if f.registry.Len() != 0 {
		t.Fatalf("invalid form must not open a workspace")
	}
}

func TestLoginThenLogout(t *testing.T) {
	f := newAuthHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(`{"email":"kepsek@test.local","password":"correctpass"}`))
	req.Header.Set("Content-Type", "application/json")
	res, sess := f.serve(t, req, f.routes(), nil)

	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to root, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if sess.Subject() != "user-1" {
		t.Fatalf("expected subject recorded on cookie session, got %q", sess.Subject())
	}
	ws, ok := f.registry.Peek(sess.ID)
	if !ok {
		t.Fatalf("expected workspace for session %s", sess.ID)
	}
	if !f.redis.Exists("session:" + sess.ID + ":tokens") {
		t.Fatalf("expected tokens persisted in vault")
	}

	logout := httptest.NewRequest(http.MethodPost, "/logout", nil)
	logout.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: sess.ID})
	res, _ = f.serve(t, logout, f.routes(), ws)

	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/auth/login" {
		t.Fatalf("expected redirect to login, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if ws.Status() != workspace.StatusSignedOut {
		t.Fatalf("expected signed out workspace, got %s", ws.Status())
	}
	if f.registry.Len() != 0 {
		t.Fatalf("expected workspace removed")
	}
	if f.redis.Exists("session:"+sess.ID) || f.redis.Exists("session:"+sess.ID+":tokens") {
		t.Fatalf("expected session artifacts deleted")
	}
}
