package gotrue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/shared"
)

func signedToken(t *testing.T, exp time.Time, sessionID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":        "user-1",
		"exp":        exp.Unix(),
		"session_id": sessionID,
	})
	raw, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

type fakeServer struct {
	t           *testing.T
	access      string
	refreshOK   bool
	userStatus  int
	tokenStatus int
	calls       map[string]int
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	if gt := r.URL.Query().Get("grant_type"); gt != "" {
		key += "?" + gt
	}
	f.calls[key]++
	assert.Equal(f.t, "anon-key", r.Header.Get("apikey"))
	w.Header().Set("Content-Type", "application/json")

	switch key {
	case "POST /auth/v1/token?password":
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "rahasia123" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		f.writeToken(w)
	case "POST /auth/v1/token?refresh_token":
		if f.tokenStatus != 0 {
			w.WriteHeader(f.tokenStatus)
			_, _ = w.Write([]byte(`{"msg":"provider unavailable"}`))
			return
		}
		if !f.refreshOK {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token: Refresh Token Not Found"}`))
			return
		}
		f.writeToken(w)
	case "GET /auth/v1/user":
		if f.userStatus != 0 {
			w.WriteHeader(f.userStatus)
			return
		}
		_, _ = w.Write([]byte(`{"id":"user-1","email":"Guru@School.test"}`))
	case "POST /auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) writeToken(w http.ResponseWriter) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  f.access,
		"refresh_token": "refresh-2",
		"expires_in":    3600,
		"user":          map[string]string{"id": "user-1", "email": "guru@school.test"},
	})
}

func newClient(t *testing.T, f *fakeServer) *Client {
	t.Helper()
	f.t = t
	f.calls = make(map[string]int)
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/auth/v1", APIKey: "anon-key"}, nil, nil)
}

func TestSignIn(t *testing.T) {
	f := &fakeServer{access: signedToken(t, time.Now().Add(time.Hour), "sess-1")}
	c := newClient(t, f)

	sess, err := c.SignIn(context.Background(), "guru@school.test", "rahasia123")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, provider.Identity{ID: "user-1", Email: "guru@school.test"}, sess.Identity)
	assert.Equal(t, "refresh-2", sess.Tokens.RefreshToken)

	_, err = c.SignIn(context.Background(), "guru@school.test", "salah")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestGetSessionUsesUserEndpointWhileTokenFresh(t *testing.T) {
	access := signedToken(t, time.Now().Add(time.Hour), "sess-1")
	f := &fakeServer{access: access}
	c := newClient(t, f)

	sess, err := c.GetSession(context.Background(), provider.Tokens{AccessToken: access, RefreshToken: "refresh-1"})
	require.NoError(t, err)
	assert.Equal(t, "user-1", sess.Identity.ID)
	assert.Equal(t, "guru@school.test", sess.Identity.Email)
	assert.Equal(t, "refresh-1", sess.Tokens.RefreshToken)
	assert.Equal(t, 1, f.calls["GET /auth/v1/user"])
	assert.Zero(t, f.calls["POST /auth/v1/token?refresh_token"])
}

func TestGetSessionRefreshesExpiredToken(t *testing.T) {
	f := &fakeServer{access: signedToken(t, time.Now().Add(time.Hour), "sess-2"), refreshOK: true}
	c := newClient(t, f)

	stale := signedToken(t, time.Now().Add(-time.Minute), "sess-1")
	sess, err := c.GetSession(context.Background(), provider.Tokens{AccessToken: stale, RefreshToken: "refresh-1"})
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", sess.Tokens.RefreshToken)
	assert.Equal(t, "sess-2", sess.ID)
	assert.Zero(t, f.calls["GET /auth/v1/user"])
}

func TestGetSessionFailureSignatures(t *testing.T) {
	stale := signedToken(t, time.Now().Add(-time.Minute), "sess-1")

	f := &fakeServer{}
	c := newClient(t, f)
	_, err := c.GetSession(context.Background(), provider.Tokens{AccessToken: stale, RefreshToken: "bad"})
	assert.ErrorIs(t, err, shared.ErrAuthCorruption)

	f = &fakeServer{tokenStatus: http.StatusInternalServerError}
	c = newClient(t, f)
	_, err = c.GetSession(context.Background(), provider.Tokens{AccessToken: stale, RefreshToken: "r"})
	assert.ErrorIs(t, err, shared.ErrProviderFault)
	assert.True(t, shared.IsSessionCorruption(err))

	c = New(Config{BaseURL: "http://127.0.0.1:1/auth/v1"}, nil, nil)
	_, err = c.GetSession(context.Background(), provider.Tokens{AccessToken: stale, RefreshToken: "r"})
	assert.ErrorIs(t, err, shared.ErrTransient)
}

func TestGetSessionUnauthorizedFallsBackToRefresh(t *testing.T) {
	f := &fakeServer{access: signedToken(t, time.Now().Add(time.Hour), "sess-3"), refreshOK: true, userStatus: http.StatusUnauthorized}
	c := newClient(t, f)

	access := signedToken(t, time.Now().Add(time.Hour), "sess-1")
	sess, err := c.GetSession(context.Background(), provider.Tokens{AccessToken: access, RefreshToken: "refresh-1"})
	require.NoError(t, err)
	assert.Equal(t, "sess-3", sess.ID)
	assert.Equal(t, 1, f.calls["POST /auth/v1/token?refresh_token"])
}

func TestSignOut(t *testing.T) {
	f := &fakeServer{}
	c := newClient(t, f)
	require.NoError(t, c.SignOut(context.Background(), provider.Tokens{AccessToken: "a", RefreshToken: "r"}))
	require.NoError(t, c.SignOut(context.Background(), provider.Tokens{}))
	assert.Equal(t, 1, f.calls["POST /auth/v1/logout"])
}

func TestGetSessionNoTokens(t *testing.T) {
	c := New(Config{BaseURL: "http://unused"}, nil, nil)
	sess, err := c.GetSession(context.Background(), provider.Tokens{})
	require.NoError(t, err)
	assert.Nil(t, sess)
}
