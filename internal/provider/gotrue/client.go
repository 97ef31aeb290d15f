// Package gotrue talks to a hosted GoTrue-compatible auth REST API.
package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/shared"
)

// Config configures the client.
type Config struct {
	BaseURL string
	APIKey  string
	// RetryMax is the number of HTTP-level retries for 5xx and transport errors.
	RetryMax int
	Timeout  time.Duration
	// RefreshLeeway rotates tokens this long before the access token expires.
	RefreshLeeway time.Duration
}

// Client implements provider.Provider. Events are not generated by the
// client itself; attach a provider.Bus to its Hub for pushed events.
type Client struct {
	*provider.Hub

	cfg    Config
	http   *retryablehttp.Client
	parser *jwt.Parser
	clock  func() time.Time
}

// New constructs a Client sharing hub with the event bus.
func New(cfg Config, hub *provider.Hub, logger *slog.Logger) *Client {
	if hub == nil {
		hub = provider.NewHub()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RefreshLeeway <= 0 {
		cfg.RefreshLeeway = 30 * time.Second
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = 100 * time.Millisecond
	rc.RetryWaitMax = time.Second
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if logger != nil {
		rc.Logger = logger
	} else {
		rc.Logger = nil
	}
	return &Client{
		Hub:    hub,
		cfg:    cfg,
		http:   rc,
		parser: jwt.NewParser(),
		clock:  time.Now,
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         user   `json:"user"`
}

type user struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Code             string `json:"error_code"`
	Msg              string `json:"msg"`
}

// SignIn implements provider.Provider using the password grant.
func (c *Client) SignIn(ctx context.Context, email, password string) (*provider.AuthSession, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", map[string]string{"email": email, "password": password}, &out)
	if err != nil {
		if errors.Is(err, errRejected) || errors.Is(err, shared.ErrUnauthorized) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, err
	}
	return c.sessionFromToken(out), nil
}

// SignOut implements provider.Provider. A session the provider no longer
// knows counts as signed out.
func (c *Client) SignOut(ctx context.Context, tokens provider.Tokens) error {
	if tokens.AccessToken == "" {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/logout", tokens.AccessToken, nil, nil)
	if err == nil || errors.Is(err, shared.ErrUnauthorized) || errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	return err
}

// GetSession implements provider.Provider.
func (c *Client) GetSession(ctx context.Context, tokens provider.Tokens) (*provider.AuthSession, error) {
	if tokens.Empty() {
		return nil, nil
	}
	if tokens.AccessToken == "" || c.expiring(tokens) {
		return c.refresh(ctx, tokens.RefreshToken)
	}
	var u user
	err := c.do(ctx, http.MethodGet, "/user", tokens.AccessToken, nil, &u)
	switch {
	case err == nil:
		return &provider.AuthSession{
			ID:       c.sessionID(tokens.AccessToken),
			Tokens:   tokens,
			Identity: provider.Identity{ID: u.ID, Email: strings.ToLower(u.Email)},
		}, nil
	case errors.Is(err, shared.ErrUnauthorized):
		return c.refresh(ctx, tokens.RefreshToken)
	default:
		return nil, err
	}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*provider.AuthSession, error) {
	var out tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", map[string]string{"refresh_token": refreshToken}, &out)
	if err != nil {
		if errors.Is(err, errRejected) || errors.Is(err, shared.ErrUnauthorized) {
			return nil, fmt.Errorf("gotrue: refresh rejected: %w", shared.ErrAuthCorruption)
		}
		return nil, err
	}
	return c.sessionFromToken(out), nil
}

// expiring reads the exp claim without verifying the signature; the
// provider verifies on every call, this only decides when to rotate.
func (c *Client) expiring(tokens provider.Tokens) bool {
	exp := tokens.ExpiresAt
	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(tokens.AccessToken, claims); err == nil {
		if date, err := claims.GetExpirationTime(); err == nil && date != nil {
			exp = date.Time
		}
	}
	if exp.IsZero() {
		return false
	}
	return !c.clock().Add(c.cfg.RefreshLeeway).Before(exp)
}

func (c *Client) sessionID(accessToken string) string {
	claims := jwt.MapClaims{}
	if _, _, err := c.parser.ParseUnverified(accessToken, claims); err != nil {
		return ""
	}
	id, _ := claims["session_id"].(string)
	return id
}

func (c *Client) sessionFromToken(out tokenResponse) *provider.AuthSession {
	expiresAt := time.Unix(out.ExpiresAt, 0).UTC()
	if out.ExpiresAt == 0 {
		expiresAt = c.clock().Add(time.Duration(out.ExpiresIn) * time.Second).UTC()
	}
	return &provider.AuthSession{
		ID: c.sessionID(out.AccessToken),
		Tokens: provider.Tokens{
			AccessToken:  out.AccessToken,
			RefreshToken: out.RefreshToken,
			ExpiresAt:    expiresAt,
		},
		Identity: provider.Identity{ID: out.User.ID, Email: strings.ToLower(out.User.Email)},
	}
}

// errRejected marks a 400 answer, which GoTrue uses for bad grants.
var errRejected = errors.New("gotrue: request rejected")

func (c *Client) do(ctx context.Context, method, path, bearer string, body any, out any) error {
	endpoint, err := url.JoinPath(c.cfg.BaseURL, strings.SplitN(path, "?", 2)[0])
	if err != nil {
		return err
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		endpoint += path[i:]
	}

	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("apikey", c.cfg.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("gotrue: %s %s: %w: %w", method, path, shared.ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("gotrue: decode %s: %w", path, err)
		}
		return nil
	}

	var apiErr errorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&apiErr)
	detail := firstNonEmpty(apiErr.ErrorDescription, apiErr.Msg, apiErr.Error, apiErr.Code, resp.Status)
	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("gotrue: %s: %w: %s", path, shared.ErrProviderFault, detail)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("gotrue: %s: %w: %s", path, shared.ErrUnauthorized, detail)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("gotrue: %s: %w: %s", path, shared.ErrNotFound, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("gotrue: %s: %w: %s", path, shared.ErrTransient, detail)
	default:
		return fmt.Errorf("%w: %s: %s", errRejected, path, detail)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var _ provider.Provider = (*Client)(nil)
