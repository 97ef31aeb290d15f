// Package provider describes the boundary to the external identity provider
// and the event fan-out shared by its implementations.
package provider

import (
	"context"
	"time"
)

// Identity is the provider-verified subject behind a session.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Tokens is the part of a session persisted on the server side of the
// browser binding.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Empty reports whether no refresh handle is present.
func (t Tokens) Empty() bool {
	return t.RefreshToken == ""
}

// AuthSession is an authenticated session as reported by the provider.
type AuthSession struct {
	ID       string
	Tokens   Tokens
	Identity Identity
}

// EventType enumerates provider lifecycle signals.
type EventType string

const (
	EventSignedIn           EventType = "SIGNED_IN"
	EventSignedOut          EventType = "SIGNED_OUT"
	EventTokenRefreshed     EventType = "TOKEN_REFRESHED"
	EventTokenRefreshFailed EventType = "TOKEN_REFRESH_FAILED"
	// EventForcedReauth demands that every session of Subject signs in again.
	EventForcedReauth EventType = "FORCED_REAUTH"
)

// Event is a provider-pushed session lifecycle signal. Subject and SessionID
// narrow the audience; empty values match everyone.
type Event struct {
	Type      EventType    `json:"type"`
	Subject   string       `json:"subject,omitempty"`
	SessionID string       `json:"session_id,omitempty"`
	At        time.Time    `json:"at"`
	Session   *AuthSession `json:"-"`
}

// Provider is the identity provider contract consumed by the session store.
//
// Implementations must not deliver events from inside their own method calls:
// subscribers hold their own locks while calling into the provider.
type Provider interface {
	// SignIn exchanges credentials for a session.
	SignIn(ctx context.Context, email, password string) (*AuthSession, error)
	// SignOut revokes the session behind tokens.
	SignOut(ctx context.Context, tokens Tokens) error
	// GetSession returns the session behind tokens, rotating them when the
	// access token is close to expiry. A nil session with nil error means the
	// provider holds no session for these tokens.
	GetSession(ctx context.Context, tokens Tokens) (*AuthSession, error)
	// Subscribe registers fn for pushed events and returns its cancel func.
	Subscribe(fn func(Event)) (cancel func())
}
