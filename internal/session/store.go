package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kampus-erp/kampus/internal/observability"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/shared"
)

// Listener observes the identity every time the store settles in Active or
// SignedOut. A nil identity means nobody is signed in.
type Listener func(identity *provider.Identity)

// ResetHook clears state derived from the previous identity.
type ResetHook func()

// DefaultRefreshLeeway is how early Store.NeedsRefresh asks for a refresh.
const DefaultRefreshLeeway = 30 * time.Second

// Store owns the authentication session of one browser session. Every
// operation and provider event is serialized on a single mutex, so observers
// see transitions in the order they happened.
type Store struct {
	mu        sync.Mutex
	provider  provider.Provider
	vault     Vault
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time
	state     State
	session   *provider.AuthSession
	redirect  bool
	listeners []Listener
	resets    []ResetHook
	detach    func()
}

// NewStore constructs a store in the Initializing state.
func NewStore(p provider.Provider, vault Vault, logger *slog.Logger, metrics *observability.Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		provider: p,
		vault:    vault,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		state:    StateInitializing,
	}
}

// OnIdentity registers a listener. Listeners run with the store locked and
// must not call back into it.
func (s *Store) OnIdentity(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// OnReset registers a hook run whenever the session is torn down.
func (s *Store) OnReset(h ResetHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resets = append(s.resets, h)
}

// Attach subscribes the store to provider events until Close.
func (s *Store) Attach(ctx context.Context) {
	cancel := s.provider.Subscribe(func(e provider.Event) {
		s.HandleEvent(context.WithoutCancel(ctx), e)
	})
	s.mu.Lock()
	s.detach = cancel
	s.mu.Unlock()
}

// Close stops receiving provider events.
func (s *Store) Close() {
	s.mu.Lock()
	detach := s.detach
	s.detach = nil
	s.mu.Unlock()
	if detach != nil {
		detach()
	}
}

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the signed-in identity or nil.
func (s *Store) Identity() *provider.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identityLocked()
}

// ConsumeRedirect reports, once, that the session was torn down without the
// user asking and the client must be sent to the login page.
func (s *Store) ConsumeRedirect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.redirect
	s.redirect = false
	return pending
}

// Init recovers a persisted session. It is a no-op once the store has left
// Initializing.
func (s *Store) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitializing {
		return nil
	}

	tokens, err := s.vault.Load(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.recoverLocked(ctx, err)
		return nil
	}
	if tokens.Empty() {
		s.transitionLocked(StateSignedOut)
		return nil
	}
	return s.checkLocked(ctx, tokens)
}

// Refresh asks the provider whether the active session is still valid,
// rotating tokens when needed.
func (s *Store) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.session == nil {
		return nil
	}
	return s.checkLocked(ctx, s.session.Tokens)
}

// NeedsRefresh reports whether the active tokens expire within leeway.
func (s *Store) NeedsRefresh(leeway time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || s.session == nil {
		return false
	}
	exp := s.session.Tokens.ExpiresAt
	return !exp.IsZero() && s.now().Add(leeway).After(exp)
}

// SignIn authenticates with credentials and activates the session.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		if s.state == StateInitializing {
			s.transitionLocked(StateSignedOut)
		}
		return err
	}
	if s.session != nil && s.session.Identity.ID != sess.Identity.ID {
		s.resetLocked()
	}
	if err := s.vault.Save(ctx, sess.Tokens); err != nil {
		s.logger.Warn("persist session tokens", slog.Any("error", err))
	}
	s.session = sess
	s.transitionLocked(StateActive)
	return nil
}

// SignOut ends the session at the provider and locally.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		if err := s.provider.SignOut(ctx, s.session.Tokens); err != nil {
			s.logger.Warn("provider sign out", slog.Any("error", err))
		}
	}
	s.teardownLocked(ctx, false)
	return nil
}

// HandleEvent applies a provider event. Events naming another subject or
// session are ignored.
func (s *Store) HandleEvent(ctx context.Context, e provider.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.Type == provider.EventSignedIn {
		s.adoptLocked(ctx, e)
		return
	}
	if !s.addressedLocked(e) {
		return
	}
	switch e.Type {
	case provider.EventTokenRefreshed:
		if e.Session == nil {
			if err := s.checkLocked(ctx, s.session.Tokens); err != nil {
				s.logger.Warn("refresh after provider event", slog.Any("error", err))
			}
			return
		}
		s.rotateLocked(ctx, e.Session)
	case provider.EventTokenRefreshFailed:
		s.recoverLocked(ctx, shared.ErrAuthCorruption)
	case provider.EventSignedOut:
		s.teardownLocked(ctx, false)
	case provider.EventForcedReauth:
		if err := s.provider.SignOut(ctx, s.session.Tokens); err != nil {
			s.logger.Debug("sign out after forced reauth", slog.Any("error", err))
		}
		s.teardownLocked(ctx, true)
	}
}

func (s *Store) addressedLocked(e provider.Event) bool {
	if s.session == nil || (s.state != StateActive && s.state != StateRefreshing) {
		return false
	}
	if e.Subject != "" && e.Subject != s.session.Identity.ID {
		return false
	}
	if e.SessionID != "" && s.session.ID != "" && e.SessionID != s.session.ID {
		return false
	}
	return true
}

// adoptLocked accepts a SIGNED_IN event only for the session the store
// already holds. Provider events are shared by every browser session, so an
// event for an unknown session must never sign this one in.
func (s *Store) adoptLocked(ctx context.Context, e provider.Event) {
	if e.Session == nil || s.session == nil || s.session.ID != e.Session.ID {
		return
	}
	if err := s.vault.Save(ctx, e.Session.Tokens); err != nil {
		s.logger.Warn("persist session tokens", slog.Any("error", err))
	}
	s.session = e.Session
	s.transitionLocked(StateActive)
}

func (s *Store) checkLocked(ctx context.Context, tokens provider.Tokens) error {
	sess, err := s.provider.GetSession(ctx, tokens)
	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil && s.state != StateInitializing && !errors.Is(err, shared.ErrAuthCorruption) &&
		(errors.Is(err, shared.ErrTransient) || errors.Is(err, shared.ErrProviderFault)):
		// An established session survives provider outages; the next check retries.
		s.logger.Warn("session check failed, keeping session", slog.Any("error", err))
		return err
	case err != nil && shared.IsSessionCorruption(err):
		s.recoverLocked(ctx, err)
		return nil
	case err != nil && errors.Is(err, shared.ErrUnauthorized):
		s.teardownLocked(ctx, s.session != nil)
		return nil
	case err != nil:
		if s.state == StateInitializing {
			s.teardownLocked(ctx, false)
		}
		return err
	case sess == nil:
		s.teardownLocked(ctx, s.session != nil)
		return nil
	}
	if sess.Tokens.AccessToken != tokens.AccessToken || sess.Tokens.RefreshToken != tokens.RefreshToken {
		s.rotateLocked(ctx, sess)
		return nil
	}
	s.session = sess
	if s.state != StateActive {
		s.transitionLocked(StateActive)
	}
	return nil
}

func (s *Store) rotateLocked(ctx context.Context, sess *provider.AuthSession) {
	s.transitionLocked(StateRefreshing)
	if err := s.vault.Save(ctx, sess.Tokens); err != nil {
		s.logger.Warn("persist rotated tokens", slog.Any("error", err))
	}
	s.session = sess
	s.transitionLocked(StateActive)
}

// recoverLocked handles a corrupted session: local artifacts are cleared once,
// dependents are reset, and the store ends SignedOut with a pending redirect.
func (s *Store) recoverLocked(ctx context.Context, cause error) {
	s.logger.Warn("session corrupted, clearing local state", slog.Any("error", cause))
	s.transitionLocked(StateCorrupted)
	s.teardownLocked(ctx, true)
}

func (s *Store) teardownLocked(ctx context.Context, redirect bool) {
	if err := s.vault.Clear(ctx); err != nil {
		s.logger.Warn("clear session tokens", slog.Any("error", err))
	}
	s.resetLocked()
	s.session = nil
	if redirect {
		s.redirect = true
	}
	s.transitionLocked(StateSignedOut)
}

func (s *Store) resetLocked() {
	for _, h := range s.resets {
		h()
	}
}

func (s *Store) transitionLocked(to State) {
	from := s.state
	s.state = to
	s.metrics.SessionTransition(to.String())
	s.logger.Debug("session transition", slog.String("from", from.String()), slog.String("to", to.String()))
	if !to.settled() {
		return
	}
	identity := s.identityLocked()
	for _, l := range s.listeners {
		l(identity)
	}
}

func (s *Store) identityLocked() *provider.Identity {
	if s.session == nil || s.state != StateActive {
		return nil
	}
	id := s.session.Identity
	return &id
}
