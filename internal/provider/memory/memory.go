// Package memory is an in-process identity provider for development and
// tests. Passwords are stored as bcrypt hashes; tokens are random UUIDs.
package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/shared"
)

// Relay forwards events to every process sharing the identity source.
type Relay interface {
	Publish(ctx context.Context, e provider.Event) error
}

type account struct {
	identity provider.Identity
	hash     []byte
}

// Provider implements provider.Provider in memory.
type Provider struct {
	*provider.Hub

	mu         sync.Mutex
	accounts   map[string]account
	sessions   map[string]*provider.AuthSession // by refresh token
	ttl        time.Duration
	clock      func() time.Time
	failNext   []error
	getCalls   int
	bcryptCost int
	relay      Relay
}

// New constructs a Provider issuing access tokens valid for ttl.
func New(ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Provider{
		Hub:        provider.NewHub(),
		accounts:   make(map[string]account),
		sessions:   make(map[string]*provider.AuthSession),
		ttl:        ttl,
		clock:      time.Now,
		bcryptCost: bcrypt.MinCost,
	}
}

// SetClock overrides the time source.
func (p *Provider) SetClock(clock func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clock = clock
}

// SetRelay routes revocations through r. Events published on r are expected
// to come back through the local hub, so they are not dispatched twice.
func (p *Provider) SetRelay(r Relay) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.relay = r
}

// AddUser registers an account.
func (p *Provider) AddUser(id, email, password string) error {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(email) == "" {
		return errors.New("memory provider: id and email required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[normalizeEmail(email)] = account{identity: provider.Identity{ID: id, Email: normalizeEmail(email)}, hash: hash}
	return nil
}

// FailNext queues errors returned by the next GetSession calls, in order.
func (p *Provider) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failNext = append(p.failNext, errs...)
}

// GetSessionCalls reports how many times GetSession ran.
func (p *Provider) GetSessionCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls
}

// SignIn implements provider.Provider.
func (p *Provider) SignIn(_ context.Context, email, password string) (*provider.AuthSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	acct, ok := p.accounts[normalizeEmail(email)]
	if !ok {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acct.hash, []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	sess := &provider.AuthSession{ID: uuid.NewString(), Identity: acct.identity}
	p.issueLocked(sess)
	return cloneSession(sess), nil
}

// SignOut implements provider.Provider.
func (p *Provider) SignOut(_ context.Context, tokens provider.Tokens) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sessions, tokens.RefreshToken)
	return nil
}

// GetSession implements provider.Provider. Unknown refresh tokens are
// reported as corruption, the way hosted providers reject revoked handles.
func (p *Provider) GetSession(_ context.Context, tokens provider.Tokens) (*provider.AuthSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if len(p.failNext) > 0 {
		err := p.failNext[0]
		p.failNext = p.failNext[1:]
		return nil, err
	}
	if tokens.Empty() {
		return nil, nil
	}
	sess, ok := p.sessions[tokens.RefreshToken]
	if !ok {
		return nil, shared.ErrAuthCorruption
	}
	if sess.Tokens.AccessToken != tokens.AccessToken || !p.clock().Before(sess.Tokens.ExpiresAt) {
		delete(p.sessions, tokens.RefreshToken)
		p.issueLocked(sess)
	}
	return cloneSession(sess), nil
}

// Revoke drops every session of subject and pushes a forced re-auth event.
func (p *Provider) Revoke(subject string) {
	p.mu.Lock()
	for token, sess := range p.sessions {
		if sess.Identity.ID == subject {
			delete(p.sessions, token)
		}
	}
	now := p.clock()
	relay := p.relay
	p.mu.Unlock()
	e := provider.Event{Type: provider.EventForcedReauth, Subject: subject, At: now}
	if relay != nil {
		if err := relay.Publish(context.Background(), e); err == nil {
			return
		}
	}
	p.Dispatch(e)
}

// Push delivers e to subscribers.
func (p *Provider) Push(e provider.Event) {
	p.Dispatch(e)
}

func (p *Provider) issueLocked(sess *provider.AuthSession) {
	sess.Tokens = provider.Tokens{
		AccessToken:  uuid.NewString(),
		RefreshToken: uuid.NewString(),
		ExpiresAt:    p.clock().Add(p.ttl),
	}
	p.sessions[sess.Tokens.RefreshToken] = sess
}

func cloneSession(s *provider.AuthSession) *provider.AuthSession {
	c := *s
	return &c
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ provider.Provider = (*Provider)(nil)
