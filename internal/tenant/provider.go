package tenant

import (
	"context"
	"sync"
)

// Provider holds the scope and branding of one workspace. The scope is
// swapped as soon as a profile is applied; branding follows once loaded and
// may be stale in between.
type Provider struct {
	mu       sync.RWMutex
	branding *BrandingCache
	scope    Scope
	current  Branding
}

// NewProvider constructs a Provider with the deny scope.
func NewProvider(branding *BrandingCache) *Provider {
	return &Provider{branding: branding}
}

// Scope returns the current scope.
func (p *Provider) Scope() Scope {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scope
}

// Branding returns the last loaded branding.
func (p *Provider) Branding() Branding {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Swap installs scope without touching branding.
func (p *Provider) Swap(scope Scope) Scope {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scope = scope
	return scope
}

// SetBranding applies b only while scope is still current.
func (p *Provider) SetBranding(scope Scope, b Branding) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scope != scope {
		return false
	}
	p.current = b
	return true
}

// LoadBranding reads the branding of scope through the cache.
func (p *Provider) LoadBranding(ctx context.Context, scope Scope) (Branding, error) {
	if p.branding == nil {
		return Branding{}, nil
	}
	return p.branding.Get(ctx, scope)
}

// Reset returns to the deny scope and drops branding.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scope = Scope{}
	p.current = Branding{}
}
