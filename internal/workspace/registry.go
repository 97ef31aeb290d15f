package workspace

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/kampus-erp/kampus/internal/navigation"
	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/observability"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/session"
	"github.com/kampus-erp/kampus/internal/tenant"
)

// Defaults for Registry sizing.
const (
	DefaultSize = 4096
	DefaultTTL  = 30 * time.Minute
)

// Deps are shared by every workspace of a process.
type Deps struct {
	Provider provider.Provider
	// Vault opens the token vault of one browser session.
	Vault         func(sessionID string) session.Vault
	Resolver      Resolver
	Branding      *tenant.BrandingCache
	Notifications notification.Store
	Window        int
	Entitlements  *navigation.Entitlements
	Metrics       *observability.Metrics
	Logger        *slog.Logger
}

// Registry owns the workspaces of live browser sessions. Entries expire
// after ttl and are closed on eviction; the next request rebuilds them from
// the token vault.
type Registry struct {
	deps  Deps
	cache *expirable.LRU[string, *Workspace]
	group singleflight.Group
}

// NewRegistry constructs a Registry holding at most size workspaces.
func NewRegistry(deps Deps, size int, ttl time.Duration) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Entitlements == nil {
		deps.Entitlements = navigation.Default()
	}
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Registry{deps: deps}
	r.cache = expirable.NewLRU[string, *Workspace](size, func(_ string, w *Workspace) {
		w.Close()
		deps.Metrics.WorkspaceClosed()
	}, ttl)
	return r
}

// Get returns the workspace of sessionID, creating and initialising it on
// first use. Concurrent first requests share one initialisation.
func (r *Registry) Get(ctx context.Context, sessionID string) (*Workspace, error) {
	if w, ok := r.cache.Get(sessionID); ok {
		return w, nil
	}
	v, err, _ := r.group.Do(sessionID, func() (any, error) {
		if w, ok := r.cache.Get(sessionID); ok {
			return w, nil
		}
		w := r.build(sessionID)
		if err := w.Init(ctx); err != nil {
			w.Close()
			return nil, err
		}
		r.cache.Add(sessionID, w)
		r.deps.Metrics.WorkspaceOpened()
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

// Peek returns the workspace of sessionID without creating it.
func (r *Registry) Peek(sessionID string) (*Workspace, bool) {
	return r.cache.Peek(sessionID)
}

// Remove closes and forgets the workspace of sessionID.
func (r *Registry) Remove(sessionID string) {
	r.cache.Remove(sessionID)
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	return r.cache.Len()
}

// Broadcast delivers item to every workspace whose inbox belongs to its
// owner and returns how many accepted it.
func (r *Registry) Broadcast(item notification.Item) int {
	n := 0
	for _, w := range r.cache.Values() {
		if w.Receive(item) {
			n++
		}
	}
	return n
}

// Close closes every workspace.
func (r *Registry) Close() {
	r.cache.Purge()
}

func (r *Registry) build(sessionID string) *Workspace {
	logger := r.deps.Logger.With(slog.String("session", sessionID))
	store := session.NewStore(r.deps.Provider, r.deps.Vault(sessionID), logger, r.deps.Metrics)
	deps := r.deps
	deps.Logger = logger
	w := newWorkspace(sessionID, store, deps)
	store.Attach(w.ctx)
	return w
}
