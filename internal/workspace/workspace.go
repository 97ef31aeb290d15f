// Package workspace wires the identity pipeline of one browser session:
// session store, profile resolution, tenant scope, navigation and inbox.
package workspace

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kampus-erp/kampus/internal/navigation"
	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/observability"
	"github.com/kampus-erp/kampus/internal/profile"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/roles"
	"github.com/kampus-erp/kampus/internal/session"
	"github.com/kampus-erp/kampus/internal/tenant"
)

// Status summarises where the pipeline stands for the current identity.
type Status string

const (
	StatusSignedOut   Status = "signed_out"
	StatusResolving   Status = "resolving"
	StatusReady       Status = "ready"
	StatusUnlinked    Status = "unlinked"
	StatusUnavailable Status = "unavailable"
)

// Resolver maps an identity to its profile.
type Resolver interface {
	Resolve(ctx context.Context, identity provider.Identity) profile.Result
}

// Snapshot is a consistent read of the workspace.
type Snapshot struct {
	Status   Status             `json:"status"`
	Identity *provider.Identity `json:"identity,omitempty"`
	Profile  *profile.Profile   `json:"profile,omitempty"`
	Scope    string             `json:"scope"`
	Branding tenant.Branding    `json:"branding"`
	Unread   int                `json:"unread_count"`
}

// Workspace is the identity pipeline of one browser session. Profile, scope,
// branding and inbox are only ever written by a resolution whose generation
// is still current.
type Workspace struct {
	id           string
	store        *session.Store
	resolver     Resolver
	tenant       *tenant.Provider
	inbox        *notification.Inbox
	entitlements *navigation.Entitlements
	metrics      *observability.Metrics
	logger       *slog.Logger
	tracker      profile.Tracker

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	status   Status
	identity *provider.Identity
	profile  *profile.Profile
	done     chan struct{}
}

func newWorkspace(id string, store *session.Store, deps Deps) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	close(done)
	w := &Workspace{
		id:           id,
		store:        store,
		resolver:     deps.Resolver,
		tenant:       tenant.NewProvider(deps.Branding),
		inbox:        notification.NewInbox(deps.Notifications, deps.Window, deps.Logger),
		entitlements: deps.Entitlements,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
		ctx:          ctx,
		cancel:       cancel,
		status:       StatusSignedOut,
		done:         done,
	}
	store.OnReset(w.reset)
	store.OnIdentity(w.apply)
	return w
}

// ID returns the browser session the workspace belongs to.
func (w *Workspace) ID() string { return w.id }

// Init restores the persisted session.
func (w *Workspace) Init(ctx context.Context) error {
	return w.store.Init(ctx)
}

// Refresh revalidates the session with the provider.
func (w *Workspace) Refresh(ctx context.Context) error {
	return w.store.Refresh(ctx)
}

// SignIn authenticates the browser session.
func (w *Workspace) SignIn(ctx context.Context, email, password string) error {
	return w.store.SignIn(ctx, email, password)
}

// SignOut ends the browser session.
func (w *Workspace) SignOut(ctx context.Context) error {
	return w.store.SignOut(ctx)
}

// ConsumeRedirect reports, once, that the client must sign in again.
func (w *Workspace) ConsumeRedirect() bool {
	return w.store.ConsumeRedirect()
}

// Session exposes the underlying session store.
func (w *Workspace) Session() *session.Store { return w.store }

// Inbox exposes the notification cache.
func (w *Workspace) Inbox() *notification.Inbox { return w.inbox }

// Status returns the pipeline status.
func (w *Workspace) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// Identity returns the signed-in identity or nil.
func (w *Workspace) Identity() *provider.Identity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.identity
}

// Profile returns the resolved profile or nil.
func (w *Workspace) Profile() *profile.Profile {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.profile
}

// Scope returns the tenant scope of the resolved profile.
func (w *Workspace) Scope() tenant.Scope {
	return w.tenant.Scope()
}

// Snapshot reads the workspace state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.RLock()
	snap := Snapshot{Status: w.status, Identity: w.identity, Profile: w.profile}
	w.mu.RUnlock()
	snap.Scope = w.tenant.Scope().String()
	snap.Branding = w.tenant.Branding()
	snap.Unread = w.inbox.UnreadCount()
	return snap
}

// Viewer describes the caller for the route guard.
func (w *Workspace) Viewer() navigation.Viewer {
	w.mu.RLock()
	defer w.mu.RUnlock()
	v := navigation.Viewer{Authenticated: w.identity != nil, Role: roles.Unknown}
	switch w.status {
	case StatusReady:
		v.Role = w.profile.Role
	case StatusUnavailable, StatusResolving:
		v.Unavailable = v.Authenticated
	}
	return v
}

// Menu returns the navigation of the resolved role for currentPath.
func (w *Workspace) Menu(currentPath string) navigation.Menu {
	return w.entitlements.MenuFor(w.Viewer().Role, currentPath)
}

// Wait blocks until the current resolution settles, the workspace is closed
// or ctx ends.
func (w *Workspace) Wait(ctx context.Context) (Status, error) {
	for {
		w.mu.RLock()
		status, done := w.status, w.done
		w.mu.RUnlock()
		if status != StatusResolving {
			return status, nil
		}
		if w.ctx.Err() != nil {
			return StatusSignedOut, nil
		}
		select {
		case <-done:
		case <-ctx.Done():
			return status, ctx.Err()
		}
	}
}

// Receive pushes a freshly published notification into the inbox.
func (w *Workspace) Receive(item notification.Item) bool {
	if w.Status() != StatusReady {
		return false
	}
	return w.inbox.Receive(item)
}

// Close stops the pipeline. A running resolution is cancelled, its result
// discarded and the workspace left signed out.
func (w *Workspace) Close() {
	w.store.Close()
	w.tracker.Invalidate()
	w.cancel()
	w.clear(StatusSignedOut, nil)
}

// apply runs with the session store locked, once per settled transition.
func (w *Workspace) apply(identity *provider.Identity) {
	if identity == nil {
		w.tracker.Invalidate()
		w.clear(StatusSignedOut, nil)
		return
	}

	w.mu.RLock()
	same := w.identity != nil && w.identity.ID == identity.ID && w.status != StatusUnavailable
	w.mu.RUnlock()
	if same {
		return
	}

	ctx, gen := w.tracker.Begin(w.ctx)
	done := make(chan struct{})
	w.mu.Lock()
	w.status = StatusResolving
	w.identity = identity
	w.profile = nil
	w.done = done
	w.mu.Unlock()
	w.tenant.Reset()
	w.inbox.Reset()

	go w.resolve(ctx, gen, *identity, done)
}

func (w *Workspace) resolve(ctx context.Context, gen uint64, identity provider.Identity, done chan struct{}) {
	defer close(done)
	logger := w.logger.With(slog.String("identity", identity.ID))

	res := w.resolver.Resolve(ctx, identity)
	switch res.Outcome {
	case profile.OutcomeCancelled:
		return
	case profile.OutcomeUnlinked, profile.OutcomeFatal:
		w.commit(gen, func() { w.clear(StatusUnlinked, &identity) })
		return
	case profile.OutcomeFailed:
		w.commit(gen, func() { w.clear(StatusUnavailable, &identity) })
		return
	}

	prof := res.Profile
	scope := tenant.ScopeFor(prof)
	var (
		branding   tenant.Branding
		brandingOK bool
		items      []notification.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := w.tenant.LoadBranding(gctx, scope)
		if err != nil {
			logger.Warn("load tenant branding", slog.String("scope", scope.String()), slog.Any("error", err))
			return nil
		}
		branding, brandingOK = b, true
		return nil
	})
	g.Go(func() error {
		list, err := w.inbox.Fetch(gctx, identity.ID)
		if err != nil {
			logger.Warn("load notifications", slog.Any("error", err))
			return nil
		}
		items = list
		return nil
	})
	_ = g.Wait()

	w.commit(gen, func() {
		w.tenant.Swap(scope)
		if brandingOK {
			w.tenant.SetBranding(scope, branding)
		}
		w.inbox.Replace(identity.ID, items)
		w.mu.Lock()
		w.status = StatusReady
		w.profile = prof
		w.mu.Unlock()
	})
}

func (w *Workspace) commit(gen uint64, fn func()) {
	if !w.tracker.Commit(gen, fn) {
		w.metrics.StaleResultDiscarded()
		w.logger.Debug("discard stale resolution", slog.Uint64("generation", gen))
	}
}

// clear drops everything derived from a profile.
func (w *Workspace) clear(status Status, identity *provider.Identity) {
	w.mu.Lock()
	w.status = status
	w.identity = identity
	w.profile = nil
	w.mu.Unlock()
	w.tenant.Reset()
	w.inbox.Reset()
}

// reset is the session store's teardown hook.
func (w *Workspace) reset() {
	w.tracker.Invalidate()
	w.clear(StatusSignedOut, nil)
}
