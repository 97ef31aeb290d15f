package profile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kampus-erp/kampus/internal/observability"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/roles"
	"github.com/kampus-erp/kampus/internal/shared"
)

// Defaults for Config.
const (
	DefaultAttempts = 3
	DefaultDelay    = 500 * time.Millisecond
)

// Config bounds the retry loop of a resolution.
type Config struct {
	Attempts int
	Delay    time.Duration
}

// Resolver maps an authenticated identity to its profile.
type Resolver struct {
	repo    Repository
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultAttempts
	}
	if cfg.Delay < 0 {
		cfg.Delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, cfg: cfg, logger: logger, metrics: metrics}
}

type lookup struct {
	record *Record
	healed bool
}

// Resolve looks the identity up by ID, then by email, linking an unlinked
// email match on the way. Transient store failures are retried a bounded
// number of times with a fixed delay; the loop ends early when ctx is
// cancelled. Resolve never returns a profile together with a failure outcome.
func (r *Resolver) Resolve(ctx context.Context, identity provider.Identity) Result {
	start := time.Now()
	res := r.resolve(ctx, identity)
	r.metrics.IdentityResolved(string(res.Outcome), time.Since(start))
	return res
}

func (r *Resolver) resolve(ctx context.Context, identity provider.Identity) Result {
	logger := r.logger.With(slog.String("identity", identity.ID))
	attempt := 0
	op := func() (lookup, error) {
		attempt++
		found, err := r.lookup(ctx, identity)
		if err != nil && !errors.Is(err, shared.ErrTransient) {
			return lookup{}, backoff.Permanent(err)
		}
		return found, err
	}
	found, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.cfg.Delay)),
		backoff.WithMaxTries(uint(r.cfg.Attempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("profile lookup failed, retrying", slog.Any("error", err), slog.Duration("next", next))
		}),
	)

	switch {
	case err == nil:
	case ctx.Err() != nil:
		return Result{Outcome: OutcomeCancelled, Err: ctx.Err()}
	case errors.Is(err, shared.ErrStructuralQuery):
		logger.Error("profile resolution aborted: store rejected query", slog.Any("error", err))
		return Result{Outcome: OutcomeFatal, Err: err}
	default:
		logger.Error("profile resolution failed", slog.Any("error", err), slog.Int("attempts", attempt))
		return Result{Outcome: OutcomeFailed, Err: err}
	}

	if found.record == nil {
		logger.Info("no profile linked to identity")
		return Result{Outcome: OutcomeUnlinked}
	}
	prof, ok := toProfile(found.record, identity)
	if !ok {
		logger.Warn("profile has tenant-scoped role without tenant", slog.String("profile", found.record.RowID))
		return Result{Outcome: OutcomeUnlinked}
	}
	if found.healed {
		logger.Info("profile linked by email", slog.String("profile", found.record.RowID))
		return Result{Profile: prof, Outcome: OutcomeHealed}
	}
	return Result{Profile: prof, Outcome: OutcomeLinked}
}

// lookup runs one attempt. A nil record with a nil error means unlinked.
func (r *Resolver) lookup(ctx context.Context, identity provider.Identity) (lookup, error) {
	rec, err := r.repo.FindByUserID(ctx, identity.ID)
	if err == nil {
		return lookup{record: rec}, nil
	}
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrPermissionDenied) {
		return lookup{}, err
	}
	if identity.Email == "" {
		return lookup{}, nil
	}

	rec, err = r.repo.FindByEmail(ctx, identity.Email)
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrPermissionDenied):
		return lookup{}, nil
	case err != nil:
		return lookup{}, err
	}

	switch rec.UserID {
	case identity.ID:
		return lookup{record: rec}, nil
	case "":
	default:
		r.logger.Warn("email matches profile linked to another identity",
			slog.String("identity", identity.ID), slog.String("profile", rec.RowID))
		return lookup{}, nil
	}

	wrote, err := r.repo.Link(ctx, rec.RowID, identity.ID)
	if err != nil {
		return lookup{}, err
	}
	if !wrote {
		// Linked concurrently; whoever won decides the owner.
		rec, err = r.repo.FindByUserID(ctx, identity.ID)
		if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrPermissionDenied) {
			return lookup{}, nil
		}
		if err != nil {
			return lookup{}, err
		}
		return lookup{record: rec}, nil
	}
	rec.UserID = identity.ID
	return lookup{record: rec, healed: true}, nil
}

func toProfile(rec *Record, identity provider.Identity) (*Profile, bool) {
	role := roles.Parse(rec.Role)
	if role != roles.Unknown && !role.IsPlatform() && rec.TenantID == "" {
		return nil, false
	}
	email := rec.Email
	if email == "" {
		email = identity.Email
	}
	return &Profile{
		ID:          identity.ID,
		DisplayName: rec.DisplayName,
		Role:        role,
		TenantID:    rec.TenantID,
		AvatarRef:   rec.AvatarRef,
		Email:       email,
	}, true
}
