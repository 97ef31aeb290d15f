package staff

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/platform/db"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/shared"
	"github.com/kampus-erp/kampus/internal/tenant"
)

// LinkedTitle is the notification sent when a staff record is linked.
const LinkedTitle = "Data staf terhubung"

// Notifier publishes notifications. *notification.Publisher satisfies it.
type Notifier interface {
	Publish(ctx context.Context, d notification.Draft)
}

// Service answers staff questions within a tenant scope.
type Service struct {
	repo     Repository
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
	notifier Notifier
}

// NewService constructs a Service retrying transient failures attempts
// times, delay apart.
func NewService(repo Repository, attempts int, delay time.Duration, logger *slog.Logger) *Service {
	if attempts <= 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, attempts: uint(attempts), delay: delay, logger: logger}
}

// WithNotifier tells linked staff members about the link.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// MyClasses resolves the caller's staff record, linking it by email when
// needed, and lists the classes they are homeroom teacher of. A caller with
// no staff record gets an empty list and a prompt, not an error.
func (s *Service) MyClasses(ctx context.Context, scope tenant.Scope, identity provider.Identity) (MyClasses, error) {
	op := func() (MyClasses, error) {
		out, err := s.myClasses(ctx, scope, identity)
		if err != nil && !errors.Is(err, shared.ErrTransient) {
			return MyClasses{}, backoff.Permanent(err)
		}
		return out, err
	}
	out, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.delay)),
		backoff.WithMaxTries(s.attempts),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		return MyClasses{}, fmt.Errorf("my classes: %w", err)
	}
	return out, nil
}

func (s *Service) myClasses(ctx context.Context, scope tenant.Scope, identity provider.Identity) (MyClasses, error) {
	member, err := s.member(ctx, scope, identity)
	if err != nil {
		return MyClasses{}, err
	}
	if member == nil {
		return MyClasses{Classes: []Class{}, Prompt: NotLinkedPrompt}, nil
	}
	q := scope.Apply(db.Select("classes", ClassColumns...)).
		Where("homeroom_staff_id", member.ID).
		OrderBy("name")
	classes, err := s.repo.ListClasses(ctx, q)
	if err != nil {
		return MyClasses{}, err
	}
	if classes == nil {
		classes = []Class{}
	}
	return MyClasses{Linked: true, Member: member, Classes: classes}, nil
}

func (s *Service) member(ctx context.Context, scope tenant.Scope, identity provider.Identity) (*Member, error) {
	m, err := s.repo.FindMember(ctx, scope.Apply(db.Select("staff", MemberColumns...)).Where("user_id", identity.ID))
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, shared.ErrNotFound) && !errors.Is(err, shared.ErrPermissionDenied) {
		return nil, err
	}
	if identity.Email == "" {
		return nil, nil
	}

	q := scope.Apply(db.Select("staff", MemberColumns...)).
		Where("lower(email)", strings.ToLower(strings.TrimSpace(identity.Email))).
		OrderBy("user_id NULLS FIRST, id")
	m, err = s.repo.FindMember(ctx, q)
	switch {
	case errors.Is(err, shared.ErrNotFound), errors.Is(err, shared.ErrPermissionDenied):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if m.UserID == identity.ID {
		return m, nil
	}
	if m.UserID != "" {
		s.logger.Warn("staff email matches another identity", slog.String("identity", identity.ID), slog.String("staff", m.ID))
		return nil, nil
	}

	wrote, err := s.repo.LinkMember(ctx, m.TenantID, m.ID, identity.ID)
	if err != nil {
		return nil, err
	}
	if !wrote {
		return nil, nil
	}
	s.logger.Info("staff record linked by email", slog.String("identity", identity.ID), slog.String("staff", m.ID))
	m.UserID = identity.ID
	if s.notifier != nil {
		s.notifier.Publish(ctx, notification.Draft{
			Owner:   identity.ID,
			Type:    notification.TypeSuccess,
			Title:   LinkedTitle,
			Message: "Akun Anda kini terhubung dengan data staf " + m.FullName + ".",
			LinkTo:  "/classes/mine",
		})
	}
	return m, nil
}
