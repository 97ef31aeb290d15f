package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-erp/kampus/internal/platform/db"
	"github.com/kampus-erp/kampus/internal/shared"
)

// Repository defines persistence operations for profiles.
type Repository interface {
	FindByUserID(ctx context.Context, userID string) (*Record, error)
	FindByEmail(ctx context.Context, email string) (*Record, error)
	// Link binds an unlinked row to userID. It reports false when the row
	// was already linked by the time the write ran.
	Link(ctx context.Context, rowID, userID string) (bool, error)
}

var profileColumns = []string{
	"id", "COALESCE(user_id::text, '')", "email", "display_name", "role",
	"COALESCE(avatar_ref, '')", "COALESCE(tenant_id::text, '')",
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByUserID fetches the profile linked to userID.
func (r *PGRepository) FindByUserID(ctx context.Context, userID string) (*Record, error) {
	return r.findOne(ctx, db.Select("profiles", profileColumns...).Where("user_id", userID).Limit(1))
}

// FindByEmail fetches a profile by case-insensitive email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Record, error) {
	q := db.Select("profiles", profileColumns...).
		Where("lower(email)", strings.ToLower(strings.TrimSpace(email))).
		OrderBy("user_id NULLS FIRST, id").
		Limit(1)
	return r.findOne(ctx, q)
}

func (r *PGRepository) findOne(ctx context.Context, q *db.Query) (*Record, error) {
	sql, args := q.SQL()
	var rec Record
	err := r.pool.QueryRow(ctx, sql, args...).Scan(
		&rec.RowID, &rec.UserID, &rec.Email, &rec.DisplayName, &rec.Role, &rec.AvatarRef, &rec.TenantID,
	)
	if err != nil {
		return nil, db.Classify(err)
	}
	return &rec, nil
}

// Link writes user_id on an unlinked row and records the audit entry in the
// same transaction.
func (r *PGRepository) Link(ctx context.Context, rowID, userID string) (bool, error) {
	linked := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE profiles SET user_id = $1, updated_at = NOW() WHERE id = $2 AND user_id IS NULL`, userID, rowID)
		if err != nil {
			return fmt.Errorf("link profile: %w", db.Classify(err))
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		linked = true
		if err := shared.RecordAudit(ctx, tx, shared.AuditLog{
			ActorID:  userID,
			Action:   shared.AuditProfileLinked,
			Entity:   "profile",
			EntityID: rowID,
			Meta:     map[string]any{"source": "email_fallback"},
		}); err != nil {
			return fmt.Errorf("audit profile link: %w", db.Classify(err))
		}
		return nil
	})
	return linked, err
}

var _ Repository = (*PGRepository)(nil)
