package staff

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-erp/kampus/internal/platform/db"
	"github.com/kampus-erp/kampus/internal/shared"
)

// Repository runs scoped reads and the link write. Callers build the
// queries so the tenant predicate is always attached by them.
type Repository interface {
	FindMember(ctx context.Context, q *db.Query) (*Member, error)
	ListClasses(ctx context.Context, q *db.Query) ([]Class, error)
	// LinkMember binds an unlinked staff row of tenantID to userID.
	LinkMember(ctx context.Context, tenantID, memberID, userID string) (bool, error)
}

// Columns selected by FindMember and ListClasses queries.
var (
	MemberColumns = []string{"id", "tenant_id::text", "COALESCE(user_id::text, '')", "email", "full_name"}
	ClassColumns  = []string{"id", "tenant_id::text", "name"}
)

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindMember implements Repository.
func (r *PGRepository) FindMember(ctx context.Context, q *db.Query) (*Member, error) {
	sql, args := q.Limit(1).SQL()
	var m Member
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&m.ID, &m.TenantID, &m.UserID, &m.Email, &m.FullName); err != nil {
		return nil, db.Classify(err)
	}
	return &m, nil
}

// ListClasses implements Repository.
func (r *PGRepository) ListClasses(ctx context.Context, q *db.Query) ([]Class, error) {
	sql, args := q.SQL()
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	classes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Class, error) {
		var c Class
		err := row.Scan(&c.ID, &c.TenantID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return classes, nil
}

// LinkMember implements Repository.
func (r *PGRepository) LinkMember(ctx context.Context, tenantID, memberID, userID string) (bool, error) {
	linked := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE staff SET user_id = $1 WHERE id = $2 AND tenant_id = $3 AND user_id IS NULL`, userID, memberID, tenantID)
		if err != nil {
			return fmt.Errorf("link staff: %w", db.Classify(err))
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		linked = true
		return shared.RecordAudit(ctx, tx, shared.AuditLog{
			ActorID:  userID,
			Action:   shared.AuditStaffLinked,
			Entity:   "staff",
			EntityID: memberID,
			Meta:     map[string]any{"tenant_id": tenantID},
		})
	})
	return linked, err
}

var _ Repository = (*PGRepository)(nil)
