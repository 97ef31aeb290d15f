package tenant

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-erp/kampus/internal/platform/db"
)

// Repository defines persistence operations for tenants.
type Repository interface {
	Get(ctx context.Context, id string) (*Tenant, error)
	// Setting returns the value of key for tenantID, falling back to the
	// global row. An empty tenantID reads the global row only.
	Setting(ctx context.Context, tenantID, key string) (string, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Get fetches a tenant by id.
func (r *PGRepository) Get(ctx context.Context, id string) (*Tenant, error) {
	sql, args := db.Select("tenants", "id", "display_name", "COALESCE(branding_ref, '')").
		Where("id", id).Limit(1).SQL()
	var t Tenant
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&t.ID, &t.DisplayName, &t.BrandingRef); err != nil {
		return nil, db.Classify(err)
	}
	return &t, nil
}

// Setting implements Repository.
func (r *PGRepository) Setting(ctx context.Context, tenantID, key string) (string, error) {
	var value string
	var err error
	if tenantID == "" {
		sql, args := db.Select("tenant_settings", "value").Where("key", key).WhereNull("tenant_id").Limit(1).SQL()
		err = r.pool.QueryRow(ctx, sql, args...).Scan(&value)
	} else {
		err = r.pool.QueryRow(ctx, `SELECT value FROM tenant_settings
WHERE key = $1 AND (tenant_id = $2 OR tenant_id IS NULL)
ORDER BY tenant_id NULLS LAST LIMIT 1`, key, tenantID).Scan(&value)
	}
	if err != nil {
		return "", db.Classify(err)
	}
	return value, nil
}

var _ Repository = (*PGRepository)(nil)
