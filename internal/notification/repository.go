package notification

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kampus-erp/kampus/internal/platform/db"
)

// Store is the source of truth for notifications.
type Store interface {
	ListRecent(ctx context.Context, owner string, limit int) ([]Item, error)
	// MarkRead flags one unread item of owner. Marking a read item is a
	// no-op.
	MarkRead(ctx context.Context, owner, id string) error
	// MarkAllRead flags every unread item of owner and returns how many
	// rows changed.
	MarkAllRead(ctx context.Context, owner string) (int64, error)
	Insert(ctx context.Context, item Item) error
	// Prune deletes read items created before cutoff.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// PGRepository implements Store using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListRecent returns the newest items of owner first.
func (r *PGRepository) ListRecent(ctx context.Context, owner string, limit int) ([]Item, error) {
	sql, args := db.Select("notifications",
		"id", "owner_id", "type", "title", "message", "read", "created_at", "COALESCE(link_to, '')").
		Where("owner_id", owner).
		OrderBy("created_at DESC, id DESC").
		Limit(limit).
		SQL()
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, db.Classify(err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) {
		var it Item
		err := row.Scan(&it.ID, &it.Owner, &it.Type, &it.Title, &it.Message, &it.Read, &it.CreatedAt, &it.LinkTo)
		return it, err
	})
	if err != nil {
		return nil, db.Classify(err)
	}
	return items, nil
}

// MarkRead implements Store.
func (r *PGRepository) MarkRead(ctx context.Context, owner, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND owner_id = $2 AND read = FALSE`, id, owner)
	return db.Classify(err)
}

// MarkAllRead implements Store.
func (r *PGRepository) MarkAllRead(ctx context.Context, owner string) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE owner_id = $1 AND read = FALSE`, owner)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

// Insert implements Store.
func (r *PGRepository) Insert(ctx context.Context, item Item) error {
	var link any
	if item.LinkTo != "" {
		link = item.LinkTo
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO notifications (id, owner_id, type, title, message, read, link_to, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		item.ID, item.Owner, string(item.Type), item.Title, item.Message, item.Read, link, item.CreatedAt)
	return db.Classify(err)
}

// Prune implements Store.
func (r *PGRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notifications WHERE read = TRUE AND created_at < $1`, cutoff)
	if err != nil {
		return 0, db.Classify(err)
	}
	return tag.RowsAffected(), nil
}

var _ Store = (*PGRepository)(nil)
