package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kampus-erp/kampus/internal/jobs"
)

// TaskTypePrune is the scheduled task deleting old read notifications.
const TaskTypePrune = "notification:prune"

// DefaultRetention keeps read notifications this long.
const DefaultRetention = 90 * 24 * time.Hour

// PrunePayload configures one prune run.
type PrunePayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewPruneTask constructs the scheduled prune task.
func NewPruneTask(retention time.Duration) (*asynq.Task, error) {
	days := int(retention / (24 * time.Hour))
	if days < 1 {
		days = 1
	}
	data, err := json.Marshal(PrunePayload{RetentionDays: days})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePrune, data, asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// PruneHandler deletes read notifications past their retention. Unread items
// are never pruned.
type PruneHandler struct {
	store   Store
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewPruneHandler constructs the handler.
func NewPruneHandler(store Store, metrics *jobmetrics.Metrics, logger *slog.Logger) *PruneHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PruneHandler{store: store, metrics: metrics, logger: logger, now: time.Now}
}

// ProcessTask implements asynq.Handler.
func (h *PruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypePrune)
	var payload PrunePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	}
	retention := DefaultRetention
	if payload.RetentionDays > 0 {
		retention = time.Duration(payload.RetentionDays) * 24 * time.Hour
	}
	cutoff := h.now().UTC().Add(-retention)
	n, err := h.store.Prune(ctx, cutoff)
	if err != nil {
		return tracker.End(fmt.Errorf("prune notifications: %w", err))
	}
	tracker.Rows(n)
	h.logger.Info("notifications pruned", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	return tracker.End(nil)
}
