package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"

	jobmetrics "github.com/kampus-erp/kampus/internal/jobs"
	"github.com/kampus-erp/kampus/internal/platform/ids"
)

// TaskTypePublish is the asynq task carrying a Draft.
const TaskTypePublish = "notification:publish"

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NewPublishTask constructs the asynq task for d.
func NewPublishTask(d Draft) (*asynq.Task, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePublish, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// Publisher hands drafts to the background worker. Publishing never fails
// the caller; problems are logged.
type Publisher struct {
	enqueuer Enqueuer
	queue    string
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPublisher constructs a Publisher enqueueing on queue.
func NewPublisher(enqueuer Enqueuer, queue string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{enqueuer: enqueuer, queue: queue, validate: validator.New(), logger: logger}
}

// Publish enqueues d.
func (p *Publisher) Publish(ctx context.Context, d Draft) {
	if err := p.validate.Struct(d); err != nil {
		p.logger.Warn("notification draft rejected", slog.String("owner", d.Owner), slog.Any("error", err))
		return
	}
	task, err := NewPublishTask(d)
	if err != nil {
		p.logger.Error("build notification task", slog.Any("error", err))
		return
	}
	opts := []asynq.Option{}
	if p.queue != "" {
		opts = append(opts, asynq.Queue(p.queue))
	}
	if _, err := p.enqueuer.EnqueueContext(ctx, task, opts...); err != nil {
		p.logger.Error("enqueue notification", slog.String("owner", d.Owner), slog.Any("error", err))
	}
}

// Announcer delivers stored items to live inboxes.
type Announcer interface {
	Announce(ctx context.Context, item Item) error
}

// PublishHandler stores published drafts. It runs inside the worker.
type PublishHandler struct {
	store     Store
	announcer Announcer
	validate  *validator.Validate
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewPublishHandler constructs the handler. announcer may be nil.
func NewPublishHandler(store Store, announcer Announcer, metrics *jobmetrics.Metrics, logger *slog.Logger) *PublishHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublishHandler{
		store:     store,
		announcer: announcer,
		validate:  validator.New(),
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// ProcessTask implements asynq.Handler.
func (h *PublishHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	tracker := h.metrics.Track(TaskTypePublish)
	var d Draft
	if err := json.Unmarshal(t.Payload(), &d); err != nil {
		h.logger.Warn("malformed notification payload", slog.Any("error", err))
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	}
	if err := h.validate.Struct(d); err != nil {
		h.logger.Warn("invalid notification payload", slog.Any("error", err))
		return tracker.End(fmt.Errorf("%w: %v", asynq.SkipRetry, err))
	}
	now := h.now().UTC()
	item := Item{
		ID:        ids.NewAt(now),
		Owner:     d.Owner,
		Type:      d.Type,
		Title:     d.Title,
		Message:   d.Message,
		LinkTo:    d.LinkTo,
		CreatedAt: now,
	}
	if err := h.store.Insert(ctx, item); err != nil {
		return tracker.End(fmt.Errorf("store notification: %w", err))
	}
	tracker.Rows(1)
	if h.announcer != nil {
		if err := h.announcer.Announce(ctx, item); err != nil {
			h.logger.Warn("announce notification", slog.String("id", item.ID), slog.Any("error", err))
		}
	}
	return tracker.End(nil)
}
