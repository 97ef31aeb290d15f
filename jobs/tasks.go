package jobs

import (
	"time"

	"github.com/hibiken/asynq"

	"github.com/kampus-erp/kampus/internal/notification"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// PruneSchedule runs the notification prune once a day.
	PruneSchedule = "@daily"
)

// NotificationHandlers registers the notification tasks on the worker.
func NotificationHandlers(publish *notification.PublishHandler, prune *notification.PruneHandler) []TaskHandler {
	return []TaskHandler{
		{Type: notification.TaskTypePublish, Handler: publish.ProcessTask},
		{Type: notification.TaskTypePrune, Handler: prune.ProcessTask},
	}
}

// NotificationCron schedules the daily prune of read notifications older
// than retention.
func NotificationCron(retention time.Duration) ([]CronRegistration, error) {
	task, err := notification.NewPruneTask(retention)
	if err != nil {
		return nil, err
	}
	return []CronRegistration{{
		Spec:    PruneSchedule,
		Task:    task,
		Options: []asynq.Option{asynq.Queue(QueueDefault)},
	}}, nil
}
