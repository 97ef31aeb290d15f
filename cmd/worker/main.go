package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kampus-erp/kampus/internal/app"
	jobmetrics "github.com/kampus-erp/kampus/internal/jobs"
	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/platform/cache"
	"github.com/kampus-erp/kampus/internal/platform/db"
	"github.com/kampus-erp/kampus/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.Redis())
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := jobmetrics.NewMetrics(nil)
	store := notification.NewRepository(pool)
	feed := notification.NewFeed(redisClient, cfg.NotificationChannel, logger)

	cron, err := jobs.NotificationCron(cfg.NotificationRetention)
	if err != nil {
		logger.Error("build prune task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cfg.Queue(),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: jobs.NotificationHandlers(
			notification.NewPublishHandler(store, feed, metrics, logger),
			notification.NewPruneHandler(store, metrics, logger),
		),
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
