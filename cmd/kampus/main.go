package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kampus-erp/kampus/internal/app"
	"github.com/kampus-erp/kampus/internal/auth"
	"github.com/kampus-erp/kampus/internal/navigation"
	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/observability"
	"github.com/kampus-erp/kampus/internal/platform/cache"
	"github.com/kampus-erp/kampus/internal/platform/db"
	"github.com/kampus-erp/kampus/internal/profile"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/provider/gotrue"
	"github.com/kampus-erp/kampus/internal/provider/memory"
	"github.com/kampus-erp/kampus/internal/session"
	"github.com/kampus-erp/kampus/internal/shared"
	"github.com/kampus-erp/kampus/internal/staff"
	"github.com/kampus-erp/kampus/internal/tenant"
	"github.com/kampus-erp/kampus/internal/workspace"
	"github.com/kampus-erp/kampus/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN, 0)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	metrics := observability.NewMetrics()

	idp, hub := newProvider(cfg, logger)
	bus := provider.NewBus(redisClient, cfg.ProviderEventsChannel, hub, logger)
	if mem, ok := idp.(*memory.Provider); ok {
		mem.SetRelay(bus)
	}
	go func() {
		if err := bus.Listen(ctx); err != nil && ctx.Err() == nil {
			logger.Error("identity event bus", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "kampus_session", cfg.SessionSecret, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)

	tenantRepo := tenant.NewRepository(dbpool)
	branding := tenant.NewBrandingCache(
		tenantRepo,
		cache.NewJSON(redisClient, "kampus:branding", cfg.BrandingTTL),
		tenant.Branding{Name: cfg.PlatformName, LogoRef: cfg.PlatformBrandingRef},
	)
	resolver := profile.NewResolver(
		profile.NewRepository(dbpool),
		profile.Config{Attempts: cfg.ResolveAttempts, Delay: cfg.ResolveDelay},
		logger,
		metrics,
	)
	entitlements := navigation.Default()

	registry := workspace.NewRegistry(workspace.Deps{
		Provider: idp,
		Vault: func(sessionID string) session.Vault {
			return session.NewRedisVault(redisClient, sessionID, cfg.SessionTTL)
		},
		Resolver:      resolver,
		Branding:      branding,
		Notifications: notification.NewRepository(dbpool),
		Window:        cfg.NotificationWindow,
		Entitlements:  entitlements,
		Metrics:       metrics,
		Logger:        logger,
	}, cfg.WorkspaceCacheSize, cfg.WorkspaceTTL)
	defer registry.Close()

	feed := notification.NewFeed(redisClient, cfg.NotificationChannel, logger)
	go func() {
		err := feed.Listen(ctx, func(item notification.Item) {
			registry.Broadcast(item)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("notification feed", slog.Any("error", err))
		}
	}()

	redisOpts := cfg.Queue()
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	publisher := notification.NewPublisher(jobClient, cfg.NotificationQueue, logger)

	staffService := staff.NewService(staff.NewRepository(dbpool), cfg.ResolveAttempts, cfg.ResolveDelay, logger).
		WithNotifier(publisher)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		SessionManager:      sessionManager,
		CSRFManager:         csrfManager,
		Workspaces:          registry,
		Entitlements:        entitlements,
		AuthHandler:         auth.NewHandler(logger, registry, sessionManager, csrfManager),
		WorkspaceHandler:    workspace.NewHandler(tenant.NewSettings(tenantRepo), logger),
		NotificationHandler: notification.NewHandler(workspace.Inbox, logger),
		StaffHandler:        staff.NewHandler(staffService, workspace.Caller, logger),
		JobHandler:          jobs.NewHandler(inspector, logger),
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("provider", cfg.ProviderMode))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// newProvider returns the identity provider selected by configuration and the
// hub its events are dispatched on.
func newProvider(cfg *app.Config, logger *slog.Logger) (provider.Provider, *provider.Hub) {
	if cfg.ProviderMode == app.ProviderMemory {
		logger.Warn("using in-memory identity provider")
		idp := memory.New(time.Hour)
		for _, entry := range cfg.ProviderSeedUsers {
			parts := strings.SplitN(entry, ":", 3)
			if len(parts) != 3 {
				logger.Warn("skip malformed seed user", slog.String("entry", parts[0]))
				continue
			}
			if err := idp.AddUser(parts[0], parts[1], parts[2]); err != nil {
				logger.Warn("seed user", slog.String("id", parts[0]), slog.Any("error", err))
			}
		}
		return idp, idp.Hub
	}
	hub := provider.NewHub()
	return gotrue.New(gotrue.Config{
		BaseURL:       cfg.ProviderURL,
		APIKey:        cfg.ProviderAPIKey,
		RetryMax:      cfg.ProviderRetryMax,
		Timeout:       cfg.ProviderTimeout,
		RefreshLeeway: cfg.RefreshLeeway,
	}, hub, logger), hub
}
