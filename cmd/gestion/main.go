package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gestion/internal/app"
	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/observability"
	"github.com/odyssey-erp/gestion/internal/platform/cache"
	"github.com/odyssey-erp/gestion/internal/platform/db"
	"github.com/odyssey-erp/gestion/internal/rbac"
	rbachttp "github.com/odyssey-erp/gestion/internal/rbac/http"
	"github.com/odyssey-erp/gestion/internal/roles"
	"github.com/odyssey-erp/gestion/internal/shared"
	"github.com/odyssey-erp/gestion/internal/users"
	"github.com/odyssey-erp/gestion/jobs"
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

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.New(ctx, cfg.Postgres())
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
	rbacMetrics := rbac.NewMetrics(metrics.Registerer())

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())

	rbacRepo := rbac.NewRepository(dbpool)
	resolutionCache := rbac.NewCache(redisClient, cfg.RBACCacheTTL, rbacMetrics)
	resolver := rbac.NewResolver(rbacRepo, cat, resolutionCache)
	rbacMiddleware := rbac.NewMiddleware(resolver, rbac.MiddlewareConfig{
		SuperAdminIDs: cfg.RBACSuperAdminIDs,
		CacheSize:     cfg.RBACLocalCacheSize,
		CacheTTL:      cfg.RBACLocalCacheTTL,
		Logger:        logger,
	})
	if err := resolutionCache.ListenForInvalidation(ctx, rbacMiddleware.Purge); err != nil {
		logger.Warn("subscribe to rbac invalidation", slog.Any("error", err))
	}
	coordinator := rbac.NewCoordinator(rbacRepo, cat, rbac.CoordinatorConfig{
		Cache:   resolutionCache,
		Metrics: rbacMetrics,
		Logger:  logger,
		OnSaved: rbacMiddleware.Evict,
	})
	rbacService := rbac.NewService(resolver, coordinator)

	// The grant store must know every catalog permission before the first save.
	syncJob := jobs.NewCatalogSyncJob(rbacRepo, cat, resolutionCache, logger, nil)
	syncCtx, cancelSync := context.WithTimeout(ctx, 30*time.Second)
	if _, err := syncJob.Run(syncCtx, "startup"); err != nil {
		logger.Warn("startup catalog sync failed, saves may conflict until the worker syncs", slog.Any("error", err))
	}
	cancelSync()

	rolesService := roles.NewService(roles.NewRepository(dbpool), cat, roles.Options{
		Cache:  resolutionCache,
		Logger: logger,
		OnChanged: func(context.Context, int64) {
			rbacMiddleware.Purge()
		},
	})
	usersService := users.NewService(users.NewRepository(dbpool))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		RBACMiddleware:     rbacMiddleware,
		PermissionsHandler: rbachttp.NewHandler(logger, rbacService),
		RolesHandler:       roles.NewHandler(logger, rolesService, rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.Int("catalog_permissions", cat.Len()))
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
