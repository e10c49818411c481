package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/gestion/internal/catalog"
	jobmetrics "github.com/odyssey-erp/gestion/internal/jobs"
	"github.com/odyssey-erp/gestion/internal/rbac"
)

const defaultUniqueTTL = 10 * time.Minute

// CatalogSyncer writes the catalog into the grant store.
type CatalogSyncer interface {
	SyncCatalog(ctx context.Context, cat *catalog.Catalog) (rbac.CatalogSyncResult, error)
}

// Invalidator drops cached resolutions.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// CatalogSyncJob keeps the permissions table aligned with the catalog.
type CatalogSyncJob struct {
	Syncer  CatalogSyncer
	Catalog *catalog.Catalog
	Cache   Invalidator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewCatalogSyncJob wires dependencies for the sync handler.
func NewCatalogSyncJob(syncer CatalogSyncer, cat *catalog.Catalog, cache Invalidator, logger *slog.Logger, metrics *jobmetrics.Metrics) *CatalogSyncJob {
	return &CatalogSyncJob{Syncer: syncer, Catalog: cat, Cache: cache, Logger: logger, Metrics: metrics}
}

// Handle processes TaskCatalogSync tasks.
func (j *CatalogSyncJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload CatalogSyncPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	_, err := j.Run(ctx, payload.Reason)
	return err
}

// Run performs one sync. It is also called directly at web start-up.
func (j *CatalogSyncJob) Run(ctx context.Context, reason string) (result rbac.CatalogSyncResult, err error) {
	if j == nil || j.Syncer == nil || j.Catalog == nil {
		return result, errors.New("catalog sync: handler not configured")
	}
	tracker := j.Metrics.Track(TaskCatalogSync)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.logger().With(slog.String("reason", reason))
	start := time.Now()
	result, err = j.Syncer.SyncCatalog(ctx, j.Catalog)
	if err != nil {
		logger.Error("catalog sync", slog.Any("error", err))
		return result, err
	}
	j.Metrics.AddPruned("role", result.PrunedRoleGrants)
	j.Metrics.AddPruned("direct", result.PrunedDirectGrants)

	if j.Cache != nil && (result.PrunedRoleGrants > 0 || result.PrunedDirectGrants > 0 || result.RemovedPermissions > 0) {
		if err := j.Cache.Bump(ctx); err != nil {
			logger.Warn("bump resolution cache", slog.Any("error", err))
		}
	}
	logger.Info("completed catalog sync",
		slog.Int("upserted", result.Upserted),
		slog.Int64("pruned_role_grants", result.PrunedRoleGrants),
		slog.Int64("pruned_direct_grants", result.PrunedDirectGrants),
		slog.Int64("removed_permissions", result.RemovedPermissions),
		slog.Duration("duration", time.Since(start)))
	return result, nil
}

func (j *CatalogSyncJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
