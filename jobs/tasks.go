package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCatalogSync upserts the permission catalog and prunes stale grants.
	TaskCatalogSync = "rbac:catalog_sync"
)

// CatalogSyncPayload describes why a sync was requested.
type CatalogSyncPayload struct {
	Reason string `json:"reason"`
}

// NewCatalogSyncTask constructs an Asynq task.
func NewCatalogSyncTask(payload CatalogSyncPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCatalogSync, data, asynq.Queue(QueueDefault), asynq.Unique(defaultUniqueTTL)), nil
}
