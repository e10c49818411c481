package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// AuditActionPermissionsUpdate labels audit rows written by a save.
const AuditActionPermissionsUpdate = "user.permissions.update"

// CoordinatorConfig groups optional collaborators.
type CoordinatorConfig struct {
	Cache   ResolutionCache
	Metrics *Metrics
	Logger  *slog.Logger
	// OnSaved runs after a successful commit, e.g. to evict local caches.
	OnSaved func(ctx context.Context, userID int64)
}

// Coordinator persists an edited direct-grant selection as one atomic write.
type Coordinator struct {
	store      Store
	catalog    *catalog.Catalog
	authorizer Authorizer
	cfg        CoordinatorConfig
}

// NewCoordinator builds a Coordinator.
func NewCoordinator(store Store, cat *catalog.Catalog, cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{store: store, catalog: cat, cfg: cfg}
}

// Save replaces userID's direct grants with the selection carried by sub and
// returns the resolution read back inside the same transaction.
//
// The inherited set is re-read under the transaction. If any permission the
// editor saw as inherited is no longer inherited, the save fails with
// shared.ErrConflict rather than turning it into a direct grant. Any failure
// leaves the stored grants untouched.
func (c *Coordinator) Save(ctx context.Context, actor shared.Actor, userID int64, sub Submission) (Resolution, error) {
	res, err := c.save(ctx, actor, userID, sub)
	c.cfg.Metrics.saveResult(saveResultLabel(err))
	return res, err
}

func (c *Coordinator) save(ctx context.Context, actor shared.Actor, userID int64, sub Submission) (Resolution, error) {
	if err := c.authorizer.CanEdit(actor, userID); err != nil {
		return Resolution{}, err
	}
	if unknown := c.catalog.Unknown(sub.Permissions.Union(sub.BaseInherited)); unknown.Len() > 0 {
		return Resolution{}, fmt.Errorf("rbac: unknown permissions %s: %w", strings.Join(unknown.Sorted(), ", "), shared.ErrValidation)
	}
	direct := sub.Direct()

	logger := c.logger().With(slog.Int64("user_id", userID), slog.Int64("actor_id", actor.UserID))
	changeID := uuid.NewString()
	var (
		result         Resolution
		added, removed permset.Set
	)
	err := c.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		user, err := tx.LockUser(ctx, userID)
		if err != nil {
			return err
		}
		roles, err := tx.UserRoles(ctx, userID)
		if err != nil {
			return err
		}
		fresh := Resolve(c.catalog, user, roles, nil).Inherited
		if lost := sub.BaseInherited.Minus(fresh); lost.Len() > 0 {
			logger.Warn("inherited permissions changed during edit", slog.Any("lost", lost.Sorted()))
			return fmt.Errorf("rbac: no longer inherited: %s: %w", strings.Join(lost.Sorted(), ", "), shared.ErrConflict)
		}

		before, err := tx.DirectGrants(ctx, userID)
		if err != nil {
			return err
		}
		if err := tx.SyncDirectGrants(ctx, userID, fresh.Union(direct).Sorted()); err != nil {
			return err
		}
		after, err := tx.DirectGrants(ctx, userID)
		if err != nil {
			return err
		}

		prev, next := permset.New(before...), permset.New(after...)
		added, removed = next.Minus(prev), prev.Minus(next)
		if added.Len() > 0 || removed.Len() > 0 {
			if err := tx.RecordAudit(ctx, shared.AuditLog{
				ActorID:  actor.UserID,
				Action:   AuditActionPermissionsUpdate,
				Entity:   "user",
				EntityID: strconv.FormatInt(userID, 10),
				Meta: map[string]any{
					"change_id": changeID,
					"added":     added.Sorted(),
					"removed":   removed.Sorted(),
				},
			}); err != nil {
				return err
			}
		}
		result = Resolve(c.catalog, user, roles, after)
		return nil
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			err = fmt.Errorf("rbac: save direct grants: %w: %w", shared.ErrPersistence, err)
		}
		return Resolution{}, err
	}

	if c.cfg.Cache != nil {
		if err := c.cfg.Cache.Bump(ctx); err != nil {
			logger.Warn("bump resolution cache", slog.Any("error", err))
		}
	}
	if c.cfg.OnSaved != nil {
		c.cfg.OnSaved(ctx, userID)
	}
	logger.Info("direct grants saved",
		slog.String("change_id", changeID),
		slog.Int("added", added.Len()),
		slog.Int("removed", removed.Len()))
	return result, nil
}

func (c *Coordinator) logger() *slog.Logger {
	if c.cfg.Logger != nil {
		return c.cfg.Logger
	}
	return slog.Default()
}

func saveResultLabel(err error) string {
	switch shared.KindOf(err) {
	case "":
		return "ok"
	case shared.KindConflict:
		return "conflict"
	case shared.KindValidationFailure:
		return "validation"
	case shared.KindNotFound:
		return "not_found"
	case shared.KindUnauthorized:
		return "unauthorized"
	default:
		return "error"
	}
}
