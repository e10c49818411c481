package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/platform/db"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository is the PostgreSQL grant store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// Snapshot reads the user, their roles and direct grants inside one
// read-only REPEATABLE READ transaction.
func (r *Repository) Snapshot(ctx context.Context, userID int64) (GrantSnapshot, error) {
	var snap GrantSnapshot
	err := db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if snap.User, err = getUser(ctx, tx, userID, false); err != nil {
			return err
		}
		if snap.Roles, err = userRoles(ctx, tx, userID); err != nil {
			return err
		}
		snap.Direct, err = directGrants(ctx, tx, userID)
		return err
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			return GrantSnapshot{}, persistenceErr("read grants", err)
		}
		return GrantSnapshot{}, err
	}
	return snap, nil
}

// WithTx runs fn inside a serializable transaction. A serialization failure
// means a concurrent role or grant change won and is reported as a conflict.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	err := db.WithTx(ctx, r.pool, pgx.Serializable, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("rbac: concurrent grant change: %w", shared.ErrConflict)
	}
	return err
}

func (t *txRepo) LockUser(ctx context.Context, userID int64) (User, error) {
	return getUser(ctx, t.tx, userID, true)
}

func (t *txRepo) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	return userRoles(ctx, t.tx, userID)
}

func (t *txRepo) DirectGrants(ctx context.Context, userID int64) ([]string, error) {
	return directGrants(ctx, t.tx, userID)
}

func (t *txRepo) SyncDirectGrants(ctx context.Context, userID int64, permissions []string) error {
	if len(permissions) > 0 {
		rows, err := t.tx.Query(ctx, `SELECT name FROM permissions WHERE name = ANY($1)`, permissions)
		if err != nil {
			return persistenceErr("check permissions", err)
		}
		known, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return persistenceErr("check permissions", err)
		}
		if missing := permset.New(permissions...).Minus(permset.New(known...)); missing.Len() > 0 {
			return fmt.Errorf("rbac: permissions missing from store, catalog not synchronised: %s: %w", strings.Join(missing.Sorted(), ", "), shared.ErrConflict)
		}
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
		return persistenceErr("clear direct grants", err)
	}
	if len(permissions) == 0 {
		return nil
	}
	const insert = `
INSERT INTO user_permissions (user_id, permission_id, created_at)
SELECT $1, p.id, NOW()
FROM permissions p
WHERE p.name = ANY($2)
  AND NOT EXISTS (
    SELECT 1
    FROM user_roles ur
    JOIN role_permissions rp ON rp.role_id = ur.role_id
    WHERE ur.user_id = $1 AND rp.permission_id = p.id
  )`
	if _, err := t.tx.Exec(ctx, insert, userID, permissions); err != nil {
		return persistenceErr("insert direct grants", err)
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	if err := shared.WriteAuditLog(ctx, t.tx, log); err != nil {
		return persistenceErr("record audit", err)
	}
	return nil
}

// CatalogSyncResult reports what a catalog sync changed.
type CatalogSyncResult struct {
	Upserted           int
	PrunedRoleGrants   int64
	PrunedDirectGrants int64
	RemovedPermissions int64
}

// SyncCatalog upserts every catalog permission and deletes grants that point
// at permissions the catalog no longer defines.
func (r *Repository) SyncCatalog(ctx context.Context, cat *catalog.Catalog) (CatalogSyncResult, error) {
	var result CatalogSyncResult
	names := cat.Names().Sorted()
	err := db.WithTx(ctx, r.pool, pgx.RepeatableRead, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, name := range names {
			p, _ := cat.Lookup(name)
			batch.Queue(`INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description`, p.Name, p.Label)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return persistenceErr("upsert permissions", err)
		}
		result.Upserted = len(names)

		tag, err := tx.Exec(ctx, `DELETE FROM role_permissions WHERE permission_id IN (SELECT id FROM permissions WHERE NOT (name = ANY($1)))`, names)
		if err != nil {
			return persistenceErr("prune role grants", err)
		}
		result.PrunedRoleGrants = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM user_permissions WHERE permission_id IN (SELECT id FROM permissions WHERE NOT (name = ANY($1)))`, names)
		if err != nil {
			return persistenceErr("prune direct grants", err)
		}
		result.PrunedDirectGrants = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `DELETE FROM permissions WHERE NOT (name = ANY($1))`, names)
		if err != nil {
			return persistenceErr("remove permissions", err)
		}
		result.RemovedPermissions = tag.RowsAffected()
		return nil
	})
	return result, err
}

func getUser(ctx context.Context, q querier, userID int64, lock bool) (User, error) {
	query := `SELECT id, email, name, is_active, is_super_admin FROM users WHERE id = $1`
	if lock {
		query += ` FOR NO KEY UPDATE`
	}
	var u User
	err := q.QueryRow(ctx, query, userID).Scan(&u.ID, &u.Email, &u.Name, &u.IsActive, &u.SuperAdmin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, fmt.Errorf("rbac: user %d: %w", userID, shared.ErrNotFound)
		}
		return User{}, persistenceErr("load user", err)
	}
	return u, nil
}

func userRoles(ctx context.Context, q querier, userID int64) ([]Role, error) {
	const query = `
SELECT r.id, r.name, r.description,
       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}') AS permissions
FROM user_roles ur
JOIN roles r ON r.id = ur.role_id
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
GROUP BY r.id, r.name, r.description
ORDER BY r.name`
	rows, err := q.Query(ctx, query, userID)
	if err != nil {
		return nil, persistenceErr("load roles", err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var (
			role  Role
			perms []string
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &perms); err != nil {
			return nil, persistenceErr("scan role", err)
		}
		role.Permissions = permset.New(perms...)
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("load roles", err)
	}
	return roles, nil
}

func directGrants(ctx context.Context, q querier, userID int64) ([]string, error) {
	rows, err := q.Query(ctx, `SELECT p.name FROM user_permissions up JOIN permissions p ON p.id = up.permission_id WHERE up.user_id = $1 ORDER BY p.name`, userID)
	if err != nil {
		return nil, persistenceErr("load direct grants", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, persistenceErr("load direct grants", err)
	}
	return names, nil
}

func persistenceErr(op string, err error) error {
	return fmt.Errorf("rbac: %s: %w: %w", op, shared.ErrPersistence, err)
}

var (
	_ Store   = (*Repository)(nil)
	_ TxStore = (*txRepo)(nil)
)
