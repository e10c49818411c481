package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/platform/db"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

const selectRoles = `
SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
       COALESCE(array_agg(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}')
FROM roles r
LEFT JOIN role_permissions rp ON rp.role_id = r.id
LEFT JOIN permissions p ON p.id = rp.permission_id`

// ListRoles returns all roles with their permissions.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, selectRoles+` GROUP BY r.id ORDER BY r.name`)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w: %w", shared.ErrPersistence, err)
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, fmt.Errorf("roles: scan: %w: %w", shared.ErrPersistence, err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("roles: list: %w: %w", shared.ErrPersistence, err)
	}
	return roles, nil
}

// GetRole loads one role with its permissions.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.pool.QueryRow(ctx, selectRoles+` WHERE r.id = $1 GROUP BY r.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: role %d: %w", id, shared.ErrNotFound)
		}
		return Role{}, fmt.Errorf("roles: get: %w: %w", shared.ErrPersistence, err)
	}
	return role, nil
}

// WithTx runs fn inside a serializable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, pgx.Serializable, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
	if err != nil && db.IsSerializationFailure(err) {
		return fmt.Errorf("roles: concurrent role change: %w", shared.ErrConflict)
	}
	return err
}

func (t *txRepository) LockRole(ctx context.Context, id int64) (Role, error) {
	if _, err := t.tx.Exec(ctx, `SELECT 1 FROM roles WHERE id = $1 FOR NO KEY UPDATE`, id); err != nil {
		return Role{}, fmt.Errorf("roles: lock: %w: %w", shared.ErrPersistence, err)
	}
	role, err := scanRole(t.tx.QueryRow(ctx, selectRoles+` WHERE r.id = $1 GROUP BY r.id`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, fmt.Errorf("roles: role %d: %w", id, shared.ErrNotFound)
		}
		return Role{}, fmt.Errorf("roles: load: %w: %w", shared.ErrPersistence, err)
	}
	return role, nil
}

func (t *txRepository) ReplacePermissions(ctx context.Context, roleID int64, names []string) error {
	if len(names) > 0 {
		rows, err := t.tx.Query(ctx, `SELECT name FROM permissions WHERE name = ANY($1)`, names)
		if err != nil {
			return fmt.Errorf("roles: check permissions: %w: %w", shared.ErrPersistence, err)
		}
		known, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("roles: check permissions: %w: %w", shared.ErrPersistence, err)
		}
		if missing := permset.New(names...).Minus(permset.New(known...)); missing.Len() > 0 {
			return fmt.Errorf("roles: permissions missing from store, catalog not synchronised: %s: %w", strings.Join(missing.Sorted(), ", "), shared.ErrConflict)
		}
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("roles: clear permissions: %w: %w", shared.ErrPersistence, err)
	}
	if len(names) > 0 {
		if _, err := t.tx.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) SELECT $1, id FROM permissions WHERE name = ANY($2)`, roleID, names); err != nil {
			return fmt.Errorf("roles: insert permissions: %w: %w", shared.ErrPersistence, err)
		}
	}
	if _, err := t.tx.Exec(ctx, `UPDATE roles SET updated_at = NOW() WHERE id = $1`, roleID); err != nil {
		return fmt.Errorf("roles: touch role: %w: %w", shared.ErrPersistence, err)
	}
	return nil
}

func (t *txRepository) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	if err := shared.WriteAuditLog(ctx, t.tx, log); err != nil {
		return fmt.Errorf("roles: audit: %w: %w", shared.ErrPersistence, err)
	}
	return nil
}

func scanRole(row pgx.Row) (Role, error) {
	var (
		role  Role
		perms []string
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt, &perms); err != nil {
		return Role{}, err
	}
	role.Permissions = permset.New(perms...)
	return role, nil
}

var (
	_ RepositoryPort = (*Repository)(nil)
	_ TxRepository   = (*txRepository)(nil)
)
