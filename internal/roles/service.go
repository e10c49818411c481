package roles

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/matrix"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// AuditActionPermissionsUpdate labels audit rows written when a role's
// grants change.
const AuditActionPermissionsUpdate = "role.permissions.update"

// RepositoryPort defines data access methods for roles.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the writes of one role update.
type TxRepository interface {
	LockRole(ctx context.Context, id int64) (Role, error)
	ReplacePermissions(ctx context.Context, roleID int64, names []string) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached resolutions after role grants change.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Options groups optional collaborators.
type Options struct {
	Cache  Invalidator
	Logger *slog.Logger
	// OnChanged runs after a committed role update.
	OnChanged func(ctx context.Context, roleID int64)
}

// Service handles role business logic.
type Service struct {
	repo    RepositoryPort
	catalog *catalog.Catalog
	opts    Options
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cat *catalog.Catalog, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, opts: opts}
}

// Catalog returns the permission catalog in use.
func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context, actor shared.Actor) ([]Role, error) {
	if !actor.Can(shared.PermRolesView, shared.PermRolesManage) {
		return nil, fmt.Errorf("roles: list: %w", shared.ErrUnauthorized)
	}
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Permissions = s.catalog.Filter(roles[i].Permissions)
	}
	return roles, nil
}

// RoleMatrix lays out one role's grants.
func (s *Service) RoleMatrix(ctx context.Context, actor shared.Actor, roleID int64) (RoleMatrix, error) {
	if !actor.Can(shared.PermRolesView, shared.PermRolesManage) {
		return RoleMatrix{}, fmt.Errorf("roles: view role %d: %w", roleID, shared.ErrUnauthorized)
	}
	role, err := s.repo.GetRole(ctx, roleID)
	if err != nil {
		return RoleMatrix{}, err
	}
	return s.layout(role), nil
}

// SetRolePermissions replaces the role's grants with names.
func (s *Service) SetRolePermissions(ctx context.Context, actor shared.Actor, roleID int64, names []string) (RoleMatrix, error) {
	if !actor.Can(shared.PermRolesManage) {
		return RoleMatrix{}, fmt.Errorf("roles: edit role %d: %w", roleID, shared.ErrUnauthorized)
	}
	wanted := permset.New(names...)
	if unknown := s.catalog.Unknown(wanted); unknown.Len() > 0 {
		return RoleMatrix{}, fmt.Errorf("roles: unknown permissions %s: %w", strings.Join(unknown.Sorted(), ", "), shared.ErrValidation)
	}

	var (
		updated        Role
		added, removed permset.Set
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		role, err := tx.LockRole(ctx, roleID)
		if err != nil {
			return err
		}
		previous := s.catalog.Filter(role.Permissions)
		added, removed = wanted.Minus(previous), previous.Minus(wanted)
		if added.Len() == 0 && removed.Len() == 0 {
			updated = role
			return nil
		}
		if err := tx.ReplacePermissions(ctx, roleID, wanted.Sorted()); err != nil {
			return err
		}
		if err := tx.RecordAudit(ctx, shared.AuditLog{
			ActorID:  actor.UserID,
			Action:   AuditActionPermissionsUpdate,
			Entity:   "role",
			EntityID: strconv.FormatInt(roleID, 10),
			Meta: map[string]any{
				"added":   added.Sorted(),
				"removed": removed.Sorted(),
			},
		}); err != nil {
			return err
		}
		role.Permissions = wanted
		updated = role
		return nil
	})
	if err != nil {
		if shared.KindOf(err) == shared.KindInternal {
			err = fmt.Errorf("roles: set permissions: %w: %w", shared.ErrPersistence, err)
		}
		return RoleMatrix{}, err
	}

	if added.Len() > 0 || removed.Len() > 0 {
		if s.opts.Cache != nil {
			if err := s.opts.Cache.Bump(ctx); err != nil {
				s.opts.Logger.Warn("bump resolution cache", slog.Int64("role_id", roleID), slog.Any("error", err))
			}
		}
		if s.opts.OnChanged != nil {
			s.opts.OnChanged(ctx, roleID)
		}
		s.opts.Logger.Info("role permissions saved",
			slog.Int64("role_id", roleID),
			slog.Int64("actor_id", actor.UserID),
			slog.Int("added", added.Len()),
			slog.Int("removed", removed.Len()))
	}
	return s.layout(updated), nil
}

func (s *Service) layout(role Role) RoleMatrix {
	role.Permissions = s.catalog.Filter(role.Permissions)
	return RoleMatrix{Role: role, Grid: matrix.Build(s.catalog, nil, role.Permissions, nil)}
}
