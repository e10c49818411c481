package rbac

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

const testCatalogYAML = `
actions:
  - {key: ver, label: Ver}
  - {key: crear, label: Crear}
  - {key: editar, label: Editar}
  - {key: eliminar, label: Eliminar}
  - {key: gestionar, label: Gestionar}
modules:
  - {key: usuarios, label: Usuarios, actions: [ver, gestionar]}
  - {key: productos, label: Productos, actions: [ver, crear, editar, eliminar]}
  - {key: clientes, label: Clientes, actions: [ver, crear, eliminar]}
`

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	require.NoError(t, err)
	return cat
}

type memoryStore struct {
	mu        sync.Mutex
	users     map[int64]User
	roles     map[int64]Role
	userRoles map[int64][]int64
	direct    map[int64]permset.Set
	audits    []shared.AuditLog

	failSync  error
	failAudit error
	txCount   int
	snapshots int
}

type memoryTx struct {
	store *memoryStore
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:     make(map[int64]User),
		roles:     make(map[int64]Role),
		userRoles: make(map[int64][]int64),
		direct:    make(map[int64]permset.Set),
	}
}

func (s *memoryStore) addUser(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = User{ID: id, Email: fmt.Sprintf("user%d@example.com", id), Name: name, IsActive: true}
}

func (s *memoryStore) addRole(id int64, name string, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[id] = Role{ID: id, Name: name, Permissions: permset.New(perms...)}
}

func (s *memoryStore) assign(userID int64, roleIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[userID] = append([]int64(nil), roleIDs...)
}

func (s *memoryStore) grant(userID int64, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.direct[userID] = permset.New(perms...)
}

func (s *memoryStore) storedDirect(userID int64) permset.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.direct[userID].Clone()
}

// Snapshot reads under one lock, like a single database snapshot.
func (s *memoryStore) Snapshot(ctx context.Context, userID int64) (GrantSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
	u, err := s.userLocked(userID)
	if err != nil {
		return GrantSnapshot{}, err
	}
	return GrantSnapshot{User: u, Roles: s.rolesLocked(userID), Direct: s.direct[userID].Sorted()}, nil
}

func (s *memoryStore) userLocked(userID int64) (User, error) {
	u, ok := s.users[userID]
	if !ok {
		return User{}, fmt.Errorf("memory: user %d: %w", userID, shared.ErrNotFound)
	}
	return u, nil
}

func (s *memoryStore) rolesLocked(userID int64) []Role {
	var roles []Role
	for _, id := range s.userRoles[userID] {
		role := s.roles[id]
		role.Permissions = role.Permissions.Clone()
		roles = append(roles, role)
	}
	return roles
}

// reassign swaps a user's roles and direct grants in one step.
func (s *memoryStore) reassign(userID int64, roleIDs []int64, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userRoles[userID] = append([]int64(nil), roleIDs...)
	s.direct[userID] = permset.New(perms...)
}

// WithTx restores direct grants and audits when fn fails.
func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	s.mu.Lock()
	s.txCount++
	snapshot := make(map[int64]permset.Set, len(s.direct))
	for id, set := range s.direct {
		snapshot[id] = set.Clone()
	}
	audits := len(s.audits)
	s.mu.Unlock()

	if err := fn(ctx, &memoryTx{store: s}); err != nil {
		s.mu.Lock()
		s.direct = snapshot
		s.audits = s.audits[:audits]
		s.mu.Unlock()
		return err
	}
	return nil
}

func (t *memoryTx) LockUser(ctx context.Context, userID int64) (User, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.userLocked(userID)
}

func (t *memoryTx) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.rolesLocked(userID), nil
}

func (t *memoryTx) DirectGrants(ctx context.Context, userID int64) ([]string, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.direct[userID].Sorted(), nil
}

func (t *memoryTx) SyncDirectGrants(ctx context.Context, userID int64, permissions []string) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	roles := t.store.rolesLocked(userID)
	// Clear first so a failure mid-write exercises the rollback.
	delete(t.store.direct, userID)
	if t.store.failSync != nil {
		return t.store.failSync
	}
	granted := make(permset.Set)
	for _, role := range roles {
		granted = granted.Union(role.Permissions)
	}
	t.store.direct[userID] = permset.New(permissions...).Minus(granted)
	return nil
}

func (t *memoryTx) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.failAudit != nil {
		return t.store.failAudit
	}
	t.store.audits = append(t.store.audits, log)
	return nil
}

type countingCache struct {
	mu    sync.Mutex
	bumps int
}

func (c *countingCache) FetchResolution(ctx context.Context, userID int64, loader func(context.Context) (Resolution, error)) (Resolution, error) {
	return loader(ctx)
}

func (c *countingCache) Bump(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumps++
	return nil
}
