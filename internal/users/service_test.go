package users

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/rbac"
	"github.com/odyssey-erp/gestion/internal/shared"
)

type memoryRepo struct {
	users      []User
	lastFilter ListFilter
}

func (r *memoryRepo) ListUsers(ctx context.Context, filter ListFilter) ([]User, error) {
	r.lastFilter = filter
	var out []User
	for _, u := range r.users {
		if filter.Search == "" || strings.Contains(strings.ToLower(u.Name), strings.ToLower(filter.Search)) {
			out = append(out, u)
		}
	}
	return out, nil
}

func (r *memoryRepo) GetUser(ctx context.Context, id int64) (User, error) {
	for _, u := range r.users {
		if u.ID == id {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("memory: user %d: %w", id, shared.ErrNotFound)
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: []User{
		{ID: 1, Name: "Admin", Email: "admin@example.com", IsActive: true, SuperAdmin: true},
		{ID: 7, Name: "Lucía", Email: "lucia@example.com", IsActive: true, RoleLabels: []string{"Vendedor"}},
	}}
}

var viewer = shared.Actor{UserID: 1, Permissions: permset.New(shared.PermUsersView)}

func TestListUsers(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)

	users, err := svc.ListUsers(context.Background(), viewer, ListFilter{Search: "  luc "})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(7), users[0].ID)
	assert.Equal(t, defaultPageSize, repo.lastFilter.Limit)
	assert.Equal(t, "luc", repo.lastFilter.Search)

	_, err = svc.ListUsers(context.Background(), viewer, ListFilter{Limit: 500})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ListUsers(context.Background(), shared.Actor{UserID: 7}, ListFilter{})
	require.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestGetUserSelfOrViewer(t *testing.T) {
	svc := NewService(newMemoryRepo())

	u, err := svc.GetUser(context.Background(), shared.Actor{UserID: 7}, 7)
	require.NoError(t, err)
	assert.Equal(t, "Lucía", u.Name)

	_, err = svc.GetUser(context.Background(), shared.Actor{UserID: 7}, 1)
	require.ErrorIs(t, err, shared.ErrUnauthorized)

	_, err = svc.GetUser(context.Background(), viewer, 99)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestHandlerListUsers(t *testing.T) {
	mw := rbac.NewMiddleware(rbac.NewResolver(nil, catalog.Default(), nil), rbac.MiddlewareConfig{})
	r := chi.NewRouter()
	NewHandler(nil, NewService(newMemoryRepo()), mw).MountRoutes(r)

	req := httptest.NewRequest(http.MethodGet, "/users?limit=10", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), viewer))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var out []userDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, []string{}, out[0].RoleLabels)

	req = httptest.NewRequest(http.MethodGet, "/users?limit=abc", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), viewer))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/7", nil)
	req = req.WithContext(shared.ContextWithActor(req.Context(), shared.Actor{UserID: 7}))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
