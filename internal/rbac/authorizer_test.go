package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

func TestAuthorizerCanView(t *testing.T) {
	var authz Authorizer

	require.NoError(t, authz.CanView(shared.Actor{UserID: 7}, 7))
	require.NoError(t, authz.CanView(shared.Actor{UserID: 1, Permissions: permset.New(shared.PermUsersView)}, 7))
	require.NoError(t, authz.CanView(shared.Actor{UserID: 1, Permissions: permset.New(shared.PermUsersManage)}, 7))
	require.NoError(t, authz.CanView(shared.Actor{UserID: 1, SuperAdmin: true}, 7))

	assert.ErrorIs(t, authz.CanView(shared.Actor{UserID: 1}, 7), shared.ErrUnauthorized)
	assert.ErrorIs(t, authz.CanView(shared.Actor{}, 7), shared.ErrUnauthorized)
}

func TestAuthorizerCanEdit(t *testing.T) {
	var authz Authorizer
	manager := shared.Actor{UserID: 1, Permissions: permset.New(shared.PermUsersManage)}

	require.NoError(t, authz.CanEdit(manager, 7))
	require.NoError(t, authz.CanEdit(shared.Actor{UserID: 7, SuperAdmin: true}, 7))

	assert.ErrorIs(t, authz.CanEdit(manager, 1), shared.ErrUnauthorized)
	assert.ErrorIs(t, authz.CanEdit(shared.Actor{UserID: 1, Permissions: permset.New(shared.PermUsersView)}, 7), shared.ErrUnauthorized)
	assert.ErrorIs(t, authz.CanEdit(shared.Actor{}, 7), shared.ErrUnauthorized)
}
