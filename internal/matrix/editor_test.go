package matrix

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/rbac"
)

type fakeBackend struct {
	cat       *catalog.Catalog
	inherited permset.Set
	direct    permset.Set
	loadErr   error
	saveErr   error
	saves     []rbac.Submission
}

func (b *fakeBackend) resolution() rbac.Resolution {
	roles := []rbac.Role{{Name: "Vendedor", Permissions: b.inherited}}
	return rbac.Resolve(b.cat, rbac.User{ID: 7}, roles, b.direct.Sorted())
}

func (b *fakeBackend) Load(ctx context.Context, userID int64) (rbac.Resolution, error) {
	if b.loadErr != nil {
		return rbac.Resolution{}, b.loadErr
	}
	return b.resolution(), nil
}

func (b *fakeBackend) Save(ctx context.Context, userID int64, sub rbac.Submission) (rbac.Resolution, error) {
	b.saves = append(b.saves, sub)
	if b.saveErr != nil {
		return rbac.Resolution{}, b.saveErr
	}
	b.direct = sub.Direct()
	return b.resolution(), nil
}

func newFakeBackend(t *testing.T) *fakeBackend {
	return &fakeBackend{
		cat:       testCatalog(t),
		inherited: permset.New("productos.ver", "productos.crear"),
		direct:    permset.New("productos.editar"),
	}
}

func TestEditorLifecycle(t *testing.T) {
	backend := newFakeBackend(t)
	editor := NewEditor(backend, backend.cat, 7)
	assert.Equal(t, PhaseLoading, editor.Phase())

	require.NoError(t, editor.Load(context.Background()))
	assert.Equal(t, PhaseReady, editor.Phase())
	assert.False(t, editor.HasChanges())

	require.NoError(t, editor.ToggleAction("eliminar"))
	assert.True(t, editor.HasChanges())

	require.NoError(t, editor.Save(context.Background()))
	assert.Equal(t, PhaseReady, editor.Phase())
	assert.False(t, editor.HasChanges())
	assert.Equal(t, []string{"clientes.eliminar", "productos.editar", "productos.eliminar", "proveedores.eliminar"}, backend.direct.Sorted())
	assert.Equal(t, []string{"productos.crear", "productos.ver"}, backend.saves[0].BaseInherited.Sorted())
}

func TestEditorSaveFailureKeepsPendingChanges(t *testing.T) {
	backend := newFakeBackend(t)
	editor := NewEditor(backend, backend.cat, 7)
	require.NoError(t, editor.Load(context.Background()))
	require.NoError(t, editor.ToggleOne("clientes.ver"))

	backend.saveErr = errors.New("store offline")
	require.Error(t, editor.Save(context.Background()))
	assert.Equal(t, PhaseError, editor.Phase())
	assert.EqualError(t, editor.Err(), "store offline")
	assert.True(t, editor.HasChanges())
	assert.ErrorIs(t, editor.ToggleOne("clientes.crear"), ErrInvalidTransition)

	backend.saveErr = nil
	require.NoError(t, editor.Retry(context.Background()))
	assert.Equal(t, PhaseReady, editor.Phase())
	assert.False(t, editor.HasChanges())
	assert.True(t, backend.direct.Has("clientes.ver"))
	assert.Len(t, backend.saves, 2)
}

func TestEditorDismissAfterSaveFailure(t *testing.T) {
	backend := newFakeBackend(t)
	editor := NewEditor(backend, backend.cat, 7)
	require.NoError(t, editor.Load(context.Background()))
	require.NoError(t, editor.ToggleOne("clientes.ver"))

	backend.saveErr = errors.New("conflict")
	require.Error(t, editor.Save(context.Background()))
	require.NoError(t, editor.Dismiss())
	assert.Equal(t, PhaseReady, editor.Phase())
	assert.True(t, editor.HasChanges())
}

func TestEditorLoadFailureRetry(t *testing.T) {
	backend := newFakeBackend(t)
	backend.loadErr = errors.New("timeout")
	editor := NewEditor(backend, backend.cat, 7)

	require.Error(t, editor.Load(context.Background()))
	assert.Equal(t, PhaseError, editor.Phase())
	assert.ErrorIs(t, editor.Dismiss(), ErrInvalidTransition)
	assert.ErrorIs(t, editor.Save(context.Background()), ErrInvalidTransition)

	backend.loadErr = nil
	require.NoError(t, editor.Retry(context.Background()))
	assert.Equal(t, PhaseReady, editor.Phase())
}

func TestEditorDiscardConfirmation(t *testing.T) {
	backend := newFakeBackend(t)
	editor := NewEditor(backend, backend.cat, 7)
	require.NoError(t, editor.Load(context.Background()))

	require.NoError(t, editor.RequestDiscard())
	assert.Equal(t, PhaseReady, editor.Phase())

	require.NoError(t, editor.ToggleModule("clientes"))
	require.NoError(t, editor.RequestDiscard())
	assert.Equal(t, PhaseConfirmingDiscard, editor.Phase())

	require.NoError(t, editor.CancelDiscard())
	assert.True(t, editor.HasChanges())

	require.NoError(t, editor.RequestDiscard())
	require.NoError(t, editor.ConfirmDiscard())
	assert.Equal(t, PhaseReady, editor.Phase())
	assert.False(t, editor.HasChanges())
	assert.ErrorIs(t, editor.ConfirmDiscard(), ErrInvalidTransition)
}

func TestEditorRetryOutsideError(t *testing.T) {
	backend := newFakeBackend(t)
	editor := NewEditor(backend, backend.cat, 7)
	require.NoError(t, editor.Load(context.Background()))
	assert.ErrorIs(t, editor.Retry(context.Background()), ErrInvalidTransition)
}

func TestEditorReloadKeepsPendingEdits(t *testing.T) {
	backend := newFakeBackend(t)
	editor := NewEditor(backend, backend.cat, 7)
	require.NoError(t, editor.Load(context.Background()))
	require.NoError(t, editor.ToggleOne("clientes.ver"))

	err := editor.Load(context.Background())
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, PhaseReady, editor.Phase())
	assert.True(t, editor.HasChanges())
	assert.True(t, editor.Session().Current().Has("clientes.ver"))

	require.NoError(t, editor.RequestDiscard())
	require.NoError(t, editor.ConfirmDiscard())
	require.NoError(t, editor.Load(context.Background()))
	assert.False(t, editor.HasChanges())
}

func TestEditorReloadAfterFailedSaveKeepsPendingEdits(t *testing.T) {
	backend := newFakeBackend(t)
	editor := NewEditor(backend, backend.cat, 7)
	require.NoError(t, editor.Load(context.Background()))
	require.NoError(t, editor.ToggleOne("clientes.ver"))

	backend.saveErr = errors.New("store offline")
	require.Error(t, editor.Save(context.Background()))

	require.ErrorIs(t, editor.Load(context.Background()), ErrInvalidTransition)
	assert.Equal(t, PhaseError, editor.Phase())
	assert.True(t, editor.HasChanges())

	backend.saveErr = nil
	require.NoError(t, editor.Retry(context.Background()))
	assert.True(t, backend.direct.Has("clientes.ver"))
}
