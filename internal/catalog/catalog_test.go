package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

func TestDefaultCatalogLayout(t *testing.T) {
	c := Default()

	actions := c.Actions()
	require.NotEmpty(t, actions)
	assert.Equal(t, "ver", actions[0].Key)

	modules := c.Modules()
	require.NotEmpty(t, modules)
	assert.Equal(t, "usuarios", modules[0].Key)

	p, ok := c.Lookup("Productos.Editar")
	require.True(t, ok)
	assert.Equal(t, "productos", p.ModuleKey)
	assert.Equal(t, "editar", p.ActionKey)
	assert.Equal(t, "Editar productos", p.Label)

	assert.False(t, c.Has("productos.gestionar"))
}

func TestPermissionsFollowActionOrder(t *testing.T) {
	c, err := Parse([]byte(`
actions:
  - {key: ver, label: Ver}
  - {key: crear, label: Crear}
  - {key: eliminar, label: Eliminar}
modules:
  - key: productos
    label: Productos
    actions: [eliminar, ver]
`))
	require.NoError(t, err)
	perms := c.Modules()[0].Permissions
	require.Len(t, perms, 2)
	assert.Equal(t, "productos.ver", perms[0].Name)
	assert.Equal(t, "productos.eliminar", perms[1].Name)

	col, ok := c.ActionPermissions("eliminar")
	require.True(t, ok)
	assert.Equal(t, []string{"productos.eliminar"}, col.Sorted())

	_, ok = c.ActionPermissions("exportar")
	assert.False(t, ok)
}

func TestParseRejectsInvalidDefinitions(t *testing.T) {
	cases := map[string]string{
		"duplicate module": `
actions: [{key: ver}]
modules:
  - {key: a, actions: [ver]}
  - {key: a, actions: [ver]}`,
		"unknown action": `
actions: [{key: ver}]
modules:
  - {key: a, actions: [borrar]}`,
		"duplicate action": `
actions: [{key: ver}, {key: ver}]
modules: []`,
		"repeated module action": `
actions: [{key: ver}]
modules:
  - {key: a, actions: [ver, ver]}`,
		"dotted module key": `
actions: [{key: ver}]
modules:
  - {key: a.b, actions: [ver]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw))
			require.ErrorIs(t, err, shared.ErrValidation)
		})
	}
}

func TestFilterDropsUnknownNames(t *testing.T) {
	c := Default()
	names := permset.New("productos.ver", "legacy.permiso")
	assert.Equal(t, []string{"productos.ver"}, c.Filter(names).Sorted())
	assert.Equal(t, []string{"legacy.permiso"}, c.Unknown(names).Sorted())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("actions: [{key: ver}]\nmodules: [{key: x, label: X, actions: [ver]}]\n"), 0o600))
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	c, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Len(), c.Len())
}
