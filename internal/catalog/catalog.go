// Package catalog holds the static enumeration of module × action permissions.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

//go:embed default.yaml
var defaultDefinition []byte

// Action is a matrix column.
type Action struct {
	Key   string
	Label string
}

// Permission is an immutable catalog entry.
type Permission struct {
	Name        string
	Label       string
	ModuleKey   string
	ModuleLabel string
	ActionKey   string
	ActionLabel string
}

// Module is a matrix row; Permissions follow action column order.
type Module struct {
	Key         string
	Label       string
	Permissions []Permission
}

// Catalog is the read-only set of known permissions.
type Catalog struct {
	actions []Action
	modules []Module
	byName  map[string]Permission
}

type definition struct {
	Actions []struct {
		Key   string `yaml:"key"`
		Label string `yaml:"label"`
	} `yaml:"actions"`
	Modules []struct {
		Key     string   `yaml:"key"`
		Label   string   `yaml:"label"`
		Actions []string `yaml:"actions"`
	} `yaml:"modules"`
}

// Name composes the permission identifier for a module/action pair.
func Name(moduleKey, actionKey string) string {
	return moduleKey + "." + actionKey
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultDefinition)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded definition: %v", err))
	}
	return c
}

// Load reads a catalog definition file. An empty path yields the default catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML definition.
func Parse(raw []byte) (*Catalog, error) {
	var def definition
	if err := yaml.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("catalog: decode: %v: %w", err, shared.ErrValidation)
	}

	c := &Catalog{byName: make(map[string]Permission)}
	actionLabels := make(map[string]string, len(def.Actions))
	for _, a := range def.Actions {
		key := permset.Normalize(a.Key)
		if key == "" {
			return nil, fmt.Errorf("catalog: action key required: %w", shared.ErrValidation)
		}
		if _, dup := actionLabels[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate action %q: %w", key, shared.ErrValidation)
		}
		label := strings.TrimSpace(a.Label)
		if label == "" {
			label = key
		}
		actionLabels[key] = label
		c.actions = append(c.actions, Action{Key: key, Label: label})
	}

	seenModules := make(map[string]struct{}, len(def.Modules))
	for _, m := range def.Modules {
		key := permset.Normalize(m.Key)
		if key == "" || strings.Contains(key, ".") {
			return nil, fmt.Errorf("catalog: invalid module key %q: %w", m.Key, shared.ErrValidation)
		}
		if _, dup := seenModules[key]; dup {
			return nil, fmt.Errorf("catalog: duplicate module %q: %w", key, shared.ErrValidation)
		}
		seenModules[key] = struct{}{}
		label := strings.TrimSpace(m.Label)
		if label == "" {
			label = key
		}

		wanted := permset.New(m.Actions...)
		if wanted.Len() != len(m.Actions) {
			return nil, fmt.Errorf("catalog: module %q lists an action twice: %w", key, shared.ErrValidation)
		}
		for name := range wanted {
			if _, ok := actionLabels[name]; !ok {
				return nil, fmt.Errorf("catalog: module %q references unknown action %q: %w", key, name, shared.ErrValidation)
			}
		}

		module := Module{Key: key, Label: label}
		for _, a := range c.actions {
			if !wanted.Has(a.Key) {
				continue
			}
			p := Permission{
				Name:        Name(key, a.Key),
				Label:       a.Label + " " + strings.ToLower(label),
				ModuleKey:   key,
				ModuleLabel: label,
				ActionKey:   a.Key,
				ActionLabel: a.Label,
			}
			module.Permissions = append(module.Permissions, p)
			c.byName[p.Name] = p
		}
		c.modules = append(c.modules, module)
	}
	return c, nil
}

// Actions returns the ordered matrix columns.
func (c *Catalog) Actions() []Action {
	out := make([]Action, len(c.actions))
	copy(out, c.actions)
	return out
}

// Modules returns the ordered matrix rows.
func (c *Catalog) Modules() []Module {
	out := make([]Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// ActionLabels maps action keys to labels.
func (c *Catalog) ActionLabels() map[string]string {
	out := make(map[string]string, len(c.actions))
	for _, a := range c.actions {
		out[a.Key] = a.Label
	}
	return out
}

// Lookup finds a permission by name.
func (c *Catalog) Lookup(name string) (Permission, bool) {
	p, ok := c.byName[permset.Normalize(name)]
	return p, ok
}

// Has reports whether the name is a known permission.
func (c *Catalog) Has(name string) bool {
	_, ok := c.Lookup(name)
	return ok
}

// Len returns the number of distinct permissions.
func (c *Catalog) Len() int {
	return len(c.byName)
}

// Names returns all permission names.
func (c *Catalog) Names() permset.Set {
	out := make(permset.Set, len(c.byName))
	for name := range c.byName {
		out[name] = struct{}{}
	}
	return out
}

// Filter keeps only names present in the catalog.
func (c *Catalog) Filter(names permset.Set) permset.Set {
	out := make(permset.Set, len(names))
	for name := range names {
		if c.Has(name) {
			out[name] = struct{}{}
		}
	}
	return out
}

// Unknown returns the names absent from the catalog.
func (c *Catalog) Unknown(names permset.Set) permset.Set {
	return names.Minus(c.Names())
}

// ModulePermissions returns the permission names of one row.
func (c *Catalog) ModulePermissions(moduleKey string) (permset.Set, bool) {
	moduleKey = permset.Normalize(moduleKey)
	for _, m := range c.modules {
		if m.Key != moduleKey {
			continue
		}
		out := make(permset.Set, len(m.Permissions))
		for _, p := range m.Permissions {
			out[p.Name] = struct{}{}
		}
		return out, true
	}
	return nil, false
}

// ActionPermissions returns the permission names of one column.
func (c *Catalog) ActionPermissions(actionKey string) (permset.Set, bool) {
	actionKey = permset.Normalize(actionKey)
	if _, ok := c.ActionLabels()[actionKey]; !ok {
		return nil, false
	}
	out := make(permset.Set)
	for _, p := range c.byName {
		if p.ActionKey == actionKey {
			out[p.Name] = struct{}{}
		}
	}
	return out, true
}
