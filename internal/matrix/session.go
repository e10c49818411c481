package matrix

import (
	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/rbac"
)

// Session stages a user's direct-grant selection. It is a value: every
// transition returns a new Session and leaves the receiver untouched.
type Session struct {
	catalog   *catalog.Catalog
	inherited permset.Set
	sources   map[string][]string
	original  permset.Set
	current   permset.Set
}

// NewSession starts a session whose original and current selections are
// direct minus inherited, restricted to the catalog.
func NewSession(cat *catalog.Catalog, inherited, direct permset.Set, sources map[string][]string) Session {
	inherited = cat.Filter(inherited)
	original := cat.Filter(direct).Minus(inherited)
	return Session{
		catalog:   cat,
		inherited: inherited,
		sources:   sources,
		original:  original,
		current:   original.Clone(),
	}
}

// FromResolution starts a session for a resolved user.
func FromResolution(cat *catalog.Catalog, res rbac.Resolution) Session {
	return NewSession(cat, res.Inherited, res.Direct, res.Sources)
}

// Inherited returns the locked permissions.
func (s Session) Inherited() permset.Set {
	return s.inherited.Clone()
}

// Original returns the selection captured at load time.
func (s Session) Original() permset.Set {
	return s.original.Clone()
}

// Current returns the working selection.
func (s Session) Current() permset.Set {
	return s.current.Clone()
}

// HasChanges reports whether the working selection differs from the original.
func (s Session) HasChanges() bool {
	return !s.current.Equal(s.original)
}

// Editable returns every catalog permission that is not inherited.
func (s Session) Editable() permset.Set {
	return s.catalog.Names().Minus(s.inherited)
}

// ToggleOne flips a single permission. Inherited and unknown names are ignored.
func (s Session) ToggleOne(name string) Session {
	name = permset.Normalize(name)
	if !s.catalog.Has(name) || s.inherited.Has(name) {
		return s
	}
	next := s.current.Clone()
	if next.Has(name) {
		delete(next, name)
	} else {
		next[name] = struct{}{}
	}
	s.current = next
	return s
}

// ToggleModule bulk-toggles the editable permissions of one row.
func (s Session) ToggleModule(moduleKey string) Session {
	names, ok := s.catalog.ModulePermissions(moduleKey)
	if !ok {
		return s
	}
	return s.toggle(names)
}

// ToggleAction bulk-toggles the editable permissions of one column.
func (s Session) ToggleAction(actionKey string) Session {
	names, ok := s.catalog.ActionPermissions(actionKey)
	if !ok {
		return s
	}
	return s.toggle(names)
}

func (s Session) toggle(line permset.Set) Session {
	s.current = ToggleSelection(s.current, line.Minus(s.inherited))
	return s
}

// Discard resets the working selection to the original.
func (s Session) Discard() Session {
	s.current = s.original.Clone()
	return s
}

// ModuleState returns the aggregate state of one row.
func (s Session) ModuleState(moduleKey string) AggregateState {
	names, _ := s.catalog.ModulePermissions(moduleKey)
	return Aggregate(names.Minus(s.inherited), s.current)
}

// ActionState returns the aggregate state of one column.
func (s Session) ActionState(actionKey string) AggregateState {
	names, _ := s.catalog.ActionPermissions(actionKey)
	return Aggregate(names.Minus(s.inherited), s.current)
}

// Grid renders the session.
func (s Session) Grid() Grid {
	return Build(s.catalog, s.inherited, s.current, s.sources)
}

// Submission returns what the save coordinator expects: the union of the
// inherited and selected permissions plus the inherited base it was built on.
func (s Session) Submission() rbac.Submission {
	return rbac.Submission{
		Permissions:   s.inherited.Union(s.current),
		BaseInherited: s.inherited.Clone(),
	}
}
