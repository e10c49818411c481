// Package matrix turns resolved permissions into a module × action grid and
// stages edits to a user's direct grants.
package matrix

import (
	"fmt"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
)

// CellState tags a defined grid cell.
type CellState int

const (
	// StateInactive is an editable permission that is not selected.
	StateInactive CellState = iota
	// StateActive is an editable permission that is selected.
	StateActive
	// StateInherited comes from a role and cannot be toggled.
	StateInherited
)

func (s CellState) String() string {
	switch s {
	case StateInherited:
		return "inherited"
	case StateActive:
		return "active"
	default:
		return "inactive"
	}
}

// MarshalText encodes the state name.
func (s CellState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *CellState) UnmarshalText(text []byte) error {
	for _, candidate := range []CellState{StateInactive, StateActive, StateInherited} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("matrix: unknown cell state %q", text)
}

// AggregateState summarises the editable cells of a row or column.
type AggregateState int

const (
	// AggregateLocked means no cell in the line is editable.
	AggregateLocked AggregateState = iota
	// AggregateNone means no editable cell is selected.
	AggregateNone
	// AggregateAll means every editable cell is selected.
	AggregateAll
	// AggregatePartial means some but not all editable cells are selected.
	AggregatePartial
)

func (s AggregateState) String() string {
	switch s {
	case AggregateNone:
		return "none"
	case AggregateAll:
		return "all"
	case AggregatePartial:
		return "partial"
	default:
		return "locked"
	}
}

// MarshalText encodes the state name.
func (s AggregateState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *AggregateState) UnmarshalText(text []byte) error {
	for _, candidate := range []AggregateState{AggregateLocked, AggregateNone, AggregateAll, AggregatePartial} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("matrix: unknown aggregate state %q", text)
}

// Aggregate classifies selected against the editable permissions of a line.
// Members of selected outside editable are ignored.
func Aggregate(editable, selected permset.Set) AggregateState {
	if editable.Len() == 0 {
		return AggregateLocked
	}
	picked := editable.Intersect(selected).Len()
	switch {
	case picked == 0:
		return AggregateNone
	case picked == editable.Len():
		return AggregateAll
	default:
		return AggregatePartial
	}
}

// ToggleSelection applies a bulk toggle of editable to selected. When every
// editable permission is already selected they are all cleared, otherwise
// they are all added. An empty editable set leaves selected unchanged.
func ToggleSelection(selected, editable permset.Set) permset.Set {
	if editable.Len() == 0 {
		return selected.Clone()
	}
	if selected.ContainsAll(editable) {
		return selected.Minus(editable)
	}
	return selected.Union(editable)
}

// Cell is one defined module/action intersection.
type Cell struct {
	Permission catalog.Permission
	State      CellState
	// Sources lists the roles an inherited cell comes from.
	Sources []string
}

// Editable reports whether the cell can be toggled.
func (c Cell) Editable() bool {
	return c.State != StateInherited
}

// Row is a module line of the grid. Cells align with Grid.Columns; a nil
// entry means the module does not define that action.
type Row struct {
	Key   string
	Label string
	State AggregateState
	Cells []*Cell
}

// Column is an action line of the grid.
type Column struct {
	Key   string
	Label string
	State AggregateState
}

// Grid is the renderable matrix.
type Grid struct {
	Columns []Column
	Rows    []Row
}

// Build lays out the catalog with inherited permissions locked and selected
// ones active. sources may be nil.
func Build(cat *catalog.Catalog, inherited, selected permset.Set, sources map[string][]string) Grid {
	actions := cat.Actions()
	column := make(map[string]int, len(actions))
	grid := Grid{Columns: make([]Column, len(actions))}
	for i, a := range actions {
		column[a.Key] = i
		grid.Columns[i] = Column{Key: a.Key, Label: a.Label}
	}

	columnEditable := make([]permset.Set, len(actions))
	for i := range columnEditable {
		columnEditable[i] = make(permset.Set)
	}
	for _, m := range cat.Modules() {
		row := Row{Key: m.Key, Label: m.Label, Cells: make([]*Cell, len(actions))}
		rowEditable := make(permset.Set)
		for _, p := range m.Permissions {
			cell := &Cell{Permission: p}
			switch {
			case inherited.Has(p.Name):
				cell.State = StateInherited
				cell.Sources = append([]string(nil), sources[p.Name]...)
			case selected.Has(p.Name):
				cell.State = StateActive
			default:
				cell.State = StateInactive
			}
			if cell.Editable() {
				rowEditable[p.Name] = struct{}{}
				columnEditable[column[p.ActionKey]][p.Name] = struct{}{}
			}
			row.Cells[column[p.ActionKey]] = cell
		}
		row.State = Aggregate(rowEditable, selected)
		grid.Rows = append(grid.Rows, row)
	}
	for i := range grid.Columns {
		grid.Columns[i].State = Aggregate(columnEditable[i], selected)
	}
	return grid
}

// Row returns the row with the given module key.
func (g Grid) Row(key string) (Row, bool) {
	for _, r := range g.Rows {
		if r.Key == key {
			return r, true
		}
	}
	return Row{}, false
}

// Column returns the column with the given action key.
func (g Grid) Column(key string) (Column, bool) {
	for _, c := range g.Columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}

// Cell returns the cell for a module/action pair, nil when undefined.
func (g Grid) Cell(moduleKey, actionKey string) *Cell {
	row, ok := g.Row(moduleKey)
	if !ok {
		return nil
	}
	for i, c := range g.Columns {
		if c.Key == actionKey {
			return row.Cells[i]
		}
	}
	return nil
}
