package rbachttp

import (
	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/matrix"
	"github.com/odyssey-erp/gestion/internal/rbac"
)

// MatrixResponse is the loadMatrix payload.
type MatrixResponse struct {
	User         UserDTO           `json:"user"`
	Modules      []ModuleDTO       `json:"modules"`
	Actions      []ActionDTO       `json:"actions"`
	ActionLabels map[string]string `json:"actionLabels"`
	Summary      rbac.Summary      `json:"summary"`
}

// UserDTO is the matrix header.
type UserDTO struct {
	ID         int64    `json:"id"`
	Label      string   `json:"label"`
	RoleLabels []string `json:"roleLabels"`
}

// ModuleDTO is one matrix row.
type ModuleDTO struct {
	Key         string                `json:"key"`
	Label       string                `json:"label"`
	State       matrix.AggregateState `json:"state"`
	Permissions []PermissionDTO       `json:"permissions"`
}

// ActionDTO is one matrix column.
type ActionDTO struct {
	Key   string                `json:"key"`
	Label string                `json:"label"`
	State matrix.AggregateState `json:"state"`
}

// PermissionDTO is one defined cell.
type PermissionDTO struct {
	Name                    string           `json:"name"`
	Label                   string           `json:"label"`
	Action                  string           `json:"action"`
	State                   matrix.CellState `json:"state"`
	AssignedDirectly        bool             `json:"assignedDirectly"`
	InheritedFromRole       bool             `json:"inheritedFromRole"`
	InheritedFromRoleLabels []string         `json:"inheritedFromRoleLabels"`
}

// SaveRequest is the saveDirectGrants body. Permissions is the union of the
// inherited and selected permissions; Inherited is the set the editor loaded.
// Both fields are required.
type SaveRequest struct {
	Permissions []string `json:"permissions" validate:"required,max=1000,dive,required,max=128"`
	Inherited   []string `json:"inherited" validate:"required,max=1000,dive,required,max=128"`
}

// NewMatrixResponse renders a resolution against the catalog.
func NewMatrixResponse(cat *catalog.Catalog, res rbac.Resolution) MatrixResponse {
	grid := matrix.FromResolution(cat, res).Grid()
	out := MatrixResponse{
		User: UserDTO{
			ID:         res.User.ID,
			Label:      res.User.Label(),
			RoleLabels: nonNil(res.RoleLabels),
		},
		Modules:      make([]ModuleDTO, 0, len(grid.Rows)),
		Actions:      make([]ActionDTO, 0, len(grid.Columns)),
		ActionLabels: cat.ActionLabels(),
		Summary:      res.Summary,
	}
	for _, c := range grid.Columns {
		out.Actions = append(out.Actions, ActionDTO{Key: c.Key, Label: c.Label, State: c.State})
	}
	for _, row := range grid.Rows {
		module := ModuleDTO{Key: row.Key, Label: row.Label, State: row.State, Permissions: []PermissionDTO{}}
		for _, cell := range row.Cells {
			if cell == nil {
				continue
			}
			name := cell.Permission.Name
			module.Permissions = append(module.Permissions, PermissionDTO{
				Name:                    name,
				Label:                   cell.Permission.Label,
				Action:                  cell.Permission.ActionKey,
				State:                   cell.State,
				AssignedDirectly:        res.Direct.Has(name),
				InheritedFromRole:       cell.State == matrix.StateInherited,
				InheritedFromRoleLabels: nonNil(cell.Sources),
			})
		}
		out.Modules = append(out.Modules, module)
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
