package roles

import (
	"time"

	"github.com/odyssey-erp/gestion/internal/matrix"
	"github.com/odyssey-erp/gestion/internal/permset"
)

// Role represents a role for management.
type Role struct {
	ID          int64
	Name        string
	Description string
	Permissions permset.Set
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleMatrix is a role's grants laid out on the permission grid. Nothing is
// inherited; the role's permissions are the selection.
type RoleMatrix struct {
	Role Role
	Grid matrix.Grid
}
