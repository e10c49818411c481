package rbac

import (
	"context"

	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Permissions permset.Set `json:"permissions"`
}

// User is the subject whose permissions are resolved.
type User struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	IsActive   bool   `json:"is_active"`
	SuperAdmin bool   `json:"super_admin"`
}

// Label returns the display name, falling back to the email.
func (u User) Label() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Classification is the effective state of one permission for one user.
// A permission granted both by a role and directly is Inherited.
type Classification int

const (
	// ClassNone means the user does not hold the permission.
	ClassNone Classification = iota
	// ClassDirect means the permission is held only through a direct grant.
	ClassDirect
	// ClassInherited means at least one assigned role grants the permission.
	ClassInherited
)

func (c Classification) String() string {
	switch c {
	case ClassInherited:
		return "inherited"
	case ClassDirect:
		return "direct"
	default:
		return "none"
	}
}

// Summary holds the headline counts of a resolution.
type Summary struct {
	Total     int `json:"total"`
	Inherited int `json:"inherited"`
	Direct    int `json:"direct"`
	Effective int `json:"effective"`
}

// Resolution is the merged view of a user's permissions.
type Resolution struct {
	User       User                `json:"user"`
	RoleLabels []string            `json:"role_labels"`
	Inherited  permset.Set         `json:"inherited"`
	Direct     permset.Set         `json:"direct"`
	Effective  permset.Set         `json:"effective"`
	Sources    map[string][]string `json:"sources"`
	Summary    Summary             `json:"summary"`
}

// Classify returns the tri-state classification of name.
func (r Resolution) Classify(name string) Classification {
	name = permset.Normalize(name)
	switch {
	case r.Inherited.Has(name):
		return ClassInherited
	case r.Direct.Has(name):
		return ClassDirect
	default:
		return ClassNone
	}
}

// Submission is what an editor hands to the save coordinator.
type Submission struct {
	// Permissions is the union of inherited and selected direct permissions.
	Permissions permset.Set
	// BaseInherited is the inherited set the editor was built on.
	BaseInherited permset.Set
}

// Direct returns the permissions the editor explicitly curated.
func (s Submission) Direct() permset.Set {
	return s.Permissions.Minus(s.BaseInherited)
}

// GrantSnapshot is a user with their roles and direct grants, all read at
// the same point in time.
type GrantSnapshot struct {
	User   User
	Roles  []Role
	Direct []string
}

// Store is the read side of the grant store plus its transaction boundary.
type Store interface {
	// Snapshot reads everything a resolution needs from one consistent view.
	Snapshot(ctx context.Context, userID int64) (GrantSnapshot, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// TxStore exposes the operations run inside one isolated save transaction.
type TxStore interface {
	// LockUser loads the user and holds a row lock until the transaction ends.
	LockUser(ctx context.Context, userID int64) (User, error)
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	DirectGrants(ctx context.Context, userID int64) ([]string, error)
	// SyncDirectGrants replaces the user's direct grants with the given
	// permissions minus whatever the user's roles already grant.
	SyncDirectGrants(ctx context.Context, userID int64, permissions []string) error
	RecordAudit(ctx context.Context, log shared.AuditLog) error
}
