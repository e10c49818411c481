package users

import "time"

// User represents a user account for management.
type User struct {
	ID         int64
	Email      string
	Name       string
	IsActive   bool
	SuperAdmin bool
	RoleLabels []string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListFilter narrows the user directory.
type ListFilter struct {
	Search string `validate:"max=100"`
	Limit  int    `validate:"min=0,max=200"`
	Offset int    `validate:"min=0"`
}
