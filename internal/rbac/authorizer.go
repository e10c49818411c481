package rbac

import (
	"fmt"

	"github.com/odyssey-erp/gestion/internal/shared"
)

// Authorizer decides whether an actor may view or edit a user's grants.
type Authorizer struct{}

// CanView allows anyone to read their own matrix; reading someone else's
// requires user administration rights.
func (Authorizer) CanView(actor shared.Actor, targetID int64) error {
	if actor.UserID <= 0 {
		return fmt.Errorf("rbac: anonymous actor: %w", shared.ErrUnauthorized)
	}
	if actor.UserID == targetID || actor.Can(shared.PermUsersView, shared.PermUsersManage) {
		return nil
	}
	return fmt.Errorf("rbac: user %d may not view permissions of user %d: %w", actor.UserID, targetID, shared.ErrUnauthorized)
}

// CanEdit requires user administration rights. Only a super-admin may
// change their own direct grants.
func (Authorizer) CanEdit(actor shared.Actor, targetID int64) error {
	if actor.UserID <= 0 {
		return fmt.Errorf("rbac: anonymous actor: %w", shared.ErrUnauthorized)
	}
	if actor.SuperAdmin {
		return nil
	}
	if actor.UserID == targetID {
		return fmt.Errorf("rbac: user %d may not edit their own permissions: %w", actor.UserID, shared.ErrUnauthorized)
	}
	if actor.Can(shared.PermUsersManage) {
		return nil
	}
	return fmt.Errorf("rbac: user %d may not edit permissions of user %d: %w", actor.UserID, targetID, shared.ErrUnauthorized)
}
