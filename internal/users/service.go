package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/gestion/internal/shared"
)

const defaultPageSize = 50

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, filter ListFilter) ([]User, error)
	GetUser(ctx context.Context, id int64) (User, error)
}

// Service handles user business logic.
type Service struct {
	repo      RepositoryPort
	validator *validator.Validate
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo, validator: validator.New()}
}

// ListUsers returns the user directory page described by filter.
func (s *Service) ListUsers(ctx context.Context, actor shared.Actor, filter ListFilter) ([]User, error) {
	if !actor.Can(shared.PermUsersView, shared.PermUsersManage) {
		return nil, fmt.Errorf("users: list: %w", shared.ErrUnauthorized)
	}
	filter.Search = strings.TrimSpace(filter.Search)
	if err := s.validator.Struct(filter); err != nil {
		return nil, fmt.Errorf("users: filter: %v: %w", err, shared.ErrValidation)
	}
	if filter.Limit == 0 {
		filter.Limit = defaultPageSize
	}
	return s.repo.ListUsers(ctx, filter)
}

// GetUser returns one user. Anyone may read their own record.
func (s *Service) GetUser(ctx context.Context, actor shared.Actor, id int64) (User, error) {
	if actor.UserID != id && !actor.Can(shared.PermUsersView, shared.PermUsersManage) {
		return User{}, fmt.Errorf("users: view user %d: %w", id, shared.ErrUnauthorized)
	}
	return s.repo.GetUser(ctx, id)
}
