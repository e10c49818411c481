package rbac

import (
	"context"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// Service exposes the permission matrix operations to transports.
type Service struct {
	resolver    *Resolver
	coordinator *Coordinator
	authorizer  Authorizer
}

// NewService wires the resolver and save coordinator.
func NewService(resolver *Resolver, coordinator *Coordinator) *Service {
	return &Service{resolver: resolver, coordinator: coordinator}
}

// Catalog returns the permission catalog in use.
func (s *Service) Catalog() *catalog.Catalog {
	return s.resolver.Catalog()
}

// LoadMatrix resolves userID's permissions on behalf of actor.
func (s *Service) LoadMatrix(ctx context.Context, actor shared.Actor, userID int64) (Resolution, error) {
	if err := s.authorizer.CanView(actor, userID); err != nil {
		return Resolution{}, err
	}
	return s.resolver.Resolve(ctx, userID)
}

// SaveDirectGrants persists sub as userID's direct grants on behalf of actor.
func (s *Service) SaveDirectGrants(ctx context.Context, actor shared.Actor, userID int64, sub Submission) (Resolution, error) {
	return s.coordinator.Save(ctx, actor, userID, sub)
}

// As binds the service to one actor, giving editors a two-method backend.
func (s *Service) As(actor shared.Actor) ActorService {
	return ActorService{service: s, actor: actor}
}

// ActorService is Service with the authorization context fixed.
type ActorService struct {
	service *Service
	actor   shared.Actor
}

// Load resolves userID for the bound actor.
func (a ActorService) Load(ctx context.Context, userID int64) (Resolution, error) {
	return a.service.LoadMatrix(ctx, a.actor, userID)
}

// Save persists sub for the bound actor.
func (a ActorService) Save(ctx context.Context, userID int64, sub Submission) (Resolution, error) {
	return a.service.SaveDirectGrants(ctx, a.actor, userID, sub)
}
