package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/platform/httpx"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// MiddlewareConfig tunes the per-process actor cache.
type MiddlewareConfig struct {
	// SuperAdminIDs are treated as super-admins regardless of the stored flag.
	SuperAdminIDs []int64
	CacheSize     int
	CacheTTL      time.Duration
	Logger        *slog.Logger
}

type resolutionSource interface {
	Resolve(ctx context.Context, userID int64) (Resolution, error)
}

// Middleware turns the request session into a shared.Actor and guards
// handlers on the actor's effective permissions.
type Middleware struct {
	source      resolutionSource
	superAdmins map[int64]struct{}
	actors      *lru.LRU[int64, shared.Actor]
	logger      *slog.Logger
}

// NewMiddleware constructs the middleware around resolver.
func NewMiddleware(resolver *Resolver, cfg MiddlewareConfig) *Middleware {
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	admins := make(map[int64]struct{}, len(cfg.SuperAdminIDs))
	for _, id := range cfg.SuperAdminIDs {
		admins[id] = struct{}{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		source:      resolver,
		superAdmins: admins,
		actors:      lru.NewLRU[int64, shared.Actor](size, nil, ttl),
		logger:      logger,
	}
}

// LoadActor attaches the caller's actor to the request context. Anonymous
// requests pass through without one.
func (m *Middleware) LoadActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := shared.SessionFromContext(r.Context()).User()
		if userID <= 0 {
			next.ServeHTTP(w, r)
			return
		}
		actor, err := m.ActorFor(r.Context(), userID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Session for a deleted user.
				next.ServeHTTP(w, r)
				return
			}
			m.logger.Error("rbac load actor", slog.Int64("user_id", userID), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// ActorFor builds the actor for userID, consulting the local cache first.
func (m *Middleware) ActorFor(ctx context.Context, userID int64) (shared.Actor, error) {
	if actor, ok := m.actors.Get(userID); ok {
		return actor, nil
	}
	res, err := m.source.Resolve(ctx, userID)
	if err != nil {
		return shared.Actor{}, err
	}
	_, forced := m.superAdmins[userID]
	actor := shared.Actor{
		UserID:      userID,
		SuperAdmin:  forced || (res.User.SuperAdmin && res.User.IsActive),
		Permissions: make(permset.Set),
	}
	if res.User.IsActive {
		actor.Permissions = res.Effective.Clone()
	}
	m.actors.Add(userID, actor)
	return actor, nil
}

// Evict drops userID from the local actor cache.
func (m *Middleware) Evict(_ context.Context, userID int64) {
	m.actors.Remove(userID)
}

// Purge empties the local actor cache.
func (m *Middleware) Purge() {
	m.actors.Purge()
}

// RequireAny ensures the current actor holds at least one of perms.
func (m *Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := permset.New(perms...)
	return m.guard(func(actor shared.Actor) bool {
		return required.Len() == 0 || actor.Can(required.Sorted()...)
	}, required)
}

// RequireAll ensures the current actor holds every one of perms.
func (m *Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := permset.New(perms...)
	return m.guard(func(actor shared.Actor) bool {
		return actor.SuperAdmin || actor.Permissions.ContainsAll(required)
	}, required)
}

func (m *Middleware) guard(allowed func(shared.Actor) bool, required permset.Set) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, httpx.ErrUnauthenticated)
				return
			}
			if !allowed(actor) {
				m.logger.Warn("rbac denied", slog.Int64("user_id", actor.UserID), slog.Any("required", required.Sorted()))
				httpx.RespondError(w, fmt.Errorf("rbac: missing permission: %w", shared.ErrUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
