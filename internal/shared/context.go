package shared

import (
	"context"

	"github.com/odyssey-erp/gestion/internal/permset"
)

type sessionContextKey struct{}

type actorContextKey struct{}

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	UserID      int64
	SuperAdmin  bool
	Permissions permset.Set
}

// Can reports whether the actor holds any of the given permissions.
func (a Actor) Can(perms ...string) bool {
	if a.SuperAdmin {
		return true
	}
	for _, p := range perms {
		if a.Permissions.Has(permset.Normalize(p)) {
			return true
		}
	}
	return false
}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// ContextWithActor stores the resolved actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor placed by the authorization middleware.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
