package rbac

import (
	"context"
	"fmt"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/gestion/internal/catalog"
	"github.com/odyssey-erp/gestion/internal/permset"
	"github.com/odyssey-erp/gestion/internal/shared"
)

// ResolutionCache keeps resolutions between requests.
type ResolutionCache interface {
	FetchResolution(ctx context.Context, userID int64, loader func(context.Context) (Resolution, error)) (Resolution, error)
	Bump(ctx context.Context) error
}

// Resolver computes inherited, direct and effective permission sets.
type Resolver struct {
	store   Store
	catalog *catalog.Catalog
	cache   ResolutionCache
}

// NewResolver constructs a Resolver. cache may be nil.
func NewResolver(store Store, cat *catalog.Catalog, cache ResolutionCache) *Resolver {
	return &Resolver{store: store, catalog: cat, cache: cache}
}

// Catalog returns the catalog resolutions are filtered against.
func (r *Resolver) Catalog() *catalog.Catalog {
	return r.catalog
}

// Resolve returns the user's resolution, served from cache when configured.
func (r *Resolver) Resolve(ctx context.Context, userID int64) (Resolution, error) {
	if userID <= 0 {
		return Resolution{}, fmt.Errorf("rbac: user %d: %w", userID, shared.ErrNotFound)
	}
	if r.cache == nil {
		return r.ResolveFresh(ctx, userID)
	}
	return r.cache.FetchResolution(ctx, userID, func(ctx context.Context) (Resolution, error) {
		return r.ResolveFresh(ctx, userID)
	})
}

// ResolveFresh reads the grant store directly, bypassing any cache. The user,
// roles and direct grants come from one store snapshot.
func (r *Resolver) ResolveFresh(ctx context.Context, userID int64) (Resolution, error) {
	if userID <= 0 {
		return Resolution{}, fmt.Errorf("rbac: user %d: %w", userID, shared.ErrNotFound)
	}
	snap, err := r.store.Snapshot(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	return Resolve(r.catalog, snap.User, snap.Roles, snap.Direct), nil
}

// EffectivePermissions returns deduplicated permission names for a user.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	res, err := r.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	return res.Effective.Sorted(), nil
}

// Resolve merges role and direct grants. Names unknown to the catalog are
// dropped from both sides.
func Resolve(cat *catalog.Catalog, user User, roles []Role, direct []string) Resolution {
	inherited := make(permset.Set)
	sources := make(map[string][]string)
	roleLabels := make([]string, 0, len(roles))
	for _, role := range roles {
		roleLabels = append(roleLabels, role.Name)
		for name := range role.Permissions {
			if !cat.Has(name) {
				continue
			}
			inherited[name] = struct{}{}
			sources[name] = appendUnique(sources[name], role.Name)
		}
	}
	roleLabels = appendUnique(nil, roleLabels...)
	sortLabels(roleLabels)
	for name := range sources {
		sortLabels(sources[name])
	}

	directSet := cat.Filter(permset.New(direct...))
	effective := inherited.Union(directSet)
	return Resolution{
		User:       user,
		RoleLabels: roleLabels,
		Inherited:  inherited,
		Direct:     directSet,
		Effective:  effective,
		Sources:    sources,
		Summary: Summary{
			Total:     cat.Len(),
			Inherited: inherited.Len(),
			Direct:    directSet.Minus(inherited).Len(),
			Effective: effective.Len(),
		},
	}
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, existing := range dst {
			if existing == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func sortLabels(labels []string) {
	collate.New(language.Spanish, collate.IgnoreCase).SortStrings(labels)
}
