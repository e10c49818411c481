package rbac

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *Metrics) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewCache(client, time.Minute, metrics), metrics
}

func TestCacheServesSecondLookup(t *testing.T) {
	cache, metrics := newTestCache(t)
	cat := testCatalog(t)
	var loads int32
	loader := func(context.Context) (Resolution, error) {
		atomic.AddInt32(&loads, 1)
		return Resolve(cat, User{ID: 7, Name: "Lucía"}, nil, []string{"clientes.ver"}), nil
	}

	first, err := cache.FetchResolution(context.Background(), 7, loader)
	require.NoError(t, err)
	second, err := cache.FetchResolution(context.Background(), 7, loader)
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	assert.True(t, first.Direct.Equal(second.Direct))
	assert.Equal(t, "Lucía", second.User.Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.cache.WithLabelValues("miss")))
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache, _ := newTestCache(t)
	var loads int32
	loader := func(context.Context) (Resolution, error) {
		atomic.AddInt32(&loads, 1)
		return Resolution{User: User{ID: 7}}, nil
	}

	_, err := cache.FetchResolution(context.Background(), 7, loader)
	require.NoError(t, err)
	before, err := cache.Version(context.Background())
	require.NoError(t, err)

	require.NoError(t, cache.Bump(context.Background()))
	after, err := cache.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before+1, after)

	_, err = cache.FetchResolution(context.Background(), 7, loader)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestCacheListenForInvalidation(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bumped := make(chan struct{}, 1)
	require.NoError(t, cache.ListenForInvalidation(ctx, func() {
		select {
		case bumped <- struct{}{}:
		default:
		}
	}))
	require.NoError(t, cache.Bump(context.Background()))

	select {
	case <-bumped:
	case <-time.After(2 * time.Second):
		t.Fatal("expected invalidation notification")
	}
}

func TestNilCacheCallsLoader(t *testing.T) {
	var cache *Cache
	res, err := cache.FetchResolution(context.Background(), 7, func(context.Context) (Resolution, error) {
		return Resolution{User: User{ID: 7}}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.User.ID)
	require.NoError(t, cache.Bump(context.Background()))
}

func TestResolverUsesCache(t *testing.T) {
	cache, _ := newTestCache(t)
	store := seededStore()
	resolver := NewResolver(store, testCatalog(t), cache)

	first, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)

	// Changes are invisible until the version is bumped.
	store.grant(7, "clientes.ver")
	cached, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, first.Direct.Equal(cached.Direct))

	require.NoError(t, cache.Bump(context.Background()))
	fresh, err := resolver.Resolve(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, []string{"clientes.ver"}, fresh.Direct.Sorted())
}
