package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "rbac:resolution:version"
	bumpChannel     = "rbac.bump"
)

// Cache stores resolutions in Redis under a global version. Any grant change
// bumps the version, orphaning every cached entry at once.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	metrics *Metrics
	group   singleflight.Group
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration, metrics *Metrics) *Cache {
	return &Cache{client: client, ttl: ttl, metrics: metrics}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// FetchResolution loads a cached resolution or populates it using loader.
// Concurrent misses for the same key share one loader call.
func (c *Cache) FetchResolution(ctx context.Context, userID int64, loader func(context.Context) (Resolution, error)) (Resolution, error) {
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return Resolution{}, err
	}
	key := strings.Join([]string{"rbac", "resolution", strconv.FormatInt(userID, 10), strconv.FormatInt(ver, 10)}, ":")

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var res Resolution
		if err := json.Unmarshal(payload, &res); err == nil {
			c.metrics.cacheResult("hit")
			return res, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return Resolution{}, err
	}
	c.metrics.cacheResult("miss")

	resultCh := c.group.DoChan(key, func() (interface{}, error) {
		res, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return nil, err
		}
		return res, nil
	})
	select {
	case <-ctx.Done():
		return Resolution{}, ctx.Err()
	case out := <-resultCh:
		if out.Err != nil {
			return Resolution{}, out.Err
		}
		return out.Val.(Resolution), nil
	}
}

// Bump invalidates every cached resolution and notifies other processes.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation calls onBump for every version bump published by any
// process until ctx is cancelled.
func (c *Cache) ListenForInvalidation(ctx context.Context, onBump func()) error {
	if c == nil || c.client == nil || onBump == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				onBump()
			}
		}
	}()
	return nil
}
