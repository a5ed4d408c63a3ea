package cache

import (
	"context"
	"math/rand/v2"
	"time"

	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// missMarker is cached for keys the store has no value for.
const missMarker = "\x00miss"

// Policy sets how long loaded values and misses stay cached. Both are
// shortened by up to a tenth so keys filled together expire apart.
type Policy struct {
	TTL     time.Duration
	MissTTL time.Duration
}

// Loader reads the authoritative value of a key. found is false when the
// store has none.
type Loader func(ctx context.Context) (value string, found bool, err error)

// ReadThrough returns the cached value of key, calling load on a cache miss
// and caching its answer, including absence. Cache errors are logged and
// fall through to load.
func ReadThrough(ctx context.Context, c BasicOps, key string, p Policy, load Loader) (string, bool, error) {
	cached, err := c.Get(ctx, key)
	switch {
	case err != nil:
		logger.Debug(ctx, "cache read failed", zap.String("key", key), zap.Error(err))
	case cached == missMarker:
		return "", false, nil
	case cached != "":
		return cached, true, nil
	}

	value, found, err := load(ctx)
	if err != nil {
		return "", false, err
	}
	entry, ttl := value, p.TTL
	if !found {
		entry, ttl = missMarker, p.MissTTL
	}
	if err := c.Set(ctx, key, entry, shorten(ttl)); err != nil {
		logger.Debug(ctx, "cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return value, found, nil
}

// WriteAround runs write and then drops key, so the next read reloads it.
func WriteAround(ctx context.Context, c BasicOps, key string, write func(context.Context) error) error {
	if err := write(ctx); err != nil {
		return err
	}
	if err := c.Del(ctx, key); err != nil {
		logger.Warn(ctx, "cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
	return nil
}

func shorten(ttl time.Duration) time.Duration {
	if ttl < 10 {
		return ttl
	}
	return ttl - rand.N(ttl/10+1)
}
