package limiter

import (
	"context"
	"fmt"
	"time"

	"ctfoj/internal/common/cache"
	pkgerrors "ctfoj/pkg/errors"
)

const defaultCacheTimeout = time.Second

// WindowLimiter enforces fixed-window request limits with Redis counters.
type WindowLimiter struct {
	cache   cache.BasicOps
	timeout time.Duration
}

func NewWindowLimiter(cacheClient cache.BasicOps, timeout time.Duration) *WindowLimiter {
	if timeout <= 0 {
		timeout = defaultCacheTimeout
	}
	return &WindowLimiter{cache: cacheClient, timeout: timeout}
}

// Allow counts one hit on key and fails with TooManyRequests once more
// than max hits fall into the current window. max <= 0 disables the limit.
func (l *WindowLimiter) Allow(ctx context.Context, key string, max int, window time.Duration) error {
	if max <= 0 {
		return nil
	}
	if l.cache == nil {
		return pkgerrors.New(pkgerrors.ServiceUnavailable).WithMessage("rate limit cache is unavailable")
	}
	if window <= 0 {
		return pkgerrors.Newf(pkgerrors.InvalidParams, "rate limit window for %s must be positive", key)
	}

	ctxCache, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	count, err := l.cache.Incr(ctxCache, key)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
	}
	if count == 1 {
		if err := l.cache.Expire(ctxCache, key, window); err != nil {
			_ = l.cache.Del(ctxCache, key)
			return pkgerrors.Wrapf(err, pkgerrors.CacheError, "rate limit check failed")
		}
	}
	if int(count) > max {
		return pkgerrors.New(pkgerrors.TooManyRequests).WithMessage(fmt.Sprintf("rate limit exceeded for %s", key))
	}
	return nil
}
