package cache

import (
	"context"
	"time"
)

// Cache is the subset of Redis operations used by the engine's auxiliary
// state: the challenge data cache, the scoreboard and the live solve feed.
type Cache interface {
	BasicOps
	SetOps
	ZSetOps
	ListOps
	LockOps

	Ping(ctx context.Context) error
	Close() error
}

// BasicOps defines basic key-value operations
type BasicOps interface {
	// Get returns "" with a nil error when the key is missing.
	Get(ctx context.Context, key string) (string, error)

	// Set stores a key-value pair; ttl 0 means no expiration.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, keys ...string) (int64, error)

	// Incr increments an integer counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// SetOps defines unordered set operations
type SetOps interface {
	// SAdd returns the number of members that were not already present.
	SAdd(ctx context.Context, key string, members ...interface{}) (int64, error)
	SIsMember(ctx context.Context, key string, member interface{}) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
}

// ZSetOps defines sorted set operations
type ZSetOps interface {
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZIncrBy(ctx context.Context, key string, increment float64, member string) (float64, error)
	ZScore(ctx context.Context, key, member string) (float64, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)
}

// ListOps defines list operations
type ListOps interface {
	LPush(ctx context.Context, key string, values ...interface{}) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
}

// LockOps defines best-effort lock operations
type LockOps interface {
	// TryLock returns true when the lock was acquired.
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// ZMember represents a sorted set member with score
type ZMember struct {
	Score  float64
	Member string
}
