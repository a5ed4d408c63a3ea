package event

import (
	"context"
	"encoding/json"
	"fmt"

	"ctfoj/internal/common/cache"
)

const (
	DefaultFeedKey  = "ctf:feed"
	DefaultFeedSize = 100
)

// Feed keeps the most recent solves in a Redis list and pushes each new
// solve to connected websocket clients.
type Feed struct {
	cache cache.ListOps
	key   string
	size  int64
	hub   *Hub
}

func NewFeed(c cache.ListOps, key string, size int, hub *Hub) *Feed {
	if key == "" {
		key = DefaultFeedKey
	}
	if size <= 0 {
		size = DefaultFeedSize
	}
	return &Feed{cache: c, key: key, size: int64(size), hub: hub}
}

func (f *Feed) OnSolved(ctx context.Context, ev Solved) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal feed entry failed: %w", err)
	}
	if f.hub != nil {
		f.hub.Broadcast(payload)
	}
	if err := f.cache.LPush(ctx, f.key, string(payload)); err != nil {
		return fmt.Errorf("push feed entry failed: %w", err)
	}
	if err := f.cache.LTrim(ctx, f.key, 0, f.size-1); err != nil {
		return fmt.Errorf("trim feed failed: %w", err)
	}
	return nil
}

// Recent returns up to n solves, newest first.
func (f *Feed) Recent(ctx context.Context, n int) ([]Solved, error) {
	if n <= 0 || int64(n) > f.size {
		n = int(f.size)
	}
	raw, err := f.cache.LRange(ctx, f.key, 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("read feed failed: %w", err)
	}
	solves := make([]Solved, 0, len(raw))
	for _, item := range raw {
		var ev Solved
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		solves = append(solves, ev)
	}
	return solves, nil
}
