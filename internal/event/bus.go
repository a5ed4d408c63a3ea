package event

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// SolvedEventType is the event_type carried by Solved payloads.
const SolvedEventType = "flag.solved"

// Solved is emitted after a redemption commits.
type Solved struct {
	EventType string    `json:"event_type"`
	UID       string    `json:"uid"`
	CID       string    `json:"cid"`
	FID       string    `json:"fid"`
	SolvedAt  time.Time `json:"solved_at"`
}

// Observer reacts to committed solves.
type Observer interface {
	OnSolved(ctx context.Context, ev Solved) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Solved) error

func (f ObserverFunc) OnSolved(ctx context.Context, ev Solved) error {
	return f(ctx, ev)
}

// Bus fans solve notifications out to its observers in subscription order.
// A failing or panicking observer is logged and does not affect the others.
type Bus struct {
	mu        sync.RWMutex
	observers []Observer
}

func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) Subscribe(o Observer) {
	if o == nil {
		return
	}
	b.mu.Lock()
	b.observers = append(b.observers, o)
	b.mu.Unlock()
}

// Publish delivers ev synchronously to every observer.
func (b *Bus) Publish(ctx context.Context, ev Solved) {
	if ev.EventType == "" {
		ev.EventType = SolvedEventType
	}
	b.mu.RLock()
	observers := make([]Observer, len(b.observers))
	copy(observers, b.observers)
	b.mu.RUnlock()

	for _, o := range observers {
		if err := notify(ctx, o, ev); err != nil {
			logger.Error(ctx, "solve observer failed",
				zap.String("uid", ev.UID),
				zap.String("cid", ev.CID),
				zap.Error(err),
			)
		}
	}
}

func notify(ctx context.Context, o Observer, ev Solved) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("observer panic: %v\n%s", p, debug.Stack())
		}
	}()
	return o.OnSolved(ctx, ev)
}
