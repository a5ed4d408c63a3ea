package challenge

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	pkgerrors "ctfoj/pkg/errors"
)

// State is the lifecycle state of an instance.
type State int

const (
	StateInstantiated State = iota
	StateStarting
	StateRunning
	StateFailed
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateInstantiated:
		return "instantiated"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Instance is one resolved challenge id with its lifecycle state.
//
//	Instantiated -> Starting -> Running | Failed
//	Running -> Stopping -> Stopped
//
// Stop on a Failed instance is a no-op, and a hook whose context is
// cancelled still leaves the instance in a terminal state.
type Instance struct {
	cid    string
	def    Definition
	window *lazyWindow

	mu    sync.Mutex
	state State
	err   error
}

func newInstance(cid string, def Definition, window *lazyWindow) *Instance {
	return &Instance{cid: cid, def: def, window: window, state: StateInstantiated}
}

// NewInstance wraps an already built definition. Used by tests and tools
// that bypass the registry.
func NewInstance(def Definition, windows WindowSource) *Instance {
	return newInstance(def.ID(), def, newLazyWindow(def.ID(), windows))
}

func (i *Instance) ID() string { return i.cid }

func (i *Instance) Definition() Definition { return i.def }

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Err returns the error that moved the instance into Failed, or the last
// stop error.
func (i *Instance) Err() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

// Window returns the cached activity window.
func (i *Instance) Window(ctx context.Context) (Window, error) {
	return i.window.get(ctx)
}

// Start runs the start hook once.
func (i *Instance) Start(ctx context.Context) error {
	i.mu.Lock()
	if i.state != StateInstantiated {
		state := i.state
		i.mu.Unlock()
		return pkgerrors.Newf(pkgerrors.ChallengeStartFailed, "cannot start %s in state %s", i.cid, state)
	}
	i.state = StateStarting
	i.mu.Unlock()

	err := runHook(ctx, i.def.Start)

	i.mu.Lock()
	defer i.mu.Unlock()
	if err != nil {
		i.state = StateFailed
		i.err = pkgerrors.Wrapf(err, pkgerrors.ChallengeStartFailed, "start %s failed: %v", i.cid, err)
		return i.err
	}
	i.state = StateRunning
	return nil
}

// Stop runs the stop hook of a running instance. Instances that never
// started move straight to Stopped; failed and stopped ones are left alone.
func (i *Instance) Stop(ctx context.Context) error {
	i.mu.Lock()
	switch i.state {
	case StateFailed, StateStopped:
		i.mu.Unlock()
		return nil
	case StateInstantiated:
		i.state = StateStopped
		i.mu.Unlock()
		return nil
	case StateRunning:
		i.state = StateStopping
	default:
		state := i.state
		i.mu.Unlock()
		return pkgerrors.Newf(pkgerrors.ChallengeStopFailed, "cannot stop %s in state %s", i.cid, state)
	}
	i.mu.Unlock()

	err := runHook(ctx, i.def.Stop)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = StateStopped
	if err != nil {
		i.err = pkgerrors.Wrapf(err, pkgerrors.ChallengeStopFailed, "stop %s failed: %v", i.cid, err)
		return i.err
	}
	return nil
}

// runHook calls hook, converting panics into errors. If ctx ends first the
// hook is abandoned and ctx's error returned.
func runHook(ctx context.Context, hook func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v\n%s", p, debug.Stack())
			}
		}()
		done <- hook(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("hook abandoned: %w", ctx.Err())
	}
}
