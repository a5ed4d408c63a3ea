package app_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"ctfoj/internal/app"
)

type blockingServer struct {
	listening chan struct{}
	closed    chan struct{}
	once      sync.Once
	err       error
}

func newBlockingServer() *blockingServer {
	return &blockingServer{listening: make(chan struct{}), closed: make(chan struct{})}
}

func (s *blockingServer) ListenAndServe() error {
	if s.err != nil {
		return s.err
	}
	close(s.listening)
	<-s.closed
	return http.ErrServerClosed
}

func (s *blockingServer) Shutdown(ctx context.Context) error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// hangingChallenges blocks StartAll until its context ends.
type hangingChallenges struct {
	mu    sync.Mutex
	calls []string
}

func (h *hangingChallenges) record(call string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, call)
}

func (h *hangingChallenges) StartAll(ctx context.Context) {
	<-ctx.Done()
	h.record("start-returned")
}

func (h *hangingChallenges) StopAll(ctx context.Context) {
	h.record("stop")
}

func TestServeListensWhileChallengesStart(t *testing.T) {
	srv := newBlockingServer()
	challenges := &hangingChallenges{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- app.Serve(ctx, srv, challenges, time.Second)
	}()

	select {
	case <-srv.listening:
	case <-time.After(2 * time.Second):
		t.Fatalf("http server did not start while a challenge was still starting")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return after shutdown")
	}
	challenges.mu.Lock()
	defer challenges.mu.Unlock()
	if len(challenges.calls) != 2 || challenges.calls[0] != "start-returned" || challenges.calls[1] != "stop" {
		t.Fatalf("expected pending starts to be joined before stop, got %v", challenges.calls)
	}
}

func TestServeReturnsListenError(t *testing.T) {
	srv := newBlockingServer()
	srv.err = errors.New("address in use")
	challenges := &hangingChallenges{}

	err := app.Serve(context.Background(), srv, challenges, time.Second)
	if err == nil || err.Error() != "address in use" {
		t.Fatalf("expected listen error, got %v", err)
	}
	if len(challenges.calls) != 2 {
		t.Fatalf("expected challenges to be cancelled and stopped, got %v", challenges.calls)
	}
}
