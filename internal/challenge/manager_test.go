package challenge_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"ctfoj/internal/challenge"
	"ctfoj/internal/event"
	pkgerrors "ctfoj/pkg/errors"
)

func newTestManager(t *testing.T, classes map[string]func(*probe), cids ...string) (*challenge.Manager, *eventSink, map[string]*probe) {
	t.Helper()
	registry := challenge.NewRegistry()
	probes := make(map[string]*probe)
	for name, configure := range classes {
		configure := configure
		registry.MustRegister(name, func(env challenge.Env) (challenge.Definition, error) {
			p := newProbe(env)
			if configure != nil {
				configure(p)
			}
			probes[env.CID] = p
			return p, nil
		})
	}
	rows := newMemoryChallenges()
	for _, cid := range cids {
		rows.rows[cid] = openRow(cid)
	}
	m := challenge.NewManager(registry, rows)
	events := &eventSink{}
	rt := challenge.Runtime{Flags: &recordingIssuer{}, Events: events, Now: func() time.Time { return testNow }}
	if err := m.Load(context.Background(), rt); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	return m, events, probes
}

func TestManagerLoadFailsOnUnknownClass(t *testing.T) {
	registry := challenge.NewRegistry()
	rows := newMemoryChallenges(openRow("Missing(1)"))
	m := challenge.NewManager(registry, rows)

	err := m.Load(context.Background(), challenge.Runtime{})
	if !pkgerrors.Is(err, pkgerrors.ChallengeDefinitionNotFound) {
		t.Fatalf("expected definition not found, got %v", err)
	}
	if len(m.List()) != 0 {
		t.Fatalf("expected nothing loaded")
	}
}

func TestManagerStartAllIsolatesFailures(t *testing.T) {
	m, events, _ := newTestManager(t, map[string]func(*probe){
		"Good":  nil,
		"Bad":   func(p *probe) { p.startErr = errors.New("cannot bind") },
		"Panic": func(p *probe) { p.panicOn = true },
	}, "Good(1)", "Good(2)", "Bad", "Panic")

	m.StartAll(context.Background())

	for _, cid := range []string{"Good(1)", "Good(2)"} {
		inst, _ := m.Get(cid)
		if inst.State() != challenge.StateRunning {
			t.Fatalf("expected %s running, got %s", cid, inst.State())
		}
	}
	for _, cid := range []string{"Bad", "Panic"} {
		inst, _ := m.Get(cid)
		if inst.State() != challenge.StateFailed {
			t.Fatalf("expected %s failed, got %s", cid, inst.State())
		}
	}
	if got := len(events.ofType(event.TypeChallengeFail)); got != 2 {
		t.Fatalf("expected two challenge-fail events, got %d", got)
	}

	m.StopAll(context.Background())
	inst, _ := m.Get("Good(1)")
	if inst.State() != challenge.StateStopped {
		t.Fatalf("expected stopped after StopAll, got %s", inst.State())
	}
}

func TestManagerStartAllRunsConcurrently(t *testing.T) {
	release := make(chan struct{})
	started := map[string]chan struct{}{"Slow(a)": make(chan struct{}), "Slow(b)": make(chan struct{})}
	registry := challenge.NewRegistry()
	registry.MustRegister("Slow", func(env challenge.Env) (challenge.Definition, error) {
		p := newProbe(env)
		p.block = release
		p.started = started[env.CID]
		return p, nil
	})
	m := challenge.NewManager(registry, newMemoryChallenges(openRow("Slow(a)"), openRow("Slow(b)")))
	if err := m.Load(context.Background(), challenge.Runtime{}); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		m.StartAll(context.Background())
		close(done)
	}()
	for cid, ch := range started {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatalf("%s did not start while the other was blocked", cid)
		}
	}
	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("StartAll did not return")
	}
}

func TestManagerHandle(t *testing.T) {
	m, _, _ := newTestManager(t, map[string]func(*probe){
		"Good": nil,
		"Bad":  func(p *probe) { p.startErr = errors.New("broken") },
	}, "Good", "Bad")

	req := &challenge.Request{Method: http.MethodGet, Path: "/x"}
	_, err := m.Handle(context.Background(), "Good", "alice", req)
	if !pkgerrors.Is(err, pkgerrors.ServiceUnavailable) {
		t.Fatalf("expected unavailable before start, got %v", err)
	}

	m.StartAll(context.Background())

	resp, err := m.Handle(context.Background(), "Good", "alice", req)
	if err != nil {
		t.Fatalf("handle failed: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != "hello alice/x" {
		t.Fatalf("unexpected response: %d %q", resp.Status, resp.Body)
	}

	resp, err = m.Handle(context.Background(), "Good", "alice", &challenge.Request{Method: http.MethodPost})
	if err != nil || resp.Status != http.StatusNotFound {
		t.Fatalf("expected nil handler response to become 404, got %v %v", resp, err)
	}

	resp, err = m.Handle(context.Background(), "Good", "alice", &challenge.Request{Method: http.MethodDelete})
	if err != nil || resp.Status != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %v %v", resp, err)
	}

	_, err = m.Handle(context.Background(), "Bad", "alice", req)
	if !pkgerrors.Is(err, pkgerrors.ServiceUnavailable) {
		t.Fatalf("expected failed instance to be unavailable, got %v", err)
	}
	_, err = m.Handle(context.Background(), "Nope", "alice", req)
	if !pkgerrors.Is(err, pkgerrors.ChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestManagerActivityWindowFallsBackToStore(t *testing.T) {
	registry := challenge.NewRegistry()
	rows := newMemoryChallenges(openRow("Stage(Multi, 1)"))
	m := challenge.NewManager(registry, rows)

	w, err := m.ActivityWindow(context.Background(), "Stage(Multi, 1)")
	if err != nil {
		t.Fatalf("activity window failed: %v", err)
	}
	if !w.Contains(testNow) {
		t.Fatalf("expected window around now, got %+v", w)
	}
	_, err = m.ActivityWindow(context.Background(), "Unknown")
	if !pkgerrors.Is(err, pkgerrors.ChallengeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
