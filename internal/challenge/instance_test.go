package challenge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"ctfoj/internal/challenge"
	pkgerrors "ctfoj/pkg/errors"
)

func newTestInstance(t *testing.T, configure func(*probe)) (*challenge.Instance, *probe) {
	t.Helper()
	p := newProbe(challenge.Env{CID: "Probe"})
	if configure != nil {
		configure(p)
	}
	return challenge.NewInstance(p, challenge.NewStoredWindows(newMemoryChallenges(openRow("Probe")))), p
}

func TestInstanceLifecycle(t *testing.T) {
	inst, p := newTestInstance(t, nil)

	if err := inst.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if inst.State() != challenge.StateRunning {
		t.Fatalf("expected running, got %s", inst.State())
	}
	if err := inst.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if err := inst.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if inst.State() != challenge.StateStopped || p.stopCalls != 1 {
		t.Fatalf("expected one stop call and stopped state, got %s and %d", inst.State(), p.stopCalls)
	}
	if err := inst.Stop(context.Background()); err != nil || p.stopCalls != 1 {
		t.Fatalf("expected repeated stop to be a no-op")
	}
}

func TestInstanceStartFailure(t *testing.T) {
	inst, p := newTestInstance(t, func(p *probe) { p.startErr = errors.New("port in use") })

	err := inst.Start(context.Background())
	if !pkgerrors.Is(err, pkgerrors.ChallengeStartFailed) {
		t.Fatalf("expected start failure, got %v", err)
	}
	if inst.State() != challenge.StateFailed || inst.Err() == nil {
		t.Fatalf("expected failed state with error")
	}
	if err := inst.Stop(context.Background()); err != nil {
		t.Fatalf("stop of failed instance should be a no-op, got %v", err)
	}
	if p.stopCalls != 0 {
		t.Fatalf("stop hook must not run for failed instance")
	}
}

func TestInstanceStartPanicIsContained(t *testing.T) {
	inst, _ := newTestInstance(t, func(p *probe) { p.panicOn = true })

	if err := inst.Start(context.Background()); err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	if inst.State() != challenge.StateFailed {
		t.Fatalf("expected failed state, got %s", inst.State())
	}
}

func TestInstanceStartHonoursDeadline(t *testing.T) {
	inst, _ := newTestInstance(t, func(p *probe) { p.block = make(chan struct{}) })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := inst.Start(ctx); err == nil {
		t.Fatalf("expected blocked start to fail on deadline")
	}
	if inst.State() != challenge.StateFailed {
		t.Fatalf("expected failed state, got %s", inst.State())
	}
}

func TestInstanceStopBeforeStart(t *testing.T) {
	inst, p := newTestInstance(t, nil)
	if err := inst.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if inst.State() != challenge.StateStopped || p.stopCalls != 0 {
		t.Fatalf("expected stopped without running the hook")
	}
}

func TestInstanceWindowIsCached(t *testing.T) {
	repo := newMemoryChallenges(openRow("Probe"))
	inst := challenge.NewInstance(newProbe(challenge.Env{CID: "Probe"}), challenge.NewStoredWindows(repo))

	first, err := inst.Window(context.Background())
	if err != nil {
		t.Fatalf("window failed: %v", err)
	}
	moved := openRow("Probe")
	moved.Stop = testNow.Add(48 * time.Hour)
	repo.rows["Probe"] = moved

	second, err := inst.Window(context.Background())
	if err != nil {
		t.Fatalf("window failed: %v", err)
	}
	if !second.Stop.Equal(first.Stop) {
		t.Fatalf("expected cached window, got stop %s", second.Stop)
	}
}

func TestWindowContainsIsHalfOpen(t *testing.T) {
	w := challenge.Window{Start: testNow, Stop: testNow.Add(time.Hour)}
	if !w.Contains(testNow) {
		t.Fatalf("start must be inside the window")
	}
	if w.Contains(testNow.Add(time.Hour)) {
		t.Fatalf("stop must be outside the window")
	}
	if w.Contains(testNow.Add(-time.Nanosecond)) {
		t.Fatalf("before start must be outside the window")
	}
}
