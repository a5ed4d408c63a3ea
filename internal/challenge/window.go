package challenge

import (
	"context"
	"errors"
	"sync"
	"time"

	"ctfoj/internal/challenge/repository"
	pkgerrors "ctfoj/pkg/errors"
)

// Window is the half-open interval [Start, Stop) during which a challenge
// issues and accepts flags.
type Window struct {
	Start time.Time `json:"start"`
	Stop  time.Time `json:"stop"`
}

// Contains reports whether t lies inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.Stop)
}

// Started reports whether the window has opened at t.
func (w Window) Started(t time.Time) bool {
	return !t.Before(w.Start)
}

// WindowSource loads the stored activity window of a challenge.
type WindowSource interface {
	Window(ctx context.Context, cid string) (Window, error)
}

// lazyWindow caches the first successful load for the lifetime of an
// instance. Stored windows are not re-read after that.
type lazyWindow struct {
	cid string
	src WindowSource

	mu     sync.Mutex
	loaded bool
	window Window
}

func newLazyWindow(cid string, src WindowSource) *lazyWindow {
	return &lazyWindow{cid: cid, src: src}
}

func (l *lazyWindow) get(ctx context.Context) (Window, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loaded {
		return l.window, nil
	}
	if l.src == nil {
		return Window{}, errors.New("window source is nil")
	}
	w, err := l.src.Window(ctx, l.cid)
	if err != nil {
		return Window{}, err
	}
	l.window = w
	l.loaded = true
	return w, nil
}

// StoredWindows reads windows from the challenges table.
type StoredWindows struct {
	repo repository.ChallengeRepository
}

func NewStoredWindows(repo repository.ChallengeRepository) *StoredWindows {
	return &StoredWindows{repo: repo}
}

func (s *StoredWindows) Window(ctx context.Context, cid string) (Window, error) {
	c, err := s.repo.Get(ctx, nil, cid)
	if err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return Window{}, pkgerrors.Newf(pkgerrors.ChallengeNotFound, "Unknown challenge: %s", cid)
		}
		return Window{}, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "load challenge %s failed: %v", cid, err)
	}
	return Window{Start: c.Start, Stop: c.Stop}, nil
}
