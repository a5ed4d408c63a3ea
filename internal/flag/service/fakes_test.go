package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"ctfoj/internal/challenge"
	"ctfoj/internal/common/db"
	"ctfoj/internal/event"
	"ctfoj/internal/flag/repository"
)

// memoryDB runs transactions without any isolation, so concurrent
// redemptions only stay consistent through the service's own locking.
type memoryDB struct{}

func (m *memoryDB) Current() db.Database { return m }

func (m *memoryDB) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errors.New("not supported")
}

func (m *memoryDB) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row {
	return nil
}

func (m *memoryDB) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return nil, errors.New("not supported")
}

func (m *memoryDB) Transaction(ctx context.Context, fn func(tx db.Transaction) error) error {
	return fn(memoryTx{})
}

func (m *memoryDB) Ping(ctx context.Context) error { return nil }
func (m *memoryDB) Close() error                   { return nil }

type memoryTx struct{}

func (memoryTx) Query(ctx context.Context, query string, args ...interface{}) (db.Rows, error) {
	return nil, errors.New("not supported")
}
func (memoryTx) QueryRow(ctx context.Context, query string, args ...interface{}) db.Row { return nil }
func (memoryTx) Exec(ctx context.Context, query string, args ...interface{}) (db.Result, error) {
	return nil, errors.New("not supported")
}
func (memoryTx) Commit() error   { return nil }
func (memoryTx) Rollback() error { return nil }

// store backs the flag and submission fakes.
type store struct {
	mu     sync.Mutex
	flags  map[string]repository.Flag
	team   map[string]bool
	subs   []repository.Submission
	teams  map[string]string
	nextID int64
}

func newStore() *store {
	return &store{
		flags: make(map[string]repository.Flag),
		team:  make(map[string]bool),
		teams: make(map[string]string),
	}
}

type memoryFlags struct{ s *store }

func (r memoryFlags) Upsert(ctx context.Context, tx db.Transaction, f repository.Flag) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.flags[f.FID] = f
	return nil
}

func (r memoryFlags) Get(ctx context.Context, tx db.Transaction, fid string) (repository.Flag, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.flags[fid]
	if !ok {
		return repository.Flag{}, repository.ErrFlagNotFound
	}
	return f, nil
}

func (r memoryFlags) Resolve(ctx context.Context, tx db.Transaction, raw, normalized string) (repository.Resolved, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, fid := range []string{raw, normalized} {
		if f, ok := r.s.flags[fid]; ok {
			return repository.Resolved{Flag: f, Team: r.s.team[f.CID]}, nil
		}
	}
	return repository.Resolved{}, repository.ErrFlagNotFound
}

func (r memoryFlags) LockForUpdate(ctx context.Context, tx db.Transaction, fid string) (repository.Flag, error) {
	return r.Get(ctx, tx, fid)
}

func (r memoryFlags) SetLimit(ctx context.Context, tx db.Transaction, fid string, maxSubmissions int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	f, ok := r.s.flags[fid]
	if !ok {
		return repository.ErrFlagNotFound
	}
	f.MaxSubmissions = maxSubmissions
	r.s.flags[fid] = f
	return nil
}

func (r memoryFlags) List(ctx context.Context, cid string) ([]repository.Usage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []repository.Usage
	for _, f := range r.s.flags {
		if cid != "" && f.CID != cid {
			continue
		}
		u := repository.Usage{Flag: f}
		for _, sub := range r.s.subs {
			if sub.FID == f.FID {
				u.Submissions++
			}
		}
		out = append(out, u)
	}
	return out, nil
}

func (r memoryFlags) Delete(ctx context.Context, tx db.Transaction, fid string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.flags, fid)
	return nil
}

type memorySubmissions struct{ s *store }

func (r memorySubmissions) Insert(ctx context.Context, tx db.Transaction, sub *repository.Submission) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextID++
	sub.ID = r.s.nextID
	r.s.subs = append(r.s.subs, *sub)
	return sub.ID, nil
}

func (r memorySubmissions) CountByFlag(ctx context.Context, tx db.Transaction, fid string) (int, error) {
	defer yield()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, sub := range r.s.subs {
		if sub.FID == fid {
			n++
		}
	}
	return n, nil
}

func (r memorySubmissions) HasSolved(ctx context.Context, tx db.Transaction, uid, cid string, team bool) (bool, error) {
	defer yield()
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tid, inTeam := r.s.teams[uid]
	for _, sub := range r.s.subs {
		if r.s.flags[sub.FID].CID != cid {
			continue
		}
		if sub.UID == uid {
			return true, nil
		}
		if team && inTeam && r.s.teams[sub.UID] == tid {
			return true, nil
		}
	}
	return false, nil
}

func (r memorySubmissions) ListByFlag(ctx context.Context, fid string) ([]repository.Submission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []repository.Submission
	for _, sub := range r.s.subs {
		if sub.FID == fid {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r memorySubmissions) Delete(ctx context.Context, tx db.Transaction, fid, uid string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.subs[:0]
	var removed int64
	for _, sub := range r.s.subs {
		if sub.FID == fid && (uid == "" || sub.UID == uid) {
			removed++
			continue
		}
		kept = append(kept, sub)
	}
	r.s.subs = kept
	return removed, nil
}

func (r memorySubmissions) ListSolves(ctx context.Context) ([]repository.Solve, error) {
	return nil, nil
}

type userSet map[string]bool

func (u userSet) Exists(ctx context.Context, uid string) (bool, error) {
	return u[uid], nil
}

type windowMap map[string]challenge.Window

func (w windowMap) ActivityWindow(ctx context.Context, cid string) (challenge.Window, error) {
	window, ok := w[cid]
	if !ok {
		return challenge.Window{}, errors.New("unknown challenge")
	}
	return window, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []event.Event
}

func (l *eventLog) Record(ctx context.Context, tx db.Transaction, ev event.Event) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	return int64(len(l.events)), nil
}

func (l *eventLog) Log(ctx context.Context, ip, typ, data, cid, uid string) int64 {
	id, _ := l.Record(ctx, nil, event.Event{IP: ip, Type: typ, Data: data, CID: cid, UID: uid})
	return id
}

func (l *eventLog) types() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Type
	}
	return out
}

func (l *eventLog) count(typ string) int {
	n := 0
	for _, t := range l.types() {
		if t == typ {
			n++
		}
	}
	return n
}

type publisher struct {
	mu     sync.Mutex
	solves []event.Solved
}

func (p *publisher) Publish(ctx context.Context, ev event.Solved) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.solves = append(p.solves, ev)
}

func (p *publisher) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.solves)
}

// yield widens the gap between a read and the insert that depends on it.
func yield() { time.Sleep(time.Millisecond) }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
