package challenge_test

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"ctfoj/internal/challenge"
	"ctfoj/internal/challenge/repository"
	"ctfoj/internal/common/db"
)

var testNow = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

type memoryChallenges struct {
	mu   sync.Mutex
	rows map[string]repository.Overview
}

func newMemoryChallenges(rows ...repository.Overview) *memoryChallenges {
	m := &memoryChallenges{rows: make(map[string]repository.Overview)}
	for _, row := range rows {
		m.rows[row.CID] = row
	}
	return m
}

func openRow(cid string) repository.Overview {
	return repository.Overview{Challenge: repository.Challenge{
		CID:   cid,
		Start: testNow.Add(-time.Hour),
		Stop:  testNow.Add(time.Hour),
	}}
}

func (m *memoryChallenges) Upsert(ctx context.Context, tx db.Transaction, c repository.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[c.CID] = repository.Overview{Challenge: c}
	return nil
}

func (m *memoryChallenges) Get(ctx context.Context, tx db.Transaction, cid string) (repository.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[cid]
	if !ok {
		return repository.Challenge{}, repository.ErrChallengeNotFound
	}
	return row.Challenge, nil
}

func (m *memoryChallenges) List(ctx context.Context) ([]repository.Challenge, error) {
	var out []repository.Challenge
	for _, row := range m.overview() {
		out = append(out, row.Challenge)
	}
	return out, nil
}

func (m *memoryChallenges) ListIDs(ctx context.Context) ([]string, error) {
	var out []string
	for _, row := range m.overview() {
		out = append(out, row.CID)
	}
	return out, nil
}

func (m *memoryChallenges) Overview(ctx context.Context, uid string, now time.Time) ([]repository.Overview, error) {
	var out []repository.Overview
	for _, row := range m.overview() {
		if !row.Start.After(now) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryChallenges) overview() []repository.Overview {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]repository.Overview, 0, len(m.rows))
	for _, row := range m.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CID < out[j].CID })
	return out
}

type issuedFlag struct {
	CID   string
	Max   int
	Token string
	UID   string
}

type recordingIssuer struct {
	mu     sync.Mutex
	issued []issuedFlag
	fail   bool
}

func (r *recordingIssuer) Issue(ctx context.Context, cid string, maxSubmissions int, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return "", errors.New("issuer down")
	}
	if token == "" {
		token = "__flag__{random}"
	}
	r.issued = append(r.issued, issuedFlag{CID: cid, Max: maxSubmissions, Token: token})
	return token, nil
}

func (r *recordingIssuer) IssueAndLog(ctx context.Context, ip, uid, cid string, maxSubmissions int, token string) (string, error) {
	fid, err := r.Issue(ctx, cid, maxSubmissions, token)
	if err != nil {
		return "", err
	}
	r.mu.Lock()
	r.issued[len(r.issued)-1].UID = uid
	r.mu.Unlock()
	return fid, nil
}

type loggedEvent struct {
	IP, Type, Data, CID, UID string
}

type eventSink struct {
	mu     sync.Mutex
	events []loggedEvent
}

func (s *eventSink) Log(ctx context.Context, ip, typ, data, cid, uid string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, loggedEvent{IP: ip, Type: typ, Data: data, CID: cid, UID: uid})
	return int64(len(s.events))
}

func (s *eventSink) ofType(typ string) []loggedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []loggedEvent
	for _, ev := range s.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// probe is a configurable challenge class.
type probe struct {
	challenge.Base

	title     string
	startErr  error
	panicOn   bool
	block     chan struct{}
	visible   bool
	descErr   error
	points    *int
	started   chan struct{}
	stopCalls int
	mu        sync.Mutex
}

func (p *probe) Title() string { return p.title }

func (p *probe) Start(ctx context.Context) error {
	if p.started != nil {
		close(p.started)
	}
	if p.panicOn {
		panic("boom")
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.startErr
}

func (p *probe) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopCalls++
	return nil
}

func (p *probe) Visible(ctx context.Context, user string) (bool, error) {
	return p.visible, nil
}

func (p *probe) Description(ctx context.Context, user string, solved bool) (string, error) {
	if p.descErr != nil {
		return "", p.descErr
	}
	if solved {
		return "solved by " + user, nil
	}
	return "about " + p.title, nil
}

func (p *probe) FixedPoints() (int, bool) {
	if p.points == nil {
		return 0, false
	}
	return *p.points, true
}

func (p *probe) HandleGet(ctx context.Context, user string, req *challenge.Request) (*challenge.Response, error) {
	return challenge.Text(http.StatusOK, "hello "+user+req.Path), nil
}

func (p *probe) HandlePost(ctx context.Context, user string, req *challenge.Request) (*challenge.Response, error) {
	return nil, nil
}

func newProbe(env challenge.Env) *probe {
	return &probe{Base: challenge.NewBase(env), title: env.CID, visible: true}
}
