package builtin_test

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"
	"testing"
	"time"

	"ctfoj/internal/builtin"
	"ctfoj/internal/challenge"
	"ctfoj/internal/common/storage"
	"ctfoj/internal/sandbox"

	"github.com/klauspost/compress/zstd"
)

var testNow = time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

type issuedFlag struct {
	CID   string
	Max   int
	Token string
	UID   string
}

type recordingIssuer struct {
	mu     sync.Mutex
	issued []issuedFlag
}

func (r *recordingIssuer) Issue(ctx context.Context, cid string, maxSubmissions int, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == "" {
		token = "__flag__{issued}"
	}
	r.issued = append(r.issued, issuedFlag{CID: cid, Max: maxSubmissions, Token: token})
	return token, nil
}

func (r *recordingIssuer) IssueAndLog(ctx context.Context, ip, uid, cid string, maxSubmissions int, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if token == "" {
		token = "__flag__{issued}"
	}
	r.issued = append(r.issued, issuedFlag{CID: cid, Max: maxSubmissions, Token: token, UID: uid})
	return token, nil
}

func (r *recordingIssuer) all() []issuedFlag {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]issuedFlag(nil), r.issued...)
}

type openWindows struct{}

func (openWindows) Window(ctx context.Context, cid string) (challenge.Window, error) {
	return challenge.Window{Start: testNow.Add(-time.Hour), Stop: testNow.Add(time.Hour)}, nil
}

type eventLog struct {
	mu    sync.Mutex
	types []string
}

func (l *eventLog) Log(ctx context.Context, ip, typ, data, cid, uid string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.types = append(l.types, typ)
	return int64(len(l.types))
}

func (l *eventLog) has(typ string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, t := range l.types {
		if t == typ {
			return true
		}
	}
	return false
}

type teamTable map[string]string

func (t teamTable) TeamOf(ctx context.Context, uid string) (string, bool, error) {
	tid, ok := t[uid]
	return tid, ok, nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	opens   int
}

func (m *memStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	m.opens++
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memStorage) Stat(ctx context.Context, key string) (storage.ObjectStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectStat{}, storage.ErrNotFound
	}
	sum := sha256.Sum256(data)
	return storage.ObjectStat{Key: key, SizeBytes: int64(len(data)), ETag: hex.EncodeToString(sum[:8])}, nil
}

func (m *memStorage) put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

func (m *memStorage) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// dockerRunner answers container engine calls without spawning processes.
type dockerRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *dockerRunner) Run(ctx context.Context, name string, args ...string) (sandbox.Result, error) {
	r.mu.Lock()
	r.calls = append(r.calls, args)
	r.mu.Unlock()
	if args[0] == "run" {
		return sandbox.Result{Stdout: []byte("2\n")}, nil
	}
	return sandbox.Result{}, nil
}

func (r *dockerRunner) last(sub string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.calls) - 1; i >= 0; i-- {
		if r.calls[i][0] == sub {
			return r.calls[i]
		}
	}
	return nil
}

type harness struct {
	registry *challenge.Registry
	flags    *recordingIssuer
	events   *eventLog
	rt       challenge.Runtime
}

func newHarness(t *testing.T, opts builtin.Options) *harness {
	t.Helper()
	h := &harness{registry: challenge.NewRegistry(), flags: &recordingIssuer{}, events: &eventLog{}}
	if err := builtin.RegisterAll(h.registry, opts); err != nil {
		t.Fatalf("register builtins failed: %v", err)
	}
	h.rt = challenge.Runtime{
		Flags:   h.flags,
		Events:  h.events,
		Windows: openWindows{},
		Now:     func() time.Time { return testNow },
	}
	return h
}

func (h *harness) resolve(t *testing.T, cid string) *challenge.Instance {
	t.Helper()
	inst, err := h.registry.Resolve(context.Background(), cid, h.rt)
	if err != nil {
		t.Fatalf("resolve %s failed: %v", cid, err)
	}
	return inst
}

func (h *harness) start(t *testing.T, cid string) *challenge.Instance {
	t.Helper()
	inst := h.resolve(t, cid)
	if err := inst.Start(context.Background()); err != nil {
		t.Fatalf("start %s failed: %v", cid, err)
	}
	t.Cleanup(func() { _ = inst.Stop(context.Background()) })
	return inst
}

type archiveEntry struct {
	name string
	body string
	dir  bool
}

func buildArchive(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("new zstd writer failed: %v", err)
	}
	tw := tar.NewWriter(zw)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0644, Size: int64(len(e.body)), Typeflag: tar.TypeReg}
		if e.dir {
			hdr = &tar.Header{Name: e.name, Mode: 0755, Typeflag: tar.TypeDir}
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header failed: %v", err)
		}
		if !e.dir {
			if _, err := tw.Write([]byte(e.body)); err != nil {
				t.Fatalf("write tar body failed: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar failed: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zstd failed: %v", err)
	}
	return buf.Bytes()
}
