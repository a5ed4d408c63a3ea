package challenge

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"ctfoj/internal/challenge/repository"
	"ctfoj/internal/event"
	pkgerrors "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Manager owns every loaded instance and drives their lifecycle.
type Manager struct {
	registry *Registry
	repo     repository.ChallengeRepository
	windows  WindowSource
	events   EventLogger

	mu        sync.RWMutex
	instances map[string]*Instance
}

func NewManager(registry *Registry, repo repository.ChallengeRepository) *Manager {
	m := &Manager{
		registry:  registry,
		repo:      repo,
		instances: make(map[string]*Instance),
	}
	if repo != nil {
		m.windows = NewStoredWindows(repo)
	}
	return m
}

// Load resolves every stored challenge id. The first unresolvable id aborts
// loading; nothing is kept in that case.
func (m *Manager) Load(ctx context.Context, rt Runtime) error {
	if m.repo == nil {
		return pkgerrors.New(pkgerrors.InternalServerError).WithMessage("challenge repository is nil")
	}
	if rt.Windows == nil {
		rt.Windows = m.windows
	}
	m.events = rt.Events
	cids, err := m.repo.ListIDs(ctx)
	if err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list challenges failed: %v", err)
	}
	loaded := make(map[string]*Instance, len(cids))
	for _, cid := range cids {
		inst, err := m.registry.Resolve(ctx, cid, rt)
		if err != nil {
			return err
		}
		loaded[cid] = inst
	}

	m.mu.Lock()
	m.instances = loaded
	m.mu.Unlock()
	logger.Info(ctx, "challenges loaded", zap.Int("count", len(loaded)))
	return nil
}

// Add registers an instance built outside Load.
func (m *Manager) Add(inst *Instance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.instances[inst.ID()]; exists {
		return pkgerrors.Newf(pkgerrors.DuplicateChallenge, "Challenge already loaded: %s", inst.ID())
	}
	m.instances[inst.ID()] = inst
	return nil
}

// Get returns the instance for cid.
func (m *Manager) Get(cid string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.instances[cid]
	return inst, ok
}

// List returns all instances ordered by id.
func (m *Manager) List() []*Instance {
	m.mu.RLock()
	list := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		list = append(list, inst)
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// ActivityWindow returns the cached window of a loaded instance, falling
// back to the store for ids without one, such as derived stage ids.
func (m *Manager) ActivityWindow(ctx context.Context, cid string) (Window, error) {
	if inst, ok := m.Get(cid); ok {
		return inst.Window(ctx)
	}
	if m.windows == nil {
		return Window{}, pkgerrors.Newf(pkgerrors.ChallengeNotFound, "Unknown challenge: %s", cid)
	}
	return m.windows.Window(ctx, cid)
}

// Handle dispatches a request to the instance serving cid. Only running
// instances receive requests.
func (m *Manager) Handle(ctx context.Context, cid, user string, req *Request) (*Response, error) {
	inst, ok := m.Get(cid)
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.ChallengeNotFound, "Unknown challenge: %s", cid)
	}
	if state := inst.State(); state != StateRunning {
		return nil, pkgerrors.Newf(pkgerrors.ServiceUnavailable, "Challenge %s is %s", cid, state)
	}
	ctx = logger.WithChallenge(ctx, cid)
	var (
		resp *Response
		err  error
	)
	switch req.Method {
	case http.MethodGet:
		resp, err = inst.Definition().HandleGet(ctx, user, req)
	case http.MethodPost:
		resp, err = inst.Definition().HandlePost(ctx, user, req)
	default:
		return Text(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed)), nil
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return NotFound(), nil
	}
	return resp, nil
}

// StartAll starts every instance concurrently and waits for all of them.
// Failures are logged and leave the instance Failed.
func (m *Manager) StartAll(ctx context.Context) {
	m.each(ctx, "start", func(ctx context.Context, inst *Instance) error {
		return inst.Start(ctx)
	})
}

// StopAll stops every instance concurrently and waits for all of them.
func (m *Manager) StopAll(ctx context.Context) {
	m.each(ctx, "stop", func(ctx context.Context, inst *Instance) error {
		return inst.Stop(ctx)
	})
}

func (m *Manager) each(ctx context.Context, op string, fn func(context.Context, *Instance) error) {
	instances := m.List()
	started := time.Now()

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			ictx := logger.WithChallenge(ctx, inst.ID())
			if err := fn(ictx, inst); err != nil {
				fields := []zap.Field{zap.String("op", op), zap.Error(err)}
				if e, ok := pkgerrors.As(err); ok {
					fields = append(fields, zap.String("stack", e.Stack))
				}
				logger.Error(ictx, "challenge lifecycle hook failed", fields...)
				if m.events != nil {
					m.events.Log(ictx, "", event.TypeChallengeFail, op+": "+err.Error(), inst.ID(), "")
				}
				return
			}
			logger.Debug(ictx, "challenge lifecycle hook done", zap.String("op", op), zap.String("state", inst.State().String()))
		}(inst)
	}
	wg.Wait()
	logger.Info(ctx, "challenge lifecycle fan-out finished",
		zap.String("op", op),
		zap.Int("count", len(instances)),
		zap.Duration("elapsed", time.Since(started)),
	)
}
