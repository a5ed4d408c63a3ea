package sandbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"ctfoj/internal/common/limiter"
	appErr "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultMaxConcurrent = 5
	DefaultTimeout       = 10 * time.Second

	defaultBinary           = "docker"
	defaultKillTimeout      = 10 * time.Second
	defaultProgressInterval = time.Second
	containerPrefix         = "r8_"
)

// DefaultIsolationArgs cut the container off the network, cap memory with
// swap disabled, lower its CPU and block IO weight and drop all privileges.
var DefaultIsolationArgs = []string{
	"--network", "none",
	"--memory", "512m",
	"--memory-swap", "512m",
	"--kernel-memory", "128m",
	"--cpu-shares", "2",
	"--blkio-weight", "10",
	"--cap-drop", "all",
	"--user", "nobody",
}

// Config tunes the executor.
type Config struct {
	Binary           string        `yaml:"binary"`
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	Timeout          time.Duration `yaml:"timeout"`
	KillTimeout      time.Duration `yaml:"killTimeout"`
	ProgressInterval time.Duration `yaml:"progressInterval"`
	IsolationArgs    []string      `yaml:"isolationArgs"`
}

func (c *Config) applyDefaults() {
	if c.Binary == "" {
		c.Binary = defaultBinary
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.KillTimeout <= 0 {
		c.KillTimeout = defaultKillTimeout
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	if c.IsolationArgs == nil {
		c.IsolationArgs = DefaultIsolationArgs
	}
}

// Executor runs commands in disposable containers. One executor is shared
// by every challenge so admission is bounded process wide.
type Executor struct {
	cfg     Config
	runner  Runner
	limiter *limiter.TokenLimiter

	mu     sync.Mutex
	active map[string]struct{}
	kills  sync.WaitGroup
}

// NewExecutor builds an executor. A nil runner spawns real processes.
func NewExecutor(cfg Config, runner Runner) *Executor {
	cfg.applyDefaults()
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Executor{
		cfg:     cfg,
		runner:  runner,
		limiter: limiter.NewTokenLimiter(cfg.MaxConcurrent),
		active:  make(map[string]struct{}),
	}
}

// Run executes args in img on behalf of identity and returns the trimmed
// stdout. Images that are not set up yet fail at once. A second run by the
// same identity is rejected while the first is outstanding; runs beyond the
// concurrency limit wait for a slot.
func (e *Executor) Run(ctx context.Context, img *Image, identity string, args ...string) (string, error) {
	if img == nil || !img.Ready() {
		return "", appErr.New(appErr.SandboxNotReady)
	}
	if !e.enter(identity) {
		return "", appErr.New(appErr.AdmissionRejected)
	}
	defer e.leave(identity)

	if err := e.limiter.Acquire(ctx); err != nil {
		return "", appErr.Wrapf(err, appErr.Timeout, "wait for sandbox slot: %v", err)
	}
	defer e.limiter.Release()

	return e.RunUnlimited(ctx, img, args...)
}

// RunUnlimited executes args in img without admission control.
func (e *Executor) RunUnlimited(ctx context.Context, img *Image, args ...string) (string, error) {
	if img == nil || !img.Ready() {
		return "", appErr.New(appErr.SandboxNotReady)
	}
	name, err := containerName()
	if err != nil {
		return "", appErr.InternalError(err)
	}
	cmd := make([]string, 0, 4+len(e.cfg.IsolationArgs)+1+len(args))
	cmd = append(cmd, "run", "--rm", "--name", name)
	cmd = append(cmd, e.cfg.IsolationArgs...)
	cmd = append(cmd, img.Tag())
	cmd = append(cmd, args...)

	ctx = logger.WithChallenge(ctx, img.cid)
	logger.Info(ctx, "sandbox run", zap.String("container", name), zap.Strings("args", args))
	started := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	res, err := e.exec(runCtx, cmd...)
	if err != nil {
		if runCtx.Err() != nil {
			e.killAsync(ctx, name)
			if ctx.Err() == nil {
				logger.Warn(ctx, "sandbox run timed out", zap.String("container", name), zap.Duration("timeout", e.cfg.Timeout))
				return "", timeoutError(append([]string{e.cfg.Binary}, cmd...))
			}
			return "", appErr.Wrapf(ctx.Err(), appErr.Timeout, "sandbox run canceled: %v", ctx.Err())
		}
		return "", err
	}
	logger.Info(ctx, "sandbox run finished", zap.String("container", name), zap.Duration("elapsed", time.Since(started)))
	return strings.TrimSpace(string(res.Stdout)), nil
}

// Active reports how many identities have a run outstanding.
func (e *Executor) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Executor) enter(identity string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[identity]; busy {
		return false
	}
	e.active[identity] = struct{}{}
	return true
}

func (e *Executor) leave(identity string) {
	e.mu.Lock()
	delete(e.active, identity)
	e.mu.Unlock()
}

// exec runs one engine command while a ticker logs progress. Non-zero exits
// become SandboxExecution errors.
func (e *Executor) exec(ctx context.Context, args ...string) (Result, error) {
	stop := e.progress(ctx, args)
	defer stop()

	full := append([]string{e.cfg.Binary}, args...)
	res, err := e.runner.Run(ctx, e.cfg.Binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return res, err
		}
		return res, appErr.Wrapf(err, appErr.SandboxExecution, "Execution error\n[command]\n%s\n%v", quoteCommand(full), err).
			WithDetail("cmd", quoteCommand(full))
	}
	if res.ExitCode != 0 {
		return res, executionError(full, res)
	}
	return res, nil
}

// Wait blocks until the kills of timed out containers have finished.
func (e *Executor) Wait() {
	e.kills.Wait()
}

func (e *Executor) killAsync(ctx context.Context, name string) {
	e.kills.Add(1)
	go func() {
		defer e.kills.Done()
		_ = e.kill(ctx, name)
	}()
}

// kill removes a container by name. Containers that already exited count
// as killed.
func (e *Executor) kill(ctx context.Context, name string) error {
	killCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.KillTimeout)
	defer cancel()
	_, err := e.exec(killCtx, "kill", name)
	switch {
	case err == nil:
		logger.Info(ctx, "sandbox container killed", zap.String("container", name))
	case containerGone(err):
		logger.Debug(ctx, "sandbox container already gone", zap.String("container", name))
		return nil
	default:
		logger.Error(ctx, "kill sandbox container failed", zap.String("container", name), zap.Error(err))
	}
	return err
}

func (e *Executor) progress(ctx context.Context, args []string) func() {
	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(e.cfg.ProgressInterval)
		defer ticker.Stop()
		started := time.Now()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				logger.Debug(tickCtx, "sandbox command running",
					zap.Strings("args", args),
					zap.Duration("elapsed", time.Since(started)),
				)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func containerName() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.New("generate container name failed: " + err.Error())
	}
	return containerPrefix + hex.EncodeToString(buf), nil
}
