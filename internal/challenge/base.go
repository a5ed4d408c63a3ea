package challenge

import (
	"context"
	"errors"

	"ctfoj/internal/event"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Env is handed to a Factory when a challenge id is resolved.
type Env struct {
	CID     string
	Args    string
	Runtime Runtime

	window *lazyWindow
}

// Base implements the optional parts of Definition and gives challenge
// classes access to flags, events and their data store.
type Base struct {
	env Env
}

// NewBase builds the embeddable base for env.
func NewBase(env Env) Base {
	if env.window == nil {
		env.window = newLazyWindow(env.CID, env.Runtime.Windows)
	}
	return Base{env: env}
}

func (b *Base) ID() string { return b.env.CID }

// Args returns the text between the parentheses of the challenge id.
func (b *Base) Args() string { return b.env.Args }

func (b *Base) Runtime() Runtime { return b.env.Runtime }

func (b *Base) Description(ctx context.Context, user string, solved bool) (string, error) {
	return "", nil
}

func (b *Base) Visible(ctx context.Context, user string) (bool, error) {
	return true, nil
}

func (b *Base) Start(ctx context.Context) error { return nil }

func (b *Base) Stop(ctx context.Context) error { return nil }

func (b *Base) HandleGet(ctx context.Context, user string, req *Request) (*Response, error) {
	return NotFound(), nil
}

func (b *Base) HandlePost(ctx context.Context, user string, req *Request) (*Response, error) {
	return NotFound(), nil
}

// Window returns the cached activity window.
func (b *Base) Window(ctx context.Context) (Window, error) {
	return b.env.window.get(ctx)
}

// Active reports whether now lies in the activity window. A window that
// cannot be loaded counts as inactive.
func (b *Base) Active(ctx context.Context) bool {
	w, err := b.Window(ctx)
	if err != nil {
		logger.Warn(ctx, "load activity window failed", zap.String("cid", b.env.CID), zap.Error(err))
		return false
	}
	return w.Contains(b.env.Runtime.now())
}

// Log records an event attributed to this challenge.
func (b *Base) Log(ctx context.Context, ip, typ, data, uid string) int64 {
	if b.env.Runtime.Events == nil {
		return 0
	}
	return b.env.Runtime.Events.Log(ctx, ip, typ, data, b.env.CID, uid)
}

// FlagOptions tunes IssueAndLogFlag.
type FlagOptions struct {
	// MaxSubmissions defaults to 1.
	MaxSubmissions int
	// Token fixes the flag value; empty means random.
	Token string
	// CID issues the flag for another challenge, e.g. a later stage.
	CID string
}

// IssueAndLogFlag creates a flag for this challenge and records the
// creation. While the challenge is inactive it records flag-inactive and
// returns InactiveFlag instead.
func (b *Base) IssueAndLogFlag(ctx context.Context, ip, user string, opts FlagOptions) (string, error) {
	if b.env.Runtime.Flags == nil {
		return "", errors.New("flag issuer is nil")
	}
	if !b.Active(ctx) {
		b.Log(ctx, ip, event.TypeFlagInactive, "", user)
		return InactiveFlag, nil
	}
	cid := opts.CID
	if cid == "" {
		cid = b.env.CID
	}
	limit := opts.MaxSubmissions
	if limit <= 0 {
		limit = 1
	}
	return b.env.Runtime.Flags.IssueAndLog(ctx, ip, user, cid, limit, opts.Token)
}

// GetData reads a value persisted for this challenge.
func (b *Base) GetData(ctx context.Context, key string, out interface{}) (bool, error) {
	if b.env.Runtime.Data == nil {
		return false, errors.New("data store is nil")
	}
	return b.env.Runtime.Data.GetData(ctx, b.env.CID, key, out)
}

// SetData persists a value for this challenge.
func (b *Base) SetData(ctx context.Context, key string, value interface{}) error {
	if b.env.Runtime.Data == nil {
		return errors.New("data store is nil")
	}
	return b.env.Runtime.Data.SetData(ctx, b.env.CID, key, value)
}
