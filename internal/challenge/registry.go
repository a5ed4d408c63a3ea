package challenge

import (
	"context"
	"sort"
	"strings"
	"sync"

	pkgerrors "ctfoj/pkg/errors"
)

// Factory builds a definition for one challenge id.
type Factory func(env Env) (Definition, error)

// Registry maps class names to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a class. Registering the same name twice is a
// configuration error.
func (r *Registry) Register(name string, factory Factory) error {
	if name == "" || strings.ContainsAny(name, "()") {
		return pkgerrors.Newf(pkgerrors.InvalidChallengeID, "Invalid challenge class name: %q", name)
	}
	if factory == nil {
		return pkgerrors.Newf(pkgerrors.InvalidParams, "factory for %s is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return pkgerrors.Newf(pkgerrors.DuplicateChallenge, "Challenge definition already registered: %s", name)
	}
	r.factories[name] = factory
	return nil
}

// MustRegister is Register for init-time wiring; it panics on error.
func (r *Registry) MustRegister(name string, factory Factory) {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
}

// Names lists registered classes in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseID splits a challenge id of the form "Class" or "Class(args)".
// Args span from the first "(" to the last ")".
func ParseID(cid string) (class, args string, err error) {
	lp := strings.Index(cid, "(")
	if lp < 0 {
		class = cid
	} else {
		class = cid[:lp]
		rest := cid[lp+1:]
		if rp := strings.LastIndex(rest, ")"); rp >= 0 {
			args = rest[:rp]
		} else {
			args = rest
		}
	}
	if class == "" {
		return "", "", pkgerrors.Newf(pkgerrors.InvalidChallengeID, "Invalid challenge id: %q", cid)
	}
	return class, args, nil
}

// Resolve instantiates cid. Static flags declared by the definition are
// created before the instance is returned.
func (r *Registry) Resolve(ctx context.Context, cid string, rt Runtime) (*Instance, error) {
	class, args, err := ParseID(cid)
	if err != nil {
		return nil, err
	}
	r.mu.RLock()
	factory, ok := r.factories[class]
	r.mu.RUnlock()
	if !ok {
		return nil, pkgerrors.Newf(pkgerrors.ChallengeDefinitionNotFound, "Challenge definition not found: %s", class)
	}

	env := Env{CID: cid, Args: args, Runtime: rt, window: newLazyWindow(cid, rt.Windows)}
	def, err := factory(env)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.InvalidChallengeID, "instantiate %s failed: %v", cid, err)
	}

	if sf, ok := def.(StaticFlagger); ok {
		if rt.Flags == nil {
			return nil, pkgerrors.Newf(pkgerrors.InternalServerError, "flag issuer is nil, cannot create static flags for %s", cid)
		}
		for _, f := range sf.StaticFlags() {
			target := f.CID
			if target == "" {
				target = cid
			}
			if _, err := rt.Flags.Issue(ctx, target, StaticFlagMaxSubmissions, f.Token); err != nil {
				return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "create static flag for %s failed: %v", target, err)
			}
		}
	}
	return newInstance(cid, def, env.window), nil
}
