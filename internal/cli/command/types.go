package command

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	chrepo "ctfoj/internal/challenge/repository"
	"ctfoj/internal/common/db"
	"ctfoj/internal/event"
	flagrepo "ctfoj/internal/flag/repository"
)

// FieldType describes input type.
type FieldType int

const (
	FieldString FieldType = iota
	FieldInt
	FieldBool
	FieldTime
)

// Field defines a command argument. Arguments are given positionally in
// field order or as name=value.
type Field struct {
	Name     string
	Aliases  []string
	Prompt   string
	Type     FieldType
	Required bool
	// Secret fields are prompted without echo.
	Secret bool
}

// Handler runs a command against the engine services in env.
type Handler func(ctx context.Context, env *Env, params Params) error

// Command defines a CLI command binding.
type Command struct {
	Group   string
	Action  string
	Summary string
	Fields  []Field
	// Confirm, when set, is asked before Run; it may reference params by
	// name as {name}.
	Confirm func(params Params) string
	Run     Handler
}

// Key returns the lookup key of the command.
func (c Command) Key() string {
	return c.Group + " " + c.Action
}

// FlagAdmin is the flag administration surface.
type FlagAdmin interface {
	Issue(ctx context.Context, cid string, maxSubmissions int, token string) (string, error)
	SetLimit(ctx context.Context, fid string, limit *int) (int, error)
	List(ctx context.Context, cid string) ([]flagrepo.Usage, error)
	Submissions(ctx context.Context, fid string) ([]flagrepo.Submission, error)
	Redeem(ctx context.Context, token, uid, ip string, force bool) (string, error)
	Revoke(ctx context.Context, fid, uid string) (int64, error)
	Delete(ctx context.Context, fid string) error
}

// UserAdmin manages accounts and team membership.
type UserAdmin interface {
	AddUser(ctx context.Context, uid, password string) error
	SetPassword(ctx context.Context, uid, password string) error
	JoinTeam(ctx context.Context, uid, tid string) error
}

// ChallengeStore persists challenge ids and windows.
type ChallengeStore interface {
	Upsert(ctx context.Context, tx db.Transaction, c chrepo.Challenge) error
	List(ctx context.Context) ([]chrepo.Challenge, error)
}

// ChallengeParser validates challenge ids against registered classes.
type ChallengeParser interface {
	Names() []string
}

// EventSource lists audit events.
type EventSource interface {
	Recent(ctx context.Context, filter event.Filter) ([]event.Event, error)
}

// ScoreboardAdmin rebuilds standings.
type ScoreboardAdmin interface {
	RebuildScoreboard(ctx context.Context) (int, error)
}

// Env carries the services commands operate on.
type Env struct {
	Flags      FlagAdmin
	Users      UserAdmin
	Challenges ChallengeStore
	Classes    ChallengeParser
	Events     EventSource
	Scoreboard ScoreboardAdmin
	Out        io.Writer
	// Now defaults to time.Now.
	Now func() time.Time
	// PollInterval is the refresh period of events tail.
	PollInterval time.Duration
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Env) printf(format string, args ...interface{}) {
	fmt.Fprintf(e.Out, format+"\n", args...)
}

// Params holds parsed input params.
type Params map[string]string

func (p Params) Get(key string) string {
	return p[strings.ToLower(key)]
}

func (p Params) Set(key, value string) {
	p[strings.ToLower(key)] = value
}

func (p Params) Has(key string) bool {
	_, ok := p[strings.ToLower(key)]
	return ok
}

func (p Params) Canonicalize(fields []Field) {
	for _, field := range fields {
		for _, alias := range field.Aliases {
			aliasKey := strings.ToLower(alias)
			if value, ok := p[aliasKey]; ok {
				p[strings.ToLower(field.Name)] = value
				delete(p, aliasKey)
			}
		}
	}
}

// Int returns an integer param and whether it was set.
func (p Params) Int(key string) (int, bool, error) {
	raw := strings.TrimSpace(p.Get(key))
	if raw == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, true, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, true, nil
}

// Bool reports whether a boolean param is set to a true value.
func (p Params) Bool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(p.Get(key)))
	return err == nil && v
}

// Time parses a time param as RFC 3339 or "2006-01-02 15:04" in UTC.
func (p Params) Time(key string) (time.Time, bool, error) {
	raw := strings.TrimSpace(p.Get(key))
	if raw == "" {
		return time.Time{}, false, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, true, fmt.Errorf("invalid %s: %q", key, raw)
}

// Parse maps tokens onto fields. name=value tokens set the named field,
// the remaining tokens fill unset fields in order.
func Parse(fields []Field, tokens []string) (Params, error) {
	params := Params{}
	var positional []string
	for _, token := range tokens {
		if name, value, ok := strings.Cut(token, "="); ok && knownField(fields, name) {
			params.Set(name, value)
			continue
		}
		positional = append(positional, token)
	}
	params.Canonicalize(fields)
	for _, field := range fields {
		if len(positional) == 0 {
			break
		}
		if params.Has(field.Name) {
			continue
		}
		params.Set(field.Name, positional[0])
		positional = positional[1:]
	}
	if len(positional) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(positional, " "))
	}
	return params, nil
}

// Missing lists required fields without a value.
func Missing(fields []Field, params Params) []Field {
	var missing []Field
	for _, field := range fields {
		if field.Required && strings.TrimSpace(params.Get(field.Name)) == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

func knownField(fields []Field, name string) bool {
	name = strings.ToLower(name)
	for _, field := range fields {
		if strings.ToLower(field.Name) == name {
			return true
		}
		for _, alias := range field.Aliases {
			if strings.ToLower(alias) == name {
				return true
			}
		}
	}
	return false
}
