package command

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ctfoj/internal/challenge"
	chrepo "ctfoj/internal/challenge/repository"
	"ctfoj/internal/event"
)

const (
	defaultEventRows    = 20
	defaultPollInterval = 500 * time.Millisecond
	cliIP               = "127.0.0.1"
)

// Registry returns all CLI commands keyed by "group action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Group:   "flags",
			Action:  "create",
			Summary: "Create a flag for a challenge",
			Fields: []Field{
				{Name: "challenge", Aliases: []string{"cid"}, Prompt: "challenge", Required: true},
				{Name: "token", Prompt: "token (empty for random)"},
				{Name: "max", Prompt: "max submissions", Type: FieldInt},
			},
			Run: createFlag,
		},
		{
			Group:   "flags",
			Action:  "limit",
			Summary: "Set the submission limit of a flag, or freeze it at its current count",
			Fields: []Field{
				{Name: "flag", Aliases: []string{"fid"}, Prompt: "flag", Required: true},
				{Name: "max", Prompt: "max submissions", Type: FieldInt},
			},
			Run: limitFlag,
		},
		{
			Group:   "flags",
			Action:  "list",
			Summary: "List flags with their usage",
			Fields: []Field{
				{Name: "challenge", Aliases: []string{"cid"}, Prompt: "challenge"},
			},
			Run: listFlags,
		},
		{
			Group:   "flags",
			Action:  "submissions",
			Summary: "List the submissions of a flag",
			Fields: []Field{
				{Name: "flag", Aliases: []string{"fid"}, Prompt: "flag", Required: true},
			},
			Run: listSubmissions,
		},
		{
			Group:   "flags",
			Action:  "submit",
			Summary: "Submit a flag on behalf of a user",
			Fields: []Field{
				{Name: "flag", Aliases: []string{"fid"}, Prompt: "flag", Required: true},
				{Name: "user", Aliases: []string{"uid"}, Prompt: "user", Required: true},
				{Name: "force", Type: FieldBool},
			},
			Run: submitFlag,
		},
		{
			Group:   "flags",
			Action:  "revoke",
			Summary: "Revoke the submissions of a flag, for one user only if given",
			Fields: []Field{
				{Name: "flag", Aliases: []string{"fid"}, Prompt: "flag", Required: true},
				{Name: "user", Aliases: []string{"uid"}, Prompt: "user"},
			},
			Confirm: func(params Params) string {
				if params.Get("user") != "" {
					return ""
				}
				return fmt.Sprintf("Revoke all submissions of %s?", params.Get("flag"))
			},
			Run: revokeFlag,
		},
		{
			Group:   "flags",
			Action:  "delete",
			Summary: "Delete a flag without submissions",
			Fields: []Field{
				{Name: "flag", Aliases: []string{"fid"}, Prompt: "flag", Required: true},
			},
			Run: deleteFlag,
		},
		{
			Group:   "users",
			Action:  "add",
			Summary: "Create a user",
			Fields: []Field{
				{Name: "user", Aliases: []string{"uid"}, Prompt: "user", Required: true},
				{Name: "password", Prompt: "password", Required: true, Secret: true},
			},
			Run: addUser,
		},
		{
			Group:   "users",
			Action:  "passwd",
			Summary: "Change the password of a user",
			Fields: []Field{
				{Name: "user", Aliases: []string{"uid"}, Prompt: "user", Required: true},
				{Name: "password", Prompt: "password", Required: true, Secret: true},
			},
			Run: setPassword,
		},
		{
			Group:   "teams",
			Action:  "join",
			Summary: "Move a user into a team",
			Fields: []Field{
				{Name: "user", Aliases: []string{"uid"}, Prompt: "user", Required: true},
				{Name: "team", Aliases: []string{"tid"}, Prompt: "team", Required: true},
			},
			Run: joinTeam,
		},
		{
			Group:   "teams",
			Action:  "leave",
			Summary: "Remove a user from their team",
			Fields: []Field{
				{Name: "user", Aliases: []string{"uid"}, Prompt: "user", Required: true},
			},
			Run: leaveTeam,
		},
		{
			Group:   "challenges",
			Action:  "add",
			Summary: "Add a challenge or change its activity window",
			Fields: []Field{
				{Name: "challenge", Aliases: []string{"cid"}, Prompt: "challenge", Required: true},
				{Name: "start", Prompt: "start (UTC)", Type: FieldTime},
				{Name: "stop", Prompt: "stop (UTC)", Type: FieldTime},
				{Name: "team", Type: FieldBool},
			},
			Run: addChallenge,
		},
		{
			Group:   "challenges",
			Action:  "list",
			Summary: "List stored challenges",
			Run:     listChallenges,
		},
		{
			Group:   "challenges",
			Action:  "classes",
			Summary: "List available challenge classes",
			Run:     listClasses,
		},
		{
			Group:   "events",
			Action:  "tail",
			Summary: "Print recent events and optionally follow new ones",
			Fields: []Field{
				{Name: "type", Prompt: "type prefix"},
				{Name: "challenge", Aliases: []string{"cid"}, Prompt: "challenge"},
				{Name: "user", Aliases: []string{"uid"}, Prompt: "user"},
				{Name: "rows", Type: FieldInt},
				{Name: "watch", Type: FieldBool},
			},
			Run: tailEvents,
		},
		{
			Group:   "scoreboard",
			Action:  "rebuild",
			Summary: "Rebuild the scoreboard from recorded solves",
			Run:     rebuildScoreboard,
		},
	}

	registry := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		registry[cmd.Key()] = cmd
	}
	return registry
}

// Keys returns the sorted command keys of registry.
func Keys(registry map[string]Command) []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func createFlag(ctx context.Context, env *Env, params Params) error {
	max, ok, err := params.Int("max")
	if err != nil {
		return err
	}
	if !ok {
		max = challenge.StaticFlagMaxSubmissions
	}
	fid, err := env.Flags.Issue(ctx, params.Get("challenge"), max, params.Get("token"))
	if err != nil {
		return err
	}
	env.printf("Created: %s (valid for %d submissions)", fid, max)
	return nil
}

func limitFlag(ctx context.Context, env *Env, params Params) error {
	max, ok, err := params.Int("max")
	if err != nil {
		return err
	}
	var limit *int
	if ok {
		limit = &max
	}
	effective, err := env.Flags.SetLimit(ctx, params.Get("flag"), limit)
	if err != nil {
		return err
	}
	env.printf("%s restricted to %d submissions", params.Get("flag"), effective)
	return nil
}

func listFlags(ctx context.Context, env *Env, params Params) error {
	flags, err := env.Flags.List(ctx, params.Get("challenge"))
	if err != nil {
		return err
	}
	t := newTable(env.Out, "CID", "FID", "SUBMISSIONS", "MAX")
	for _, f := range flags {
		t.row(f.CID, f.FID, f.Submissions, f.MaxSubmissions)
	}
	return t.flush()
}

func listSubmissions(ctx context.Context, env *Env, params Params) error {
	subs, err := env.Flags.Submissions(ctx, params.Get("flag"))
	if err != nil {
		return err
	}
	t := newTable(env.Out, "TIME", "UID")
	for _, s := range subs {
		t.row(formatTime(s.Timestamp), s.UID)
	}
	return t.flush()
}

func submitFlag(ctx context.Context, env *Env, params Params) error {
	user := params.Get("user")
	cid, err := env.Flags.Redeem(ctx, params.Get("flag"), user, cliIP, params.Bool("force"))
	if err != nil {
		return err
	}
	env.printf("Solved %s for %s.", cid, user)
	return nil
}

func revokeFlag(ctx context.Context, env *Env, params Params) error {
	fid, user := params.Get("flag"), params.Get("user")
	n, err := env.Flags.Revoke(ctx, fid, user)
	if err != nil {
		return err
	}
	if n == 0 {
		if user != "" {
			return fmt.Errorf("%s did not submit %s", user, fid)
		}
		return fmt.Errorf("no submissions for %s", fid)
	}
	env.printf("Revoked %d submission(s) of %s.", n, fid)
	return nil
}

func deleteFlag(ctx context.Context, env *Env, params Params) error {
	if err := env.Flags.Delete(ctx, params.Get("flag")); err != nil {
		return err
	}
	env.printf("Deleted %s.", params.Get("flag"))
	return nil
}

func addUser(ctx context.Context, env *Env, params Params) error {
	if err := env.Users.AddUser(ctx, params.Get("user"), params.Get("password")); err != nil {
		return err
	}
	env.printf("Created user %s.", params.Get("user"))
	return nil
}

func setPassword(ctx context.Context, env *Env, params Params) error {
	if err := env.Users.SetPassword(ctx, params.Get("user"), params.Get("password")); err != nil {
		return err
	}
	env.printf("Password of %s changed.", params.Get("user"))
	return nil
}

func joinTeam(ctx context.Context, env *Env, params Params) error {
	if err := env.Users.JoinTeam(ctx, params.Get("user"), params.Get("team")); err != nil {
		return err
	}
	env.printf("%s joined %s.", params.Get("user"), params.Get("team"))
	return nil
}

func leaveTeam(ctx context.Context, env *Env, params Params) error {
	if err := env.Users.JoinTeam(ctx, params.Get("user"), ""); err != nil {
		return err
	}
	env.printf("%s left their team.", params.Get("user"))
	return nil
}

// addChallenge stores cid after checking that it names a known class.
// Start defaults to now and stop to start plus one year.
func addChallenge(ctx context.Context, env *Env, params Params) error {
	cid := params.Get("challenge")
	class, _, err := challenge.ParseID(cid)
	if err != nil {
		return err
	}
	if env.Classes != nil && !contains(env.Classes.Names(), class) {
		return fmt.Errorf("unknown challenge class %q", class)
	}
	start, ok, err := params.Time("start")
	if err != nil {
		return err
	}
	if !ok {
		start = env.now().UTC().Truncate(time.Second)
	}
	stop, ok, err := params.Time("stop")
	if err != nil {
		return err
	}
	if !ok {
		stop = start.AddDate(1, 0, 0)
	}
	if !stop.After(start) {
		return errors.New("stop must be after start")
	}
	c := chrepo.Challenge{CID: cid, Start: start, Stop: stop, Team: params.Bool("team")}
	if err := env.Challenges.Upsert(ctx, nil, c); err != nil {
		return err
	}
	env.printf("Stored %s (%s - %s).", cid, formatTime(start), formatTime(stop))
	return nil
}

func listChallenges(ctx context.Context, env *Env, params Params) error {
	list, err := env.Challenges.List(ctx)
	if err != nil {
		return err
	}
	t := newTable(env.Out, "CID", "START", "STOP", "TEAM")
	for _, c := range list {
		t.row(c.CID, formatTime(c.Start), formatTime(c.Stop), c.Team)
	}
	return t.flush()
}

func listClasses(ctx context.Context, env *Env, params Params) error {
	if env.Classes == nil {
		return errors.New("no challenge classes registered")
	}
	for _, name := range env.Classes.Names() {
		env.printf("%s", name)
	}
	return nil
}

// tailEvents prints the latest rows events oldest first. With watch set it
// keeps polling for newer events until ctx ends.
func tailEvents(ctx context.Context, env *Env, params Params) error {
	rows, ok, err := params.Int("rows")
	if err != nil {
		return err
	}
	if !ok || rows <= 0 {
		rows = defaultEventRows
	}
	filter := event.Filter{
		TypePrefix: params.Get("type"),
		CID:        params.Get("challenge"),
		UID:        params.Get("user"),
		Limit:      rows,
	}
	interval := env.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	for {
		events, err := env.Events.Recent(ctx, filter)
		if err != nil {
			return err
		}
		for i := len(events) - 1; i >= 0; i-- {
			env.printf("%s", FormatEvent(events[i]))
			if events[i].ID > filter.AfterID {
				filter.AfterID = events[i].ID
			}
		}
		if !params.Bool("watch") {
			return nil
		}
		filter.Limit = 100
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

func rebuildScoreboard(ctx context.Context, env *Env, params Params) error {
	if env.Scoreboard == nil {
		return errors.New("scoreboard unavailable")
	}
	n, err := env.Scoreboard.RebuildScoreboard(ctx)
	if err != nil {
		return err
	}
	env.printf("Scoreboard rebuilt from %d solves.", n)
	return nil
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
