package command_test

import (
	"testing"
	"time"

	"ctfoj/internal/cli/command"
)

var flagFields = []command.Field{
	{Name: "flag", Aliases: []string{"fid"}, Required: true},
	{Name: "user", Aliases: []string{"uid"}, Required: true},
	{Name: "force", Type: command.FieldBool},
}

func TestParse(t *testing.T) {
	cases := []struct {
		name   string
		tokens []string
		want   map[string]string
	}{
		{name: "positional", tokens: []string{"flag{x}", "alice"}, want: map[string]string{"flag": "flag{x}", "user": "alice"}},
		{name: "named", tokens: []string{"user=alice", "force=true", "flag{x}"}, want: map[string]string{"flag": "flag{x}", "user": "alice", "force": "true"}},
		{name: "alias", tokens: []string{"UID=bob", "fid=flag{y}"}, want: map[string]string{"flag": "flag{y}", "user": "bob"}},
		{name: "unknown name stays positional", tokens: []string{"a=b"}, want: map[string]string{"flag": "a=b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, err := command.Parse(flagFields, tc.tokens)
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if len(params) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, params)
			}
			for k, v := range tc.want {
				if params.Get(k) != v {
					t.Fatalf("expected %s=%q, got %q", k, v, params.Get(k))
				}
			}
		})
	}

	if _, err := command.Parse(flagFields, []string{"a", "b", "true", "extra"}); err == nil {
		t.Fatalf("expected surplus arguments to be rejected")
	}
}

func TestMissing(t *testing.T) {
	params, err := command.Parse(flagFields, []string{"flag{x}"})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	missing := command.Missing(flagFields, params)
	if len(missing) != 1 || missing[0].Name != "user" {
		t.Fatalf("expected user to be missing, got %+v", missing)
	}
}

func TestParamsConversions(t *testing.T) {
	p := command.Params{}
	p.Set("Max", " 7 ")
	p.Set("bad", "seven")
	p.Set("watch", "yes")
	p.Set("force", "1")
	p.Set("start", "2026-03-01 12:30")
	p.Set("day", "2026-03-02")
	p.Set("broken", "tomorrow")

	if n, ok, err := p.Int("max"); err != nil || !ok || n != 7 {
		t.Fatalf("unexpected int: %d %v %v", n, ok, err)
	}
	if _, ok, err := p.Int("absent"); err != nil || ok {
		t.Fatalf("absent int should be unset")
	}
	if _, _, err := p.Int("bad"); err == nil {
		t.Fatalf("expected invalid int to fail")
	}
	if p.Bool("watch") || !p.Bool("force") {
		t.Fatalf("unexpected bool parsing")
	}
	if ts, ok, err := p.Time("start"); err != nil || !ok || !ts.Equal(time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected time: %v %v %v", ts, ok, err)
	}
	if ts, _, err := p.Time("day"); err != nil || !ts.Equal(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected date: %v %v", ts, err)
	}
	if _, _, err := p.Time("broken"); err == nil {
		t.Fatalf("expected invalid time to fail")
	}
}
