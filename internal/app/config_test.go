package app_test

import (
	"strings"
	"testing"
	"time"

	"ctfoj/internal/app"
	"ctfoj/internal/event"
	"ctfoj/internal/scoreboard"
)

const minimalConfig = `
database:
  dsn: "u:p@tcp(db:3306)/ctf"
redis:
  addr: "redis:6379"
`

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := app.ParseConfig([]byte(minimalConfig))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Server.Addr != "0.0.0.0:8000" || cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Solves.Topic != event.DefaultSolvedTopic || cfg.Solves.ConsumerGroup != "ctfoj-scoreboard" {
		t.Fatalf("unexpected solves defaults: %+v", cfg.Solves)
	}
	if cfg.DBTimeout != 3*time.Second {
		t.Fatalf("unexpected db timeout %v", cfg.DBTimeout)
	}
	if cfg.Scoring != scoreboard.DefaultSettings() {
		t.Fatalf("expected default scoring, got %+v", cfg.Scoring)
	}
	if cfg.KafkaEnabled() || cfg.MinIOEnabled() {
		t.Fatalf("kafka and minio should be off without endpoints")
	}
}

func TestParseConfigPartialScoring(t *testing.T) {
	cfg, err := app.ParseConfig([]byte(minimalConfig + `
scoring:
  alpha: 0.5
  firstSolveBonus: 40
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !cfg.Scoring.Enabled || cfg.Scoring.Alpha != 0.5 || cfg.Scoring.Beta != scoreboard.DefaultBeta || cfg.Scoring.FirstSolveBonus != 40 {
		t.Fatalf("unexpected scoring: %+v", cfg.Scoring)
	}

	cfg, err = app.ParseConfig([]byte(minimalConfig + "scoring:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if cfg.Scoring.Enabled {
		t.Fatalf("expected scoring to be disabled")
	}
}

func TestParseConfigErrors(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{name: "missing dsn", data: "redis:\n  addr: r:6379\n", want: "dsn"},
		{name: "missing redis", data: "database:\n  dsn: x\n", want: "redis"},
		{name: "malformed", data: "database: [", want: "parse config"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := app.ParseConfig([]byte(tc.data))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := app.LoadConfig("../../configs/ctf_server.yaml")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !cfg.KafkaEnabled() || !cfg.MinIOEnabled() {
		t.Fatalf("shipped config should enable kafka and minio")
	}
	if cfg.Sandbox.MaxConcurrent != 5 || cfg.Sandbox.Timeout != 10*time.Second {
		t.Fatalf("unexpected sandbox config: %+v", cfg.Sandbox)
	}
	if cfg.Challenges.Host != "ctf.example.org" {
		t.Fatalf("unexpected challenges config: %+v", cfg.Challenges)
	}
	if _, err := app.LoadConfig("does-not-exist.yaml"); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}
