package command_test

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"ctfoj/internal/cli/command"
	"ctfoj/internal/event"
)

func TestConsoleEscape(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain", "plain"},
		{"\x1b[31mred", "␛[31mred"},
		{"line\nbreak\r", "line␊break␍"},
		{"del\x7f", "del␡"},
		{"tab\tand été", "tab␉and été"},
	}
	for _, tc := range cases {
		if got := command.ConsoleEscape(tc.in); got != tc.want {
			t.Fatalf("ConsoleEscape(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatEvent(t *testing.T) {
	ev := event.Event{
		ID:        3,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600)),
		IP:        "10.0.0.1",
		Type:      event.TypeFlagSubmit,
		Data:      strings.Repeat("x", 100) + "\n",
		UID:       "alice",
	}
	line := command.FormatEvent(ev)
	if !strings.HasPrefix(line, "2026-03-01 11:00:00 ") {
		t.Fatalf("expected UTC timestamp, got %q", line)
	}
	if strings.ContainsAny(line, "\n") || !strings.Contains(line, "...") {
		t.Fatalf("expected escaped and shortened data, got %q", line)
	}
	if !strings.HasSuffix(line, " -") {
		t.Fatalf("expected dash for missing cid, got %q", line)
	}
	if utf8.RuneCountInString(line) > 160 {
		t.Fatalf("line too long: %d", utf8.RuneCountInString(line))
	}
}
