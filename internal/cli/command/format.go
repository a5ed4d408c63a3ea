package command

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"ctfoj/internal/event"
)

const (
	eventDataWidth = 80
	timeLayout     = "2006-01-02 15:04:05"
)

// ConsoleEscape replaces control characters with their Unicode control
// pictures so untrusted text cannot drive the terminal.
func ConsoleEscape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r < 0x20:
			b.WriteRune(0x2400 + r)
		case r == 0x7f:
			b.WriteRune(0x2421)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FormatEvent renders one event as a single escaped line.
func FormatEvent(ev event.Event) string {
	data := ConsoleEscape(ev.Data)
	if utf8.RuneCountInString(data) > eventDataWidth {
		runes := []rune(data)
		data = string(runes[:eventDataWidth-3]) + "..."
	}
	return fmt.Sprintf("%s %15s %-12s %-18s %s %s",
		formatTime(ev.Timestamp),
		ev.IP,
		orDash(ConsoleEscape(ev.UID)),
		ev.Type,
		orDash(data),
		orDash(ev.CID),
	)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

type table struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer, header ...string) *table {
	t := &table{w: tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)}
	fmt.Fprintln(t.w, strings.Join(header, "\t"))
	return t
}

func (t *table) row(cells ...interface{}) {
	parts := make([]string, len(cells))
	for i, c := range cells {
		parts[i] = ConsoleEscape(fmt.Sprint(c))
	}
	fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

func (t *table) flush() error {
	return t.w.Flush()
}
