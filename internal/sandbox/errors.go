package sandbox

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	appErr "ctfoj/pkg/errors"
)

const maxOutputDetail = 8 << 10

var shellSafe = regexp.MustCompile(`^[a-zA-Z0-9_./:=@%+,-]+$`)

// quoteCommand renders cmd so it can be pasted into a POSIX shell.
func quoteCommand(cmd []string) string {
	parts := make([]string, len(cmd))
	for i, arg := range cmd {
		switch {
		case arg == "":
			parts[i] = "''"
		case shellSafe.MatchString(arg):
			parts[i] = arg
		default:
			parts[i] = "'" + strings.ReplaceAll(arg, "'", `'"'"'`) + "'"
		}
	}
	return strings.Join(parts, " ")
}

// escapeOutput trims b, caps its length and replaces invalid UTF-8 with
// \xNN escapes.
func escapeOutput(b []byte) string {
	b = bytes.TrimSpace(b)
	truncated := false
	if len(b) > maxOutputDetail {
		b = b[:maxOutputDetail]
		truncated = true
	}
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			fmt.Fprintf(&sb, `\x%02x`, b[0])
			b = b[1:]
			continue
		}
		sb.Write(b[:size])
		b = b[size:]
	}
	if truncated {
		sb.WriteString("...")
	}
	return sb.String()
}

func executionError(cmd []string, res Result) *appErr.Error {
	quoted := quoteCommand(cmd)
	stdout := escapeOutput(res.Stdout)
	stderr := escapeOutput(res.Stderr)

	var msg strings.Builder
	fmt.Fprintf(&msg, "Execution error (return code: %d)\n[command]\n%s", res.ExitCode, quoted)
	if stdout != "" {
		msg.WriteString("\n[stdout]\n" + stdout)
	}
	if stderr != "" {
		msg.WriteString("\n[stderr]\n" + stderr)
	}
	return appErr.New(appErr.SandboxExecution).
		WithMessage(msg.String()).
		WithDetail("cmd", quoted).
		WithDetail("exit_code", res.ExitCode).
		WithDetail("stdout", stdout).
		WithDetail("stderr", stderr)
}

func timeoutError(cmd []string) *appErr.Error {
	return appErr.New(appErr.SandboxTimeout).WithDetail("cmd", quoteCommand(cmd))
}

// containerGone reports whether a failed kill only raced with the
// container exiting on its own.
func containerGone(err error) bool {
	e, ok := appErr.As(err)
	if !ok {
		return false
	}
	text := e.Error()
	return strings.Contains(text, "No such container") || strings.Contains(text, "is not running")
}
