package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"ctfoj/internal/cli/command"
	pkgerrors "ctfoj/pkg/errors"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
)

const shellPrompt = "ctfoj> "

// Prompter asks the operator for a missing value.
type Prompter interface {
	Prompt(label string, secret bool) (string, error)
}

// Session executes command lines against env.
type Session struct {
	env      *command.Env
	commands map[string]command.Command
	prompter Prompter
}

// New creates a session. A nil prompter makes missing arguments an error
// and skips confirmations.
func New(env *command.Env, commands map[string]command.Command, prompter Prompter) *Session {
	return &Session{env: env, commands: commands, prompter: prompter}
}

// Run starts an interactive shell on stdin until exit or EOF.
func (s *Session) Run(ctx context.Context, historyFile string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          shellPrompt,
		HistoryFile:     historyFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("init readline failed: %w", err)
	}
	defer rl.Close()

	s.env.Out = rl.Stdout()
	s.prompter = &readlinePrompter{rl: rl}
	for {
		rl.SetPrompt(shellPrompt)
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read input failed: %w", err)
		}
		line = strings.TrimSpace(line)
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "help":
			s.printHelp()
			continue
		}
		if err := s.Exec(ctx, line); err != nil {
			s.PrintError(err)
		}
	}
}

// Exec parses and runs one command line.
func (s *Session) Exec(ctx context.Context, line string) error {
	tokens, err := shlex.Split(line)
	if err != nil {
		return fmt.Errorf("parse command failed: %w", err)
	}
	return s.ExecArgs(ctx, tokens)
}

// ExecArgs runs an already split command line.
func (s *Session) ExecArgs(ctx context.Context, tokens []string) error {
	if len(tokens) < 2 {
		return fmt.Errorf("invalid command, use: <group> <action> [args] [name=value ...]")
	}
	key := tokens[0] + " " + tokens[1]
	cmd, ok := s.commands[key]
	if !ok {
		return fmt.Errorf("unknown command: %s", key)
	}
	params, err := command.Parse(cmd.Fields, tokens[2:])
	if err != nil {
		return err
	}
	if err := s.promptMissing(cmd, params); err != nil {
		return err
	}
	if cmd.Confirm != nil && s.prompter != nil {
		if question := cmd.Confirm(params); question != "" {
			answer, err := s.prompter.Prompt(question+" [y/N]", false)
			if err != nil {
				return err
			}
			if !strings.EqualFold(strings.TrimSpace(answer), "y") {
				return errors.New("aborted")
			}
		}
	}
	return cmd.Run(ctx, s.env, params)
}

func (s *Session) promptMissing(cmd command.Command, params command.Params) error {
	for _, field := range command.Missing(cmd.Fields, params) {
		if s.prompter == nil {
			return fmt.Errorf("missing argument: %s", field.Name)
		}
		value, err := s.prompter.Prompt(field.Prompt, field.Secret)
		if err != nil {
			return err
		}
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("missing argument: %s", field.Name)
		}
		params.Set(field.Name, value)
	}
	return nil
}

func (s *Session) completer() *readline.PrefixCompleter {
	groups := map[string][]readline.PrefixCompleterInterface{}
	var order []string
	for _, key := range command.Keys(s.commands) {
		cmd := s.commands[key]
		if _, ok := groups[cmd.Group]; !ok {
			order = append(order, cmd.Group)
		}
		groups[cmd.Group] = append(groups[cmd.Group], readline.PcItem(cmd.Action))
	}
	items := []readline.PrefixCompleterInterface{readline.PcItem("help"), readline.PcItem("exit")}
	for _, group := range order {
		items = append(items, readline.PcItem(group, groups[group]...))
	}
	return readline.NewPrefixCompleter(items...)
}

func (s *Session) printHelp() {
	s.printLine("usage: <group> <action> [args] [name=value ...]")
	for _, key := range command.Keys(s.commands) {
		cmd := s.commands[key]
		var args []string
		for _, f := range cmd.Fields {
			if f.Required {
				args = append(args, "<"+f.Name+">")
			} else {
				args = append(args, "["+f.Name+"]")
			}
		}
		s.printLine("  %-22s %-34s %s", key, strings.Join(args, " "), cmd.Summary)
	}
	s.printLine("system: help | exit")
}

// PrintError shows coded errors with their code so operators can tell
// rejections from failures.
func (s *Session) PrintError(err error) {
	if e, ok := pkgerrors.As(err); ok {
		s.printLine("error %d: %s", int(e.Code), command.ConsoleEscape(e.Error()))
		return
	}
	s.printLine("error: %s", command.ConsoleEscape(err.Error()))
}

func (s *Session) printLine(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(s.env.Out, format+"\n", args...)
}

type readlinePrompter struct {
	rl *readline.Instance
}

func (p *readlinePrompter) Prompt(label string, secret bool) (string, error) {
	if secret {
		value, err := p.rl.ReadPassword(label + ": ")
		if err != nil {
			return "", fmt.Errorf("read input failed: %w", err)
		}
		return string(value), nil
	}
	p.rl.SetPrompt(label + ": ")
	line, err := p.rl.Readline()
	if err != nil {
		return "", fmt.Errorf("read input failed: %w", err)
	}
	return strings.TrimSpace(line), nil
}
