package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctfoj/internal/app"
	"ctfoj/internal/cli/command"
	"ctfoj/internal/cli/repl"
	"ctfoj/pkg/utils/logger"
)

const (
	defaultConfigPath  = "configs/ctf_server.yaml"
	defaultHistoryFile = ".ctfctl_history"
	initTimeout        = 15 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	history := flag.String("history", defaultHistoryFile, "Shell history file")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}
	// Keep command output clean; only warnings and errors are logged.
	cfg.Logger.Level = "warn"
	cfg.Logger.OutputPath = "stderr"
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(cfg, *history, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *app.Config, history string, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	deps, err := app.Init(initCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = deps.Close()
	}()

	engine, err := app.NewEngine(cfg, deps)
	if err != nil {
		return err
	}
	env := &command.Env{
		Flags:      engine.Flags,
		Users:      engine.Auth,
		Challenges: engine.Challenges,
		Classes:    engine.Registry,
		Events:     engine.Events,
		Scoreboard: engine,
		Out:        os.Stdout,
	}
	session := repl.New(env, command.Registry(), nil)
	if len(args) > 0 {
		return session.ExecArgs(ctx, args)
	}
	return session.Run(ctx, history)
}
