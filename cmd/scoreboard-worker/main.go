package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctfoj/internal/app"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/ctf_server.yaml"
	initTimeout       = 15 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	rebuild := flag.Bool("rebuild", false, "Rebuild the scoreboard from recorded solves and exit")
	flag.Parse()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(cfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(cfg, *rebuild); err != nil {
		logger.Error(context.Background(), "scoreboard worker stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *app.Config, rebuild bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	deps, err := app.Init(initCtx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := deps.Close(); closeErr != nil {
			logger.Error(context.Background(), "close dependencies failed", zap.Error(closeErr))
		}
	}()

	engine, err := app.NewEngine(cfg, deps)
	if err != nil {
		return err
	}
	// Instances are resolved for their fixed points only and never started.
	if err := engine.Manager.Load(initCtx, engine.Runtime()); err != nil {
		return err
	}
	engine.NewBoard()

	if rebuild {
		n, err := engine.RebuildScoreboard(ctx)
		if err != nil {
			return err
		}
		logger.Info(ctx, "scoreboard rebuilt", zap.Int("solves", n))
		return nil
	}

	if deps.Queue == nil {
		return errors.New("kafka brokers are required to consume solves")
	}
	if err := engine.Updater.Subscribe(ctx, deps.Queue, cfg.Solves.Topic, cfg.Solves.ConsumerGroup); err != nil {
		return fmt.Errorf("subscribe solves failed: %w", err)
	}
	if err := deps.Queue.Start(); err != nil {
		return fmt.Errorf("start consumer failed: %w", err)
	}
	logger.Info(ctx, "scoreboard worker started", zap.String("topic", cfg.Solves.Topic))

	<-ctx.Done()
	logger.Info(context.Background(), "scoreboard worker shutting down")
	return deps.Queue.Stop()
}
