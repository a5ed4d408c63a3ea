// Package app wires the engine's infrastructure and services from a Config.
package app

import (
	"context"
	"errors"
	"fmt"

	"ctfoj/internal/builtin"
	"ctfoj/internal/challenge"
	chrepo "ctfoj/internal/challenge/repository"
	"ctfoj/internal/common/cache"
	"ctfoj/internal/common/db"
	"ctfoj/internal/common/limiter"
	"ctfoj/internal/common/mq"
	"ctfoj/internal/common/storage"
	"ctfoj/internal/event"
	flagrepo "ctfoj/internal/flag/repository"
	flagsvc "ctfoj/internal/flag/service"
	"ctfoj/internal/sandbox"
	"ctfoj/internal/scoreboard"
	userrepo "ctfoj/internal/user/repository"
	usersvc "ctfoj/internal/user/service"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Dependencies contains initialized infrastructure clients.
type Dependencies struct {
	Database db.Database
	Cache    cache.Cache
	// Queue is nil without Kafka brokers.
	Queue mq.MessageQueue
	// Storage is nil without a MinIO endpoint.
	Storage storage.ObjectStorage
}

// Init connects MySQL and Redis, and Kafka and MinIO when configured.
func Init(ctx context.Context, cfg *Config) (*Dependencies, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error before initialization: %w", err)
	}
	deps := &Dependencies{}

	mysqlDB, err := db.NewMySQLWithConfig(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database failed: %w", err)
	}
	deps.Database = mysqlDB

	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("init redis failed: %w", err)
	}
	deps.Cache = redisCache

	if cfg.KafkaEnabled() {
		queue, err := mq.NewKafkaQueue(cfg.Kafka)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("init kafka failed: %w", err)
		}
		deps.Queue = queue
		if err := queue.Ping(ctx); err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("ping kafka failed: %w", err)
		}
	}

	if cfg.MinIOEnabled() {
		objStorage, err := storage.NewMinIOStorage(ctx, cfg.MinIO)
		if err != nil {
			_ = deps.Close()
			return nil, fmt.Errorf("init minio failed: %w", err)
		}
		deps.Storage = objStorage
	}
	return deps, nil
}

// Close releases initialized resources.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Queue != nil {
		if err := d.Queue.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka failed: %w", err))
		}
	}
	if d.Cache != nil {
		if err := d.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis cache failed: %w", err))
		}
	}
	if d.Database != nil {
		if err := d.Database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database failed: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Engine holds the services built on top of Dependencies.
type Engine struct {
	Config *Config
	Deps   *Dependencies

	Events      *event.Recorder
	Users       userrepo.UserRepository
	Teams       userrepo.TeamRepository
	Auth        *usersvc.AuthService
	Challenges  chrepo.ChallengeRepository
	Data        *chrepo.DataRepository
	FlagRepo    flagrepo.FlagRepository
	Submissions flagrepo.SubmissionRepository
	Flags       *flagsvc.FlagService
	Registry    *challenge.Registry
	Manager     *challenge.Manager
	Catalog     *challenge.Catalog
	Sandbox     *sandbox.Executor
	Limiter     *limiter.WindowLimiter
	Bus         *event.Bus
	Hub         *event.Hub
	Feed        *event.Feed

	// Board and Updater are set by Load.
	Board   *scoreboard.Board
	Updater *scoreboard.Updater
}

// NewEngine builds every service. Challenges are not resolved until Load.
func NewEngine(cfg *Config, deps *Dependencies) (*Engine, error) {
	provider := db.NewManager(deps.Database)
	e := &Engine{
		Config:      cfg,
		Deps:        deps,
		Events:      event.NewRecorder(event.NewRepository(deps.Database)),
		Users:       userrepo.NewUserRepository(provider),
		Teams:       userrepo.NewTeamRepository(provider),
		Challenges:  chrepo.NewChallengeRepository(deps.Database),
		Data:        chrepo.NewDataRepository(deps.Database, deps.Cache),
		FlagRepo:    flagrepo.NewFlagRepository(deps.Database),
		Submissions: flagrepo.NewSubmissionRepository(deps.Database),
		Registry:    challenge.NewRegistry(),
		Sandbox:     sandbox.NewExecutor(cfg.Sandbox, nil),
		Limiter:     limiter.NewWindowLimiter(deps.Cache, cfg.DBTimeout),
		Bus:         event.NewBus(),
		Hub:         event.NewHub(),
	}
	e.Auth = usersvc.NewAuthService(provider, e.Users, e.Teams, deps.Cache, e.Events, usersvc.AuthServiceConfig{
		JWTSecret:      []byte(cfg.Auth.JWTSecret),
		JWTIssuer:      cfg.Auth.JWTIssuer,
		AccessTokenTTL: cfg.Auth.AccessTokenTTL,
		LoginFailTTL:   cfg.Auth.LoginFailTTL,
		LoginFailLimit: cfg.Auth.LoginFailLimit,
	})
	e.Manager = challenge.NewManager(e.Registry, e.Challenges)
	e.Catalog = challenge.NewCatalog(e.Manager, e.Challenges, cfg.Scoring)
	e.Feed = event.NewFeed(deps.Cache, event.DefaultFeedKey, cfg.Solves.FeedSize, e.Hub)

	flags, err := flagsvc.NewFlagService(flagsvc.Config{
		Database:    provider,
		Flags:       e.FlagRepo,
		Submissions: e.Submissions,
		Users:       e.Users,
		Windows:     e.Manager,
		Events:      e.Events,
		Publisher:   e.Bus,
		DBTimeout:   cfg.DBTimeout,
	})
	if err != nil {
		return nil, err
	}
	e.Flags = flags

	if err := builtin.RegisterAll(e.Registry, builtin.Options{
		Host:                   cfg.Challenges.Host,
		Sandbox:                e.Sandbox,
		HelloWorldBuildContext: cfg.Challenges.HelloWorldBuildContext,
		Storage:                deps.Storage,
		CacheDir:               cfg.Challenges.CacheDir,
		Teams:                  e.Teams,
	}); err != nil {
		return nil, err
	}
	return e, nil
}

// Runtime returns the services injected into challenge instances.
func (e *Engine) Runtime() challenge.Runtime {
	return challenge.Runtime{Flags: e.Flags, Events: e.Events, Data: e.Data}
}

// Load resolves stored challenges and subscribes solve observers. Solves
// go to Kafka when a queue is configured, otherwise they update the board
// in process.
func (e *Engine) Load(ctx context.Context) error {
	if err := e.Manager.Load(ctx, e.Runtime()); err != nil {
		return err
	}
	e.NewBoard()
	e.Bus.Subscribe(e.Feed)
	if e.Deps.Queue != nil {
		e.Bus.Subscribe(event.NewSolvedPublisher(e.Deps.Queue, e.Config.Solves.Topic))
		logger.Info(ctx, "solves published to queue", zap.String("topic", e.Config.Solves.Topic))
	} else {
		e.Bus.Subscribe(e.Updater)
		logger.Info(ctx, "solves applied in process")
	}
	return nil
}

// NewBoard builds the scoreboard from the loaded challenges' fixed points.
func (e *Engine) NewBoard() *scoreboard.Board {
	e.Board = scoreboard.NewBoard(e.Deps.Cache, e.Config.Scoring, e.Catalog.FixedPointsByID())
	e.Updater = scoreboard.NewUpdater(e.Board, e.Teams)
	return e.Board
}

// Solves returns every recorded solve in submission order.
func (e *Engine) Solves(ctx context.Context) ([]event.Solved, error) {
	rows, err := e.Submissions.ListSolves(ctx)
	if err != nil {
		return nil, err
	}
	solves := make([]event.Solved, 0, len(rows))
	for _, r := range rows {
		solves = append(solves, event.Solved{
			EventType: event.SolvedEventType,
			UID:       r.UID,
			CID:       r.CID,
			FID:       r.FID,
			SolvedAt:  r.Timestamp,
		})
	}
	return solves, nil
}

// RebuildScoreboard replays every recorded solve into a fresh board and
// returns the number of solves applied.
func (e *Engine) RebuildScoreboard(ctx context.Context) (int, error) {
	if e.Board == nil {
		if err := e.Manager.Load(ctx, e.Runtime()); err != nil {
			return 0, err
		}
		e.NewBoard()
	}
	solves, err := e.Solves(ctx)
	if err != nil {
		return 0, err
	}
	if err := e.Updater.Replay(ctx, solves); err != nil {
		return 0, err
	}
	return len(solves), nil
}
