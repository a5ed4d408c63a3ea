package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ctfoj/internal/app"
	chcontroller "ctfoj/internal/challenge/controller"
	commonmw "ctfoj/internal/common/http/middleware"
	flagcontroller "ctfoj/internal/flag/controller"
	sbcontroller "ctfoj/internal/scoreboard/controller"
	usercontroller "ctfoj/internal/user/controller"
	"ctfoj/pkg/utils/logger"
	"ctfoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultConfigPath = "configs/ctf_server.yaml"
	initTimeout       = 15 * time.Second
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
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

	if err := run(cfg); err != nil {
		logger.Error(context.Background(), "ctf server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *app.Config) error {
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
	if err := engine.Load(initCtx); err != nil {
		return err
	}
	defer engine.Hub.Close()

	httpServer := buildHTTPServer(cfg.Server, engine)
	logger.Info(ctx, "ctf http server starting", zap.String("addr", cfg.Server.Addr))
	err = app.Serve(ctx, httpServer, engine.Manager, cfg.Server.ShutdownTimeout)
	engine.Sandbox.Wait()
	return err
}

func buildHTTPServer(cfg app.ServerConfig, engine *app.Engine) *http.Server {
	limits := engine.Config.RateLimit
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.CORSMiddleware(cfg.CORS))
	router.Use(requestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		if err := engine.Deps.Database.Ping(c.Request.Context()); err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	authController := usercontroller.NewAuthController(engine.Auth)
	api.POST("/auth/login", commonmw.RateLimitMiddleware(engine.Limiter, "login", limits.Login), authController.Login)

	scoreController := sbcontroller.NewScoreboardController(engine.Board, engine.Feed, engine.Hub)
	api.GET("/scoreboard", scoreController.Top)
	api.GET("/solves", scoreController.Recent)
	api.GET("/solves/live", scoreController.Live)

	authed := api.Group("", commonmw.AuthMiddleware(engine.Auth))
	authed.GET("/auth/me", authController.Me)
	challengeController := chcontroller.NewChallengeController(engine.Catalog, engine.Manager, engine.Events)
	authed.GET("/challenges", challengeController.List)
	proxy := authed.Group("/challenges/:cid", challengeController.EventMiddleware())
	proxy.GET("/*path", challengeController.Handle)
	proxy.POST("/*path", challengeController.Handle)

	flagController := flagcontroller.NewFlagController(engine.Flags, engine.Catalog)
	authed.POST("/flags/submit", commonmw.RateLimitMiddleware(engine.Limiter, "submit", limits.Submit), flagController.Submit)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
