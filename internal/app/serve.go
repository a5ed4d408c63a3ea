package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// HTTPServer is the part of *http.Server driven by Serve.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Lifecycle starts and stops the challenge instances.
type Lifecycle interface {
	StartAll(ctx context.Context)
	StopAll(ctx context.Context)
}

// Serve runs the web layer and the challenge start-up side by side until ctx
// ends or the server fails. Pending starts are cancelled on shutdown and
// joined before the instances are stopped.
func Serve(ctx context.Context, srv HTTPServer, challenges Lifecycle, shutdownTimeout time.Duration) error {
	startCtx, cancelStart := context.WithCancel(ctx)
	defer cancelStart()
	startDone := make(chan struct{})
	go func() {
		defer close(startDone)
		challenges.StartAll(startCtx)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	cancelStart()
	<-startDone
	challenges.StopAll(shutdownCtx)
	return serveErr
}
