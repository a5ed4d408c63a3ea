package builtin

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"

	"ctfoj/internal/challenge"
	"ctfoj/internal/common/http/middleware"
	"ctfoj/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultWebAddress = ":8203"

// WebServer runs its own small web application next to the main server.
type WebServer struct {
	challenge.Base
	addr string
	host string

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
	done   chan struct{}
}

func newWebServer(env challenge.Env, opts Options) (challenge.Definition, error) {
	return &WebServer{
		Base: challenge.NewBase(env),
		addr: listenAddress(env.Args, defaultWebAddress),
		host: opts.Host,
	}, nil
}

func (w *WebServer) Title() string { return "Embedded Web Application Example" }

func (w *WebServer) Description(ctx context.Context, user string, solved bool) (string, error) {
	url := fmt.Sprintf("http://%s:%s/", w.host, addressPort(w.addr))
	return "<p>Hello World!</p>" + `<a href="` + html.EscapeString(url) + `">` + html.EscapeString(url) + "</a>", nil
}

func (w *WebServer) Start(ctx context.Context) error {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestEventMiddleware(w.Runtime().Events, func(*gin.Context) string { return w.ID() }))
	engine.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Hello World.")
	})

	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", w.addr, err)
	}
	server := &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})
	w.mu.Lock()
	w.server, w.ln, w.done = server, ln, done
	w.mu.Unlock()

	serveCtx := logger.WithChallenge(context.WithoutCancel(ctx), w.ID())
	go func() {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(serveCtx, "challenge web server stopped", zap.Error(err))
		}
	}()
	logger.Info(serveCtx, "challenge web server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (w *WebServer) Stop(ctx context.Context) error {
	w.mu.Lock()
	server, done := w.server, w.done
	w.mu.Unlock()
	if server == nil {
		return nil
	}
	err := server.Shutdown(ctx)
	<-done
	return err
}

// Addr returns the bound address once started.
func (w *WebServer) Addr() net.Addr {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ln == nil {
		return nil
	}
	return w.ln.Addr()
}
