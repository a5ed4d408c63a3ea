package builtin

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
	"time"

	"ctfoj/internal/challenge"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultTcpAddress = ":8001"
	firstLineTimeout  = 500 * time.Millisecond
	connectionTimeout = 60 * time.Second

	tcpQuestion = "What's the answer to life, the universe and everything?\n"
	tcpFail     = "Not convinced!\n"

	httpProbeReply = "HTTP/1.1 400 Bad Request\r\n\r\n" +
		`<a href="https://en.wikipedia.org/wiki/Netcat">This is not an HTTP service.</a>`
)

var tcpAnswer = regexp.MustCompile(`(?i)42`)

// TcpServer asks a question over a raw TCP connection and answers the
// right reply with a flag.
type TcpServer struct {
	challenge.Base
	addr string
	host string

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newTcpServer(env challenge.Env, opts Options) (challenge.Definition, error) {
	return &TcpServer{
		Base:  challenge.NewBase(env),
		addr:  listenAddress(env.Args, defaultTcpAddress),
		host:  opts.Host,
		conns: make(map[net.Conn]struct{}),
	}, nil
}

func (t *TcpServer) Title() string { return "TCP Service Example" }

func (t *TcpServer) Tags() []string { return []string{"network"} }

func (t *TcpServer) Description(ctx context.Context, user string, solved bool) (string, error) {
	return fmt.Sprintf(`<p>There is an important question to be answered.
Connect to the TCP service at <code>%s:%s</code>.</p>`, t.host, addressPort(t.addr)), nil
}

func (t *TcpServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", t.addr, err)
	}
	serveCtx, cancel := context.WithCancel(logger.WithChallenge(context.WithoutCancel(ctx), t.ID()))
	t.mu.Lock()
	t.listener = ln
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.serve(serveCtx, ln)
	logger.Info(serveCtx, "tcp challenge listening", zap.String("addr", ln.Addr().String()))
	return nil
}

func (t *TcpServer) Stop(ctx context.Context) error {
	t.mu.Lock()
	ln := t.listener
	if t.cancel != nil {
		t.cancel()
	}
	for conn := range t.conns {
		_ = conn.SetDeadline(time.Now())
	}
	t.mu.Unlock()
	if ln == nil {
		return nil
	}
	err := ln.Close()
	t.wg.Wait()
	return err
}

// Addr returns the bound address once started.
func (t *TcpServer) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TcpServer) serve(ctx context.Context, ln net.Listener) {
	defer t.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				logger.Warn(ctx, "tcp accept failed", zap.Error(err))
			}
			return
		}
		t.mu.Lock()
		t.conns[conn] = struct{}{}
		t.mu.Unlock()
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			defer func() {
				t.mu.Lock()
				delete(t.conns, conn)
				t.mu.Unlock()
				_ = conn.Close()
			}()
			t.handle(ctx, conn)
		}()
	}
}

func (t *TcpServer) handle(ctx context.Context, conn net.Conn) {
	deadline := time.Now().Add(connectionTimeout)
	_ = conn.SetDeadline(deadline)
	ip := remoteHost(conn.RemoteAddr())
	t.Log(ctx, ip, "connected", "", "")

	reader := bufio.NewReader(conn)
	_ = conn.SetReadDeadline(time.Now().Add(firstLineTimeout))
	line, err := reader.ReadString('\n')
	gotLine := err == nil
	if err != nil && !isTimeout(err) {
		return
	}
	if gotLine && strings.HasPrefix(line, "GET ") {
		_, _ = conn.Write([]byte(httpProbeReply))
		return
	}
	_ = conn.SetReadDeadline(deadline)

	if _, err := conn.Write([]byte(tcpQuestion)); err != nil {
		return
	}
	if !gotLine {
		rest, err := reader.ReadString('\n')
		if err != nil && rest == "" && line == "" {
			return
		}
		line += rest
	}
	answer := strings.TrimSpace(strings.ToValidUTF8(line, "\uFFFD"))

	if !tcpAnswer.MatchString(answer) {
		t.Log(ctx, ip, "fail", answer, "")
		_, _ = conn.Write([]byte(tcpFail))
		return
	}
	flag, err := t.IssueAndLogFlag(ctx, ip, "", challenge.FlagOptions{})
	if err != nil {
		logger.Error(ctx, "issue tcp flag failed", zap.Error(err))
		return
	}
	_, _ = conn.Write([]byte(flag + "\n"))
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
