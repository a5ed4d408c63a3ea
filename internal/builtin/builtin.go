// Package builtin provides the challenge classes shipped with the server.
package builtin

import (
	"context"
	"html"
	"net"
	"strconv"
	"strings"

	"ctfoj/internal/challenge"
	"ctfoj/internal/common/storage"
	"ctfoj/internal/sandbox"
)

const (
	defaultHost            = "localhost"
	defaultHelloWorldBuild = "deploy/docker-helloworld"
	defaultCacheDir        = "var/challenges"
)

// TeamResolver maps a user to their team.
type TeamResolver interface {
	TeamOf(ctx context.Context, uid string) (string, bool, error)
}

// Options carries the shared services builtin classes depend on.
type Options struct {
	// Host is shown to users in connection instructions.
	Host string
	// Sandbox is required by DockerHelloWorld.
	Sandbox *sandbox.Executor
	// HelloWorldBuildContext is the Dockerfile directory of DockerHelloWorld.
	HelloWorldBuildContext string
	// Storage holds FromFolder archives. Without storage, FromFolder
	// reads local directories.
	Storage  storage.ObjectStorage
	CacheDir string
	Teams    TeamResolver
}

func (o *Options) applyDefaults() {
	if o.Host == "" {
		o.Host = defaultHost
	}
	if o.HelloWorldBuildContext == "" {
		o.HelloWorldBuildContext = defaultHelloWorldBuild
	}
	if o.CacheDir == "" {
		o.CacheDir = defaultCacheDir
	}
}

// RegisterAll registers every builtin class.
func RegisterAll(reg *challenge.Registry, opts Options) error {
	opts.applyDefaults()
	factories := map[string]challenge.Factory{
		"Basic":             newBasic,
		"FormExample":       newFormExample,
		"TcpServer":         func(env challenge.Env) (challenge.Definition, error) { return newTcpServer(env, opts) },
		"WebServer":         func(env challenge.Env) (challenge.Definition, error) { return newWebServer(env, opts) },
		"DockerHelloWorld":  func(env challenge.Env) (challenge.Definition, error) { return newDockerHelloWorld(env, opts) },
		"FromFolder":        func(env challenge.Env) (challenge.Definition, error) { return newFromFolder(env, opts) },
		"MultiStageExample": newMultiStage,
		"Stage":             newStage,
	}
	for name, factory := range factories {
		if err := reg.Register(name, factory); err != nil {
			return err
		}
	}
	return nil
}

// listenAddress parses args as a port or host:port, falling back to def.
func listenAddress(args, def string) string {
	args = strings.TrimSpace(args)
	if args == "" {
		return def
	}
	if _, err := strconv.Atoi(args); err == nil {
		return ":" + args
	}
	return args
}

func addressPort(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return port
}

func formHTML(cid, field, placeholder, button string) string {
	return `<form class="challenge-form" data-cid="` + html.EscapeString(cid) + `">` +
		`<input class="form-control mb-1" name="` + field + `" type="text" placeholder="` + html.EscapeString(placeholder) + `"/>` +
		`<button class="btn btn-primary mb-1" type="submit">` + html.EscapeString(button) + `</button>` +
		`<div class="response"></div></form>`
}

// remoteHost strips the port from a remote address.
func remoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
