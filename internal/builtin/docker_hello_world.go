package builtin

import (
	"context"
	"errors"
	"net/http"

	"ctfoj/internal/challenge"
	"ctfoj/internal/event"
	"ctfoj/internal/sandbox"
	appErr "ctfoj/pkg/errors"

	"github.com/google/shlex"
)

// DockerHelloWorld runs a user supplied command in a sandbox container.
type DockerHelloWorld struct {
	challenge.Base
	executor *sandbox.Executor
	image    *sandbox.Image
}

func newDockerHelloWorld(env challenge.Env, opts Options) (challenge.Definition, error) {
	if opts.Sandbox == nil {
		return nil, errors.New("sandbox executor is not configured")
	}
	img, err := opts.Sandbox.NewImage(env.CID, sandbox.ImageConfig{BuildContext: opts.HelloWorldBuildContext})
	if err != nil {
		return nil, err
	}
	return &DockerHelloWorld{Base: challenge.NewBase(env), executor: opts.Sandbox, image: img}, nil
}

func (d *DockerHelloWorld) Title() string { return "Docker Container Example" }

func (d *DockerHelloWorld) Tags() []string { return []string{"sandbox"} }

func (d *DockerHelloWorld) Description(ctx context.Context, user string, solved bool) (string, error) {
	return formHTML(d.ID(), "command", "python -c 'print(1+1)'", "docker run"), nil
}

func (d *DockerHelloWorld) Start(ctx context.Context) error {
	return d.image.Setup(ctx)
}

func (d *DockerHelloWorld) HandlePost(ctx context.Context, user string, req *challenge.Request) (*challenge.Response, error) {
	var body struct {
		Command string `json:"command"`
	}
	if err := req.BindJSON(&body); err != nil {
		return challenge.Message(http.StatusBadRequest, "Invalid request body."), nil
	}
	args, err := shlex.Split(body.Command)
	if err != nil {
		return challenge.Message(http.StatusBadRequest, "Invalid command: "+err.Error()), nil
	}

	d.Log(ctx, req.RemoteIP, event.TypeSandboxRun, body.Command, user)
	out, err := d.executor.Run(ctx, d.image, user, args...)
	if err != nil {
		if appErr.Is(err, appErr.AdmissionRejected) {
			return challenge.Message(http.StatusTooManyRequests, err.Error()), nil
		}
		if appErr.IsSandboxError(err) {
			return challenge.Message(http.StatusInternalServerError, err.Error()), nil
		}
		return nil, err
	}
	return challenge.Text(http.StatusOK, out), nil
}
