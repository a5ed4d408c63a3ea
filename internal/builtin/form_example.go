package builtin

import (
	"context"
	"net/http"

	"ctfoj/internal/challenge"
)

const favoriteIP = "127.0.0.1"

// FormExample hands out a flag for the right answer to a web form.
type FormExample struct {
	challenge.Base
}

func newFormExample(env challenge.Env) (challenge.Definition, error) {
	return &FormExample{Base: challenge.NewBase(env)}, nil
}

func (f *FormExample) Title() string { return "Form Example" }

func (f *FormExample) Description(ctx context.Context, user string, solved bool) (string, error) {
	return "<h6>What's your favorite IP address?</h6>" + formHTML(f.ID(), "ip", "0.0.0.0", "Submit"), nil
}

func (f *FormExample) HandlePost(ctx context.Context, user string, req *challenge.Request) (*challenge.Response, error) {
	var body struct {
		IP string `json:"ip"`
	}
	if err := req.BindJSON(&body); err != nil {
		return challenge.Message(http.StatusBadRequest, "Invalid request body."), nil
	}
	if body.IP != favoriteIP {
		return challenge.Message(http.StatusBadRequest, "There are better ones."), nil
	}
	flag, err := f.IssueAndLogFlag(ctx, req.RemoteIP, user, challenge.FlagOptions{})
	if err != nil {
		return nil, err
	}
	return challenge.Text(http.StatusOK, flag), nil
}
