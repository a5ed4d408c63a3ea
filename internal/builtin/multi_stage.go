package builtin

import (
	"context"

	"ctfoj/internal/challenge"
)

const (
	firstStageFlag  = "__flag__{first-stage}"
	secondStageFlag = "__flag__{second-stage}"
)

// MultiStageExample is solved in two steps. The second stage is a separate
// challenge id, Stage(<cid>), owning the second flag.
type MultiStageExample struct {
	challenge.Base
}

func newMultiStage(env challenge.Env) (challenge.Definition, error) {
	return &MultiStageExample{Base: challenge.NewBase(env)}, nil
}

func (m *MultiStageExample) Title() string { return "MultiStage Example" }

func (m *MultiStageExample) Description(ctx context.Context, user string, solved bool) (string, error) {
	return `This is a challenge with multiple stages.
Enter "` + firstStageFlag + `" to solve the first stage,
and then "` + secondStageFlag + `" for the second one.`, nil
}

func (m *MultiStageExample) StaticFlags() []challenge.StaticFlag {
	return []challenge.StaticFlag{
		{CID: m.ID(), Token: firstStageFlag},
		{CID: StageID(m.ID()), Token: secondStageFlag},
	}
}

// StageID is the challenge id of the follow-up stage of cid.
func StageID(cid string) string {
	return "Stage(" + cid + ")"
}

// Stage is a follow-up stage of another challenge. It stays hidden until
// solved.
type Stage struct {
	challenge.Base
}

func newStage(env challenge.Env) (challenge.Definition, error) {
	return &Stage{Base: challenge.NewBase(env)}, nil
}

func (s *Stage) Title() string { return s.Args() + " (next stage)" }

func (s *Stage) Visible(ctx context.Context, user string) (bool, error) {
	return false, nil
}
