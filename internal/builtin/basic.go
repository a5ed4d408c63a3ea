package builtin

import "ctfoj/internal/challenge"

// Basic only has a title, taken from its arguments. It suits challenges
// whose flags are handed out by an operator, e.g. to record attendance.
type Basic struct {
	challenge.Base
}

func newBasic(env challenge.Env) (challenge.Definition, error) {
	return &Basic{Base: challenge.NewBase(env)}, nil
}

func (b *Basic) Title() string { return b.Args() }
