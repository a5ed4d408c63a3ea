package challenge_test

import (
	"context"
	"testing"

	"ctfoj/internal/challenge"
	pkgerrors "ctfoj/pkg/errors"
)

func TestParseID(t *testing.T) {
	cases := []struct {
		cid   string
		class string
		args  string
	}{
		{"Basic", "Basic", ""},
		{"Basic()", "Basic", ""},
		{"FromFolder(web/intro)", "FromFolder", "web/intro"},
		{"Stage(Multi(a), 2)", "Stage", "Multi(a), 2"},
		{"Open(unterminated", "Open", "unterminated"},
	}
	for _, tc := range cases {
		class, args, err := challenge.ParseID(tc.cid)
		if err != nil {
			t.Fatalf("ParseID(%q) failed: %v", tc.cid, err)
		}
		if class != tc.class || args != tc.args {
			t.Fatalf("ParseID(%q) = %q, %q; want %q, %q", tc.cid, class, args, tc.class, tc.args)
		}
	}

	for _, bad := range []string{"", "(args)"} {
		_, _, err := challenge.ParseID(bad)
		if !pkgerrors.Is(err, pkgerrors.InvalidChallengeID) {
			t.Fatalf("expected invalid id error for %q, got %v", bad, err)
		}
	}
}

func TestRegistryRejectsDuplicatesAndBadNames(t *testing.T) {
	r := challenge.NewRegistry()
	factory := func(env challenge.Env) (challenge.Definition, error) { return newProbe(env), nil }

	if err := r.Register("Probe", factory); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := r.Register("Probe", factory); !pkgerrors.Is(err, pkgerrors.DuplicateChallenge) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if err := r.Register("Bad(name)", factory); !pkgerrors.Is(err, pkgerrors.InvalidChallengeID) {
		t.Fatalf("expected invalid name error, got %v", err)
	}
	if err := r.Register("Nil", nil); err == nil {
		t.Fatalf("expected nil factory to fail")
	}
	if names := r.Names(); len(names) != 1 || names[0] != "Probe" {
		t.Fatalf("unexpected names: %v", names)
	}
}

type flagged struct {
	*probe
}

func (f flagged) StaticFlags() []challenge.StaticFlag {
	return []challenge.StaticFlag{
		{Token: "__flag__{static}"},
		{CID: "Other", Token: "__flag__{other}"},
	}
}

func TestRegistryResolveCreatesStaticFlags(t *testing.T) {
	r := challenge.NewRegistry()
	r.MustRegister("Flagged", func(env challenge.Env) (challenge.Definition, error) {
		return flagged{newProbe(env)}, nil
	})
	issuer := &recordingIssuer{}

	inst, err := r.Resolve(context.Background(), "Flagged(x)", challenge.Runtime{Flags: issuer})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if inst.ID() != "Flagged(x)" || inst.State() != challenge.StateInstantiated {
		t.Fatalf("unexpected instance %s in state %s", inst.ID(), inst.State())
	}
	if len(issuer.issued) != 2 {
		t.Fatalf("expected two static flags, got %+v", issuer.issued)
	}
	if issuer.issued[0].CID != "Flagged(x)" || issuer.issued[0].Max != challenge.StaticFlagMaxSubmissions {
		t.Fatalf("unexpected first static flag: %+v", issuer.issued[0])
	}
	if issuer.issued[1].CID != "Other" {
		t.Fatalf("expected second flag for Other, got %+v", issuer.issued[1])
	}
}

func TestRegistryResolveErrors(t *testing.T) {
	r := challenge.NewRegistry()
	_, err := r.Resolve(context.Background(), "Missing", challenge.Runtime{})
	if !pkgerrors.Is(err, pkgerrors.ChallengeDefinitionNotFound) {
		t.Fatalf("expected definition not found, got %v", err)
	}

	r.MustRegister("Flagged", func(env challenge.Env) (challenge.Definition, error) {
		return flagged{newProbe(env)}, nil
	})
	_, err = r.Resolve(context.Background(), "Flagged", challenge.Runtime{Flags: &recordingIssuer{fail: true}})
	if !pkgerrors.Is(err, pkgerrors.DatabaseError) {
		t.Fatalf("expected static flag failure, got %v", err)
	}
}
