package scoreboard_test

import (
	"testing"

	"ctfoj/internal/scoreboard"
)

func TestChallengePoints(t *testing.T) {
	s := scoreboard.DefaultSettings()
	cases := []struct {
		solves int
		want   int
	}{
		{0, 500},
		{1, 500},
		{2, 472},
		{3, 406},
		{5, 265},
	}
	for _, tc := range cases {
		if got := s.ChallengePoints(tc.solves, nil); got != tc.want {
			t.Fatalf("ChallengePoints(%d) = %d, want %d", tc.solves, got, tc.want)
		}
	}

	fixed := 50
	if got := s.ChallengePoints(10, &fixed); got != 50 {
		t.Fatalf("expected fixed points, got %d", got)
	}
	if got := (scoreboard.Settings{}).ChallengePoints(0, nil); got != 0 {
		t.Fatalf("expected disabled scoring to yield 0, got %d", got)
	}
}

func TestChallengePointsDecreaseMonotonically(t *testing.T) {
	s := scoreboard.DefaultSettings()
	prev := s.ChallengePoints(0, nil)
	for n := 1; n < 200; n++ {
		p := s.ChallengePoints(n, nil)
		if p > prev {
			t.Fatalf("points increased from %d to %d at %d solves", prev, p, n)
		}
		if p < 30 {
			t.Fatalf("points fell below the floor at %d solves: %d", n, p)
		}
		prev = p
	}
}

func TestSolveBonus(t *testing.T) {
	s := scoreboard.DefaultSettings()
	s.FirstSolveBonus = 40
	want := []int{40, 20, 10, 5, 2, 1, 0}
	for existing, w := range want {
		if got := s.SolveBonus(existing, nil); got != w {
			t.Fatalf("SolveBonus(%d) = %d, want %d", existing, got, w)
		}
	}
	zero := 0
	if got := s.SolveBonus(0, &zero); got != 0 {
		t.Fatalf("expected no bonus on zero point challenge, got %d", got)
	}
}
