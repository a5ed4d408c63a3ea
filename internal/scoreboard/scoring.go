package scoreboard

import "math"

const (
	DefaultAlpha = 0.25
	DefaultBeta  = 2.0

	maxPoints     = 500
	pointsScale   = 470
	pointsMinimum = 30
)

// Settings controls dynamic challenge scoring.
type Settings struct {
	Enabled bool    `yaml:"enabled"`
	Alpha   float64 `yaml:"alpha"`
	Beta    float64 `yaml:"beta"`
	// FirstSolveBonus is halved for every solve that came before.
	FirstSolveBonus int `yaml:"firstSolveBonus"`
}

// DefaultSettings enables scoring with the standard decay curve.
func DefaultSettings() Settings {
	return Settings{Enabled: true, Alpha: DefaultAlpha, Beta: DefaultBeta}
}

// ApplyDefaults fills a zero curve.
func (s *Settings) ApplyDefaults() {
	if s.Alpha == 0 {
		s.Alpha = DefaultAlpha
	}
	if s.Beta == 0 {
		s.Beta = DefaultBeta
	}
}

// ChallengePoints returns what a challenge is worth after solves solves.
// A non-nil fixed value overrides the curve.
func (s Settings) ChallengePoints(solves int, fixed *int) int {
	if !s.Enabled {
		return 0
	}
	if fixed != nil {
		return *fixed
	}
	if solves <= 0 {
		return maxPoints
	}
	decay := math.Pow(s.Alpha*float64(solves-1), s.Beta)
	return int(math.Round(pointsScale/(1+decay))) + pointsMinimum
}

// SolveBonus returns the first-solve bonus for a solve preceded by
// existing others. Challenges fixed at zero points earn no bonus.
func (s Settings) SolveBonus(existing int, fixed *int) int {
	if !s.Enabled {
		return 0
	}
	if fixed != nil && *fixed == 0 {
		return 0
	}
	if existing < 0 {
		existing = 0
	}
	return int(math.Floor(float64(s.FirstSolveBonus) / math.Pow(2, float64(existing))))
}
