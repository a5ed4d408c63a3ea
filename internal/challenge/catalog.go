package challenge

import (
	"context"
	"fmt"
	"html"
	"time"

	"ctfoj/internal/challenge/repository"
	"ctfoj/internal/scoreboard"
	pkgerrors "ctfoj/pkg/errors"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

// Summary is a challenge as listed to one user.
type Summary struct {
	CID             string     `json:"cid"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Tags            []string   `json:"tags"`
	Team            bool       `json:"team"`
	Start           time.Time  `json:"start"`
	Stop            time.Time  `json:"stop"`
	Solves          int        `json:"solves"`
	SolveTime       *time.Time `json:"solve_time,omitempty"`
	Points          int        `json:"points"`
	FirstSolveBonus int        `json:"first_solve_bonus"`
}

// Catalog renders the challenge list for users.
type Catalog struct {
	manager *Manager
	repo    repository.ChallengeRepository
	scoring scoreboard.Settings
	now     func() time.Time
}

func NewCatalog(manager *Manager, repo repository.ChallengeRepository, scoring scoreboard.Settings) *Catalog {
	scoring.ApplyDefaults()
	return &Catalog{manager: manager, repo: repo, scoring: scoring, now: time.Now}
}

// List returns the challenges visible to uid that have already started.
// Errors raised by a challenge are rendered into its description instead
// of failing the whole list.
func (c *Catalog) List(ctx context.Context, uid string) ([]Summary, error) {
	rows, err := c.repo.Overview(ctx, uid, c.now())
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.DatabaseError, "list challenges failed: %v", err)
	}

	result := make([]Summary, 0, len(rows))
	for _, row := range rows {
		s := Summary{
			CID:    row.CID,
			Title:  row.CID,
			Tags:   []string{},
			Team:   row.Team,
			Start:  row.Start,
			Stop:   row.Stop,
			Solves: row.Solves,
		}
		s.SolveTime = row.SolveTime
		solved := row.SolveTime != nil

		inst, ok := c.manager.Get(row.CID)
		if !ok {
			s.Description = renderError(fmt.Errorf("challenge %s is not loaded", row.CID))
			result = append(result, s)
			continue
		}
		def := inst.Definition()
		s.Title = def.Title()

		if !solved {
			visible, err := def.Visible(ctx, uid)
			if err != nil {
				c.logFailure(ctx, row.CID, "visible", err)
				s.Description = renderError(err)
				result = append(result, s)
				continue
			}
			if !visible {
				continue
			}
		}
		if t, ok := def.(Tagger); ok {
			s.Tags = append(s.Tags, t.Tags()...)
		}
		desc, err := def.Description(ctx, uid, solved)
		if err != nil {
			c.logFailure(ctx, row.CID, "description", err)
			desc = renderError(err)
		}
		s.Description = desc

		fixed := fixedPoints(def)
		s.Points = c.scoring.ChallengePoints(row.Solves, fixed)
		if row.SolveRank > 0 {
			s.FirstSolveBonus = c.scoring.SolveBonus(row.SolveRank-1, fixed)
		} else {
			s.FirstSolveBonus = c.scoring.SolveBonus(row.Solves, fixed)
		}
		result = append(result, s)
	}
	return result, nil
}

// Title returns the display title of cid, or cid itself when unknown.
func (c *Catalog) Title(cid string) string {
	if inst, ok := c.manager.Get(cid); ok {
		return inst.Definition().Title()
	}
	return cid
}

// FixedPointsByID collects hardcoded points of all loaded challenges.
func (c *Catalog) FixedPointsByID() map[string]int {
	out := make(map[string]int)
	for _, inst := range c.manager.List() {
		if p := fixedPoints(inst.Definition()); p != nil {
			out[inst.ID()] = *p
		}
	}
	return out
}

func (c *Catalog) logFailure(ctx context.Context, cid, op string, err error) {
	logger.Warn(logger.WithChallenge(ctx, cid), "challenge listing failed", zap.String("op", op), zap.Error(err))
}

func fixedPoints(def Definition) *int {
	if fp, ok := def.(FixedPoints); ok {
		if p, ok := fp.FixedPoints(); ok {
			return &p
		}
	}
	return nil
}

func renderError(err error) string {
	return "<pre>" + html.EscapeString(err.Error()) + "</pre>"
}
