package scoreboard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"ctfoj/internal/common/cache"
	"ctfoj/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultScoresKey = "ctf:scores"

	solversKeyPrefix = "ctf:solvers:"
	solvedIndexKey   = "ctf:solved-cids"
	boardLockKey     = "ctf:scoreboard:lock"

	defaultLockTTL  = 5 * time.Second
	lockRetryDelay  = 20 * time.Millisecond
	tieBreakDivisor = 100_000_000_000
)

// Standing is one row of the scoreboard.
type Standing struct {
	Rank  int    `json:"rank"`
	Team  string `json:"team"`
	Score int    `json:"score"`
}

// Board keeps team scores in a Redis sorted set. Every solve re-prices the
// challenge, so earlier solvers lose what the new solve takes off its value.
type Board struct {
	cache     cache.Cache
	settings  Settings
	fixed     map[string]int
	scoresKey string
	lockTTL   time.Duration
}

// NewBoard creates a board. fixed maps challenge ids to hardcoded points.
func NewBoard(c cache.Cache, settings Settings, fixed map[string]int) *Board {
	settings.ApplyDefaults()
	if fixed == nil {
		fixed = map[string]int{}
	}
	return &Board{
		cache:     c,
		settings:  settings,
		fixed:     fixed,
		scoresKey: DefaultScoresKey,
		lockTTL:   defaultLockTTL,
	}
}

// Settings returns the scoring curve used by the board.
func (b *Board) Settings() Settings { return b.settings }

// Fixed returns the hardcoded points of cid, or nil.
func (b *Board) Fixed(cid string) *int {
	if p, ok := b.fixed[cid]; ok {
		return &p
	}
	return nil
}

// Apply records that team solved cid at the given time. It reports false
// for ignored teams, repeated solves and unscored challenges.
func (b *Board) Apply(ctx context.Context, team, cid string, at time.Time) (bool, error) {
	if team == "" || strings.HasPrefix(team, "_") {
		return false, nil
	}
	if err := b.lock(ctx); err != nil {
		return false, err
	}
	defer func() {
		if err := b.cache.Unlock(context.WithoutCancel(ctx), boardLockKey); err != nil {
			logger.Warn(ctx, "release scoreboard lock failed", zap.Error(err))
		}
	}()

	solved, err := b.cache.SIsMember(ctx, solversKey(cid), team)
	if err != nil {
		return false, fmt.Errorf("check solver failed: %w", err)
	}
	if solved {
		return false, nil
	}
	fixed := b.Fixed(cid)
	solvers, err := b.cache.SMembers(ctx, solversKey(cid))
	if err != nil {
		return false, fmt.Errorf("read solvers failed: %w", err)
	}
	existing := len(solvers)
	oldPoints := b.settings.ChallengePoints(existing, fixed)
	newPoints := b.settings.ChallengePoints(existing+1, fixed)
	if oldPoints == 0 && newPoints == 0 {
		return false, nil
	}
	delta := oldPoints - newPoints

	if _, err := b.cache.SAdd(ctx, solversKey(cid), team); err != nil {
		return false, fmt.Errorf("record solver failed: %w", err)
	}
	if _, err := b.cache.SAdd(ctx, solvedIndexKey, cid); err != nil {
		return false, fmt.Errorf("index solved challenge failed: %w", err)
	}

	score, err := b.cache.ZScore(ctx, b.scoresKey, team)
	if err != nil {
		return false, fmt.Errorf("read score failed: %w", err)
	}
	// Equal scores rank the team that got there first higher.
	score = math.Ceil(score+float64(newPoints)) - float64(at.Unix())/tieBreakDivisor
	if newPoints > 0 {
		score += float64(b.settings.SolveBonus(existing, fixed))
	}
	if err := b.cache.ZAdd(ctx, b.scoresKey, score, team); err != nil {
		return false, fmt.Errorf("write score failed: %w", err)
	}
	if delta != 0 {
		for _, other := range solvers {
			if _, err := b.cache.ZIncrBy(ctx, b.scoresKey, -float64(delta), other); err != nil {
				return false, fmt.Errorf("adjust score of %s failed: %w", other, err)
			}
		}
	}
	return true, nil
}

// Top returns the n best teams.
func (b *Board) Top(ctx context.Context, n int) ([]Standing, error) {
	if n <= 0 {
		n = 10
	}
	members, err := b.cache.ZRevRangeWithScores(ctx, b.scoresKey, 0, int64(n-1))
	if err != nil {
		return nil, fmt.Errorf("read scoreboard failed: %w", err)
	}
	standings := make([]Standing, 0, len(members))
	for i, m := range members {
		standings = append(standings, Standing{Rank: i + 1, Team: m.Member, Score: int(math.Ceil(m.Score))})
	}
	return standings, nil
}

// Solvers lists the teams that solved cid.
func (b *Board) Solvers(ctx context.Context, cid string) ([]string, error) {
	return b.cache.SMembers(ctx, solversKey(cid))
}

// Reset clears all scores and solver sets.
func (b *Board) Reset(ctx context.Context) error {
	cids, err := b.cache.SMembers(ctx, solvedIndexKey)
	if err != nil {
		return fmt.Errorf("read solved index failed: %w", err)
	}
	keys := []string{b.scoresKey, solvedIndexKey}
	for _, cid := range cids {
		keys = append(keys, solversKey(cid))
	}
	return b.cache.Del(ctx, keys...)
}

func (b *Board) lock(ctx context.Context) error {
	for {
		ok, err := b.cache.TryLock(ctx, boardLockKey, b.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire scoreboard lock failed: %w", err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Join(errors.New("acquire scoreboard lock canceled"), ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}
}

func solversKey(cid string) string {
	return solversKeyPrefix + cid
}
