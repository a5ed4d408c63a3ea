package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ctfoj/internal/common/db"
)

var ErrChallengeNotFound = errors.New("challenge not found")

// Challenge is a row of the challenges table.
type Challenge struct {
	CID   string
	Start time.Time
	Stop  time.Time
	Team  bool
}

// Overview is a challenge with solve statistics as seen by one user.
type Overview struct {
	Challenge
	Solves int
	// SolveTime is when the user (or their team, for team challenges)
	// solved the challenge; nil when unsolved.
	SolveTime *time.Time
	// SolveRank is the 1-based position of that solve, 0 when unsolved.
	SolveRank int
}

type ChallengeRepository interface {
	// Upsert inserts or replaces a challenge.
	Upsert(ctx context.Context, tx db.Transaction, c Challenge) error
	Get(ctx context.Context, tx db.Transaction, cid string) (Challenge, error)
	List(ctx context.Context) ([]Challenge, error)
	ListIDs(ctx context.Context) ([]string, error)
	// Overview lists challenges that started before now with statistics for uid.
	Overview(ctx context.Context, uid string, now time.Time) ([]Overview, error)
}

type MySQLChallengeRepository struct {
	db db.Database
}

func NewChallengeRepository(database db.Database) ChallengeRepository {
	return &MySQLChallengeRepository{db: database}
}

func (r *MySQLChallengeRepository) Upsert(ctx context.Context, tx db.Transaction, c Challenge) error {
	if c.CID == "" {
		return errors.New("cid is required")
	}
	query := `
		INSERT INTO challenges (cid, t_start, t_stop, team) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE t_start = VALUES(t_start), t_stop = VALUES(t_stop), team = VALUES(team)`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, c.CID, c.Start.UTC(), c.Stop.UTC(), c.Team)
	return err
}

func (r *MySQLChallengeRepository) Get(ctx context.Context, tx db.Transaction, cid string) (Challenge, error) {
	query := "SELECT cid, t_start, t_stop, team FROM challenges WHERE cid = ?"
	c, err := scanChallenge(db.GetQuerier(r.db, tx).QueryRow(ctx, query, cid))
	if err != nil {
		if db.IsNoRows(err) {
			return Challenge{}, ErrChallengeNotFound
		}
		return Challenge{}, err
	}
	return c, nil
}

func (r *MySQLChallengeRepository) List(ctx context.Context) ([]Challenge, error) {
	rows, err := r.db.Query(ctx, "SELECT cid, t_start, t_stop, team FROM challenges ORDER BY cid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (r *MySQLChallengeRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, "SELECT cid FROM challenges ORDER BY cid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, err
		}
		ids = append(ids, cid)
	}
	return ids, rows.Err()
}

func (r *MySQLChallengeRepository) Overview(ctx context.Context, uid string, now time.Time) ([]Overview, error) {
	query := `
		SELECT o.cid, o.t_start, o.t_stop, o.team, o.solves, o.solve_time,
			CASE WHEN o.solve_time IS NULL THEN 0 ELSE (
				SELECT COUNT(*) FROM submissions s
				JOIN flags f ON f.fid = s.fid
				WHERE f.cid = o.cid AND s.timestamp <= o.solve_time
			) END AS solve_rank
		FROM (
			SELECT c.cid, c.t_start, c.t_stop, c.team,
				(SELECT COUNT(*) FROM submissions s JOIN flags f ON f.fid = s.fid WHERE f.cid = c.cid) AS solves,
				(SELECT MAX(s.timestamp) FROM submissions s
					JOIN flags f ON f.fid = s.fid
					WHERE f.cid = c.cid AND (
						s.uid = ? OR (c.team = 1 AND s.uid IN (
							SELECT mate.uid FROM teams mate JOIN teams me ON me.tid = mate.tid WHERE me.uid = ?
						))
					)
				) AS solve_time
			FROM challenges c
			WHERE c.t_start < ?
		) o
		ORDER BY o.cid`

	rows, err := r.db.Query(ctx, query, uid, uid, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Overview
	for rows.Next() {
		var (
			o         Overview
			solveTime sql.NullTime
		)
		if err := rows.Scan(&o.CID, &o.Start, &o.Stop, &o.Team, &o.Solves, &solveTime, &o.SolveRank); err != nil {
			return nil, err
		}
		if solveTime.Valid {
			t := solveTime.Time
			o.SolveTime = &t
		}
		result = append(result, o)
	}
	return result, rows.Err()
}

func scanChallenge(scanner db.Scanner) (Challenge, error) {
	var c Challenge
	if err := scanner.Scan(&c.CID, &c.Start, &c.Stop, &c.Team); err != nil {
		return Challenge{}, err
	}
	return c, nil
}
