package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ctfoj/internal/common/db"
)

// Submission records one successful redemption.
type Submission struct {
	ID        int64
	Timestamp time.Time
	UID       string
	FID       string
}

// Solve is a submission resolved to its challenge and the solver's team.
type Solve struct {
	Submission
	CID string
	// TID is empty for users without a team.
	TID string
}

type SubmissionRepository interface {
	Insert(ctx context.Context, tx db.Transaction, s *Submission) (int64, error)
	CountByFlag(ctx context.Context, tx db.Transaction, fid string) (int, error)
	// HasSolved reports whether uid, or a teammate when team is set, has a
	// submission for any flag of cid.
	HasSolved(ctx context.Context, tx db.Transaction, uid, cid string, team bool) (bool, error)
	ListByFlag(ctx context.Context, fid string) ([]Submission, error)
	// Delete removes the submissions of fid, only those of uid when uid is set.
	Delete(ctx context.Context, tx db.Transaction, fid, uid string) (int64, error)
	// ListSolves returns every submission in commit order.
	ListSolves(ctx context.Context) ([]Solve, error)
}

type MySQLSubmissionRepository struct {
	db db.Database
}

func NewSubmissionRepository(database db.Database) SubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

func (r *MySQLSubmissionRepository) Insert(ctx context.Context, tx db.Transaction, s *Submission) (int64, error) {
	if s == nil || s.UID == "" || s.FID == "" {
		return 0, errors.New("uid and fid are required")
	}
	query := "INSERT INTO submissions (timestamp, uid, fid) VALUES (?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, s.Timestamp.UTC(), s.UID, s.FID)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	s.ID = id
	return id, nil
}

func (r *MySQLSubmissionRepository) CountByFlag(ctx context.Context, tx db.Transaction, fid string) (int, error) {
	var count int
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, "SELECT COUNT(*) FROM submissions WHERE fid = ?", fid).Scan(&count)
	return count, err
}

func (r *MySQLSubmissionRepository) HasSolved(ctx context.Context, tx db.Transaction, uid, cid string, team bool) (bool, error) {
	query := `
		SELECT COUNT(*) FROM submissions s
		JOIN flags f ON f.fid = s.fid
		WHERE f.cid = ? AND (
			s.uid = ? OR (? AND s.uid IN (
				SELECT mate.uid FROM teams mate JOIN teams me ON me.tid = mate.tid WHERE me.uid = ?
			))
		)`
	var count int
	if err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, cid, uid, team, uid).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MySQLSubmissionRepository) ListByFlag(ctx context.Context, fid string) ([]Submission, error) {
	rows, err := r.db.Query(ctx, "SELECT id, timestamp, uid, fid FROM submissions WHERE fid = ? ORDER BY id", fid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *MySQLSubmissionRepository) Delete(ctx context.Context, tx db.Transaction, fid, uid string) (int64, error) {
	query := "DELETE FROM submissions WHERE fid = ?"
	args := []interface{}{fid}
	if uid != "" {
		query += " AND uid = ?"
		args = append(args, uid)
	}
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (r *MySQLSubmissionRepository) ListSolves(ctx context.Context) ([]Solve, error) {
	query := `
		SELECT s.id, s.timestamp, s.uid, s.fid, f.cid, t.tid
		FROM submissions s
		JOIN flags f ON f.fid = s.fid
		LEFT JOIN teams t ON t.uid = s.uid
		ORDER BY s.id`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Solve
	for rows.Next() {
		var (
			s   Solve
			tid sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.Timestamp, &s.UID, &s.FID, &s.CID, &tid); err != nil {
			return nil, err
		}
		s.TID = tid.String
		result = append(result, s)
	}
	return result, rows.Err()
}

func scanSubmission(scanner db.Scanner) (Submission, error) {
	var s Submission
	if err := scanner.Scan(&s.ID, &s.Timestamp, &s.UID, &s.FID); err != nil {
		return Submission{}, err
	}
	return s, nil
}
