package repository

import (
	"context"
	"errors"

	"ctfoj/internal/common/db"
)

var ErrFlagNotFound = errors.New("flag not found")

// Flag is a row of the flags table.
type Flag struct {
	FID            string
	CID            string
	MaxSubmissions int
}

// Resolved is a flag joined with the team mode of its challenge.
type Resolved struct {
	Flag
	Team bool
}

// Usage is a flag with its current submission count.
type Usage struct {
	Flag
	Submissions int
}

type FlagRepository interface {
	// Upsert creates the flag or replaces its challenge and limit.
	Upsert(ctx context.Context, tx db.Transaction, f Flag) error
	Get(ctx context.Context, tx db.Transaction, fid string) (Flag, error)
	// Resolve finds the flag whose id equals raw or normalized, preferring
	// the exact match. Flags of unknown challenges never resolve.
	Resolve(ctx context.Context, tx db.Transaction, raw, normalized string) (Resolved, error)
	// LockForUpdate reads the flag holding a row lock until tx ends.
	LockForUpdate(ctx context.Context, tx db.Transaction, fid string) (Flag, error)
	SetLimit(ctx context.Context, tx db.Transaction, fid string, maxSubmissions int) error
	// List returns flags with usage, optionally restricted to one challenge.
	List(ctx context.Context, cid string) ([]Usage, error)
	Delete(ctx context.Context, tx db.Transaction, fid string) error
}

type MySQLFlagRepository struct {
	db db.Database
}

func NewFlagRepository(database db.Database) FlagRepository {
	return &MySQLFlagRepository{db: database}
}

func (r *MySQLFlagRepository) Upsert(ctx context.Context, tx db.Transaction, f Flag) error {
	if f.FID == "" || f.CID == "" {
		return errors.New("fid and cid are required")
	}
	query := `
		INSERT INTO flags (fid, cid, max_submissions) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE cid = VALUES(cid), max_submissions = VALUES(max_submissions)`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, f.FID, f.CID, f.MaxSubmissions)
	return err
}

func (r *MySQLFlagRepository) Get(ctx context.Context, tx db.Transaction, fid string) (Flag, error) {
	query := "SELECT fid, cid, max_submissions FROM flags WHERE fid = ?"
	return r.getOne(ctx, tx, query, fid)
}

func (r *MySQLFlagRepository) LockForUpdate(ctx context.Context, tx db.Transaction, fid string) (Flag, error) {
	if tx == nil {
		return Flag{}, errors.New("lock requires a transaction")
	}
	query := "SELECT fid, cid, max_submissions FROM flags WHERE fid = ? FOR UPDATE"
	return r.getOne(ctx, tx, query, fid)
}

func (r *MySQLFlagRepository) Resolve(ctx context.Context, tx db.Transaction, raw, normalized string) (Resolved, error) {
	query := `
		SELECT f.fid, f.cid, f.max_submissions, c.team
		FROM flags f JOIN challenges c ON c.cid = f.cid
		WHERE f.fid = ? OR f.fid = ?
		ORDER BY f.fid = ? DESC
		LIMIT 1`
	var res Resolved
	err := db.GetQuerier(r.db, tx).QueryRow(ctx, query, raw, normalized, raw).
		Scan(&res.FID, &res.CID, &res.MaxSubmissions, &res.Team)
	if err != nil {
		if db.IsNoRows(err) {
			return Resolved{}, ErrFlagNotFound
		}
		return Resolved{}, err
	}
	return res, nil
}

func (r *MySQLFlagRepository) SetLimit(ctx context.Context, tx db.Transaction, fid string, maxSubmissions int) error {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, "UPDATE flags SET max_submissions = ? WHERE fid = ?", maxSubmissions, fid)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrFlagNotFound)
}

func (r *MySQLFlagRepository) List(ctx context.Context, cid string) ([]Usage, error) {
	query := `
		SELECT f.fid, f.cid, f.max_submissions, COUNT(s.id)
		FROM flags f LEFT JOIN submissions s ON s.fid = f.fid
		WHERE ? = '' OR f.cid = ?
		GROUP BY f.fid, f.cid, f.max_submissions
		ORDER BY f.cid, f.fid`
	rows, err := r.db.Query(ctx, query, cid, cid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Usage
	for rows.Next() {
		var u Usage
		if err := rows.Scan(&u.FID, &u.CID, &u.MaxSubmissions, &u.Submissions); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (r *MySQLFlagRepository) Delete(ctx context.Context, tx db.Transaction, fid string) error {
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, "DELETE FROM flags WHERE fid = ?", fid)
	if err != nil {
		return err
	}
	return requireAffected(result, ErrFlagNotFound)
}

func (r *MySQLFlagRepository) getOne(ctx context.Context, tx db.Transaction, query string, args ...interface{}) (Flag, error) {
	f, err := scanFlag(db.GetQuerier(r.db, tx).QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsNoRows(err) {
			return Flag{}, ErrFlagNotFound
		}
		return Flag{}, err
	}
	return f, nil
}

func scanFlag(scanner db.Scanner) (Flag, error) {
	var f Flag
	if err := scanner.Scan(&f.FID, &f.CID, &f.MaxSubmissions); err != nil {
		return Flag{}, err
	}
	return f, nil
}

func requireAffected(result db.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
