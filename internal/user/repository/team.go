package repository

import (
	"context"

	"ctfoj/internal/common/db"
)

// TeamRepository reads and writes team membership. A user belongs to at
// most one team.
type TeamRepository interface {
	// TeamOf returns the team of uid and whether it has one.
	TeamOf(ctx context.Context, uid string) (string, bool, error)
	// Join moves uid into tid, leaving any previous team.
	Join(ctx context.Context, tx db.Transaction, uid, tid string) error
	Leave(ctx context.Context, tx db.Transaction, uid string) error
	Members(ctx context.Context, tid string) ([]string, error)
}

type MySQLTeamRepository struct {
	dbProvider db.Provider
}

func NewTeamRepository(provider db.Provider) TeamRepository {
	return &MySQLTeamRepository{dbProvider: provider}
}

func (r *MySQLTeamRepository) TeamOf(ctx context.Context, uid string) (string, bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return "", false, err
	}
	var tid string
	if err := querier.QueryRow(ctx, "SELECT tid FROM teams WHERE uid = ?", uid).Scan(&tid); err != nil {
		if db.IsNoRows(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return tid, true, nil
}

func (r *MySQLTeamRepository) Join(ctx context.Context, tx db.Transaction, uid, tid string) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	query := "INSERT INTO teams (uid, tid) VALUES (?, ?) ON DUPLICATE KEY UPDATE tid = VALUES(tid)"
	_, err = querier.Exec(ctx, query, uid, tid)
	return err
}

func (r *MySQLTeamRepository) Leave(ctx context.Context, tx db.Transaction, uid string) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	_, err = querier.Exec(ctx, "DELETE FROM teams WHERE uid = ?", uid)
	return err
}

func (r *MySQLTeamRepository) Members(ctx context.Context, tid string) ([]string, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	rows, err := querier.Query(ctx, "SELECT uid FROM teams WHERE tid = ? ORDER BY uid", tid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		members = append(members, uid)
	}
	return members, rows.Err()
}
