package repository

import (
	"context"
	"errors"

	"ctfoj/internal/common/db"
)

type User struct {
	UID          string
	PasswordHash string
}

type UserRepository interface {
	Create(ctx context.Context, tx db.Transaction, user *User) error
	Exists(ctx context.Context, uid string) (bool, error)
	GetPasswordHash(ctx context.Context, uid string) (string, error)
	UpdatePassword(ctx context.Context, tx db.Transaction, uid, hash string) error
	ListIDs(ctx context.Context) ([]string, error)
}

type MySQLUserRepository struct {
	dbProvider db.Provider
}

func NewUserRepository(provider db.Provider) UserRepository {
	return &MySQLUserRepository{dbProvider: provider}
}

func (r *MySQLUserRepository) Create(ctx context.Context, tx db.Transaction, user *User) error {
	if user == nil || user.UID == "" {
		return errors.New("uid is required")
	}
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	_, err = querier.Exec(ctx, "INSERT INTO users (uid, password_hash) VALUES (?, ?)", user.UID, user.PasswordHash)
	if err != nil {
		if _, ok := db.UniqueViolation(err); ok {
			return ErrUserExists
		}
		return err
	}
	return nil
}

func (r *MySQLUserRepository) Exists(ctx context.Context, uid string) (bool, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return false, err
	}
	var count int
	if err := querier.QueryRow(ctx, "SELECT COUNT(*) FROM users WHERE uid = ?", uid).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MySQLUserRepository) GetPasswordHash(ctx context.Context, uid string) (string, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return "", err
	}
	var hash string
	if err := querier.QueryRow(ctx, "SELECT password_hash FROM users WHERE uid = ?", uid).Scan(&hash); err != nil {
		if db.IsNoRows(err) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return hash, nil
}

func (r *MySQLUserRepository) UpdatePassword(ctx context.Context, tx db.Transaction, uid, hash string) error {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return err
	}
	result, err := querier.Exec(ctx, "UPDATE users SET password_hash = ? WHERE uid = ?", hash, uid)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MySQLUserRepository) ListIDs(ctx context.Context) ([]string, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	rows, err := querier.Query(ctx, "SELECT uid FROM users ORDER BY uid")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		ids = append(ids, uid)
	}
	return ids, rows.Err()
}
