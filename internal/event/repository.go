package event

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"ctfoj/internal/common/db"
)

const defaultListLimit = 100

// Filter narrows an event listing. Zero values match everything.
type Filter struct {
	// TypePrefix matches events whose type starts with the value, e.g. "flag-err".
	TypePrefix string
	CID        string
	UID        string
	// AfterID returns only events newer than the given id.
	AfterID int64
	Limit   int
}

// Repository persists audit events.
type Repository interface {
	Append(ctx context.Context, tx db.Transaction, ev *Event) (int64, error)
	UpdateData(ctx context.Context, id int64, data string) error
	// List returns matching events, newest first.
	List(ctx context.Context, filter Filter) ([]Event, error)
}

type MySQLRepository struct {
	db db.Database
}

func NewRepository(database db.Database) Repository {
	return &MySQLRepository{db: database}
}

func (r *MySQLRepository) Append(ctx context.Context, tx db.Transaction, ev *Event) (int64, error) {
	if ev == nil {
		return 0, errors.New("event is nil")
	}
	query := "INSERT INTO events (timestamp, ip, type, data, cid, uid) VALUES (?, ?, ?, ?, ?, ?)"
	result, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		ev.Timestamp, ev.IP, ev.Type, nullString(ev.Data), nullString(ev.CID), nullString(ev.UID))
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	ev.ID = id
	return id, nil
}

func (r *MySQLRepository) UpdateData(ctx context.Context, id int64, data string) error {
	_, err := r.db.Exec(ctx, "UPDATE events SET data = ? WHERE id = ?", nullString(data), id)
	return err
}

func (r *MySQLRepository) List(ctx context.Context, filter Filter) ([]Event, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.TypePrefix != "" {
		where = append(where, "type LIKE ?")
		args = append(args, escapeLike(filter.TypePrefix)+"%")
	}
	if filter.CID != "" {
		where = append(where, "cid = ?")
		args = append(args, filter.CID)
	}
	if filter.UID != "" {
		where = append(where, "uid = ?")
		args = append(args, filter.UID)
	}
	if filter.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.AfterID)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := "SELECT id, timestamp, ip, type, data, cid, uid FROM events"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanEvent(scanner db.Scanner) (Event, error) {
	var (
		ev             Event
		data, cid, uid sql.NullString
	)
	if err := scanner.Scan(&ev.ID, &ev.Timestamp, &ev.IP, &ev.Type, &data, &cid, &uid); err != nil {
		return Event{}, err
	}
	ev.Data = data.String
	ev.CID = cid.String
	ev.UID = uid.String
	return ev, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
