package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"msmanager/internal/activity"
)

var (
	ErrNotOpen       = errors.New("journal: database not open")
	ErrWorkerRunning = errors.New("journal: worker already running")
)

const schema = `
CREATE TABLE IF NOT EXISTS activity (
	id      VARCHAR PRIMARY KEY,
	ts      TIMESTAMP NOT NULL,
	level   VARCHAR NOT NULL,
	scope   VARCHAR NOT NULL,
	message VARCHAR NOT NULL,
	details VARCHAR
)`

const insertEntry = `INSERT INTO activity (id, ts, level, scope, message, details) VALUES (?, ?, ?, ?, ?, ?)`

// Journal reads and writes the activity table.
type Journal struct {
	client *Client
}

// Open opens the database at dsn and creates the table when missing.
func Open(ctx context.Context, dsn string, opts ...Option) (*Journal, error) {
	c, err := OpenClient(dsn, opts...)
	if err != nil {
		return nil, err
	}
	j := &Journal{client: c}
	if err := j.Migrate(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) Close() error { return j.client.Close() }

func (j *Journal) Migrate(ctx context.Context) error {
	if j.client.db == nil {
		return ErrNotOpen
	}
	if _, err := j.client.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate activity table: %w", err)
	}
	return nil
}

// Append stores entries in one transaction. Entries already stored are
// skipped.
func (j *Journal) Append(ctx context.Context, entries ...activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := j.client.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertEntry+" ON CONFLICT DO NOTHING")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		details := encodeDetails(e.Details)
		if _, err := stmt.ExecContext(ctx, e.ID.String(), e.Time.UTC(), string(e.Level), string(e.Scope), e.Message, details); err != nil {
			return fmt.Errorf("insert entry %s: %w", e.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty scope matches
// every scope.
func (j *Journal) Recent(ctx context.Context, limit int, scope activity.Scope) ([]activity.Entry, error) {
	if limit <= 0 {
		limit = activity.DefaultLimit
	}
	query := `SELECT id, ts, level, scope, message, details FROM activity`
	args := []any{}
	if scope != "" {
		query += ` WHERE scope = ?`
		args = append(args, string(scope))
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.client.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var out []activity.Entry
	for rows.Next() {
		var (
			id, level, sc, msg string
			ts                 time.Time
			details            sql.NullString
		)
		if err := rows.Scan(&id, &ts, &level, &sc, &msg, &details); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e := activity.Entry{
			Time:    ts,
			Level:   activity.Level(level),
			Scope:   activity.Scope(sc),
			Message: msg,
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("entry id %q: %w", id, err)
		}
		if details.Valid {
			var v any
			if json.Unmarshal([]byte(details.String), &v) == nil {
				e.Details = v
			} else {
				e.Details = details.String
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries.
func (j *Journal) Count(ctx context.Context) (int, error) {
	var n int
	if err := j.client.db.QueryRowContext(ctx, `SELECT count(*) FROM activity`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count activity: %w", err)
	}
	return n, nil
}

// encodeDetails stores details as JSON, or as text when they do not marshal.
func encodeDetails(v any) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{String: fmt.Sprintf("%v", v), Valid: true}
	}
	return sql.NullString{String: string(b), Valid: true}
}
