package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS query_history (
	seq          INTEGER PRIMARY KEY,
	job_id       TEXT NOT NULL UNIQUE,
	query_text   TEXT NOT NULL,
	target_count INTEGER NOT NULL,
	overall      TEXT NOT NULL,
	submitted_at TEXT NOT NULL
);
`

// SQLiteStore persists history entries so they survive restarts. Round-trip
// preserves ordering and field values.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Append(ctx context.Context, entry Entry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_history (seq, job_id, query_text, target_count, overall, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Seq, entry.JobID, entry.QueryText, entry.TargetCount, entry.Overall,
		entry.SubmittedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, job_id, query_text, target_count, overall, submitted_at
		FROM query_history
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Find(ctx context.Context, jobID string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, job_id, query_text, target_count, overall, submitted_at
		FROM query_history
		WHERE job_id = ?
	`, jobID)

	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &NotFoundError{JobID: jobID}
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *SQLiteStore) MaxSeq(ctx context.Context) (uint64, error) {
	var max uint64
	row := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM query_history`)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("read max history seq: %w", err)
	}
	return max, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM query_history`)
	return err
}

func scanEntry(scan func(dest ...any) error) (Entry, error) {
	var entry Entry
	var submittedAt string
	if err := scan(&entry.Seq, &entry.JobID, &entry.QueryText, &entry.TargetCount,
		&entry.Overall, &submittedAt); err != nil {
		return Entry{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, submittedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse submitted_at: %w", err)
	}
	entry.SubmittedAt = ts
	return entry, nil
}
