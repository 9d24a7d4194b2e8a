// Package sqlite provides a publish journal stored in a local SQLite file,
// for single-node deployments and the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS publish_journal (
    post_id    TEXT PRIMARY KEY,
    path       TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'written',
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_publish_journal_pending
    ON publish_journal (status, created_at);
`

// Journal implements domain.PublishJournal using SQLite. Timestamps are
// stored as unix milliseconds.
type Journal struct {
	db *sql.DB
}

// NewJournal opens (creating if needed) the SQLite database at path and
// ensures the schema exists.
func NewJournal(ctx context.Context, path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) RecordWritten(ctx context.Context, entry domain.JournalEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO publish_journal (post_id, path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (post_id) DO NOTHING`,
		entry.PostID,
		entry.Path,
		string(domain.JournalWritten),
		entry.CreatedAt.UnixMilli(),
		time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry %s: %w", entry.PostID, err)
	}
	return nil
}

func (j *Journal) MarkIndexed(ctx context.Context, postID string) error {
	return j.setStatus(ctx, postID, domain.JournalIndexed)
}

func (j *Journal) MarkMissing(ctx context.Context, postID string) error {
	return j.setStatus(ctx, postID, domain.JournalMissing)
}

func (j *Journal) setStatus(ctx context.Context, postID string, status domain.JournalStatus) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE publish_journal SET status = ?, updated_at = ? WHERE post_id = ?`,
		string(status), time.Now().UnixMilli(), postID,
	)
	if err != nil {
		return fmt.Errorf("mark journal entry %s %s: %w", postID, status, err)
	}
	return nil
}

func (j *Journal) Pending(ctx context.Context, olderThan time.Time, limit int) ([]domain.JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT post_id, path, status, created_at
		FROM publish_journal
		WHERE status = ? AND created_at < ?
		ORDER BY created_at ASC, post_id ASC
		LIMIT ?`,
		string(domain.JournalWritten), olderThan.UnixMilli(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending journal entries (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e         domain.JournalEntry
			status    string
			createdAt int64
		)
		if err := rows.Scan(&e.PostID, &e.Path, &status, &createdAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Status = domain.JournalStatus(status)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}

	return entries, nil
}
