package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

// Journal implements domain.PublishJournal using PostgreSQL.
type Journal struct {
	db *sql.DB
}

// NewJournal connects to PostgreSQL at the given URL, applies the schema
// migrations, and returns a new Journal. The caller should call Close when
// the journal is no longer needed.
func NewJournal(ctx context.Context, databaseURL string) (*Journal, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(databaseURL); err != nil {
		db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RecordWritten inserts a new entry. Entries that already exist are left
// untouched.
func (j *Journal) RecordWritten(ctx context.Context, entry domain.JournalEntry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO publish_journal (post_id, path, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (post_id) DO NOTHING`,
		entry.PostID,
		entry.Path,
		string(domain.JournalWritten),
		entry.CreatedAt.UTC(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert journal entry %s: %w", entry.PostID, err)
	}
	return nil
}

// MarkIndexed moves an entry to the indexed state.
func (j *Journal) MarkIndexed(ctx context.Context, postID string) error {
	return j.setStatus(ctx, postID, domain.JournalIndexed)
}

// MarkMissing moves an entry to the missing state.
func (j *Journal) MarkMissing(ctx context.Context, postID string) error {
	return j.setStatus(ctx, postID, domain.JournalMissing)
}

func (j *Journal) setStatus(ctx context.Context, postID string, status domain.JournalStatus) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE publish_journal SET status = $2, updated_at = $3 WHERE post_id = $1`,
		postID, string(status), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark journal entry %s %s: %w", postID, status, err)
	}
	return nil
}

// Pending returns written entries created before olderThan, oldest first.
func (j *Journal) Pending(ctx context.Context, olderThan time.Time, limit int) ([]domain.JournalEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT post_id, path, status, created_at
		FROM publish_journal
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at ASC, post_id ASC
		LIMIT $3`,
		string(domain.JournalWritten), olderThan.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending journal entries (limit=%d): %w", limit, err)
	}
	defer rows.Close()

	var entries []domain.JournalEntry
	for rows.Next() {
		var (
			e      domain.JournalEntry
			status string
		)
		if err := rows.Scan(&e.PostID, &e.Path, &status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Status = domain.JournalStatus(status)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}

	return entries, nil
}
