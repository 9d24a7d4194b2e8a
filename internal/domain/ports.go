package domain

import (
	"context"
	"time"
)

// File is a document read from the content store.
type File struct {
	// Content is the decoded document body.
	Content []byte

	// SHA is the blob hash of the document. It must be passed back to
	// ContentStore.PutFile to update the document.
	SHA string
}

// Commit describes a successful write to the content store.
type Commit struct {
	// SHA is the commit hash.
	SHA string

	// ContentSHA is the blob hash of the written document.
	ContentSHA string

	// HTMLURL is a browsable link to the commit.
	HTMLURL string
}

// ContentStore is the repository-backed document store that holds the feed.
// Paths are relative to the repository root.
type ContentStore interface {
	// GetFile returns the document at path. A missing document is reported as
	// (nil, nil), not as an error.
	GetFile(ctx context.Context, path string) (*File, error)

	// PutFile creates the document at path when sha is empty, or replaces it
	// when sha matches the current blob. A stale or missing sha fails with an
	// error wrapping ErrConflict.
	PutFile(ctx context.Context, path string, content []byte, message, sha string) (*Commit, error)

	// WebURL returns a browsable URL for the document at path.
	WebURL(path string) string
}

// JournalStatus is the lifecycle state of a journaled post record.
type JournalStatus string

const (
	// JournalWritten means the record file exists but the index does not
	// reference it yet.
	JournalWritten JournalStatus = "written"

	// JournalIndexed means the index references the record.
	JournalIndexed JournalStatus = "indexed"

	// JournalMissing means the record file disappeared before it was indexed.
	JournalMissing JournalStatus = "missing"
)

// JournalEntry tracks one post record between its write and its indexing.
type JournalEntry struct {
	PostID    string
	Path      string
	CreatedAt time.Time
	Status    JournalStatus
}

// PublishJournal persists which post records were written and whether they
// made it into the index, so orphaned records can be relinked later.
type PublishJournal interface {
	// RecordWritten stores a new entry in the written state. Recording the
	// same post twice is a no-op.
	RecordWritten(ctx context.Context, entry JournalEntry) error

	// MarkIndexed moves an entry to the indexed state.
	MarkIndexed(ctx context.Context, postID string) error

	// MarkMissing moves an entry to the missing state.
	MarkMissing(ctx context.Context, postID string) error

	// Pending returns up to limit entries still in the written state that
	// were created before olderThan, oldest first.
	Pending(ctx context.Context, olderThan time.Time, limit int) ([]JournalEntry, error)
}

// PostNotifier is told about every post that made it into the index.
type PostNotifier interface {
	NotifyPost(summary PostSummary)
}

// ContentSanitizer cleans user supplied post content before it is stored.
type ContentSanitizer interface {
	Sanitize(content string) string
}

// Metrics receives domain level counters.
type Metrics interface {
	RecordPublish(outcome string)
	RecordIndexConflict()
	RecordOrphan()
	RecordHydrationFallback()
	RecordActivity(outcome string)
}

type nopMetrics struct{}

func (nopMetrics) RecordPublish(string)     {}
func (nopMetrics) RecordIndexConflict()     {}
func (nopMetrics) RecordOrphan()            {}
func (nopMetrics) RecordHydrationFallback() {}
func (nopMetrics) RecordActivity(string)    {}
