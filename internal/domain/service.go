package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Publish outcomes reported to Metrics.RecordPublish.
const (
	PublishOK       = "ok"
	PublishInvalid  = "invalid"
	PublishFailed   = "failed"
	PublishOrphaned = "orphaned"
)

// FeedServiceConfig wires a FeedService. Only Store is required.
type FeedServiceConfig struct {
	Store ContentStore

	// Journal tracks records between their write and their indexing. Nil
	// disables journaling and reconciliation.
	Journal PublishJournal

	// Notifier is told about every indexed post.
	Notifier PostNotifier

	// Sanitizer cleans post content before it is stored.
	Sanitizer ContentSanitizer

	Metrics Metrics
	Logger  *slog.Logger

	// IndexWriteAttempts bounds the conflict retry of index updates.
	// Defaults to DefaultWriteAttempts.
	IndexWriteAttempts int

	// Now overrides the clock in tests.
	Now func() time.Time
}

// FeedService publishes posts into the content store and reads them back
// through the feed index.
type FeedService struct {
	store     ContentStore
	journal   PublishJournal
	notifier  PostNotifier
	sanitizer ContentSanitizer
	metrics   Metrics
	logger    *slog.Logger
	writer    documentWriter
	now       func() time.Time
}

// NewFeedService creates a FeedService from cfg.
func NewFeedService(cfg FeedServiceConfig) *FeedService {
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.IndexWriteAttempts <= 0 {
		cfg.IndexWriteAttempts = DefaultWriteAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &FeedService{
		store:     cfg.Store,
		journal:   cfg.Journal,
		notifier:  cfg.Notifier,
		sanitizer: cfg.Sanitizer,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		writer: documentWriter{
			store:      cfg.Store,
			attempts:   cfg.IndexWriteAttempts,
			logger:     cfg.Logger,
			onConflict: cfg.Metrics.RecordIndexConflict,
		},
		now: cfg.Now,
	}
}

// PublishPost stores a new post record and links it from the feed index.
//
// The record is written first. If the index cannot be updated afterwards the
// record stays in the store without being discoverable, an error is returned,
// and the journal (when configured) keeps it pending for Reconcile.
func (s *FeedService) PublishPost(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if err := validateInput(in); err != nil {
		s.metrics.RecordPublish(PublishInvalid)
		return nil, err
	}
	if s.sanitizer != nil {
		in.Content = s.sanitizer.Sanitize(in.Content)
		if strings.TrimSpace(in.Content) == "" {
			s.metrics.RecordPublish(PublishInvalid)
			return nil, fmt.Errorf("%w: content (notblank)", ErrInvalidInput)
		}
	}

	now := s.now().UTC()
	id := NewPostID(now)
	path := PostPath(id, now)
	record := newPostRecord(id, in, now)

	body, err := marshalDocument(record)
	if err != nil {
		return nil, fmt.Errorf("encode post %s: %w", id, err)
	}

	s.logger.Info("publishing post", "post_id", id, "path", path, "user_id", in.UserID)

	if _, err := s.store.PutFile(ctx, path, body, fmt.Sprintf("New post %s by @%s", id, in.UserName), ""); err != nil {
		s.metrics.RecordPublish(PublishFailed)
		return nil, fmt.Errorf("write post %s: %w", id, err)
	}
	s.journalWritten(ctx, JournalEntry{PostID: id, Path: path, CreatedAt: now, Status: JournalWritten})

	summary := record.Summary(path)
	_, _, err = updateDocument(ctx, s.writer, FeedIndexPath, fmt.Sprintf("Update index: new post %s", id), func(idx *FeedIndex) error {
		idx.Prepend(summary)
		idx.LastUpdated = formatTimestamp(s.now())
		return nil
	})
	if err != nil {
		s.metrics.RecordPublish(PublishOrphaned)
		s.metrics.RecordOrphan()
		s.logger.Error("post written but not indexed", "post_id", id, "path", path, "error", err)
		return nil, fmt.Errorf("update feed index for post %s: %w", id, err)
	}
	s.journalIndexed(ctx, id)

	if s.notifier != nil {
		s.notifier.NotifyPost(summary)
	}
	s.metrics.RecordPublish(PublishOK)
	s.logger.Info("post published", "post_id", id)

	return &PublishResult{
		PostID: id,
		Path:   path,
		URL:    s.store.WebURL(path),
	}, nil
}

// FetchLatestPosts returns the newest indexed posts matching q. A missing
// index yields an empty page. When q.WithContent is set each post is replaced
// by its full record; posts whose record cannot be read keep their summary.
func (s *FeedService) FetchLatestPosts(ctx context.Context, q FeedQuery) (*FeedPage, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultFeedLimit
	}

	idx, found, err := readDocument[FeedIndex](ctx, s.store, FeedIndexPath)
	if err != nil {
		return nil, fmt.Errorf("fetch feed index: %w", err)
	}
	if !found {
		return &FeedPage{Posts: []FeedEntry{}}, nil
	}

	filtered := idx.Filter(q)
	window := filtered[:min(q.Limit, len(filtered))]

	s.logger.Debug("feed query", "total_posts", idx.TotalPosts, "filtered", len(filtered), "limit", q.Limit, "with_content", q.WithContent)

	entries := make([]FeedEntry, 0, len(window))
	for _, summary := range window {
		entry := FeedEntry{Summary: summary}
		if q.WithContent {
			entry.Record = s.hydrate(ctx, summary)
		}
		entries = append(entries, entry)
	}

	return &FeedPage{
		Posts:         entries,
		TotalPosts:    idx.TotalPosts,
		FilteredTotal: len(filtered),
		LastUpdated:   idx.LastUpdated,
		HasMore:       len(filtered) > q.Limit,
	}, nil
}

// hydrate reads the record behind summary. It returns nil when the record is
// missing or unreadable so the caller falls back to the summary.
func (s *FeedService) hydrate(ctx context.Context, summary PostSummary) *PostRecord {
	record, found, err := readDocument[PostRecord](ctx, s.store, summary.FilePath)
	switch {
	case err != nil:
		s.logger.Warn("post hydration failed, using summary", "post_id", summary.ID, "path", summary.FilePath, "error", err)
	case !found:
		s.logger.Warn("post record missing, using summary", "post_id", summary.ID, "path", summary.FilePath)
	default:
		return record
	}
	s.metrics.RecordHydrationFallback()
	return nil
}

// FetchPostByID returns the full record of an indexed post.
func (s *FeedService) FetchPostByID(ctx context.Context, id string) (*PostRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: id (notblank)", ErrInvalidInput)
	}

	idx, _, err := readDocument[FeedIndex](ctx, s.store, FeedIndexPath)
	if err != nil {
		return nil, fmt.Errorf("fetch feed index: %w", err)
	}

	summary, ok := idx.Find(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPostNotFound, id)
	}

	record, found, err := readDocument[PostRecord](ctx, s.store, summary.FilePath)
	if err != nil {
		return nil, fmt.Errorf("fetch post %s: %w", id, err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrPostContentMissing, summary.FilePath)
	}
	return record, nil
}

func (s *FeedService) journalWritten(ctx context.Context, entry JournalEntry) {
	if s.journal == nil {
		return
	}
	if err := s.journal.RecordWritten(ctx, entry); err != nil {
		s.logger.Error("journal record failed", "post_id", entry.PostID, "error", err)
	}
}

func (s *FeedService) journalIndexed(ctx context.Context, id string) {
	if s.journal == nil {
		return
	}
	if err := s.journal.MarkIndexed(ctx, id); err != nil {
		s.logger.Error("journal mark indexed failed", "post_id", id, "error", err)
	}
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the store.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidAction)
}
