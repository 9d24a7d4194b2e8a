package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// reconcileBatch caps how many journal entries one pass inspects.
const reconcileBatch = 100

// ReconcileReport summarises one reconciliation pass.
type ReconcileReport struct {
	Checked        int `json:"checked"`
	Relinked       int `json:"relinked"`
	AlreadyIndexed int `json:"alreadyIndexed"`
	Missing        int `json:"missing"`

	// Expired counts entries older than every post the full index retains.
	// They were evicted already, or would be on relink, so they are closed
	// without touching the index.
	Expired int `json:"expired"`
}

// errNothingToRelink aborts an index update that would not change the posts.
var errNothingToRelink = errors.New("nothing to relink")

type relinkCandidate struct {
	summary   PostSummary
	createdAt time.Time
}

// Reconcile links post records that were written but never indexed. Only
// journal entries created before olderThan are considered, so publishes that
// are still in flight are left alone.
func (s *FeedService) Reconcile(ctx context.Context, olderThan time.Time) (*ReconcileReport, error) {
	if s.journal == nil {
		return nil, ErrJournalDisabled
	}

	pending, err := s.journal.Pending(ctx, olderThan, reconcileBatch)
	if err != nil {
		return nil, fmt.Errorf("list pending journal entries: %w", err)
	}

	report := &ReconcileReport{Checked: len(pending)}
	if len(pending) == 0 {
		return report, nil
	}

	idx, _, err := readDocument[FeedIndex](ctx, s.store, FeedIndexPath)
	if err != nil {
		return nil, fmt.Errorf("fetch feed index: %w", err)
	}

	var candidates []relinkCandidate
	for _, entry := range pending {
		if _, ok := idx.Find(entry.PostID); ok {
			report.AlreadyIndexed++
			s.journalIndexed(ctx, entry.PostID)
			continue
		}
		if !idx.Retains(entry.CreatedAt) {
			report.Expired++
			s.logger.Info("reconcile: entry older than the index window", "post_id", entry.PostID, "created_at", entry.CreatedAt)
			s.journalIndexed(ctx, entry.PostID)
			continue
		}

		record, found, err := readDocument[PostRecord](ctx, s.store, entry.Path)
		if err != nil {
			s.logger.Warn("reconcile: read record failed", "post_id", entry.PostID, "path", entry.Path, "error", err)
			continue
		}
		if !found {
			report.Missing++
			if err := s.journal.MarkMissing(ctx, entry.PostID); err != nil {
				s.logger.Error("journal mark missing failed", "post_id", entry.PostID, "error", err)
			}
			continue
		}

		candidates = append(candidates, relinkCandidate{summary: record.Summary(entry.Path), createdAt: entry.CreatedAt})
	}

	if len(candidates) == 0 {
		return report, nil
	}

	// The index may have changed since it was read, so the candidates are
	// checked again against the document being written.
	var fresh []PostSummary
	var indexed, expired int
	_, _, err = updateDocument(ctx, s.writer, FeedIndexPath, fmt.Sprintf("Update index: relink %d orphaned posts", len(candidates)), func(idx *FeedIndex) error {
		fresh, indexed, expired = nil, 0, 0
		for _, c := range candidates {
			switch _, ok := idx.Find(c.summary.ID); {
			case ok:
				indexed++
			case !idx.Retains(c.createdAt):
				expired++
			default:
				fresh = append(fresh, c.summary)
			}
		}
		if len(fresh) == 0 {
			return errNothingToRelink
		}
		idx.Prepend(fresh...)
		idx.LastUpdated = formatTimestamp(s.now())
		return nil
	})
	if err != nil && !errors.Is(err, errNothingToRelink) {
		return nil, fmt.Errorf("relink orphaned posts: %w", err)
	}

	for _, c := range candidates {
		s.journalIndexed(ctx, c.summary.ID)
	}
	for _, summary := range fresh {
		if s.notifier != nil {
			s.notifier.NotifyPost(summary)
		}
	}
	report.Relinked = len(fresh)
	report.AlreadyIndexed += indexed
	report.Expired += expired

	s.logger.Info("reconcile complete",
		"checked", report.Checked,
		"relinked", report.Relinked,
		"already_indexed", report.AlreadyIndexed,
		"expired", report.Expired,
		"missing", report.Missing,
	)
	return report, nil
}

// StartReconcileJob runs Reconcile immediately and then on every interval,
// considering entries older than grace. It blocks until ctx is cancelled and
// returns immediately for a non-positive interval.
func (s *FeedService) StartReconcileJob(ctx context.Context, interval, grace time.Duration) {
	if interval <= 0 {
		s.logger.Error("reconcile job not started: interval must be positive", "interval", interval)
		return
	}
	s.runReconcile(ctx, grace)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runReconcile(ctx, grace)
		}
	}
}

func (s *FeedService) runReconcile(ctx context.Context, grace time.Duration) {
	if _, err := s.Reconcile(ctx, s.now().Add(-grace)); err != nil {
		s.logger.Error("reconcile failed", "error", err)
	}
}
