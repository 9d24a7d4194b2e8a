package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blackmichael/orkut-feed/internal/domain"
	"github.com/blackmichael/orkut-feed/internal/journal/journaltest"
)

func TestJournal(t *testing.T) {
	journaltest.Run(t, func(t *testing.T) domain.PublishJournal {
		j, err := NewJournal(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
		require.NoError(t, err)
		t.Cleanup(func() { j.Close() })
		return j
	})
}

func TestJournalPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewJournal(ctx, path)
	require.NoError(t, err)
	require.NoError(t, j.RecordWritten(ctx, domain.JournalEntry{PostID: "a", Path: "posts/a.json", CreatedAt: time.Now().Add(-time.Hour)}))
	require.NoError(t, j.Close())

	j, err = NewJournal(ctx, path)
	require.NoError(t, err)
	defer j.Close()

	pending, err := j.Pending(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "a", pending[0].PostID)
}
