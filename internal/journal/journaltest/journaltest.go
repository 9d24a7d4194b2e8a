// Package journaltest checks domain.PublishJournal implementations.
package journaltest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

// Run exercises the journal returned by newJournal. Each call must return an
// empty journal.
func Run(t *testing.T, newJournal func(t *testing.T) domain.PublishJournal) {
	base := time.Date(2026, time.March, 5, 12, 0, 0, 0, time.UTC)

	entry := func(id string, age time.Duration) domain.JournalEntry {
		return domain.JournalEntry{
			PostID:    id,
			Path:      "posts/2026/03/" + id + ".json",
			CreatedAt: base.Add(-age),
			Status:    domain.JournalWritten,
		}
	}

	t.Run("pending oldest first", func(t *testing.T) {
		ctx := context.Background()
		j := newJournal(t)

		require.NoError(t, j.RecordWritten(ctx, entry("b", 2*time.Minute)))
		require.NoError(t, j.RecordWritten(ctx, entry("a", 3*time.Minute)))
		require.NoError(t, j.RecordWritten(ctx, entry("recent", 0)))

		pending, err := j.Pending(ctx, base.Add(-time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "a", pending[0].PostID)
		assert.Equal(t, "b", pending[1].PostID)
		assert.Equal(t, "posts/2026/03/a.json", pending[0].Path)
		assert.Equal(t, domain.JournalWritten, pending[0].Status)
		assert.True(t, pending[0].CreatedAt.Equal(base.Add(-3*time.Minute)))
	})

	t.Run("limit", func(t *testing.T) {
		ctx := context.Background()
		j := newJournal(t)

		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, j.RecordWritten(ctx, entry(id, time.Hour)))
		}
		pending, err := j.Pending(ctx, base, 2)
		require.NoError(t, err)
		assert.Len(t, pending, 2)
	})

	t.Run("marked entries leave pending", func(t *testing.T) {
		ctx := context.Background()
		j := newJournal(t)

		require.NoError(t, j.RecordWritten(ctx, entry("indexed", time.Hour)))
		require.NoError(t, j.RecordWritten(ctx, entry("missing", time.Hour)))
		require.NoError(t, j.RecordWritten(ctx, entry("orphan", time.Hour)))
		require.NoError(t, j.MarkIndexed(ctx, "indexed"))
		require.NoError(t, j.MarkMissing(ctx, "missing"))

		pending, err := j.Pending(ctx, base, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, "orphan", pending[0].PostID)
	})

	t.Run("record twice keeps first", func(t *testing.T) {
		ctx := context.Background()
		j := newJournal(t)

		require.NoError(t, j.RecordWritten(ctx, entry("a", time.Hour)))
		require.NoError(t, j.MarkIndexed(ctx, "a"))
		require.NoError(t, j.RecordWritten(ctx, entry("a", time.Hour)))

		pending, err := j.Pending(ctx, base, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("marking unknown entry", func(t *testing.T) {
		j := newJournal(t)
		require.NoError(t, j.MarkIndexed(context.Background(), "nope"))
	})
}
