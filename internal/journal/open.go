// Package journal opens the publish journal backend selected by configuration.
package journal

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/blackmichael/orkut-feed/internal/domain"
	"github.com/blackmichael/orkut-feed/internal/postgres"
	"github.com/blackmichael/orkut-feed/internal/sqlite"
)

// Journal is a PublishJournal that holds resources.
type Journal interface {
	domain.PublishJournal
	io.Closer
}

// Open returns the journal for url: PostgreSQL for postgres:// and
// postgresql:// URLs, a SQLite file for anything else. An empty url returns
// (nil, nil).
func Open(ctx context.Context, url string) (Journal, error) {
	switch {
	case url == "":
		return nil, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		j, err := postgres.NewJournal(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		return j, nil
	default:
		j, err := sqlite.NewJournal(ctx, strings.TrimPrefix(url, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite journal: %w", err)
		}
		return j, nil
	}
}
