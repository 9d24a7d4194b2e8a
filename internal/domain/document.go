package domain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultWriteAttempts bounds how often a read-modify-write is retried after
// losing a conditional write race.
const DefaultWriteAttempts = 3

// documentWriter performs conditional read-modify-write cycles against a
// ContentStore.
type documentWriter struct {
	store    ContentStore
	attempts int
	logger   *slog.Logger

	// onConflict is called for every lost write race.
	onConflict func()
}

// updateDocument reads the JSON document at path into a T (zero value when
// the document does not exist), applies mutate and writes the result back
// guarded by the sha that was read. Conflicting writes are retried from a
// fresh read up to w.attempts times. The document as written is returned.
func updateDocument[T any](ctx context.Context, w documentWriter, path, message string, mutate func(doc *T) error) (*T, *Commit, error) {
	attempts := max(w.attempts, 1)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		doc := new(T)
		var sha string

		file, err := w.store.GetFile(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		if file != nil {
			if err := json.Unmarshal(file.Content, doc); err != nil {
				return nil, nil, fmt.Errorf("decode %s: %w", path, err)
			}
			sha = file.SHA
		}

		if err := mutate(doc); err != nil {
			return nil, nil, err
		}

		content, err := marshalDocument(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", path, err)
		}

		commit, err := w.store.PutFile(ctx, path, content, message, sha)
		if err == nil {
			return doc, commit, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, nil, fmt.Errorf("write %s: %w", path, err)
		}

		lastErr = err
		if w.onConflict != nil {
			w.onConflict()
		}
		w.logger.Warn("document write conflict", "path", path, "attempt", attempt, "max_attempts", attempts)
	}

	return nil, nil, fmt.Errorf("write %s after %d attempts: %w", path, attempts, lastErr)
}

// readDocument decodes the JSON document at path into a T. found is false
// when the document does not exist.
func readDocument[T any](ctx context.Context, store ContentStore, path string) (doc *T, found bool, err error) {
	file, err := store.GetFile(ctx, path)
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}
	doc = new(T)
	if file == nil {
		return doc, false, nil
	}
	if err := json.Unmarshal(file.Content, doc); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", path, err)
	}
	return doc, true, nil
}

// marshalDocument encodes v the way documents are stored: indented with two
// spaces and without HTML escaping.
func marshalDocument(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
