package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memFile struct {
	content []byte
	sha     string
}

// memStore is an in-memory ContentStore with conditional writes.
type memStore struct {
	mu    sync.Mutex
	files map[string]memFile
	seq   int

	gets int
	puts int

	// conflicts makes the next n writes to a path fail with ErrConflict.
	conflicts map[string]int
	putErr    map[string]error
	getErr    map[string]error

	// interleave runs once, under the lock, before the next write to a path.
	// It stands in for another writer committing first.
	interleave map[string]func(files map[string]memFile)
}

func newMemStore() *memStore {
	return &memStore{
		files:     make(map[string]memFile),
		conflicts: make(map[string]int),
		putErr:    make(map[string]error),
		getErr:    make(map[string]error),

		interleave: make(map[string]func(map[string]memFile)),
	}
}

func (m *memStore) GetFile(_ context.Context, path string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++

	if err := m.getErr[path]; err != nil {
		return nil, err
	}
	f, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	return &File{Content: append([]byte(nil), f.content...), SHA: f.sha}, nil
}

func (m *memStore) PutFile(_ context.Context, path string, content []byte, _ string, sha string) (*Commit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.puts++

	if err := m.putErr[path]; err != nil {
		return nil, err
	}
	if fn := m.interleave[path]; fn != nil {
		delete(m.interleave, path)
		fn(m.files)
	}
	if m.conflicts[path] > 0 {
		m.conflicts[path]--
		return nil, fmt.Errorf("put %s: %w", path, ErrConflict)
	}

	current, exists := m.files[path]
	switch {
	case sha == "" && exists:
		return nil, fmt.Errorf("put %s: sha required: %w", path, ErrConflict)
	case sha != "" && (!exists || current.sha != sha):
		return nil, fmt.Errorf("put %s: stale sha: %w", path, ErrConflict)
	}

	m.seq++
	blob := fmt.Sprintf("blob-%d", m.seq)
	m.files[path] = memFile{content: append([]byte(nil), content...), sha: blob}
	return &Commit{
		SHA:        fmt.Sprintf("commit-%d", m.seq),
		ContentSHA: blob,
		HTMLURL:    "https://example.test/commit/" + blob,
	}, nil
}

func (m *memStore) WebURL(path string) string {
	return "https://example.test/blob/main/" + path
}

func (m *memStore) delete(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
}

func (m *memStore) put(t *testing.T, path string, v any) {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.files[path] = memFile{content: body, sha: fmt.Sprintf("blob-%d", m.seq)}
}

func (m *memStore) paths(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (m *memStore) calls() (gets, puts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.puts
}

func readJSON[T any](t *testing.T, m *memStore, path string) T {
	t.Helper()
	m.mu.Lock()
	f, ok := m.files[path]
	m.mu.Unlock()
	require.True(t, ok, "missing %s", path)

	var v T
	require.NoError(t, json.Unmarshal(f.content, &v))
	return v
}

// memJournal is an in-memory PublishJournal.
type memJournal struct {
	mu      sync.Mutex
	entries map[string]JournalEntry
}

func newMemJournal() *memJournal {
	return &memJournal{entries: make(map[string]JournalEntry)}
}

func (j *memJournal) RecordWritten(_ context.Context, e JournalEntry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, ok := j.entries[e.PostID]; ok {
		return nil
	}
	e.Status = JournalWritten
	j.entries[e.PostID] = e
	return nil
}

func (j *memJournal) MarkIndexed(_ context.Context, id string) error {
	return j.mark(id, JournalIndexed)
}

func (j *memJournal) MarkMissing(_ context.Context, id string) error {
	return j.mark(id, JournalMissing)
}

func (j *memJournal) mark(id string, status JournalStatus) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	e, ok := j.entries[id]
	if !ok {
		return nil
	}
	e.Status = status
	j.entries[id] = e
	return nil
}

func (j *memJournal) Pending(_ context.Context, olderThan time.Time, limit int) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []JournalEntry
	for _, e := range j.entries {
		if e.Status == JournalWritten && e.CreatedAt.Before(olderThan) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (j *memJournal) status(id string) JournalStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entries[id].Status
}

// countingMetrics records every Metrics call.
type countingMetrics struct {
	mu        sync.Mutex
	publish   map[string]int
	activity  map[string]int
	conflicts int
	orphans   int
	fallbacks int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{publish: map[string]int{}, activity: map[string]int{}}
}

func (c *countingMetrics) RecordPublish(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publish[outcome]++
}

func (c *countingMetrics) RecordIndexConflict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflicts++
}

func (c *countingMetrics) RecordOrphan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orphans++
}

func (c *countingMetrics) RecordHydrationFallback() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallbacks++
}

func (c *countingMetrics) RecordActivity(outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.activity[outcome]++
}

// fakeClock advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start, step: time.Millisecond}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
