package domain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, time.March, 5, 23, 59, 0, 0, time.UTC)

type recordingNotifier struct {
	mu    sync.Mutex
	posts []PostSummary
}

func (n *recordingNotifier) NotifyPost(s PostSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.posts = append(n.posts, s)
}

type tagStripper struct{}

func (tagStripper) Sanitize(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(s, "<b>", ""), "</b>", ""))
}

func newTestFeedService(store *memStore, opts ...func(*FeedServiceConfig)) *FeedService {
	cfg := FeedServiceConfig{
		Store:  store,
		Logger: discardLogger(),
		Now:    newFakeClock(testStart).Now,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return NewFeedService(cfg)
}

func TestPublishThenFetch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestFeedService(store)

	res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "posts/2026/03/"+res.PostID+".json", res.Path)
	assert.Equal(t, "https://example.test/blob/main/"+res.Path, res.URL)

	post, err := svc.FetchPostByID(ctx, res.PostID)
	require.NoError(t, err)
	assert.Equal(t, res.PostID, post.ID)
	assert.Equal(t, "u1", post.UserID)
	assert.Equal(t, "hello", post.Content)
	assert.Zero(t, post.Likes)
	assert.Zero(t, post.Comments)
	assert.Zero(t, post.Shares)
	assert.True(t, post.IsPublic)
	assert.Equal(t, []string{}, post.Tags)
	assert.Equal(t, "orkut-web", post.Metadata["source"])
	assert.Equal(t, "1.0", post.Metadata["version"])
	assert.Equal(t, "2026-03-05T23:59:00.000Z", post.CreatedAt)

	page, err := svc.FetchLatestPosts(ctx, FeedQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, res.PostID, page.Posts[0].Summary.ID)
	assert.Nil(t, page.Posts[0].Record)
	assert.Equal(t, 1, page.TotalPosts)
	assert.Equal(t, 1, page.FilteredTotal)
	assert.False(t, page.HasMore)
}

func TestPublishPostOptionalFields(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestFeedService(store)

	res, err := svc.PublishPost(ctx, PublishInput{
		UserID:        "u1",
		UserName:      "Alice",
		Content:       "with image",
		ImageURL:      "https://img.example/1.png",
		CommunityID:   "c1",
		CommunityName: "Gophers",
		Tags:          []string{"go", "orkut"},
		Private:       true,
		Metadata:      map[string]any{"client": "cli", "source": "override"},
	})
	require.NoError(t, err)

	record := readJSON[PostRecord](t, store, res.Path)
	assert.False(t, record.IsPublic)
	assert.Equal(t, []string{"go", "orkut"}, record.Tags)
	assert.Equal(t, "cli", record.Metadata["client"])
	assert.Equal(t, "override", record.Metadata["source"])

	idx := readJSON[FeedIndex](t, store, FeedIndexPath)
	require.Len(t, idx.Posts, 1)
	assert.True(t, idx.Posts[0].HasImage)
	assert.Equal(t, "c1", idx.Posts[0].CommunityID)
	assert.Equal(t, res.Path, idx.Posts[0].FilePath)
}

func TestPublishPostRejectsInvalidInputBeforeIO(t *testing.T) {
	tests := []struct {
		name string
		in   PublishInput
	}{
		{"missing user id", PublishInput{UserName: "Alice", Content: "hi"}},
		{"missing user name", PublishInput{UserID: "u1", Content: "hi"}},
		{"blank content", PublishInput{UserID: "u1", UserName: "Alice", Content: "   "}},
		{"bad image url", PublishInput{UserID: "u1", UserName: "Alice", Content: "hi", ImageURL: "not a url"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			metrics := newCountingMetrics()
			svc := newTestFeedService(store, func(c *FeedServiceConfig) { c.Metrics = metrics })

			_, err := svc.PublishPost(context.Background(), tt.in)
			require.ErrorIs(t, err, ErrInvalidInput)
			assert.True(t, IsClientError(err))

			gets, puts := store.calls()
			assert.Zero(t, gets)
			assert.Zero(t, puts)
			assert.Equal(t, 1, metrics.publish[PublishInvalid])
		})
	}
}

func TestPublishPostSanitizesContent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestFeedService(store, func(c *FeedServiceConfig) { c.Sanitizer = tagStripper{} })

	res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "<b>bold</b>"})
	require.NoError(t, err)
	assert.Equal(t, "bold", readJSON[PostRecord](t, store, res.Path).Content)

	_, err = svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "<b></b>"})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestPublishPostCountsEveryPost(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestFeedService(store)

	var ids []string
	for i := range 5 {
		res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: fmt.Sprintf("post %d", i)})
		require.NoError(t, err)
		ids = append(ids, res.PostID)
	}

	idx := readJSON[FeedIndex](t, store, FeedIndexPath)
	assert.Equal(t, 5, idx.TotalPosts)
	require.Len(t, idx.Posts, 5)
	for i, p := range idx.Posts {
		assert.Equal(t, ids[len(ids)-1-i], p.ID, "index must be newest first")
	}
}

func TestPublishPostCapsIndex(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()

	seed := FeedIndex{TotalPosts: MaxIndexedPosts}
	for i := range MaxIndexedPosts {
		seed.Posts = append(seed.Posts, PostSummary{ID: fmt.Sprintf("old-%04d", i), FilePath: "posts/old.json"})
	}
	store.put(t, FeedIndexPath, seed)

	svc := newTestFeedService(store)
	res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "newest"})
	require.NoError(t, err)

	idx := readJSON[FeedIndex](t, store, FeedIndexPath)
	require.Len(t, idx.Posts, MaxIndexedPosts)
	assert.Equal(t, res.PostID, idx.Posts[0].ID)
	assert.Equal(t, "old-0000", idx.Posts[1].ID)
	assert.Equal(t, fmt.Sprintf("old-%04d", MaxIndexedPosts-2), idx.Posts[MaxIndexedPosts-1].ID)
	assert.Equal(t, MaxIndexedPosts+1, idx.TotalPosts)
}

func TestPublishPostRetriesIndexConflicts(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	metrics := newCountingMetrics()
	svc := newTestFeedService(store, func(c *FeedServiceConfig) { c.Metrics = metrics })

	store.conflicts[FeedIndexPath] = DefaultWriteAttempts - 1

	res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "hi"})
	require.NoError(t, err)

	idx := readJSON[FeedIndex](t, store, FeedIndexPath)
	require.Len(t, idx.Posts, 1)
	assert.Equal(t, res.PostID, idx.Posts[0].ID)
	assert.Equal(t, DefaultWriteAttempts-1, metrics.conflicts)
	assert.Equal(t, 1, metrics.publish[PublishOK])
}

func TestPublishPostLeavesOrphanInJournal(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	journal := newMemJournal()
	metrics := newCountingMetrics()
	svc := newTestFeedService(store, func(c *FeedServiceConfig) {
		c.Journal = journal
		c.Metrics = metrics
	})

	store.conflicts[FeedIndexPath] = DefaultWriteAttempts

	_, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "hi"})
	require.ErrorIs(t, err, ErrConflict)

	records := store.paths("posts/2026/")
	require.Len(t, records, 1)
	id := strings.TrimSuffix(records[0][len("posts/2026/03/"):], ".json")
	assert.Equal(t, JournalWritten, journal.status(id))
	assert.Equal(t, 1, metrics.orphans)
	assert.Equal(t, 1, metrics.publish[PublishOrphaned])
}

func TestPublishPostFailsWhenIndexUnreadable(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestFeedService(store)

	boom := errors.New("boom")
	store.getErr[FeedIndexPath] = boom

	_, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "hi"})
	require.ErrorIs(t, err, boom)
	assert.Len(t, store.paths("posts/2026/"), 1)
}

func TestPublishPostNotifiesAndJournals(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	journal := newMemJournal()
	notifier := &recordingNotifier{}
	svc := newTestFeedService(store, func(c *FeedServiceConfig) {
		c.Journal = journal
		c.Notifier = notifier
	})

	res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "hi"})
	require.NoError(t, err)

	require.Len(t, notifier.posts, 1)
	assert.Equal(t, res.PostID, notifier.posts[0].ID)
	assert.Equal(t, JournalIndexed, journal.status(res.PostID))
}

func TestFetchLatestPostsMissingIndex(t *testing.T) {
	svc := newTestFeedService(newMemStore())

	page, err := svc.FetchLatestPosts(context.Background(), FeedQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.NotNil(t, page.Posts)
	assert.Zero(t, page.TotalPosts)
	assert.False(t, page.HasMore)
}

func TestFetchLatestPostsFilters(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.put(t, FeedIndexPath, FeedIndex{
		TotalPosts:  40,
		LastUpdated: "2026-03-05T00:00:00.000Z",
		Posts: []PostSummary{
			{ID: "p5", UserID: "u1", CommunityID: "c1"},
			{ID: "p4", UserID: "u2", CommunityID: "c1"},
			{ID: "p3", UserID: "u1"},
			{ID: "p2", UserID: "u2"},
			{ID: "p1", UserID: "u1", CommunityID: "c2"},
		},
	})
	svc := newTestFeedService(store)

	tests := []struct {
		name     string
		query    FeedQuery
		wantIDs  []string
		filtered int
		hasMore  bool
	}{
		{"no filter", FeedQuery{}, []string{"p5", "p4", "p3", "p2", "p1"}, 5, false},
		{"by user", FeedQuery{UserID: "u1"}, []string{"p5", "p3", "p1"}, 3, false},
		{"by user limited", FeedQuery{UserID: "u1", Limit: 2}, []string{"p5", "p3"}, 3, true},
		{"by community", FeedQuery{CommunityID: "c1"}, []string{"p5", "p4"}, 2, false},
		{"user and community", FeedQuery{UserID: "u2", CommunityID: "c1"}, []string{"p4"}, 1, false},
		{"no match", FeedQuery{UserID: "nobody"}, []string{}, 0, false},
		{"limit equals matches", FeedQuery{Limit: 5}, []string{"p5", "p4", "p3", "p2", "p1"}, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := svc.FetchLatestPosts(ctx, tt.query)
			require.NoError(t, err)

			ids := make([]string, 0, len(page.Posts))
			for _, p := range page.Posts {
				ids = append(ids, p.Summary.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.filtered, page.FilteredTotal)
			assert.Equal(t, tt.hasMore, page.HasMore)
			assert.Equal(t, 40, page.TotalPosts)
			assert.Equal(t, "2026-03-05T00:00:00.000Z", page.LastUpdated)
		})
	}
}

func TestFetchLatestPostsDegradesOnMissingRecords(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	metrics := newCountingMetrics()
	svc := newTestFeedService(store, func(c *FeedServiceConfig) { c.Metrics = metrics })

	var results []*PublishResult
	for i := range 3 {
		res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: fmt.Sprintf("post %d", i)})
		require.NoError(t, err)
		results = append(results, res)
	}

	store.delete(results[1].Path)
	store.getErr[results[0].Path] = errors.New("unavailable")

	page, err := svc.FetchLatestPosts(ctx, FeedQuery{WithContent: true})
	require.NoError(t, err)
	require.Len(t, page.Posts, 3)

	assert.NotNil(t, page.Posts[0].Record)
	assert.Equal(t, results[2].PostID, page.Posts[0].Record.ID)

	assert.Nil(t, page.Posts[1].Record)
	assert.Equal(t, results[1].PostID, page.Posts[1].Summary.ID)

	assert.Nil(t, page.Posts[2].Record)
	assert.Equal(t, results[0].PostID, page.Posts[2].Summary.ID)

	assert.Equal(t, 2, metrics.fallbacks)
}

func TestFetchPostByIDErrors(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestFeedService(store)

	_, err := svc.FetchPostByID(ctx, "missing")
	require.ErrorIs(t, err, ErrPostNotFound)

	res, err := svc.PublishPost(ctx, PublishInput{UserID: "u1", UserName: "Alice", Content: "hi"})
	require.NoError(t, err)
	store.delete(res.Path)

	_, err = svc.FetchPostByID(ctx, res.PostID)
	require.ErrorIs(t, err, ErrPostContentMissing)

	_, err = svc.FetchPostByID(ctx, " ")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewPostID(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	id := NewPostID(now)

	assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-z]+$`), id)
	assert.True(t, strings.HasSuffix(id, "-loyw3v28"), id)
	assert.NotEqual(t, id, NewPostID(now))
}

func TestPostPathUsesUTC(t *testing.T) {
	local := time.Date(2026, time.January, 1, 1, 0, 0, 0, time.FixedZone("UTC+3", 3*60*60))
	assert.Equal(t, "posts/2025/12/abc.json", PostPath("abc", local))
}

func TestSummaryTruncatesContent(t *testing.T) {
	long := strings.Repeat("é", summaryContentRunes+10)
	r := &PostRecord{ID: "p", Content: long}

	s := r.Summary("posts/p.json")
	assert.Equal(t, strings.Repeat("é", summaryContentRunes)+"...", s.Content)

	r.Content = strings.Repeat("a", summaryContentRunes)
	assert.Equal(t, r.Content, r.Summary("p").Content)
}
