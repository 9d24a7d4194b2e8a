package domain

import (
	"encoding/json"
	"time"
)

// MaxIndexedPosts is how many summaries the feed index retains.
const MaxIndexedPosts = 1000

// DefaultFeedLimit is the page size used when a query does not set one.
const DefaultFeedLimit = 20

// FeedIndex is the single document listing every discoverable post, newest
// first.
type FeedIndex struct {
	Posts       []PostSummary `json:"posts"`
	LastUpdated string        `json:"lastUpdated,omitempty"`

	// TotalPosts counts every post ever indexed. It keeps growing after the
	// oldest summaries are evicted from Posts.
	TotalPosts int `json:"totalPosts"`
}

// Prepend adds summaries to the front of the index, in order, so the last
// one ends up first. The index is then capped at MaxIndexedPosts.
func (idx *FeedIndex) Prepend(summaries ...PostSummary) {
	posts := make([]PostSummary, 0, len(summaries)+len(idx.Posts))
	for i := len(summaries) - 1; i >= 0; i-- {
		posts = append(posts, summaries[i])
	}
	idx.Posts = append(posts, idx.Posts...)
	if len(idx.Posts) > MaxIndexedPosts {
		idx.Posts = idx.Posts[:MaxIndexedPosts]
	}
	idx.TotalPosts += len(summaries)
}

// Find returns the summary with the given id.
func (idx *FeedIndex) Find(id string) (PostSummary, bool) {
	for _, p := range idx.Posts {
		if p.ID == id {
			return p, true
		}
	}
	return PostSummary{}, false
}

// Retains reports whether a post created at createdAt can still be listed.
// Once the index is full, posts not newer than the oldest retained summary
// have already been evicted, or would be.
func (idx *FeedIndex) Retains(createdAt time.Time) bool {
	if len(idx.Posts) < MaxIndexedPosts {
		return true
	}
	oldest, err := time.Parse(timestampLayout, idx.Posts[len(idx.Posts)-1].CreatedAt)
	if err != nil {
		return true
	}
	return createdAt.After(oldest)
}

// Filter returns the summaries matching every non-empty field of q.
func (idx *FeedIndex) Filter(q FeedQuery) []PostSummary {
	out := make([]PostSummary, 0, len(idx.Posts))
	for _, p := range idx.Posts {
		if q.UserID != "" && p.UserID != q.UserID {
			continue
		}
		if q.CommunityID != "" && p.CommunityID != q.CommunityID {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FeedQuery selects a page of the feed.
type FeedQuery struct {
	// Limit is the maximum number of posts returned. Zero or less means
	// DefaultFeedLimit.
	Limit int

	// WithContent hydrates each summary into its full PostRecord.
	WithContent bool

	UserID      string
	CommunityID string
}

// FeedPage is the result of a feed query.
type FeedPage struct {
	Posts         []FeedEntry `json:"posts"`
	TotalPosts    int         `json:"totalPosts"`
	FilteredTotal int         `json:"filteredTotal"`
	LastUpdated   string      `json:"lastUpdated,omitempty"`
	HasMore       bool        `json:"hasMore"`
}

// FeedEntry is a post in a FeedPage. Record is set when the page was hydrated
// and the record could be read; otherwise only Summary is set.
type FeedEntry struct {
	Summary PostSummary
	Record  *PostRecord
}

// MarshalJSON encodes the record when present and the summary otherwise.
func (e FeedEntry) MarshalJSON() ([]byte, error) {
	if e.Record != nil {
		return json.Marshal(e.Record)
	}
	return json.Marshal(e.Summary)
}

// UnmarshalJSON decodes either shape. Documents carrying a filePath are
// summaries; anything else is treated as a record.
func (e *FeedEntry) UnmarshalJSON(data []byte) error {
	var shape struct {
		FilePath string `json:"filePath"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	if shape.FilePath != "" {
		e.Record = nil
		return json.Unmarshal(data, &e.Summary)
	}
	var rec PostRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	e.Record = &rec
	e.Summary = rec.Summary("")
	return nil
}
