package domain

import (
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// FeedIndexPath is where the global feed index lives in the content store.
	FeedIndexPath = "posts/index.json"

	// summaryContentRunes is how much post content a PostSummary keeps.
	summaryContentRunes = 200

	// timestampLayout is ISO-8601 in UTC with millisecond precision.
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// PostRecord is the full document stored for a single post. It is written once
// and never modified.
type PostRecord struct {
	ID            string         `json:"id"`
	UserID        string         `json:"userId"`
	UserName      string         `json:"userName"`
	UserAvatar    string         `json:"userAvatar,omitempty"`
	Content       string         `json:"content"`
	ImageURL      string         `json:"imageUrl,omitempty"`
	CreatedAt     string         `json:"createdAt"`
	Likes         int            `json:"likes"`
	Comments      int            `json:"comments"`
	Shares        int            `json:"shares"`
	IsPublic      bool           `json:"isPublic"`
	CommunityID   string         `json:"communityId,omitempty"`
	CommunityName string         `json:"communityName,omitempty"`
	Tags          []string       `json:"tags"`
	Metadata      map[string]any `json:"metadata"`
}

// PostSummary is the index entry for a post. FilePath locates the PostRecord.
type PostSummary struct {
	ID          string `json:"id"`
	UserID      string `json:"userId"`
	UserName    string `json:"userName"`
	Content     string `json:"content"`
	CreatedAt   string `json:"createdAt"`
	Likes       int    `json:"likes"`
	Comments    int    `json:"comments"`
	Shares      int    `json:"shares"`
	HasImage    bool   `json:"hasImage"`
	CommunityID string `json:"communityId,omitempty"`
	FilePath    string `json:"filePath"`
}

// Summary builds the index entry for r stored at path.
func (r *PostRecord) Summary(path string) PostSummary {
	return PostSummary{
		ID:          r.ID,
		UserID:      r.UserID,
		UserName:    r.UserName,
		Content:     truncateContent(r.Content),
		CreatedAt:   r.CreatedAt,
		Likes:       r.Likes,
		Comments:    r.Comments,
		Shares:      r.Shares,
		HasImage:    r.ImageURL != "",
		CommunityID: r.CommunityID,
		FilePath:    path,
	}
}

// PublishInput is the caller supplied part of a new post.
type PublishInput struct {
	UserID        string         `json:"userId" validate:"notblank"`
	UserName      string         `json:"userName" validate:"notblank"`
	UserAvatar    string         `json:"userAvatar" validate:"omitempty,url"`
	Content       string         `json:"content" validate:"notblank"`
	ImageURL      string         `json:"imageUrl" validate:"omitempty,url"`
	CommunityID   string         `json:"communityId"`
	CommunityName string         `json:"communityName"`
	Tags          []string       `json:"tags"`
	Private       bool           `json:"private"`
	Metadata      map[string]any `json:"metadata"`
}

// PublishResult locates a newly published post.
type PublishResult struct {
	PostID string `json:"postId"`
	Path   string `json:"postPath"`
	URL    string `json:"url"`
}

// NewPostID returns an identifier made of 8 random hex characters and the
// base36 encoded creation time in milliseconds.
func NewPostID(now time.Time) string {
	return uuid.NewString()[:8] + "-" + strconv.FormatInt(now.UnixMilli(), 36)
}

// PostPath returns the date sharded location of a post record.
func PostPath(id string, createdAt time.Time) string {
	t := createdAt.UTC()
	return fmt.Sprintf("posts/%04d/%02d/%s.json", t.Year(), int(t.Month()), id)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func truncateContent(s string) string {
	if utf8.RuneCountInString(s) <= summaryContentRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:summaryContentRunes]) + "..."
}

func newPostRecord(id string, in PublishInput, now time.Time) *PostRecord {
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}

	metadata := map[string]any{
		"source":  "orkut-web",
		"version": "1.0",
	}
	for k, v := range in.Metadata {
		metadata[k] = v
	}

	return &PostRecord{
		ID:            id,
		UserID:        in.UserID,
		UserName:      in.UserName,
		UserAvatar:    in.UserAvatar,
		Content:       in.Content,
		ImageURL:      in.ImageURL,
		CreatedAt:     formatTimestamp(now),
		IsPublic:      !in.Private,
		CommunityID:   in.CommunityID,
		CommunityName: in.CommunityName,
		Tags:          tags,
		Metadata:      metadata,
	}
}
