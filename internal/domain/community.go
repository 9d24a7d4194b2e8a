package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// CommunityIndexPath is where the community directory lives.
	CommunityIndexPath = "communities/index.json"

	// MaxIndexedCommunities is how many summaries the directory retains.
	MaxIndexedCommunities = 500

	// DefaultCommunityLimit is the page size of ListCommunities.
	DefaultCommunityLimit = 50

	// AllCategories disables the category filter of ListCommunities.
	AllCategories = "Todos"

	defaultCommunityPhoto = "https://images.unsplash.com/photo-1522202176988-66273c2fd55f?w=400&h=300&fit=crop&q=80&auto=format"
	defaultOwnerName      = "Usuário"
	defaultRules          = "Seja respeitoso e mantenha as discussões relevantes ao tema da comunidade."
)

// Visibility controls who can see a community.
type Visibility string

const (
	VisibilityPublic     Visibility = "public"
	VisibilityPrivate    Visibility = "private"
	VisibilityRestricted Visibility = "restricted"
)

// Community is the full document stored for a community.
type Community struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Slug                 string         `json:"slug"`
	Description          string         `json:"description"`
	Category             string         `json:"category"`
	PhotoURL             string         `json:"photo_url"`
	Owner                string         `json:"owner"`
	OwnerName            string         `json:"owner_name"`
	MembersCount         int            `json:"members_count"`
	Visibility           Visibility     `json:"visibility"`
	JoinApprovalRequired bool           `json:"join_approval_required"`
	Rules                string         `json:"rules"`
	WelcomeMessage       string         `json:"welcome_message"`
	Tags                 []string       `json:"tags"`
	IsActive             bool           `json:"is_active"`
	PostsCount           int            `json:"posts_count"`
	CreatedAt            string         `json:"createdAt"`
	UpdatedAt            string         `json:"updatedAt"`
	Metadata             map[string]any `json:"metadata"`
}

// CommunitySummary is the directory entry for a community.
type CommunitySummary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Slug         string     `json:"slug"`
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	PhotoURL     string     `json:"photo_url"`
	Owner        string     `json:"owner"`
	OwnerName    string     `json:"owner_name"`
	MembersCount int        `json:"members_count"`
	Visibility   Visibility `json:"visibility"`
	PostsCount   int        `json:"posts_count"`
	CreatedAt    string     `json:"createdAt"`
	UpdatedAt    string     `json:"updatedAt"`
	FilePath     string     `json:"filePath"`
}

// CommunityIndex is the community directory document.
type CommunityIndex struct {
	Communities      []CommunitySummary `json:"communities"`
	LastUpdated      string             `json:"lastUpdated,omitempty"`
	TotalCommunities int                `json:"totalCommunities"`
	Categories       map[string]int     `json:"categories"`
}

// FindByName returns the community whose name equals name, ignoring case.
func (idx *CommunityIndex) FindByName(name string) (CommunitySummary, bool) {
	for _, c := range idx.Communities {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return CommunitySummary{}, false
}

// Add prepends summary, caps the directory at MaxIndexedCommunities and
// updates the counters.
func (idx *CommunityIndex) Add(summary CommunitySummary) {
	idx.Communities = append([]CommunitySummary{summary}, idx.Communities...)
	if len(idx.Communities) > MaxIndexedCommunities {
		idx.Communities = idx.Communities[:MaxIndexedCommunities]
	}
	if idx.Categories == nil {
		idx.Categories = make(map[string]int)
	}
	idx.Categories[summary.Category]++
	idx.TotalCommunities++
}

// CommunityConfig is the settings document created next to each community.
type CommunityConfig struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Slug         string            `json:"slug"`
	Settings     CommunitySettings `json:"settings"`
	Stats        CommunityStats    `json:"stats"`
	Created      string            `json:"created"`
	LastActivity string            `json:"lastActivity"`
}

type CommunitySettings struct {
	AllowPosts         bool     `json:"allowPosts"`
	ModerationRequired bool     `json:"moderationRequired"`
	AutoApproval       bool     `json:"autoApproval"`
	MaxMembers         *int     `json:"maxMembers"`
	Tags               []string `json:"tags"`
}

type CommunityStats struct {
	Posts         int `json:"posts"`
	Members       int `json:"members"`
	ActiveMembers int `json:"activeMembers"`
	DailyPosts    int `json:"dailyPosts"`
	WeeklyPosts   int `json:"weeklyPosts"`
}

// CommunityInput describes a community to create. Zero optional fields take
// their defaults.
type CommunityInput struct {
	Name                 string         `json:"name" validate:"notblank"`
	Description          string         `json:"description" validate:"notblank"`
	Category             string         `json:"category" validate:"notblank"`
	Owner                string         `json:"owner" validate:"notblank"`
	OwnerName            string         `json:"ownerName"`
	PhotoURL             string         `json:"photoUrl" validate:"omitempty,url"`
	MembersCount         int            `json:"membersCount" validate:"gte=0"`
	Visibility           Visibility     `json:"visibility" validate:"omitempty,oneof=public private restricted"`
	JoinApprovalRequired bool           `json:"joinApprovalRequired"`
	Rules                string         `json:"rules"`
	WelcomeMessage       string         `json:"welcomeMessage"`
	Tags                 []string       `json:"tags"`
	Metadata             map[string]any `json:"metadata"`
}

// CommunityResult locates a newly created community.
type CommunityResult struct {
	CommunityID   string     `json:"communityId"`
	Slug          string     `json:"slug"`
	CommunityPath string     `json:"communityPath"`
	ConfigPath    string     `json:"configPath"`
	IndexPath     string     `json:"indexPath"`
	URL           string     `json:"url"`
	Community     *Community `json:"community"`
}

// CommunityQuery selects communities from the directory.
type CommunityQuery struct {
	// Limit defaults to DefaultCommunityLimit.
	Limit int

	// Category filters by exact category. Empty or AllCategories matches
	// everything.
	Category string

	// Search matches a case-insensitive substring of name or description.
	Search string
}

// CommunityPage is the result of ListCommunities.
type CommunityPage struct {
	Communities []CommunitySummary `json:"communities"`
	Total       int                `json:"total"`
	Filtered    int                `json:"filtered"`
	Categories  map[string]int     `json:"categories"`
	LastUpdated string             `json:"lastUpdated,omitempty"`
}

// CommunityServiceConfig wires a CommunityService. Only Store is required.
type CommunityServiceConfig struct {
	Store         ContentStore
	Logger        *slog.Logger
	WriteAttempts int
	Now           func() time.Time
}

// CommunityService maintains the community directory.
type CommunityService struct {
	store  ContentStore
	writer documentWriter
	logger *slog.Logger
	now    func() time.Time
}

// NewCommunityService creates a CommunityService from cfg.
func NewCommunityService(cfg CommunityServiceConfig) *CommunityService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = DefaultWriteAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CommunityService{
		store: cfg.Store,
		writer: documentWriter{
			store:    cfg.Store,
			attempts: cfg.WriteAttempts,
			logger:   cfg.Logger,
		},
		logger: cfg.Logger,
		now:    cfg.Now,
	}
}

// PublishCommunity writes a community document, adds it to the directory and
// creates its initial config. Names are unique ignoring case.
func (s *CommunityService) PublishCommunity(ctx context.Context, in CommunityInput) (*CommunityResult, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	slug := Slugify(in.Name)
	if slug == "" {
		return nil, fmt.Errorf("%w: name has no usable characters", ErrInvalidInput)
	}

	idx, _, err := readDocument[CommunityIndex](ctx, s.store, CommunityIndexPath)
	if err != nil {
		return nil, fmt.Errorf("fetch community index: %w", err)
	}
	if _, ok := idx.FindByName(in.Name); ok {
		return nil, fmt.Errorf("%w: %q", ErrCommunityExists, in.Name)
	}

	now := s.now().UTC()
	community := newCommunity(NewPostID(now), slug, in, formatTimestamp(now))
	communityPath := fmt.Sprintf("communities/%s/%s.json", slug, community.ID)
	configPath := fmt.Sprintf("communities/%s/config.json", slug)

	s.logger.Info("publishing community", "community_id", community.ID, "slug", slug)

	body, err := marshalDocument(community)
	if err != nil {
		return nil, fmt.Errorf("encode community: %w", err)
	}
	author := in.OwnerName
	if author == "" {
		author = in.Owner
	}
	if _, err := s.store.PutFile(ctx, communityPath, body, fmt.Sprintf("New community: %s by @%s", community.Name, author), ""); err != nil {
		return nil, fmt.Errorf("write community %s: %w", community.ID, err)
	}

	summary := community.Summary(communityPath)
	_, _, err = updateDocument(ctx, s.writer, CommunityIndexPath, fmt.Sprintf("Update index: new community %s", community.Name), func(idx *CommunityIndex) error {
		if _, ok := idx.FindByName(community.Name); ok {
			return fmt.Errorf("%w: %q", ErrCommunityExists, community.Name)
		}
		idx.Add(summary)
		idx.LastUpdated = formatTimestamp(s.now())
		return nil
	})
	if err != nil {
		s.logger.Error("community written but not indexed", "community_id", community.ID, "path", communityPath, "error", err)
		return nil, fmt.Errorf("update community index: %w", err)
	}

	cfgBody, err := marshalDocument(newCommunityConfig(community))
	if err != nil {
		return nil, fmt.Errorf("encode community config: %w", err)
	}
	if _, err := s.store.PutFile(ctx, configPath, cfgBody, fmt.Sprintf("Initial config for community %s", community.Name), ""); err != nil {
		return nil, fmt.Errorf("write community config: %w", err)
	}

	return &CommunityResult{
		CommunityID:   community.ID,
		Slug:          slug,
		CommunityPath: communityPath,
		ConfigPath:    configPath,
		IndexPath:     CommunityIndexPath,
		URL:           s.store.WebURL(communityPath),
		Community:     community,
	}, nil
}

// ListCommunities returns directory entries matching q, newest first.
func (s *CommunityService) ListCommunities(ctx context.Context, q CommunityQuery) (*CommunityPage, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultCommunityLimit
	}

	idx, _, err := readDocument[CommunityIndex](ctx, s.store, CommunityIndexPath)
	if err != nil {
		return nil, fmt.Errorf("fetch community index: %w", err)
	}

	search := strings.ToLower(q.Search)
	filtered := make([]CommunitySummary, 0, len(idx.Communities))
	for _, c := range idx.Communities {
		if q.Category != "" && q.Category != AllCategories && c.Category != q.Category {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) && !strings.Contains(strings.ToLower(c.Description), search) {
			continue
		}
		filtered = append(filtered, c)
	}

	categories := idx.Categories
	if categories == nil {
		categories = map[string]int{}
	}

	return &CommunityPage{
		Communities: filtered[:min(q.Limit, len(filtered))],
		Total:       idx.TotalCommunities,
		Filtered:    len(filtered),
		Categories:  categories,
		LastUpdated: idx.LastUpdated,
	}, nil
}

// Slugify lowercases name, strips diacritics and joins the remaining runs of
// [a-z0-9] with single dashes.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	folded, _, err := transform.String(t, strings.ToLower(name))
	if err != nil {
		folded = strings.ToLower(name)
	}

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
			continue
		}
		dash = true
	}
	return b.String()
}

// Summary builds the directory entry for c stored at path.
func (c *Community) Summary(path string) CommunitySummary {
	return CommunitySummary{
		ID:           c.ID,
		Name:         c.Name,
		Slug:         c.Slug,
		Description:  truncateContent(c.Description),
		Category:     c.Category,
		PhotoURL:     c.PhotoURL,
		Owner:        c.Owner,
		OwnerName:    c.OwnerName,
		MembersCount: c.MembersCount,
		Visibility:   c.Visibility,
		PostsCount:   c.PostsCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		FilePath:     path,
	}
}

func newCommunity(id, slug string, in CommunityInput, timestamp string) *Community {
	c := &Community{
		ID:                   id,
		Name:                 in.Name,
		Slug:                 slug,
		Description:          in.Description,
		Category:             in.Category,
		PhotoURL:             in.PhotoURL,
		Owner:                in.Owner,
		OwnerName:            in.OwnerName,
		MembersCount:         in.MembersCount,
		Visibility:           in.Visibility,
		JoinApprovalRequired: in.JoinApprovalRequired,
		Rules:                in.Rules,
		WelcomeMessage:       in.WelcomeMessage,
		Tags:                 in.Tags,
		IsActive:             true,
		CreatedAt:            timestamp,
		UpdatedAt:            timestamp,
		Metadata: map[string]any{
			"source":      "orkut-web",
			"version":     "1.0",
			"created_via": "orkutfeed",
		},
	}
	for k, v := range in.Metadata {
		c.Metadata[k] = v
	}

	if c.PhotoURL == "" {
		c.PhotoURL = defaultCommunityPhoto
	}
	if c.OwnerName == "" {
		c.OwnerName = defaultOwnerName
	}
	if c.MembersCount == 0 {
		c.MembersCount = 1
	}
	if c.Visibility == "" {
		c.Visibility = VisibilityPublic
	}
	if c.Rules == "" {
		c.Rules = defaultRules
	}
	if c.WelcomeMessage == "" {
		c.WelcomeMessage = fmt.Sprintf("Bem-vindo à comunidade %s!", in.Name)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c
}

func newCommunityConfig(c *Community) *CommunityConfig {
	return &CommunityConfig{
		ID:   c.ID,
		Name: c.Name,
		Slug: c.Slug,
		Settings: CommunitySettings{
			AllowPosts:         true,
			ModerationRequired: c.JoinApprovalRequired,
			AutoApproval:       !c.JoinApprovalRequired,
			Tags:               c.Tags,
		},
		Stats: CommunityStats{
			Members:       c.MembersCount,
			ActiveMembers: 1,
		},
		Created:      c.CreatedAt,
		LastActivity: c.CreatedAt,
	}
}
