package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

const (
	// MaxActivities is how many entries a community activity log retains.
	MaxActivities = 100

	// DefaultMaxAttempts is the activity writer's default attempt budget.
	DefaultMaxAttempts = 5
)

// Action is something a user did in a community.
type Action string

const (
	ActionJoined    Action = "joined"
	ActionLeft      Action = "left"
	ActionPosted    Action = "posted"
	ActionLiked     Action = "liked"
	ActionCommented Action = "commented"
)

// Actions lists every valid Action.
var Actions = []Action{ActionJoined, ActionLeft, ActionPosted, ActionLiked, ActionCommented}

// ParseAction converts s into an Action, rejecting unknown values.
func ParseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	names := make([]string, len(Actions))
	for i, a := range Actions {
		names[i] = string(a)
	}
	return "", fmt.Errorf("%w %q: use one of %s", ErrInvalidAction, s, strings.Join(names, ", "))
}

// Activity is one entry of a community activity log.
type Activity struct {
	UserID        string          `json:"userId"`
	CommunityID   string          `json:"communityId"`
	CommunityName string          `json:"communityName"`
	Action        Action          `json:"action"`
	Data          json.RawMessage `json:"data,omitempty"`
	Timestamp     string          `json:"timestamp"`
}

// ActivityStats is derived from the retained activities only.
type ActivityStats struct {
	TotalJoins        int `json:"totalJoins"`
	TotalPosts        int `json:"totalPosts"`
	TotalInteractions int `json:"totalInteractions"`
	UniqueUsers       int `json:"uniqueUsers"`
}

// ActivityLog is the per community document at ActivityLogPath.
type ActivityLog struct {
	Activities []Activity    `json:"activities"`
	LastUpdate string        `json:"lastUpdate"`
	Stats      ActivityStats `json:"stats"`
}

// Append adds a, drops the oldest entries beyond MaxActivities and recomputes
// the stats from what is left.
func (l *ActivityLog) Append(a Activity) {
	l.Activities = append(l.Activities, a)
	if n := len(l.Activities); n > MaxActivities {
		l.Activities = append([]Activity(nil), l.Activities[n-MaxActivities:]...)
	}
	l.LastUpdate = a.Timestamp
	l.Stats = computeStats(l.Activities)
}

func computeStats(activities []Activity) ActivityStats {
	var stats ActivityStats
	users := make(map[string]struct{})
	for _, a := range activities {
		users[a.UserID] = struct{}{}
		switch a.Action {
		case ActionJoined:
			stats.TotalJoins++
		case ActionPosted:
			stats.TotalPosts++
		case ActionLiked, ActionCommented:
			stats.TotalInteractions++
		}
	}
	stats.UniqueUsers = len(users)
	return stats
}

// ActivityLogPath returns where the log of a community is stored.
func ActivityLogPath(communityID string) string {
	return "communities/" + communityID + "/activities.json"
}

// ActivityInput describes an activity to record.
type ActivityInput struct {
	UserID        string          `json:"userId" validate:"notblank"`
	CommunityID   string          `json:"communityId" validate:"notblank,pathsegment"`
	CommunityName string          `json:"communityName" validate:"notblank"`
	Action        string          `json:"action" validate:"notblank"`
	Data          json.RawMessage `json:"data,omitempty"`
}

// ActivityResult describes a recorded activity.
type ActivityResult struct {
	CommitURL string        `json:"commitUrl"`
	SHA       string        `json:"sha"`
	Message   string        `json:"message"`
	Timestamp string        `json:"timestamp"`
	FilePath  string        `json:"filePath"`
	Stats     ActivityStats `json:"stats"`
}

// Budget is a snapshot of the recorder's attempt budget.
type Budget struct {
	CurrentAttempts int       `json:"currentAttempts"`
	MaxAttempts     int       `json:"maxAttempts"`
	CanTryAgain     bool      `json:"canTryAgain"`
	LastResetTime   time.Time `json:"lastResetTime"`
}

// ActivityRecorderConfig wires an ActivityRecorder. Only Store is required.
type ActivityRecorderConfig struct {
	Store   ContentStore
	Metrics Metrics
	Logger  *slog.Logger

	// MaxAttempts is the number of consecutive failures after which
	// RecordActivity stops calling the store. Defaults to DefaultMaxAttempts.
	MaxAttempts int

	// WriteAttempts bounds the conflict retry of a single log update.
	// Defaults to DefaultWriteAttempts.
	WriteAttempts int

	Now func() time.Time
}

// ActivityRecorder appends community activities to their logs. Once
// MaxAttempts consecutive calls have failed it rejects further calls without
// touching the store until a call succeeds or ResetBudget is called.
type ActivityRecorder struct {
	writer      documentWriter
	metrics     Metrics
	logger      *slog.Logger
	maxAttempts int
	now         func() time.Time

	mu            sync.Mutex
	attempts      int
	lastResetTime time.Time
}

// NewActivityRecorder creates an ActivityRecorder from cfg.
func NewActivityRecorder(cfg ActivityRecorderConfig) *ActivityRecorder {
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.WriteAttempts <= 0 {
		cfg.WriteAttempts = DefaultWriteAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &ActivityRecorder{
		writer: documentWriter{
			store:    cfg.Store,
			attempts: cfg.WriteAttempts,
			logger:   cfg.Logger,
		},
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		maxAttempts:   cfg.MaxAttempts,
		now:           cfg.Now,
		lastResetTime: cfg.Now().UTC(),
	}
}

// Activity outcomes reported to Metrics.RecordActivity.
const (
	ActivityOK       = "ok"
	ActivityInvalid  = "invalid"
	ActivityFailed   = "failed"
	ActivityRejected = "rejected"
)

// RecordActivity appends an activity to the community's log.
func (r *ActivityRecorder) RecordActivity(ctx context.Context, in ActivityInput) (*ActivityResult, error) {
	if err := validateInput(in); err != nil {
		r.metrics.RecordActivity(ActivityInvalid)
		return nil, err
	}
	action, err := ParseAction(in.Action)
	if err != nil {
		r.metrics.RecordActivity(ActivityInvalid)
		return nil, err
	}
	if len(in.Data) > 0 && !json.Valid(in.Data) {
		r.metrics.RecordActivity(ActivityInvalid)
		return nil, fmt.Errorf("%w: data (json)", ErrInvalidInput)
	}

	if err := r.acquire(); err != nil {
		r.metrics.RecordActivity(ActivityRejected)
		return nil, err
	}

	result, err := r.write(ctx, in, action)
	r.release(err == nil)
	if err != nil {
		r.metrics.RecordActivity(ActivityFailed)
		r.logger.Error("record activity failed", "community_id", in.CommunityID, "action", action, "error", err)
		return nil, err
	}

	r.metrics.RecordActivity(ActivityOK)
	r.logger.Info("activity recorded", "community_id", in.CommunityID, "action", action, "user_id", in.UserID)
	return result, nil
}

func (r *ActivityRecorder) write(ctx context.Context, in ActivityInput, action Action) (*ActivityResult, error) {
	timestamp := formatTimestamp(r.now())
	path := ActivityLogPath(in.CommunityID)
	message := fmt.Sprintf("Activity: %s in community %q by %s", action, in.CommunityName, in.UserID)

	entry := Activity{
		UserID:        in.UserID,
		CommunityID:   in.CommunityID,
		CommunityName: in.CommunityName,
		Action:        action,
		Data:          in.Data,
		Timestamp:     timestamp,
	}

	doc, commit, err := updateDocument(ctx, r.writer, path, message, func(l *ActivityLog) error {
		l.Append(entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update activity log: %w", err)
	}

	result := &ActivityResult{
		Message:   message,
		Timestamp: timestamp,
		FilePath:  path,
		Stats:     doc.Stats,
	}
	if commit != nil {
		result.CommitURL = commit.HTMLURL
		result.SHA = commit.ContentSHA
	}
	return result, nil
}

func (r *ActivityRecorder) acquire() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.attempts >= r.maxAttempts {
		return fmt.Errorf("%w: %d of %d attempts used", ErrAttemptsExceeded, r.attempts, r.maxAttempts)
	}
	r.attempts++
	return nil
}

func (r *ActivityRecorder) release(ok bool) {
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = 0
	r.lastResetTime = r.now().UTC()
}

// Budget reports the current state of the attempt budget.
func (r *ActivityRecorder) Budget() Budget {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Budget{
		CurrentAttempts: r.attempts,
		MaxAttempts:     r.maxAttempts,
		CanTryAgain:     r.attempts < r.maxAttempts,
		LastResetTime:   r.lastResetTime,
	}
}

// ResetBudget clears the attempt counter.
func (r *ActivityRecorder) ResetBudget() Budget {
	r.mu.Lock()
	r.attempts = 0
	r.lastResetTime = r.now().UTC()
	r.mu.Unlock()

	r.logger.Info("activity attempt budget reset")
	return r.Budget()
}
