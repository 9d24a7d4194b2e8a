package livefeed

import (
	"encoding/json"
	"fmt"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

// KindPost marks an event carrying a newly indexed post.
const KindPost = "post"

// Event is a message on the live feed stream.
type Event struct {
	Kind string              `json:"kind"`
	Post *domain.PostSummary `json:"post,omitempty"`
}

func parseEvent(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	if event.Kind == "" {
		return nil, fmt.Errorf("event without kind")
	}
	return &event, nil
}
