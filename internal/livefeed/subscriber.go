package livefeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

// Subscriber follows a live feed stream and hands every post to a callback.
type Subscriber struct {
	url        string
	handle     func(domain.PostSummary)
	logger     *slog.Logger
	retryDelay time.Duration
}

// NewSubscriber creates a subscriber for the stream at streamURL.
func NewSubscriber(streamURL string, handle func(domain.PostSummary), logger *slog.Logger) *Subscriber {
	return &Subscriber{
		url:        streamURL,
		handle:     handle,
		logger:     logger,
		retryDelay: 5 * time.Second,
	}
}

// Start connects to the stream and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Error("live feed connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.retryDelay):
				}
			}
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	s.logger.Info("connecting to live feed", "url", s.url)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("dial live feed: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.logger.Info("connected to live feed")

	var received int64
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message after %d posts: %w", received, err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		if event.Kind == KindPost && event.Post != nil {
			received++
			s.handle(*event.Post)
		}
	}
}
