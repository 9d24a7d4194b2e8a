package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/blackmichael/orkut-feed/internal/domain"
	"github.com/blackmichael/orkut-feed/internal/livefeed"
)

func newTailCmd(c *cli) *cobra.Command {
	var streamURL string

	cmd := &cobra.Command{
		Use:     "tail",
		Short:   "Follow new posts from a running server",
		Long:    "Tail connects to a server's live feed and prints one JSON line per new post until interrupted.",
		Example: `  orkutfeed tail --url=ws://localhost:3000/api/feed/stream`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := c.logger()
			sub := livefeed.NewSubscriber(streamURL, func(post domain.PostSummary) {
				if err := writeJSONLine(c.stdout, post); err != nil {
					logger.Error("write post", "post_id", post.ID, "error", err)
				}
			}, logger)

			err := sub.Start(cmd.Context())
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return failed(err)
		},
	}

	cmd.Flags().StringVar(&streamURL, "url", "", "live feed WebSocket URL")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}
