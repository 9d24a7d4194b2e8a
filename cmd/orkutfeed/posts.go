package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

type publishOutput struct {
	Success bool `json:"success"`
	*domain.PublishResult
}

func newPublishCmd(c *cli) *cobra.Command {
	var (
		in   domain.PublishInput
		tags string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a post to the feed",
		Example: `  orkutfeed publish --user-id=123 --user-name="João" --content="Olá Orkut!"
  orkutfeed publish --user-id=123 --user-name="João" --content="Foto" --image-url=https://example.com/a.jpg --tags=ferias,praia`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Tags = parseTags(tags)
			return c.withEnv(cmd, func(ctx context.Context, e *env) error {
				result, err := e.feed.PublishPost(ctx, in)
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, publishOutput{Success: true, PublishResult: result})
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.UserID, "user-id", "", "author id")
	f.StringVar(&in.UserName, "user-name", "", "author display name")
	f.StringVar(&in.Content, "content", "", "post text")
	f.StringVar(&in.UserAvatar, "user-avatar", "", "author avatar URL")
	f.StringVar(&in.ImageURL, "image-url", "", "attached image URL")
	f.StringVar(&in.CommunityID, "community-id", "", "community the post belongs to")
	f.StringVar(&in.CommunityName, "community-name", "", "community display name")
	f.StringVar(&tags, "tags", "", "comma separated tags")
	f.BoolVar(&in.Private, "private", false, "mark the post as private")
	_ = cmd.MarkFlagRequired("user-id")
	_ = cmd.MarkFlagRequired("user-name")
	_ = cmd.MarkFlagRequired("content")

	return cmd
}

type postOutput struct {
	Post  *domain.PostRecord `json:"post"`
	Error string             `json:"error,omitempty"`
}

func newFetchCmd(c *cli) *cobra.Command {
	var (
		q      domain.FeedQuery
		postID string
	)

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Read the latest posts or a single post",
		Example: `  orkutfeed fetch --limit=10
  orkutfeed fetch --limit=5 --with-content
  orkutfeed fetch --user-id=123 --with-content
  orkutfeed fetch --post-id=abc123-xyz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(cmd, func(ctx context.Context, e *env) error {
				if postID != "" {
					record, err := e.feed.FetchPostByID(ctx, postID)
					if errors.Is(err, domain.ErrPostNotFound) || errors.Is(err, domain.ErrPostContentMissing) {
						e.logger.Warn("post not found", "post_id", postID, "error", err)
						return writeJSON(c.stdout, postOutput{Error: err.Error()})
					}
					if err != nil {
						return err
					}
					return writeJSON(c.stdout, postOutput{Post: record})
				}

				page, err := e.feed.FetchLatestPosts(ctx, q)
				if err != nil {
					return err
				}
				e.logger.Info("feed fetched", "returned", len(page.Posts), "filtered_total", page.FilteredTotal)
				return writeJSON(c.stdout, page)
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&q.Limit, "limit", domain.DefaultFeedLimit, "maximum number of posts")
	f.BoolVar(&q.WithContent, "with-content", false, "read the full record of every post")
	f.StringVar(&q.UserID, "user-id", "", "only posts by this user")
	f.StringVar(&q.CommunityID, "community-id", "", "only posts in this community")
	f.StringVar(&postID, "post-id", "", "fetch a single post by id")

	return cmd
}

func newReconcileCmd(c *cli) *cobra.Command {
	var grace time.Duration

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Link posts that were written but never indexed",
		Long: `Reconcile walks the publish journal and adds to the feed index every post
record that was written but not indexed. It requires JOURNAL_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(cmd, func(ctx context.Context, e *env) error {
				if grace <= 0 {
					grace = time.Duration(e.cfg.ReconcileGrace)
				}
				report, err := e.feed.Reconcile(ctx, time.Now().Add(-grace))
				if err != nil {
					return err
				}
				e.logger.Info("reconcile finished",
					"checked", report.Checked,
					"relinked", report.Relinked,
					"missing", report.Missing,
				)
				return writeJSON(c.stdout, report)
			})
		},
	}

	cmd.Flags().DurationVar(&grace, "grace", 0, "only consider entries older than this (default RECONCILE_GRACE)")

	return cmd
}
