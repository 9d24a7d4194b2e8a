package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

type activityOutput struct {
	Success bool `json:"success"`
	*domain.ActivityResult
}

type communityOutput struct {
	Success bool `json:"success"`
	*domain.CommunityResult
}

func newActivityCmd(c *cli) *cobra.Command {
	var (
		in   domain.ActivityInput
		data string
	)

	cmd := &cobra.Command{
		Use:     "activity",
		Short:   "Append an activity to a community log",
		Example: `  orkutfeed activity --user-id=123 --community-id=c1 --community-name="Eu amo Go" --action=joined --data='{"via":"invite"}'`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if data != "" {
				in.Data = json.RawMessage(data)
			}
			return c.withEnv(cmd, func(ctx context.Context, e *env) error {
				result, err := e.activities.RecordActivity(ctx, in)
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, activityOutput{Success: true, ActivityResult: result})
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.UserID, "user-id", "", "acting user id")
	f.StringVar(&in.CommunityID, "community-id", "", "community id")
	f.StringVar(&in.CommunityName, "community-name", "", "community display name")
	f.StringVar(&in.Action, "action", "", "one of joined, left, posted, liked, commented")
	f.StringVar(&data, "data", "", "extra JSON payload")
	for _, name := range []string{"user-id", "community-id", "community-name", "action"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newCommunityCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "community",
		Short: "Manage the community directory",
	}
	cmd.AddCommand(newCommunityPublishCmd(c), newCommunityListCmd(c))
	return cmd
}

func newCommunityPublishCmd(c *cli) *cobra.Command {
	var (
		in         domain.CommunityInput
		visibility string
		tags       string
	)

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Create a community",
		Example: `  orkutfeed community publish --name="Desenvolvedores JavaScript" \
    --description="Comunidade para desenvolvedores JS" --category=Tecnologia --owner=user123`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Visibility = domain.Visibility(visibility)
			in.Tags = parseTags(tags)
			return c.withEnv(cmd, func(ctx context.Context, e *env) error {
				result, err := e.communities.PublishCommunity(ctx, in)
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, communityOutput{Success: true, CommunityResult: result})
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "community name")
	f.StringVar(&in.Description, "description", "", "community description")
	f.StringVar(&in.Category, "category", "", "community category")
	f.StringVar(&in.Owner, "owner", "", "owner user id")
	f.StringVar(&in.OwnerName, "owner-name", "", "owner display name")
	f.StringVar(&in.PhotoURL, "photo-url", "", "community photo URL")
	f.StringVar(&visibility, "visibility", "", "public, private or restricted (default public)")
	f.BoolVar(&in.JoinApprovalRequired, "approval-required", false, "require approval to join")
	f.StringVar(&in.Rules, "rules", "", "community rules")
	f.StringVar(&in.WelcomeMessage, "welcome", "", "welcome message")
	f.StringVar(&tags, "tags", "", "comma separated tags")
	f.IntVar(&in.MembersCount, "members", 0, "initial member count (default 1)")
	for _, name := range []string{"name", "description", "category", "owner"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newCommunityListCmd(c *cli) *cobra.Command {
	var q domain.CommunityQuery

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List communities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withEnv(cmd, func(ctx context.Context, e *env) error {
				page, err := e.communities.ListCommunities(ctx, q)
				if err != nil {
					return err
				}
				return writeJSON(c.stdout, page)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&q.Category, "category", "", "only this category")
	f.StringVar(&q.Search, "search", "", "case-insensitive search over name and description")
	f.IntVar(&q.Limit, "limit", domain.DefaultCommunityLimit, "maximum number of communities")

	return cmd
}
