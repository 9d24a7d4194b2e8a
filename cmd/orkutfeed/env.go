package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/blackmichael/orkut-feed/internal/config"
	"github.com/blackmichael/orkut-feed/internal/domain"
	"github.com/blackmichael/orkut-feed/internal/github"
	"github.com/blackmichael/orkut-feed/internal/journal"
)

// env holds the services a command runs against.
type env struct {
	cfg         *config.Config
	logger      *slog.Logger
	feed        *domain.FeedService
	activities  *domain.ActivityRecorder
	communities *domain.CommunityService
	journal     journal.Journal
}

func newEnv(ctx context.Context, logger *slog.Logger) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	store := github.NewClient(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo, github.Options{
		APIURL:            cfg.GitHubAPIURL,
		Branch:            cfg.GitHubBranch,
		RequestsPerSecond: cfg.GitHubRPS,
	})

	pj, err := journal.Open(ctx, cfg.JournalURL)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	feedCfg := domain.FeedServiceConfig{
		Store:              store,
		Logger:             logger,
		IndexWriteAttempts: cfg.IndexWriteAttempts,
	}
	if pj != nil {
		feedCfg.Journal = pj
	}

	logger.Debug("environment loaded",
		"repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo,
		"branch", cfg.GitHubBranch,
		"journal", pj != nil,
	)

	return &env{
		cfg:    cfg,
		logger: logger,
		feed:   domain.NewFeedService(feedCfg),
		activities: domain.NewActivityRecorder(domain.ActivityRecorderConfig{
			Store:         store,
			Logger:        logger,
			MaxAttempts:   cfg.ActivityMaxAttempts,
			WriteAttempts: cfg.IndexWriteAttempts,
		}),
		communities: domain.NewCommunityService(domain.CommunityServiceConfig{
			Store:         store,
			Logger:        logger,
			WriteAttempts: cfg.IndexWriteAttempts,
		}),
		journal: pj,
	}, nil
}

func (e *env) Close() {
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			e.logger.Warn("close journal", "error", err)
		}
	}
}
