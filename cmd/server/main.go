package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/orkut-feed/internal/config"
	"github.com/blackmichael/orkut-feed/internal/domain"
	"github.com/blackmichael/orkut-feed/internal/github"
	"github.com/blackmichael/orkut-feed/internal/httpserver"
	"github.com/blackmichael/orkut-feed/internal/journal"
	"github.com/blackmichael/orkut-feed/internal/livefeed"
	"github.com/blackmichael/orkut-feed/internal/metrics"
	"github.com/blackmichael/orkut-feed/internal/security"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	store := github.NewClient(cfg.GitHubToken, cfg.GitHubOwner, cfg.GitHubRepo, github.Options{
		APIURL:            cfg.GitHubAPIURL,
		Branch:            cfg.GitHubBranch,
		RequestsPerSecond: cfg.GitHubRPS,
		Recorder:          collector,
	})

	pj, err := journal.Open(ctx, cfg.JournalURL)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	if pj != nil {
		defer pj.Close()
		logger.Info("publish journal enabled")
	}

	hub := livefeed.NewHub(logger)

	feedCfg := domain.FeedServiceConfig{
		Store:              store,
		Notifier:           hub,
		Sanitizer:          security.NewContentSanitizer(),
		Metrics:            collector,
		Logger:             logger,
		IndexWriteAttempts: cfg.IndexWriteAttempts,
	}
	if pj != nil {
		feedCfg.Journal = pj
	}
	feedService := domain.NewFeedService(feedCfg)

	activities := domain.NewActivityRecorder(domain.ActivityRecorderConfig{
		Store:         store,
		Metrics:       collector,
		Logger:        logger,
		MaxAttempts:   cfg.ActivityMaxAttempts,
		WriteAttempts: cfg.IndexWriteAttempts,
	})

	communities := domain.NewCommunityService(domain.CommunityServiceConfig{
		Store:         store,
		Logger:        logger,
		WriteAttempts: cfg.IndexWriteAttempts,
	})

	server := httpserver.NewServer(cfg, httpserver.Deps{
		Feed:        feedService,
		Activities:  activities,
		Communities: communities,
		Stream:      hub,
		Metrics:     metrics.Handler(reg),
	}, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if pj != nil {
		g.Go(func() error {
			feedService.StartReconcileJob(ctx, time.Duration(cfg.ReconcileInterval), time.Duration(cfg.ReconcileGrace))
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	})

	logger.Info("server started",
		"port", cfg.Port,
		"repo", cfg.GitHubOwner+"/"+cfg.GitHubRepo,
		"branch", cfg.GitHubBranch,
	)

	return g.Wait()
}
