package httpserver

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/blackmichael/orkut-feed/internal/config"
	"github.com/blackmichael/orkut-feed/internal/domain"
)

// FeedService publishes and reads posts.
type FeedService interface {
	PublishPost(ctx context.Context, in domain.PublishInput) (*domain.PublishResult, error)
	FetchLatestPosts(ctx context.Context, q domain.FeedQuery) (*domain.FeedPage, error)
	FetchPostByID(ctx context.Context, id string) (*domain.PostRecord, error)
}

// ActivityRecorder records community activities under an attempt budget.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, in domain.ActivityInput) (*domain.ActivityResult, error)
	Budget() domain.Budget
	ResetBudget() domain.Budget
}

// CommunityService maintains the community directory.
type CommunityService interface {
	PublishCommunity(ctx context.Context, in domain.CommunityInput) (*domain.CommunityResult, error)
	ListCommunities(ctx context.Context, q domain.CommunityQuery) (*domain.CommunityPage, error)
}

// Deps are the handlers' collaborators. Stream and Metrics are optional.
type Deps struct {
	Feed        FeedService
	Activities  ActivityRecorder
	Communities CommunityService

	// Stream serves the live feed WebSocket.
	Stream http.Handler

	// Metrics serves the Prometheus scrape endpoint.
	Metrics http.Handler
}

// Server is the HTTP server that exposes the feed API.
type Server struct {
	deps        Deps
	logger      *slog.Logger
	publishRate *ipLimiter
	router      chi.Router
	httpServer  *http.Server
}

// NewServer creates a new HTTP server backed by deps.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	s := &Server{
		deps:        deps,
		logger:      logger,
		publishRate: newIPLimiter(cfg.PublishRatePerMinute),
	}
	s.router = s.routes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.withLogging)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/posts", func(r chi.Router) {
			r.With(s.publishRate.middleware).Post("/", s.handlePublishPost)
			r.Get("/", s.handleFetchPosts)
			r.Get("/{id}", s.handleFetchPost)
		})

		r.Route("/communities", func(r chi.Router) {
			r.Post("/", s.handlePublishCommunity)
			r.Get("/", s.handleListCommunities)
			r.Post("/activity", s.handleRecordActivity)
			r.Get("/activity/budget", s.handleGetBudget)
			r.Delete("/activity/budget", s.handleResetBudget)
		})

		if s.deps.Stream != nil {
			r.Method(http.MethodGet, "/feed/stream", s.deps.Stream)
		}
	})

	return r
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening for HTTP requests. It blocks until the server is
// shut down or an error occurs.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, map[string]string{
		"error":   errType,
		"message": message,
	})
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.status,
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack lets the live feed upgrade connections through the logging
// middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
