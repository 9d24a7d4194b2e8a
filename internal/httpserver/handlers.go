package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

const maxBodyBytes = 1 << 20

type publishResponse struct {
	Success bool `json:"success"`
	*domain.PublishResult
}

type activityResponse struct {
	Success bool `json:"success"`
	*domain.ActivityResult
}

type communityResponse struct {
	Success bool `json:"success"`
	*domain.CommunityResult
}

func (s *Server) handlePublishPost(w http.ResponseWriter, r *http.Request) {
	var in domain.PublishInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	result, err := s.deps.Feed.PublishPost(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err, "failed to publish post")
		return
	}

	s.logger.Info("post published", "post_id", result.PostID, "user_id", in.UserID)
	writeJSON(w, http.StatusCreated, publishResponse{Success: true, PublishResult: result})
}

func (s *Server) handleFetchPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := domain.FeedQuery{
		Limit:       domain.DefaultFeedLimit,
		UserID:      query.Get("userId"),
		CommunityID: query.Get("communityId"),
	}

	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > domain.MaxIndexedPosts {
			s.logger.Warn("invalid limit parameter", "limit", l, "error", err)
			writeError(w, http.StatusBadRequest, "InvalidRequest",
				fmt.Sprintf("limit must be between 1 and %d", domain.MaxIndexedPosts))
			return
		}
		q.Limit = parsed
	}

	if wc := query.Get("withContent"); wc != "" {
		parsed, err := strconv.ParseBool(wc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "InvalidRequest", "withContent must be a boolean")
			return
		}
		q.WithContent = parsed
	}

	page, err := s.deps.Feed.FetchLatestPosts(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, err, "failed to fetch posts")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleFetchPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := s.deps.Feed.FetchPostByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err, "failed to fetch post")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"post": record})
}

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var in domain.ActivityInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	result, err := s.deps.Activities.RecordActivity(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err, "failed to record activity")
		return
	}

	writeJSON(w, http.StatusCreated, activityResponse{Success: true, ActivityResult: result})
}

func (s *Server) handleGetBudget(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Activities.Budget())
}

func (s *Server) handleResetBudget(w http.ResponseWriter, _ *http.Request) {
	budget := s.deps.Activities.ResetBudget()
	s.logger.Info("activity budget reset", "max_attempts", budget.MaxAttempts)
	writeJSON(w, http.StatusOK, budget)
}

func (s *Server) handlePublishCommunity(w http.ResponseWriter, r *http.Request) {
	var in domain.CommunityInput
	if !s.decodeBody(w, r, &in) {
		return
	}

	result, err := s.deps.Communities.PublishCommunity(r.Context(), in)
	if err != nil {
		s.writeServiceError(w, err, "failed to publish community")
		return
	}

	writeJSON(w, http.StatusCreated, communityResponse{Success: true, CommunityResult: result})
}

func (s *Server) handleListCommunities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	q := domain.CommunityQuery{
		Limit:    domain.DefaultCommunityLimit,
		Category: query.Get("category"),
		Search:   query.Get("search"),
	}

	if l := query.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 || parsed > domain.MaxIndexedCommunities {
			writeError(w, http.StatusBadRequest, "InvalidRequest",
				fmt.Sprintf("limit must be between 1 and %d", domain.MaxIndexedCommunities))
			return
		}
		q.Limit = parsed
	}

	page, err := s.deps.Communities.ListCommunities(r.Context(), q)
	if err != nil {
		s.writeServiceError(w, err, "failed to list communities")
		return
	}

	writeJSON(w, http.StatusOK, page)
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "InvalidRequest", "request body must be a JSON object")
		return false
	}
	return true
}

// writeServiceError maps domain errors to HTTP statuses. Store failures are
// logged and reported with the generic message.
func (s *Server) writeServiceError(w http.ResponseWriter, err error, message string) {
	switch {
	case domain.IsClientError(err):
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
	case errors.Is(err, domain.ErrPostNotFound), errors.Is(err, domain.ErrPostContentMissing):
		writeError(w, http.StatusNotFound, "NotFound", err.Error())
	case errors.Is(err, domain.ErrCommunityExists):
		writeError(w, http.StatusConflict, "AlreadyExists", err.Error())
	case errors.Is(err, domain.ErrAttemptsExceeded):
		writeError(w, http.StatusTooManyRequests, "AttemptsExceeded", err.Error())
	default:
		s.logger.Error(message, "error", err)
		writeError(w, http.StatusInternalServerError, "InternalError", message)
	}
}
