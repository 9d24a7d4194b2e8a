package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

const (
	// DefaultAPIURL is the public GitHub REST endpoint.
	DefaultAPIURL = "https://api.github.com"

	// DefaultBranch is used when no branch is configured.
	DefaultBranch = "main"

	userAgent  = "Orkut-GitHub-Feed/1.0"
	apiVersion = "2022-11-28"
)

// RequestRecorder observes every request sent to the API.
type RequestRecorder interface {
	RecordGitHubRequest(method string, status int, elapsed time.Duration)
}

// Options tunes a Client. Zero values select the defaults.
type Options struct {
	// APIURL defaults to DefaultAPIURL.
	APIURL string

	// Branch defaults to DefaultBranch.
	Branch string

	// RequestsPerSecond throttles outgoing requests. Zero or less disables
	// throttling.
	RequestsPerSecond float64

	Recorder RequestRecorder

	// Transport is the base round tripper under the auth layer.
	Transport http.RoundTripper
}

// Client reads and writes repository files through the GitHub contents API.
// It implements domain.ContentStore.
type Client struct {
	apiURL     string
	owner      string
	repo       string
	branch     string
	httpClient *http.Client
	limiter    *rate.Limiter
	recorder   RequestRecorder
}

// NewClient creates a client for owner/repo authenticated with token.
func NewClient(token, owner, repo string, opts Options) *Client {
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Branch == "" {
		opts.Branch = DefaultBranch
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		apiURL: strings.TrimRight(opts.APIURL, "/"),
		owner:  owner,
		repo:   repo,
		branch: opts.Branch,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
				Base:   base,
			},
		},
		limiter:  limiter,
		recorder: opts.Recorder,
	}
}

// APIError is a non-2xx response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap exposes domain.ErrConflict for rejected conditional writes: 409 for
// a stale sha and 422 when the sha is missing.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusConflict:
		return domain.ErrConflict
	case e.StatusCode == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(e.Message), "sha"):
		return domain.ErrConflict
	}
	return nil
}

// GetFile returns the file at path on the configured branch, or nil when it
// does not exist.
func (c *Client) GetFile(ctx context.Context, path string) (*domain.File, error) {
	var resp contentResponse
	err := c.do(ctx, http.MethodGet, c.contentsPath(path)+"?ref="+url.QueryEscape(c.branch), nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", path, err)
	}

	if resp.Encoding != "" && resp.Encoding != "base64" {
		return nil, fmt.Errorf("get %s: unsupported encoding %q", path, resp.Encoding)
	}

	content, err := base64.StdEncoding.DecodeString(stripNewlines(resp.Content))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	return &domain.File{Content: content, SHA: resp.SHA}, nil
}

// PutFile creates or updates the file at path with a single commit. An empty
// sha creates the file.
func (c *Client) PutFile(ctx context.Context, path string, content []byte, message, sha string) (*domain.Commit, error) {
	body := putContentRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
		SHA:     sha,
	}

	var resp putContentResponse
	if err := c.do(ctx, http.MethodPut, c.contentsPath(path), body, &resp); err != nil {
		return nil, fmt.Errorf("put %s: %w", path, err)
	}

	return &domain.Commit{
		SHA:        resp.Commit.SHA,
		ContentSHA: resp.Content.SHA,
		HTMLURL:    resp.Commit.HTMLURL,
	}, nil
}

// WebURL returns the github.com page of the file at path.
func (c *Client) WebURL(path string) string {
	return fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", c.owner, c.repo, c.branch, path)
}

func (c *Client) contentsPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("/repos/%s/%s/contents/%s", url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segments, "/"))
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.record(method, 0, start)
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	c.record(method, resp.StatusCode, start)

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

func (c *Client) record(method string, status int, start time.Time) {
	if c.recorder != nil {
		c.recorder.RecordGitHubRequest(method, status, time.Since(start))
	}
}

// errorMessage extracts the message field of a GitHub error body, falling
// back to the raw body.
func errorMessage(body []byte) string {
	var e struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Message != "" {
		return e.Message
	}
	return strings.TrimSpace(string(body))
}

func stripNewlines(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

type contentResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
}

type putContentRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

type putContentResponse struct {
	Content struct {
		SHA string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		HTMLURL string `json:"html_url"`
	} `json:"commit"`
}
