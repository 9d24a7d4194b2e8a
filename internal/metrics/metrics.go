// Package metrics exposes the service's Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records feed, activity and GitHub API metrics. It implements
// domain.Metrics and github.RequestRecorder.
type Collector struct {
	publishes         *prometheus.CounterVec
	indexConflicts    prometheus.Counter
	orphans           prometheus.Counter
	hydrationFallback prometheus.Counter
	activities        *prometheus.CounterVec
	githubRequests    *prometheus.CounterVec
	githubLatency     *prometheus.HistogramVec
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orkutfeed_publish_total",
			Help: "Post publish attempts by outcome.",
		}, []string{"outcome"}),
		indexConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orkutfeed_index_conflicts_total",
			Help: "Conditional index writes rejected because the index changed.",
		}),
		orphans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orkutfeed_orphaned_posts_total",
			Help: "Post records written without being indexed.",
		}),
		hydrationFallback: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orkutfeed_hydration_fallbacks_total",
			Help: "Feed entries served as summaries because their record could not be read.",
		}),
		activities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orkutfeed_activity_total",
			Help: "Community activity writes by outcome.",
		}, []string{"outcome"}),
		githubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orkutfeed_github_requests_total",
			Help: "GitHub API requests by method and status code.",
		}, []string{"method", "status"}),
		githubLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orkutfeed_github_request_seconds",
			Help:    "GitHub API request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
	}

	reg.MustRegister(
		c.publishes,
		c.indexConflicts,
		c.orphans,
		c.hydrationFallback,
		c.activities,
		c.githubRequests,
		c.githubLatency,
	)

	return c
}

func (c *Collector) RecordPublish(outcome string) {
	c.publishes.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordIndexConflict() {
	c.indexConflicts.Inc()
}

func (c *Collector) RecordOrphan() {
	c.orphans.Inc()
}

func (c *Collector) RecordHydrationFallback() {
	c.hydrationFallback.Inc()
}

func (c *Collector) RecordActivity(outcome string) {
	c.activities.WithLabelValues(outcome).Inc()
}

// RecordGitHubRequest records one API round trip. A zero status means the
// request failed before a response arrived.
func (c *Collector) RecordGitHubRequest(method string, status int, elapsed time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	c.githubRequests.WithLabelValues(method, label).Inc()
	c.githubLatency.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
