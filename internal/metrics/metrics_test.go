package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/orkut-feed/internal/domain"
)

var _ domain.Metrics = (*Collector)(nil)

func gather(t *testing.T, reg *prometheus.Registry, name string) []*dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf.GetMetric()
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestRecordPublishByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPublish(domain.PublishOK)
	c.RecordPublish(domain.PublishOK)
	c.RecordPublish(domain.PublishOrphaned)

	got := map[string]float64{}
	for _, m := range gather(t, reg, "orkutfeed_publish_total") {
		got[labelValue(m, "outcome")] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{"ok": 2, "orphaned": 1}, got)
}

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIndexConflict()
	c.RecordIndexConflict()
	c.RecordOrphan()
	c.RecordHydrationFallback()
	c.RecordActivity(domain.ActivityRejected)

	assert.Equal(t, 2.0, gather(t, reg, "orkutfeed_index_conflicts_total")[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, gather(t, reg, "orkutfeed_orphaned_posts_total")[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, gather(t, reg, "orkutfeed_hydration_fallbacks_total")[0].GetCounter().GetValue())

	activity := gather(t, reg, "orkutfeed_activity_total")
	require.Len(t, activity, 1)
	assert.Equal(t, "rejected", labelValue(activity[0], "outcome"))
}

func TestRecordGitHubRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordGitHubRequest(http.MethodGet, http.StatusOK, 20*time.Millisecond)
	c.RecordGitHubRequest(http.MethodPut, 0, time.Second)

	statuses := map[string]string{}
	for _, m := range gather(t, reg, "orkutfeed_github_requests_total") {
		statuses[labelValue(m, "method")] = labelValue(m, "status")
	}
	assert.Equal(t, map[string]string{"GET": "200", "PUT": "error"}, statuses)

	latency := gather(t, reg, "orkutfeed_github_request_seconds")
	require.Len(t, latency, 2)
	for _, m := range latency {
		assert.Equal(t, uint64(1), m.GetHistogram().GetSampleCount())
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordOrphan()

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	resp := w.Result()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "orkutfeed_orphaned_posts_total 1")
}
