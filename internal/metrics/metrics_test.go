package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveFetch(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveFetch("proposals", OutcomeLoaded, 20*time.Millisecond)
	m.ObserveFetch("proposals", OutcomeStale, time.Millisecond)
	m.ObserveFetch("proposals", OutcomeStale, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.listFetches.WithLabelValues("proposals", OutcomeLoaded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.staleDiscards.WithLabelValues("proposals")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.fetchDuration))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveFetch("x", OutcomeFailed, time.Second)
	m.ObserveRequest("/", "GET", "200")
	m.ObserveSync("ok", 3)
	m.SetActiveViews(1)
	m.ObserveLogEntry("info")
}

func TestObserveLogEntry(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveLogEntry("warn")
	m.ObserveLogEntry("warn")
	m.ObserveLogEntry("")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.logEntries.WithLabelValues("warn")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.logEntries.WithLabelValues("none")))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New(prometheus.NewRegistry())
	m.ObserveRequest("/health", "GET", "200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `govconsole_http_requests_total{method="GET",route="/health",status="200"} 1`)
}
