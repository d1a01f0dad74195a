// Package metrics holds the console's Prometheus collectors. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "govconsole"

// Fetch outcomes.
const (
	OutcomeLoaded = "loaded"
	OutcomeFailed = "failed"
	OutcomeStale  = "stale"
)

// Sync outcomes.
const (
	SyncOK     = "ok"
	SyncFailed = "failed"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	listFetches   *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	staleDiscards *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	syncRuns      *prometheus.CounterVec
	syncedItems   prometheus.Counter
	activeViews   prometheus.Gauge
	logEntries    *prometheus.CounterVec
}

// New registers the collectors on reg. Passing a fresh prometheus.Registry
// keeps tests isolated.
func New(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		listFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_fetch_total",
			Help:      "Remote list fetches by list context and outcome",
		}, []string{"context", "outcome"}),
		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "list_fetch_duration_seconds",
			Help:      "Remote list fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"context"}),
		staleDiscards: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "list_stale_discards_total",
			Help:      "Fetch results dropped because a newer fetch had started",
		}, []string{"context"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern, method and status",
		}, []string{"route", "method", "status"}),
		syncRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Proposal sync passes by outcome",
		}, []string{"outcome"}),
		syncedItems: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_proposals_total",
			Help:      "Proposals written by the sync worker",
		}),
		activeViews: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_views",
			Help:      "Open view sessions",
		}),
		logEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "log_entries_total",
			Help:      "Log lines written by level",
		}, []string{"level"}),
	}
}

// ObserveFetch records one completed fetch.
func (m *Metrics) ObserveFetch(listContext, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.listFetches.WithLabelValues(listContext, outcome).Inc()
	if outcome == OutcomeStale {
		m.staleDiscards.WithLabelValues(listContext).Inc()
		return
	}
	m.fetchDuration.WithLabelValues(listContext).Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(route, method, status string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, status).Inc()
}

func (m *Metrics) ObserveSync(outcome string, written int) {
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	m.syncedItems.Add(float64(written))
}

// ObserveLogEntry counts one log line. Lines without a level count as "none".
func (m *Metrics) ObserveLogEntry(level string) {
	if m == nil {
		return
	}
	if level == "" {
		level = "none"
	}
	m.logEntries.WithLabelValues(level).Inc()
}

func (m *Metrics) SetActiveViews(n int) {
	if m == nil {
		return
	}
	m.activeViews.Set(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
