package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "studycal"

// Metrics owns a private registry with the planner's collectors. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	runs            *prometheus.CounterVec
	chunks          *prometheus.CounterVec
	runDuration     prometheus.Histogram
	feedRefreshes   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_runs_total",
			Help:      "Scheduling runs by outcome (ok, invalid, error).",
		}, []string{"outcome"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_chunks_total",
			Help:      "Result rows by state (placed, unscheduled) and kind (base, recurrence).",
		}, []string{"state", "kind"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "schedule_run_duration_seconds",
			Help:      "Wall time of scheduling runs.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		feedRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_refreshes_total",
			Help:      "Calendar feed refreshes by result.",
		}, []string{"result"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
	}

	registry.MustRegister(
		m.runs, m.chunks, m.runDuration, m.feedRefreshes, m.requestDuration, m.requestTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RegisterDB exports connection pool statistics of db.
func (m *Metrics) RegisterDB(db *sql.DB, name string) error {
	if m == nil || db == nil {
		return nil
	}
	return m.registry.Register(collectors.NewDBStatsCollector(db, name))
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// RunOutcome labels a finished run.
type RunOutcome string

const (
	OutcomeOK      RunOutcome = "ok"
	OutcomeInvalid RunOutcome = "invalid"
	OutcomeError   RunOutcome = "error"
)

// RunCounts summarizes the rows of a run.
type RunCounts struct {
	Placed, Unscheduled                     int
	RecurrencePlaced, RecurrenceUnscheduled int
}

// ObserveRun records one scheduling run.
func (m *Metrics) ObserveRun(outcome RunOutcome, took time.Duration, counts RunCounts) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(outcome)).Inc()
	m.runDuration.Observe(took.Seconds())
	m.chunks.WithLabelValues("placed", "base").Add(float64(counts.Placed))
	m.chunks.WithLabelValues("unscheduled", "base").Add(float64(counts.Unscheduled))
	m.chunks.WithLabelValues("placed", "recurrence").Add(float64(counts.RecurrencePlaced))
	m.chunks.WithLabelValues("unscheduled", "recurrence").Add(float64(counts.RecurrenceUnscheduled))
}

func (m *Metrics) ObserveFeedRefresh(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.feedRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, took time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, code).Observe(took.Seconds())
	m.requestTotal.WithLabelValues(method, path, code).Inc()
}

// Middleware records every request under its route pattern.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start))
	}
}
