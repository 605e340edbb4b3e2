// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OperationsTotal  *prometheus.CounterVec
	OperationLatency *prometheus.HistogramVec
	TokensMinted     prometheus.Counter
	SalesSettled     prometheus.Counter
	ActiveListings   prometheus.Gauge
	EventsEmitted    *prometheus.CounterVec

	// Journal metrics
	JournalAppends       *prometheus.CounterVec
	JournalAppendLatency prometheus.Histogram
	JournalBacklog       prometheus.Gauge

	// Snapshot metrics
	SnapshotSaves         *prometheus.CounterVec
	SnapshotSaveDuration  prometheus.Histogram
	LastSnapshotTimestamp prometheus.Gauge

	// Feed metrics
	FeedClients         prometheus.Gauge
	FeedClientsDropped  prometheus.Counter
	FeedEventsBroadcast prometheus.Counter

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "nft_market_ledger"
	}

	return &Metrics{
		// Ledger metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by operation and status",
		}, []string{"operation", "status"}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_latency_seconds",
			Help:      "Ledger operation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		TokensMinted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "tokens_minted_total",
			Help:      "Total number of tokens minted",
		}),
		SalesSettled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "sales_settled_total",
			Help:      "Total number of sales settled",
		}),
		ActiveListings: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "active_listings",
			Help:      "Current number of active listings",
		}),
		EventsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_emitted_total",
			Help:      "Total number of ledger events emitted by type",
		}, []string{"event_type"}),

		// Journal metrics
		JournalAppends: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "appends_total",
			Help:      "Total number of journal appends by status",
		}, []string{"status"}),
		JournalAppendLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "append_latency_seconds",
			Help:      "Journal append latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		JournalBacklog: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "backlog",
			Help:      "Number of events buffered and not yet appended to the journal",
		}),

		// Snapshot metrics
		SnapshotSaves: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "saves_total",
			Help:      "Total number of snapshot saves by status",
		}, []string{"status"}),
		SnapshotSaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "save_duration_seconds",
			Help:      "Snapshot save duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}),
		LastSnapshotTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "snapshot",
			Name:      "last_success_timestamp",
			Help:      "Unix timestamp of the last successful snapshot save",
		}),

		// Feed metrics
		FeedClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients",
			Help:      "Current number of connected feed clients",
		}),
		FeedClientsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients_dropped_total",
			Help:      "Total number of feed clients dropped for falling behind",
		}),
		FeedEventsBroadcast: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "events_broadcast_total",
			Help:      "Total number of events broadcast to feed clients",
		}),

		// HTTP metrics
		HTTPRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and code",
		}, []string{"route", "code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordOperation records one ledger operation with its outcome and latency.
func RecordOperation(operation string, err error, seconds float64) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.OperationsTotal.WithLabelValues(operation, status).Inc()
	DefaultMetrics.OperationLatency.WithLabelValues(operation).Observe(seconds)
}

// RecordMint increments the tokens minted counter.
func RecordMint() {
	DefaultMetrics.TokensMinted.Inc()
}

// RecordSale increments the sales settled counter.
func RecordSale() {
	DefaultMetrics.SalesSettled.Inc()
}

// SetActiveListings updates the active listings gauge.
func SetActiveListings(n int) {
	DefaultMetrics.ActiveListings.Set(float64(n))
}

// RecordEventEmitted increments the emitted events counter for a type.
func RecordEventEmitted(eventType string) {
	DefaultMetrics.EventsEmitted.WithLabelValues(eventType).Inc()
}

// RecordJournalAppend records a journal append with its outcome and latency.
func RecordJournalAppend(seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.JournalAppends.WithLabelValues(status).Inc()
	DefaultMetrics.JournalAppendLatency.Observe(seconds)
}

// SetJournalBacklog updates the journal backlog gauge.
func SetJournalBacklog(n int) {
	DefaultMetrics.JournalBacklog.Set(float64(n))
}

// RecordSnapshotSave records a snapshot save with its outcome and duration.
func RecordSnapshotSave(seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	DefaultMetrics.SnapshotSaves.WithLabelValues(status).Inc()
	DefaultMetrics.SnapshotSaveDuration.Observe(seconds)
}

// MarkSnapshotSuccess updates the last successful snapshot timestamp.
func MarkSnapshotSuccess(unixSeconds int64) {
	DefaultMetrics.LastSnapshotTimestamp.Set(float64(unixSeconds))
}

// FeedClientConnected increments the connected feed clients gauge.
func FeedClientConnected() {
	DefaultMetrics.FeedClients.Inc()
}

// FeedClientDisconnected decrements the connected feed clients gauge.
func FeedClientDisconnected() {
	DefaultMetrics.FeedClients.Dec()
}

// RecordFeedClientDropped counts a client dropped for falling behind.
func RecordFeedClientDropped() {
	DefaultMetrics.FeedClientsDropped.Inc()
}

// RecordFeedBroadcast counts one event delivered to one client.
func RecordFeedBroadcast() {
	DefaultMetrics.FeedEventsBroadcast.Inc()
}

// RecordHTTPRequest records one HTTP request with its route, code, and latency.
func RecordHTTPRequest(route string, code int, seconds float64) {
	DefaultMetrics.HTTPRequestsTotal.WithLabelValues(route, httpCode(code)).Inc()
	DefaultMetrics.HTTPRequestDuration.WithLabelValues(route).Observe(seconds)
}

func httpCode(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
