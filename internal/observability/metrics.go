// Package observability holds the Prometheus collectors shared across packages.
package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	completionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "ledger",
		Name:      "completions_total",
		Help:      "Completion requests grouped by outcome (created or replay).",
	}, []string{"outcome"})

	uncompletionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "ledger",
		Name:      "uncompletions_total",
		Help:      "Uncomplete requests grouped by whether a row was removed.",
	}, []string{"removed"})

	streakRecomputeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "streak",
		Name:      "recomputations_total",
		Help:      "Streak derivations performed, by frequency.",
	}, []string{"frequency"})

	statsCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "stats",
		Name:      "cache_lookups_total",
		Help:      "Stats cache lookups grouped by result.",
	}, []string{"result"})

	ledgerWriteGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mindreminder",
		Subsystem: "persistence",
		Name:      "last_ledger_write_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completion ledger write committed to Postgres.",
	})

	// HTTPRequests counts served requests.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mindreminder",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mindreminder",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})
)

func init() {
	prometheus.MustRegister(
		completionsCounter,
		uncompletionsCounter,
		streakRecomputeCounter,
		statsCacheCounter,
		ledgerWriteGauge,
		HTTPRequests,
		HTTPDuration,
	)
}

// RecordCompletion counts a completion request.
func RecordCompletion(created bool) {
	outcome := "replay"
	if created {
		outcome = "created"
	}
	completionsCounter.WithLabelValues(outcome).Inc()
}

// RecordUncompletion counts an uncomplete request.
func RecordUncompletion(removed bool) {
	uncompletionsCounter.WithLabelValues(strconv.FormatBool(removed)).Inc()
}

// RecordStreakRecompute counts a streak derivation.
func RecordStreakRecompute(frequency string) {
	streakRecomputeCounter.WithLabelValues(frequency).Inc()
}

// RecordStatsCache counts a stats cache lookup.
func RecordStatsCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	statsCacheCounter.WithLabelValues(result).Inc()
}

// RecordLedgerWrite updates the ledger write watermark gauge.
func RecordLedgerWrite(ts time.Time) {
	if ts.IsZero() {
		return
	}
	ledgerWriteGauge.Set(float64(ts.Unix()))
}
