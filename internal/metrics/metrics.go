// Package metrics provides Prometheus collectors for search, vision and alert activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SearchAttempts counts marketplace requests.
	// Labels: region, outcome (success, rate_limited, blocked, network, bad_status)
	SearchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricelens",
			Subsystem: "marketplace",
			Name:      "attempts_total",
			Help:      "Total number of marketplace search attempts by outcome",
		},
		[]string{"region", "outcome"},
	)

	// SearchDuration tracks full search duration including retries.
	SearchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "pricelens",
			Subsystem: "marketplace",
			Name:      "search_duration_seconds",
			Help:      "Duration of marketplace searches including retries",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"region"},
	)

	// ParseMisses counts records dropped for lacking a title or price.
	ParseMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pricelens",
			Subsystem: "marketplace",
			Name:      "parse_misses_total",
			Help:      "Total number of search records dropped by the parser",
		},
	)

	// CacheLookups counts cache lookups.
	// Labels: cache (search, vision), result (hit, miss)
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricelens",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	// VisionBatches counts classification batches.
	// Labels: result (success, malformed, error, dropped)
	VisionBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricelens",
			Subsystem: "vision",
			Name:      "batches_total",
			Help:      "Total number of vision classification batches by result",
		},
		[]string{"result"},
	)

	// AlertEvaluations counts per-alert evaluations.
	// Labels: result (updated, no_price, error)
	AlertEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pricelens",
			Subsystem: "alerts",
			Name:      "evaluations_total",
			Help:      "Total number of alert evaluations by result",
		},
		[]string{"result"},
	)

	// NotificationsSent counts price drop notifications.
	NotificationsSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pricelens",
			Subsystem: "alerts",
			Name:      "notifications_total",
			Help:      "Total number of price drop notifications raised",
		},
	)

	// HistorySeries tracks how many series are stored.
	HistorySeries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pricelens",
			Subsystem: "history",
			Name:      "series",
			Help:      "Number of stored price history series",
		},
	)
)
