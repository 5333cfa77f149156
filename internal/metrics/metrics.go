// Package metrics provides Prometheus instrumentation for Osprey Risk.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "osprey_risk"

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// DecisionsTotal counts scoring decisions by action.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Total scoring decisions by action.",
		},
		[]string{"action"},
	)

	// ScoringDuration observes end-to-end scoring latency.
	ScoringDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scoring_duration_seconds",
		Help:      "Time to score one transaction, features through explanation.",
		Buckets:   []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	// FeatureFallbacksTotal counts features that fell back to their default.
	FeatureFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feature_fallbacks_total",
			Help:      "Features defaulted during assembly by feature and reason.",
		},
		[]string{"feature", "reason"},
	)

	// BaselineFallbacksTotal counts scorings that used the global baseline.
	BaselineFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "baseline_fallbacks_total",
		Help:      "Scorings that fell back to the global amount baseline.",
	})

	// ModelFallbacksTotal counts inference fallbacks by role and target.
	ModelFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_fallbacks_total",
			Help:      "Inference fallbacks by model role and fallback target (last_known_good, neutral).",
		},
		[]string{"role", "target"},
	)

	// ModelSwapsTotal counts hot-swap attempts by role and result.
	ModelSwapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "model_swaps_total",
			Help:      "Model hot-swap attempts by role and result.",
		},
		[]string{"role", "result"},
	)

	// LateEventsTotal counts window events beyond the lateness bound.
	LateEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "late_events_total",
		Help:      "Window events that arrived later than the lateness bound.",
	})

	// DroppedEventsTotal counts window events older than the eviction horizon.
	// They stay countable through the repository.
	DroppedEventsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_events_total",
		Help:      "Window events kept out of memory because they precede the eviction horizon.",
	})

	// ExplanationFallbacksTotal counts explanations served from static importance.
	ExplanationFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "explanation_fallbacks_total",
			Help:      "Explanations that fell back to static importance, by cause.",
		},
		[]string{"cause"},
	)

	// ThresholdPublishesTotal counts threshold snapshot publishes by source.
	ThresholdPublishesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threshold_publishes_total",
			Help:      "Threshold snapshots published by source (config, admin, calibration).",
		},
		[]string{"source"},
	)

	// AlertsTotal counts alerts created by priority.
	AlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts created by priority.",
		},
		[]string{"priority"},
	)

	// CacheLookupsTotal counts cache reads by layer and result.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache reads by layer (local, redis) and result (hit, miss, error).",
		},
		[]string{"layer", "result"},
	)

	// BusMessagesTotal counts event bus traffic by topic and direction.
	BusMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_messages_total",
			Help:      "Event bus messages by topic and direction (published, handled, failed, dropped).",
		},
		[]string{"topic", "direction"},
	)

	// WindowKeys tracks the number of live window keys.
	WindowKeys = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "window_keys",
		Help:      "Number of keys held by the velocity window aggregator.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		ScoringDuration,
		FeatureFallbacksTotal,
		BaselineFallbacksTotal,
		ModelFallbacksTotal,
		ModelSwapsTotal,
		LateEventsTotal,
		DroppedEventsTotal,
		ExplanationFallbacksTotal,
		ThresholdPublishesTotal,
		AlertsTotal,
		CacheLookupsTotal,
		BusMessagesTotal,
		WindowKeys,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status code as "2xx", "4xx", etc.
func StatusClass(code int) string {
	if code < 100 || code > 599 {
		return "unknown"
	}
	return strconv.Itoa(code/100) + "xx"
}
