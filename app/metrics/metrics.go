// Package metrics provides Prometheus collectors for the relay.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rss_relay"

var (
	// FetchRequests counts outbound GET responses by status class.
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_requests_total",
			Help:      "Total number of outbound GET requests by status class",
		},
		[]string{"status"},
	)

	// UserAgentFallbacks counts fallback attempts per strategy and outcome.
	UserAgentFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "user_agent_fallbacks_total",
			Help:      "Total number of user agent fallback attempts",
		},
		[]string{"strategy", "result"},
	)

	// Deliveries counts webhook deliveries by outcome.
	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Total number of webhook deliveries by result",
		},
		[]string{"result"},
	)

	CheckCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_cycles_total",
			Help:      "Total number of completed check cycles",
		},
		[]string{"instance"},
	)

	CheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Duration of check cycles in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"instance"},
	)

	FailedFeeds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_feed_requests_total",
			Help:      "Total number of feed requests with a failed response",
		},
		[]string{"instance"},
	)

	NewPosts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "new_posts_total",
			Help:      "Total number of new posts found",
		},
		[]string{"instance"},
	)

	// SchedulerState exposes the lifecycle state of each scheduler as its ordinal.
	SchedulerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "scheduler_state",
			Help:      "Scheduler lifecycle state (0 not started .. 5 stopped)",
		},
		[]string{"instance"},
	)
)

// StatusClass maps an HTTP status to a label such as "2xx". Non-positive
// values are request failures.
func StatusClass(status int) string {
	if status <= 0 {
		return "error"
	}
	return strconv.Itoa(status/100) + "xx"
}

func RecordFetch(status int) {
	FetchRequests.WithLabelValues(StatusClass(status)).Inc()
}

func RecordUserAgentFallback(strategy string, success bool) {
	result := "rejected"
	if success {
		result = "accepted"
	}
	UserAgentFallbacks.WithLabelValues(strategy, result).Inc()
}

func RecordDelivery(result string) {
	Deliveries.WithLabelValues(result).Inc()
}

// RecordBatch records the outcome of one check cycle.
func RecordBatch(instance string, duration time.Duration, failed, newPosts int) {
	CheckCycles.WithLabelValues(instance).Inc()
	CheckDuration.WithLabelValues(instance).Observe(duration.Seconds())
	FailedFeeds.WithLabelValues(instance).Add(float64(failed))
	NewPosts.WithLabelValues(instance).Add(float64(newPosts))
}

func SetSchedulerState(instance string, state int) {
	SchedulerState.WithLabelValues(instance).Set(float64(state))
}
