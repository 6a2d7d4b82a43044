package rate

import "github.com/prometheus/client_golang/prometheus"

var (
	sentCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_rate_requests_sent_total",
		Help: "Requests the guard let through to the provider",
	}, []string{"provider"})
	refusedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_rate_requests_refused_total",
		Help: "Requests refused locally, by reason",
	}, []string{"provider", "reason"})
	replayedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_rate_requests_replayed_total",
		Help: "Refused requests answered with a remembered response",
	}, []string{"provider"})
	throttledCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "solarcloud_rate_throttled_total",
		Help: "Throttling responses received from the provider",
	}, []string{"provider"})
	pausedUntilGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solarcloud_rate_paused_until_timestamp_seconds",
		Help: "End of the current throttle pause",
	}, []string{"provider"})
	budgetUsed = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "solarcloud_rate_budget_used",
		Help: "Requests counted in the current sliding window",
	}, []string{"provider", "window"})
)

// MetricsCollectors exposes the guard collectors shared by every provider.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		sentCounter,
		refusedCounter,
		replayedCounter,
		throttledCounter,
		pausedUntilGauge,
		budgetUsed,
	}
}
