package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the gateway's prometheus instruments on a private registry.
type Collector struct {
	reg *prometheus.Registry

	ActiveSessions prometheus.Gauge

	LocationPushes   prometheus.Counter
	PushErrors       prometheus.Counter
	ThrottledSamples prometheus.Counter

	StopCheckins    prometheus.Counter
	RoutesStarted   prometheus.Counter
	RoutesCompleted prometheus.Counter
}

// NewCollector registers all instruments on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_active_tracking_sessions",
			Help: "Number of tracking sessions currently in the Tracking state.",
		}),
		LocationPushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_location_pushes_total",
			Help: "Location samples relayed to the dispatch backend.",
		}),
		PushErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_location_push_errors_total",
			Help: "Failed location relays (logged, never retried).",
		}),
		ThrottledSamples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_throttled_samples_total",
			Help: "GPS samples held back by the minimum-interval throttle.",
		}),
		StopCheckins: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_stop_checkins_total",
			Help: "Stop completion/skip transitions accepted by dispatch.",
		}),
		RoutesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_routes_started_total",
			Help: "Routes transitioned to ACTIVE by drivers.",
		}),
		RoutesCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_routes_completed_total",
			Help: "Routes transitioned to COMPLETED by drivers.",
		}),
	}

	reg.MustRegister(
		c.ActiveSessions,
		c.LocationPushes,
		c.PushErrors,
		c.ThrottledSamples,
		c.StopCheckins,
		c.RoutesStarted,
		c.RoutesCompleted,
	)
	return c
}

// Handler serves the registry for the /metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
