package hub

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	metricsOnce sync.Once

	ChannelsOpened   = prometheus.NewCounter(prometheus.CounterOpts{Name: "channels_opened_total", Help: "Websocket channels successfully authenticated"})
	AuthRejects      = prometheus.NewCounter(prometheus.CounterOpts{Name: "channels_auth_rejects_total", Help: "Channels closed for a missing or invalid auth frame"})
	EventsDelivered  = prometheus.NewCounter(prometheus.CounterOpts{Name: "events_delivered_total", Help: "Job events written to client channels"})
	OutcomesDropped  = prometheus.NewCounter(prometheus.CounterOpts{Name: "outcomes_dropped_total", Help: "Worker outcomes dropped as malformed"})
	OutcomesStale    = prometheus.NewCounter(prometheus.CounterOpts{Name: "outcomes_stale_total", Help: "Worker outcomes superseded by a newer render"})
	LiveChannelGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "channels_live", Help: "Currently open client channels"})
)

// MetricsHandler exposes the /metrics HTTP handler with a singleton registry.
func MetricsHandler() http.Handler {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			ChannelsOpened,
			AuthRejects,
			EventsDelivered,
			OutcomesDropped,
			OutcomesStale,
			LiveChannelGauge,
		)
	})
	return promhttp.Handler()
}
