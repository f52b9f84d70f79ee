package http

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sawpanic/marketflow/internal/system"
)

// MetricsRegistry holds the Prometheus metrics exported on /metrics. Values
// are refreshed from a system status snapshot just before each scrape.
type MetricsRegistry struct {
	registry *prometheus.Registry

	ChannelProcessed   *prometheus.GaugeVec
	ChannelErrors      *prometheus.GaugeVec
	ChannelEvents      *prometheus.GaugeVec
	ChannelLatency     *prometheus.GaugeVec
	ChannelHealthScore *prometheus.GaugeVec

	RouterRouted    prometheus.Gauge
	RouterErrors    prometheus.Gauge
	RouterTimeouts  prometheus.Gauge
	RouterFallbacks prometheus.Gauge
	RouterLatency   prometheus.Gauge

	SystemSuccessRate prometheus.Gauge
	SystemLatency     prometheus.Gauge
	SystemThroughput  prometheus.Gauge

	PersistenceQueued    prometheus.Gauge
	PersistencePersisted prometheus.Gauge
	PersistenceErrors    prometheus.Gauge
}

// NewMetricsRegistry creates and registers all metrics on a private
// registry, keeping the default global registry clean.
func NewMetricsRegistry() *MetricsRegistry {
	m := &MetricsRegistry{
		registry: prometheus.NewRegistry(),

		ChannelProcessed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_channel_processed_total",
			Help: "Items processed per channel",
		}, []string{"channel"}),
		ChannelErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_channel_errors_total",
			Help: "Processing errors per channel",
		}, []string{"channel"}),
		ChannelEvents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_channel_events_generated_total",
			Help: "Domain events generated per channel",
		}, []string{"channel"}),
		ChannelLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_channel_ema_latency_ms",
			Help: "EMA processing latency per channel in milliseconds",
		}, []string{"channel"}),
		ChannelHealthScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketflow_channel_health_score",
			Help: "Channel health score in [0,100]",
		}, []string{"channel"}),

		RouterRouted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_router_routed_total",
			Help: "Submissions dispatched by the router",
		}),
		RouterErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_router_errors_total",
			Help: "Unroutable or unclassifiable submissions",
		}),
		RouterTimeouts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_router_timeouts_total",
			Help: "Dispatches that exceeded the routing deadline",
		}),
		RouterFallbacks: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_router_fallback_routes_total",
			Help: "Routes served by an unhealthy channel group",
		}),
		RouterLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_router_ema_latency_ms",
			Help: "EMA routing latency in milliseconds",
		}),

		SystemSuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_system_success_rate",
			Help: "End-to-end submission success rate in [0,1]",
		}),
		SystemLatency: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_system_ema_latency_ms",
			Help: "EMA end-to-end latency in milliseconds",
		}),
		SystemThroughput: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_system_throughput_per_sec",
			Help: "Current submissions per second over one-second windows",
		}),

		PersistenceQueued: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_persistence_queued",
			Help: "Bars waiting in the persistence queue",
		}),
		PersistencePersisted: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_persistence_persisted_total",
			Help: "Rows written to the store",
		}),
		PersistenceErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketflow_persistence_errors_total",
			Help: "Failed batch writes",
		}),
	}

	m.registry.MustRegister(
		m.ChannelProcessed, m.ChannelErrors, m.ChannelEvents, m.ChannelLatency, m.ChannelHealthScore,
		m.RouterRouted, m.RouterErrors, m.RouterTimeouts, m.RouterFallbacks, m.RouterLatency,
		m.SystemSuccessRate, m.SystemLatency, m.SystemThroughput,
		m.PersistenceQueued, m.PersistencePersisted, m.PersistenceErrors,
	)
	return m
}

// Registry exposes the underlying registry for the promhttp handler.
func (m *MetricsRegistry) Registry() *prometheus.Registry { return m.registry }

// Update refreshes every metric from a status snapshot.
func (m *MetricsRegistry) Update(st system.Status) {
	for _, ch := range st.Channels {
		labels := prometheus.Labels{"channel": ch.Name}
		m.ChannelProcessed.With(labels).Set(float64(ch.Metrics.Processed))
		m.ChannelErrors.With(labels).Set(float64(ch.Metrics.Errors))
		m.ChannelEvents.With(labels).Set(float64(ch.Metrics.EventsGenerated))
		m.ChannelLatency.With(labels).Set(ch.Metrics.EMALatencyMs)
		m.ChannelHealthScore.With(labels).Set(ch.HealthScore)
	}

	m.RouterRouted.Set(float64(st.Router.TotalRouted))
	m.RouterErrors.Set(float64(st.Router.RoutingErrors))
	m.RouterTimeouts.Set(float64(st.Router.RoutingTimeouts))
	m.RouterFallbacks.Set(float64(st.Router.FallbackRoutes))
	m.RouterLatency.Set(st.Router.EMALatencyMs)

	m.SystemSuccessRate.Set(st.Metrics.SuccessRate)
	m.SystemLatency.Set(st.Metrics.EMALatencyMs)
	m.SystemThroughput.Set(st.Metrics.CurrentThroughput)

	if st.Persistence != nil {
		m.PersistenceQueued.Set(float64(st.Persistence.Queued))
		m.PersistencePersisted.Set(float64(st.Persistence.Persisted))
		m.PersistenceErrors.Set(float64(st.Persistence.Errors))
	}
}
