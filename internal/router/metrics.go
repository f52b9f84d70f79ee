package router

import (
	"sync"
	"time"

	"github.com/sawpanic/marketflow/internal/models"
)

const routingEMAAlpha = 0.1

// Metrics holds the router counters. One mutex covers the whole block;
// routing is not contended enough to justify sharding.
type Metrics struct {
	mu sync.Mutex

	totalRouted     int64
	successes       int64
	failures        int64
	routingErrors   int64
	routingTimeouts int64
	fallbackRoutes  int64
	unavailable     int64

	perType    map[models.DataType]int64
	perChannel map[string]int64

	emaLatencyMs float64
	lastRouted   time.Time
}

// MetricsSnapshot is a point-in-time copy for status surfaces.
type MetricsSnapshot struct {
	TotalRouted     int64                      `json:"total_routed"`
	Successes       int64                      `json:"successes"`
	Failures        int64                      `json:"failures"`
	RoutingErrors   int64                      `json:"routing_errors"`
	RoutingTimeouts int64                      `json:"routing_timeouts"`
	FallbackRoutes  int64                      `json:"fallback_routes"`
	Unavailable     int64                      `json:"unavailable"`
	PerType         map[models.DataType]int64  `json:"per_type"`
	PerChannel      map[string]int64           `json:"per_channel"`
	EMALatencyMs    float64                    `json:"ema_latency_ms"`
	LastRouted      time.Time                  `json:"last_routed"`
}

// NewRouterMetrics builds an empty metrics block.
func NewRouterMetrics() *Metrics {
	return &Metrics{
		perType:    make(map[models.DataType]int64),
		perChannel: make(map[string]int64),
	}
}

// RecordRoute accounts one completed dispatch.
func (m *Metrics) RecordRoute(dataType models.DataType, channel string, latencyMs float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.totalRouted++
	if success {
		m.successes++
	} else {
		m.failures++
	}
	m.perType[dataType]++
	m.perChannel[channel]++
	if m.totalRouted == 1 {
		m.emaLatencyMs = latencyMs
	} else {
		m.emaLatencyMs = routingEMAAlpha*latencyMs + (1-routingEMAAlpha)*m.emaLatencyMs
	}
	m.lastRouted = time.Now()
}

// RecordRoutingError counts an unclassifiable or unroutable submission.
func (m *Metrics) RecordRoutingError() {
	m.mu.Lock()
	m.routingErrors++
	m.mu.Unlock()
}

// RecordTimeout counts a dispatch that exceeded the routing deadline.
func (m *Metrics) RecordTimeout() {
	m.mu.Lock()
	m.routingTimeouts++
	m.mu.Unlock()
}

// RecordFallback counts a route served by an unhealthy group.
func (m *Metrics) RecordFallback() {
	m.mu.Lock()
	m.fallbackRoutes++
	m.mu.Unlock()
}

// RecordUnavailable counts a rejection by the router breaker.
func (m *Metrics) RecordUnavailable() {
	m.mu.Lock()
	m.unavailable++
	m.mu.Unlock()
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	perType := make(map[models.DataType]int64, len(m.perType))
	for k, v := range m.perType {
		perType[k] = v
	}
	perChannel := make(map[string]int64, len(m.perChannel))
	for k, v := range m.perChannel {
		perChannel[k] = v
	}
	return MetricsSnapshot{
		TotalRouted:     m.totalRouted,
		Successes:       m.successes,
		Failures:        m.failures,
		RoutingErrors:   m.routingErrors,
		RoutingTimeouts: m.routingTimeouts,
		FallbackRoutes:  m.fallbackRoutes,
		Unavailable:     m.unavailable,
		PerType:         perType,
		PerChannel:      perChannel,
		EMALatencyMs:    m.emaLatencyMs,
		LastRouted:      m.lastRouted,
	}
}
