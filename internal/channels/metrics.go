package channels

import (
	"sync"
	"time"
)

const (
	latencyEMAAlpha   = 0.1
	latencySampleSize = 100
)

// Metrics tracks one channel's counters under a single lock. Readers take
// value snapshots; only the owning channel mutates.
type Metrics struct {
	mu sync.Mutex

	processed       int64
	errors          int64
	eventsGenerated int64

	lastLatencyMs float64
	emaLatencyMs  float64
	minLatencyMs  float64
	maxLatencyMs  float64
	samples       []float64
	sampleCursor  int

	batchesProcessed int64
	batchesFailed    int64
	queueOverflows   int64

	breakerOpens      int64
	breakerCloses     int64
	breakerRejections int64

	startTime    time.Time
	stopTime     time.Time
	lastActivity time.Time
}

// MetricsSnapshot is a point-in-time copy of the counters, safe to share.
type MetricsSnapshot struct {
	Processed       int64 `json:"processed"`
	Errors          int64 `json:"errors"`
	EventsGenerated int64 `json:"events_generated"`

	LastLatencyMs float64 `json:"last_latency_ms"`
	EMALatencyMs  float64 `json:"ema_latency_ms"`
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`

	BatchesProcessed int64 `json:"batches_processed"`
	BatchesFailed    int64 `json:"batches_failed"`
	QueueOverflows   int64 `json:"queue_overflows"`

	BreakerOpens      int64 `json:"breaker_opens"`
	BreakerCloses     int64 `json:"breaker_closes"`
	BreakerRejections int64 `json:"breaker_rejections"`

	ErrorRate    float64   `json:"error_rate"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
}

// NewMetrics creates a metrics block stamped with the current time.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordResult folds one processing outcome into the counters.
func (m *Metrics) RecordResult(latencyMs float64, success bool, events int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.processed++
	if !success {
		m.errors++
	}
	m.eventsGenerated += int64(events)
	m.lastActivity = time.Now()

	m.lastLatencyMs = latencyMs
	if m.emaLatencyMs == 0 {
		m.emaLatencyMs = latencyMs
	} else {
		m.emaLatencyMs = latencyEMAAlpha*latencyMs + (1-latencyEMAAlpha)*m.emaLatencyMs
	}
	if m.minLatencyMs == 0 || latencyMs < m.minLatencyMs {
		m.minLatencyMs = latencyMs
	}
	if latencyMs > m.maxLatencyMs {
		m.maxLatencyMs = latencyMs
	}

	if len(m.samples) < latencySampleSize {
		m.samples = append(m.samples, latencyMs)
	} else {
		m.samples[m.sampleCursor] = latencyMs
		m.sampleCursor = (m.sampleCursor + 1) % latencySampleSize
	}
}

// RecordBatch counts one flushed batch.
func (m *Metrics) RecordBatch(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if success {
		m.batchesProcessed++
	} else {
		m.batchesFailed++
	}
}

// RecordOverflow counts a rejected enqueue on a full queue.
func (m *Metrics) RecordOverflow() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueOverflows++
}

// RecordBreakerRejection counts a submit refused by an open breaker.
func (m *Metrics) RecordBreakerRejection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerRejections++
}

// RecordBreakerOpen counts a breaker transition to open.
func (m *Metrics) RecordBreakerOpen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerOpens++
}

// RecordBreakerClose counts a breaker transition back to closed.
func (m *Metrics) RecordBreakerClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.breakerCloses++
}

// MarkStopped stamps the shutdown time.
func (m *Metrics) MarkStopped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTime = time.Now()
}

// ErrorRate is errors/processed, zero before any work.
func (m *Metrics) ErrorRate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.processed == 0 {
		return 0
	}
	return float64(m.errors) / float64(m.processed)
}

// EMALatencyMs returns the smoothed latency.
func (m *Metrics) EMALatencyMs() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.emaLatencyMs
}

// LatencySamples returns a copy of the rolling latency window.
func (m *Metrics) LatencySamples() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float64, len(m.samples))
	copy(out, m.samples)
	return out
}

// Snapshot copies all counters into an immutable value.
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errorRate float64
	if m.processed > 0 {
		errorRate = float64(m.errors) / float64(m.processed)
	}
	return MetricsSnapshot{
		Processed:         m.processed,
		Errors:            m.errors,
		EventsGenerated:   m.eventsGenerated,
		LastLatencyMs:     m.lastLatencyMs,
		EMALatencyMs:      m.emaLatencyMs,
		MinLatencyMs:      m.minLatencyMs,
		MaxLatencyMs:      m.maxLatencyMs,
		BatchesProcessed:  m.batchesProcessed,
		BatchesFailed:     m.batchesFailed,
		QueueOverflows:    m.queueOverflows,
		BreakerOpens:      m.breakerOpens,
		BreakerCloses:     m.breakerCloses,
		BreakerRejections: m.breakerRejections,
		ErrorRate:         errorRate,
		StartTime:         m.startTime,
		LastActivity:      m.lastActivity,
	}
}
