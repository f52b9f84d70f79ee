package system

import (
	"sync"
	"time"

	"github.com/sawpanic/marketflow/internal/models"
)

const endToEndEMAAlpha = 0.05

// IntegrationMetrics tracks end-to-end submission outcomes across the whole
// pipeline, as opposed to the per-channel metrics blocks.
type IntegrationMetrics struct {
	mu sync.Mutex

	total     int64
	successes int64
	failures  int64
	perType   map[models.DataType]int64

	emaLatencyMs float64

	windowStart       time.Time
	windowCount       int64
	currentThroughput float64
	peakThroughput    float64

	now func() time.Time
}

// IntegrationSnapshot is a copy of the counters for status readers.
type IntegrationSnapshot struct {
	Total             int64                     `json:"total"`
	Successes         int64                     `json:"successes"`
	Failures          int64                     `json:"failures"`
	PerType           map[models.DataType]int64 `json:"per_type"`
	SuccessRate       float64                   `json:"success_rate"`
	EMALatencyMs      float64                   `json:"ema_latency_ms"`
	CurrentThroughput float64                   `json:"current_throughput_per_sec"`
	PeakThroughput    float64                   `json:"peak_throughput_per_sec"`
}

// NewIntegrationMetrics builds an empty block.
func NewIntegrationMetrics() *IntegrationMetrics {
	return &IntegrationMetrics{
		perType: make(map[models.DataType]int64),
		now:     time.Now,
	}
}

// Record folds one submission outcome into the counters. Throughput is
// measured over one-second windows.
func (m *IntegrationMetrics) Record(dataType models.DataType, latencyMs float64, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	if success {
		m.successes++
	} else {
		m.failures++
	}
	if dataType != models.DataTypeUnknown {
		m.perType[dataType]++
	}
	if m.total == 1 {
		m.emaLatencyMs = latencyMs
	} else {
		m.emaLatencyMs = endToEndEMAAlpha*latencyMs + (1-endToEndEMAAlpha)*m.emaLatencyMs
	}

	now := m.now()
	if m.windowStart.IsZero() {
		m.windowStart = now
	}
	m.windowCount++
	if elapsed := now.Sub(m.windowStart); elapsed >= time.Second {
		m.currentThroughput = float64(m.windowCount) / elapsed.Seconds()
		if m.currentThroughput > m.peakThroughput {
			m.peakThroughput = m.currentThroughput
		}
		m.windowStart = now
		m.windowCount = 0
	}
}

// Snapshot copies the counters.
func (m *IntegrationMetrics) Snapshot() IntegrationSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	perType := make(map[models.DataType]int64, len(m.perType))
	for k, v := range m.perType {
		perType[k] = v
	}
	snap := IntegrationSnapshot{
		Total:             m.total,
		Successes:         m.successes,
		Failures:          m.failures,
		PerType:           perType,
		SuccessRate:       1,
		EMALatencyMs:      m.emaLatencyMs,
		CurrentThroughput: m.currentThroughput,
		PeakThroughput:    m.peakThroughput,
	}
	if m.total > 0 {
		snap.SuccessRate = float64(m.successes) / float64(m.total)
	}
	return snap
}
