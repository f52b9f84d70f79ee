// Package monitor samples channel metrics, raises threshold alerts, and
// produces dashboard snapshots.
package monitor

import (
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/sawpanic/marketflow/internal/channels"
	"github.com/sawpanic/marketflow/internal/models"
)

const (
	percentileRingSize = 1000
	percentileMinCount = 10
	historyRetention   = 24 * time.Hour
)

// Channel is the read-only surface the monitor samples. The typed channels
// satisfy it.
type Channel interface {
	Name() string
	DataType() models.DataType
	Status() channels.Status
	IsHealthy() bool
	HealthScore() float64
	QueueUtilization() float64
	Metrics() *channels.Metrics
}

// Thresholds are the per-channel alerting limits.
type Thresholds struct {
	MaxLatencyMs        float64 `yaml:"max_latency_ms"`
	MinSuccessRate      float64 `yaml:"min_success_rate"`
	MaxMemoryGb         float64 `yaml:"max_memory_gb"`
	MaxQueueUtilization float64 `yaml:"max_queue_utilization"`
	MaxErrorRate        float64 `yaml:"max_error_rate"`
	MaxProcessingMs     float64 `yaml:"max_processing_ms"`
}

// DefaultThresholds returns the documented limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MaxLatencyMs:        50,
		MinSuccessRate:      0.95,
		MaxMemoryGb:         2.0,
		MaxQueueUtilization: 0.80,
		MaxErrorRate:        0.05,
		MaxProcessingMs:     100,
	}
}

// Config is the monitor tuning surface.
type Config struct {
	SampleIntervalSeconds int        `yaml:"sample_interval_seconds"`
	AlertCooldownSeconds  int        `yaml:"alert_cooldown_seconds"`
	Thresholds            Thresholds `yaml:"thresholds"`
}

func (c *Config) applyDefaults() {
	if c.SampleIntervalSeconds <= 0 {
		c.SampleIntervalSeconds = 10
	}
	if c.AlertCooldownSeconds <= 0 {
		c.AlertCooldownSeconds = 300
	}
	zero := Thresholds{}
	if c.Thresholds == zero {
		c.Thresholds = DefaultThresholds()
	}
}

// Percentiles summarizes a channel's latency distribution.
type Percentiles struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Monitor watches registered channels on a fixed interval.
type Monitor struct {
	cfg Config

	mu        sync.Mutex
	channels  map[string]Channel
	order     []string
	samples   map[string][]float64
	lastAlert map[alertKey]time.Time
	active    map[alertKey]Alert
	history   []Alert
	handlers  []Handler

	now func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log zerolog.Logger
}

// New builds a monitor.
func New(cfg Config) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		cfg:       cfg,
		channels:  make(map[string]Channel),
		samples:   make(map[string][]float64),
		lastAlert: make(map[alertKey]time.Time),
		active:    make(map[alertKey]Alert),
		now:       time.Now,
		stopCh:    make(chan struct{}),
		log:       log.With().Str("component", "monitor").Logger(),
	}
}

// RegisterChannel adds a channel to the watch set.
func (m *Monitor) RegisterChannel(ch Channel) {
	m.mu.Lock()
	if _, ok := m.channels[ch.Name()]; !ok {
		m.order = append(m.order, ch.Name())
	}
	m.channels[ch.Name()] = ch
	m.mu.Unlock()
}

// AddHandler registers an alert callback. Handlers run on the sampling
// goroutine and must return quickly.
func (m *Monitor) AddHandler(h Handler) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

// Start spawns the sampling loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.log.Info().Int("interval_s", m.cfg.SampleIntervalSeconds).Msg("monitor started")
}

// Stop terminates the sampling loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		m.wg.Wait()
		m.log.Info().Msg("monitor stopped")
	})
}

func (m *Monitor) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Duration(m.cfg.SampleIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Sample()
		}
	}
}

// Sample runs one monitoring pass: record latency samples, evaluate
// thresholds, emit alerts past the cooldown filter.
func (m *Monitor) Sample() {
	var alerts []Alert

	m.mu.Lock()
	watched := make([]Channel, 0, len(m.order))
	for _, name := range m.order {
		watched = append(watched, m.channels[name])
	}
	m.mu.Unlock()

	for _, ch := range watched {
		snap := ch.Metrics().Snapshot()
		m.recordSample(ch.Name(), snap.EMALatencyMs)
		alerts = append(alerts, m.evaluateChannel(ch, snap)...)
	}
	if a, ok := m.checkMemory(); ok {
		alerts = append(alerts, a)
	}

	for _, alert := range alerts {
		m.raise(alert)
	}
	m.pruneHistory()
}

func (m *Monitor) recordSample(name string, latencyMs float64) {
	m.mu.Lock()
	ring := append(m.samples[name], latencyMs)
	if len(ring) > percentileRingSize {
		ring = ring[len(ring)-percentileRingSize:]
	}
	m.samples[name] = ring
	m.mu.Unlock()
}

func (m *Monitor) evaluateChannel(ch Channel, snap channels.MetricsSnapshot) []Alert {
	t := m.cfg.Thresholds
	now := m.now()
	var out []Alert

	if !ch.IsHealthy() {
		severity := SeverityError
		if ch.Status() == channels.StatusError || ch.Status() == channels.StatusShutdown {
			severity = SeverityCritical
		}
		out = append(out, Alert{
			Type: AlertChannelFailure, Severity: severity, Channel: ch.Name(), Time: now,
			Message: fmt.Sprintf("channel %s unhealthy (score %.1f)", ch.Name(), ch.HealthScore()),
			Details: map[string]any{"health_score": ch.HealthScore(), "status": string(ch.Status())},
		})
	}
	if snap.EMALatencyMs > t.MaxLatencyMs {
		out = append(out, Alert{
			Type: AlertHighLatency, Severity: SeverityWarning, Channel: ch.Name(), Time: now,
			Message: fmt.Sprintf("channel %s latency %.1fms over %.0fms", ch.Name(), snap.EMALatencyMs, t.MaxLatencyMs),
			Details: map[string]any{"ema_latency_ms": snap.EMALatencyMs},
		})
	}
	if snap.MaxLatencyMs > t.MaxProcessingMs {
		out = append(out, Alert{
			Type: AlertPerformanceDegradation, Severity: SeverityWarning, Channel: ch.Name(), Time: now,
			Message: fmt.Sprintf("channel %s worst-case processing %.1fms over %.0fms", ch.Name(), snap.MaxLatencyMs, t.MaxProcessingMs),
			Details: map[string]any{"max_latency_ms": snap.MaxLatencyMs},
		})
	}
	if snap.Processed > 0 {
		successRate := 1 - snap.ErrorRate
		if successRate < t.MinSuccessRate {
			out = append(out, Alert{
				Type: AlertLowSuccessRate, Severity: SeverityError, Channel: ch.Name(), Time: now,
				Message: fmt.Sprintf("channel %s success rate %.1f%% under %.0f%%", ch.Name(), successRate*100, t.MinSuccessRate*100),
				Details: map[string]any{"success_rate": successRate, "errors": snap.Errors},
			})
		}
	}
	if util := ch.QueueUtilization(); util > t.MaxQueueUtilization {
		out = append(out, Alert{
			Type: AlertQueueOverflow, Severity: SeverityWarning, Channel: ch.Name(), Time: now,
			Message: fmt.Sprintf("channel %s queue %.0f%% full", ch.Name(), util*100),
			Details: map[string]any{"queue_utilization": util, "overflows": snap.QueueOverflows},
		})
	}
	return out
}

// checkMemory compares process RSS against the memory budget.
func (m *Monitor) checkMemory() (Alert, bool) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return Alert{}, false
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return Alert{}, false
	}
	usedGb := float64(info.RSS) / (1 << 30)
	if usedGb <= m.cfg.Thresholds.MaxMemoryGb {
		return Alert{}, false
	}
	return Alert{
		Type: AlertMemoryUsage, Severity: SeverityWarning, Time: m.now(),
		Message: fmt.Sprintf("process memory %.2fGB over %.1fGB", usedGb, m.cfg.Thresholds.MaxMemoryGb),
		Details: map[string]any{"rss_gb": usedGb},
	}, true
}

// RaiseSystemAlert lets the composition root report system-level conditions
// (routing errors, degraded state) through the same pipeline.
func (m *Monitor) RaiseSystemAlert(alertType AlertType, severity Severity, message string, details map[string]any) {
	m.raise(Alert{Type: alertType, Severity: severity, Message: message, Details: details, Time: m.now()})
}

// raise applies the cooldown filter, records the alert, and fans it out.
func (m *Monitor) raise(alert Alert) {
	alert.ID = newAlertID()
	key := alertKey{alertType: alert.Type, channel: alert.Channel}
	cooldown := time.Duration(m.cfg.AlertCooldownSeconds) * time.Second

	m.mu.Lock()
	if last, ok := m.lastAlert[key]; ok && alert.Time.Sub(last) < cooldown {
		m.mu.Unlock()
		return
	}
	m.lastAlert[key] = alert.Time
	m.active[key] = alert
	m.history = append(m.history, alert)
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	m.log.Warn().
		Str("alert_type", string(alert.Type)).
		Str("severity", string(alert.Severity)).
		Str("channel", alert.Channel).
		Msg(alert.Message)
	for _, h := range handlers {
		h(alert)
	}
}

func (m *Monitor) pruneHistory() {
	cutoff := m.now().Add(-historyRetention)
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.history[:0]
	for _, a := range m.history {
		if a.Time.After(cutoff) {
			kept = append(kept, a)
		}
	}
	m.history = kept

	// An active alert clears once its cooldown has fully lapsed without
	// re-triggering.
	cooldown := time.Duration(m.cfg.AlertCooldownSeconds) * time.Second
	for key, a := range m.active {
		if m.now().Sub(a.Time) > cooldown {
			delete(m.active, key)
		}
	}
}

// ChannelPercentiles computes p50/p95/p99 from the sample ring. Returns
// false until enough samples accumulate.
func (m *Monitor) ChannelPercentiles(name string) (Percentiles, bool) {
	m.mu.Lock()
	ring := m.samples[name]
	samples := make([]float64, len(ring))
	copy(samples, ring)
	m.mu.Unlock()

	if len(samples) < percentileMinCount {
		return Percentiles{}, false
	}
	sort.Float64s(samples)
	return Percentiles{
		P50: percentile(samples, 0.50),
		P95: percentile(samples, 0.95),
		P99: percentile(samples, 0.99),
	}, true
}

func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(q * float64(len(sorted)-1))
	return sorted[idx]
}

// ActiveAlerts returns alerts still inside their cooldown window.
func (m *Monitor) ActiveAlerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, 0, len(m.active))
	for _, a := range m.active {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// History returns the retained alert log, oldest first.
func (m *Monitor) History() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Alert, len(m.history))
	copy(out, m.history)
	return out
}
