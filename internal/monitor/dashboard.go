package monitor

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sawpanic/marketflow/internal/channels"
	"github.com/sawpanic/marketflow/internal/models"
)

// SystemOverview is the top block of the dashboard.
type SystemOverview struct {
	ChannelCount    int     `json:"channel_count"`
	HealthyChannels int     `json:"healthy_channels"`
	SuccessRate     float64 `json:"success_rate"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	MemoryUsedGb    float64 `json:"memory_used_gb"`
	MemoryPercent   float64 `json:"memory_percent"`
	CPUPercent      float64 `json:"cpu_percent"`
}

// ChannelDetail is one channel row on the dashboard.
type ChannelDetail struct {
	Name             string                   `json:"name"`
	Type             models.DataType          `json:"type"`
	Status           channels.Status          `json:"status"`
	Healthy          bool                     `json:"healthy"`
	HealthScore      float64                  `json:"health_score"`
	QueueUtilization float64                  `json:"queue_utilization"`
	Metrics          channels.MetricsSnapshot `json:"metrics"`
	Percentiles      *Percentiles             `json:"percentiles,omitempty"`
}

// Dashboard is a full observability snapshot.
type Dashboard struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	System       SystemOverview  `json:"system"`
	Channels     []ChannelDetail `json:"channels"`
	ActiveAlerts []Alert         `json:"active_alerts"`
	RecentAlerts []Alert         `json:"recent_alerts"`
	Thresholds   Thresholds      `json:"thresholds"`
}

// Dashboard assembles a snapshot from current channel state, host metrics,
// and the alert log.
func (m *Monitor) Dashboard() Dashboard {
	m.mu.Lock()
	watched := make([]Channel, 0, len(m.order))
	for _, name := range m.order {
		watched = append(watched, m.channels[name])
	}
	m.mu.Unlock()

	var (
		details      = make([]ChannelDetail, 0, len(watched))
		healthy      int
		sumProcessed int64
		sumErrors    int64
		sumLatency   float64
	)
	for _, ch := range watched {
		snap := ch.Metrics().Snapshot()
		detail := ChannelDetail{
			Name:             ch.Name(),
			Type:             ch.DataType(),
			Status:           ch.Status(),
			Healthy:          ch.IsHealthy(),
			HealthScore:      ch.HealthScore(),
			QueueUtilization: ch.QueueUtilization(),
			Metrics:          snap,
		}
		if pct, ok := m.ChannelPercentiles(ch.Name()); ok {
			detail.Percentiles = &pct
		}
		if detail.Healthy {
			healthy++
		}
		sumProcessed += snap.Processed
		sumErrors += snap.Errors
		sumLatency += snap.EMALatencyMs
		details = append(details, detail)
	}

	overview := SystemOverview{
		ChannelCount:    len(watched),
		HealthyChannels: healthy,
		SuccessRate:     1,
	}
	if sumProcessed > 0 {
		overview.SuccessRate = 1 - float64(sumErrors)/float64(sumProcessed)
	}
	if len(watched) > 0 {
		overview.AvgLatencyMs = sumLatency / float64(len(watched))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		overview.MemoryUsedGb = float64(vm.Used) / (1 << 30)
		overview.MemoryPercent = vm.UsedPercent
	}
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		overview.CPUPercent = pct[0]
	}

	history := m.History()
	if len(history) > 50 {
		history = history[len(history)-50:]
	}

	return Dashboard{
		GeneratedAt:  m.now(),
		System:       overview,
		Channels:     details,
		ActiveAlerts: m.ActiveAlerts(),
		RecentAlerts: history,
		Thresholds:   m.cfg.Thresholds,
	}
}
