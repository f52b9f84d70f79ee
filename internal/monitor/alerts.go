package monitor

import (
	"time"

	"github.com/google/uuid"
)

// AlertType classifies what tripped.
type AlertType string

const (
	AlertChannelFailure         AlertType = "channel_failure"
	AlertPerformanceDegradation AlertType = "performance_degradation"
	AlertHighLatency            AlertType = "high_latency"
	AlertLowSuccessRate         AlertType = "low_success_rate"
	AlertMemoryUsage            AlertType = "memory_usage"
	AlertQueueOverflow          AlertType = "queue_overflow"
	AlertRoutingErrors          AlertType = "routing_errors"
	AlertSystemHealth           AlertType = "system_health"
)

// Severity orders alerts for display and paging.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Alert is one threshold breach observed by a sampling pass.
type Alert struct {
	ID       string         `json:"id"`
	Type     AlertType      `json:"type"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Channel  string         `json:"channel,omitempty"`
	Time     time.Time      `json:"time"`
	Details  map[string]any `json:"details,omitempty"`
}

func newAlertID() string { return uuid.NewString() }

// Handler receives each alert that survives the cooldown filter.
type Handler func(Alert)

type alertKey struct {
	alertType AlertType
	channel   string
}
