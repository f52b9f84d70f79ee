// Package channels implements the typed processing channels: bounded input
// queues, batching, per-channel circuit breaking, per-symbol analytics, and
// the metrics surface the router and monitor read.
package channels

// Status is the lifecycle state of a channel.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusError        Status = "error"
	StatusShutdown     Status = "shutdown"
)

// BatchStrategy selects when queued items are processed.
type BatchStrategy string

const (
	BatchImmediate BatchStrategy = "immediate"
	BatchSize      BatchStrategy = "size"
	BatchTime      BatchStrategy = "time"
	BatchHybrid    BatchStrategy = "hybrid"
)

// OverflowAction selects the behavior when the input queue is full.
type OverflowAction string

const (
	OverflowDropOldest OverflowAction = "drop_oldest"
	OverflowRejectNew  OverflowAction = "reject_new"
)

// BatchingConfig tunes the deferred-processing policy.
type BatchingConfig struct {
	Strategy       BatchStrategy  `yaml:"strategy"`
	MaxBatchSize   int            `yaml:"max_batch_size"`
	MaxWaitTimeMs  int            `yaml:"max_wait_time_ms"`
	OverflowAction OverflowAction `yaml:"overflow_action"`
}

// Config holds the per-channel knobs. Zero values are backfilled by
// applyDefaults so partial YAML configs stay valid.
type Config struct {
	Name                         string  `yaml:"name"`
	Enabled                      bool    `yaml:"enabled"`
	Priority                     int     `yaml:"priority"`
	MaxQueueSize                 int     `yaml:"max_queue_size"`
	ProcessingTimeoutMs          int     `yaml:"processing_timeout_ms"`
	MaxConcurrentProcessing      int     `yaml:"max_concurrent_processing"`
	CircuitBreakerThreshold      int     `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeoutSeconds int     `yaml:"circuit_breaker_timeout_seconds"`
	ErrorThreshold               float64 `yaml:"error_threshold"`
	RetryAttempts                int     `yaml:"retry_attempts"`
	RetryDelayMs                 int     `yaml:"retry_delay_ms"`

	Batching BatchingConfig `yaml:"batching"`

	// State janitor settings; defaults differ per channel type.
	CleanupIntervalSeconds int `yaml:"cleanup_interval_seconds"`
	StateIdleTTLSeconds    int `yaml:"state_idle_ttl_seconds"`
}

func (c *Config) applyDefaults() {
	if c.MaxQueueSize == 0 {
		c.MaxQueueSize = 1000
	}
	if c.ProcessingTimeoutMs == 0 {
		c.ProcessingTimeoutMs = 100
	}
	if c.MaxConcurrentProcessing == 0 {
		c.MaxConcurrentProcessing = 1
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.CircuitBreakerTimeoutSeconds == 0 {
		c.CircuitBreakerTimeoutSeconds = 60
	}
	if c.ErrorThreshold == 0 {
		c.ErrorThreshold = 0.10
	}
	if c.Batching.Strategy == "" {
		c.Batching.Strategy = BatchImmediate
	}
	if c.Batching.MaxBatchSize == 0 {
		c.Batching.MaxBatchSize = 100
	}
	if c.Batching.MaxWaitTimeMs == 0 {
		c.Batching.MaxWaitTimeMs = 100
	}
	if c.Batching.OverflowAction == "" {
		c.Batching.OverflowAction = OverflowRejectNew
	}
}
