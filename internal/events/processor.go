// Package events defines the downstream event-processor boundary and the
// built-in sink implementations.
package events

import (
	"context"
	"fmt"

	"github.com/sawpanic/marketflow/internal/models"
)

// Processor consumes the events the channels emit. Implementations must be
// safe for concurrent use; Process must not block on slow consumers.
type Processor interface {
	Process(ctx context.Context, events []models.Event) error
	Close() error
}

// SinkType selects a built-in processor implementation.
type SinkType string

const (
	SinkLog   SinkType = "log"
	SinkRedis SinkType = "redis"
	SinkNoop  SinkType = "noop"
)

// SinkConfig configures the event sink built by NewProcessor.
type SinkConfig struct {
	Type SinkType `yaml:"type"`

	// Redis sink settings.
	RedisAddr     string `yaml:"redis_addr"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPassword string `yaml:"redis_password"`
	RedisChannel  string `yaml:"redis_channel"`
}

// NewProcessor builds a processor from config.
func NewProcessor(cfg SinkConfig) (Processor, error) {
	switch cfg.Type {
	case SinkLog, "":
		return NewLogSink(), nil
	case SinkRedis:
		return NewRedisPublisher(cfg)
	case SinkNoop:
		return NewRecorder(), nil
	default:
		return nil, fmt.Errorf("unsupported event sink type: %s", cfg.Type)
	}
}

// Fanout forwards each batch to every wrapped processor. The first error is
// returned after all processors have been offered the batch.
type Fanout struct {
	processors []Processor
}

// NewFanout composes processors into one.
func NewFanout(processors ...Processor) *Fanout {
	return &Fanout{processors: processors}
}

// Process forwards to all wrapped processors.
func (f *Fanout) Process(ctx context.Context, events []models.Event) error {
	var firstErr error
	for _, p := range f.processors {
		if err := p.Process(ctx, events); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all wrapped processors.
func (f *Fanout) Close() error {
	var firstErr error
	for _, p := range f.processors {
		if err := p.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
