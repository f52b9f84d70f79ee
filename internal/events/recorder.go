package events

import (
	"context"
	"sync"

	"github.com/sawpanic/marketflow/internal/models"
)

// Recorder keeps every processed event in memory. It backs the "noop" sink
// and doubles as a capture point in tests.
type Recorder struct {
	mu     sync.Mutex
	events []models.Event
}

// NewRecorder builds an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Process appends the batch.
func (r *Recorder) Process(_ context.Context, events []models.Event) error {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count reports the number of recorded events.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Close is a no-op.
func (r *Recorder) Close() error { return nil }
