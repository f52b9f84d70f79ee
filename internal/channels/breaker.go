package channels

import (
	"sync"
	"time"
)

// Breaker is the per-channel circuit breaker: it opens after a run of
// consecutive errors and closes itself once the timeout elapses.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	timeout   time.Duration

	consecutiveErrors int
	open              bool
	openedAt          time.Time

	now func() time.Time
}

// BreakerSnapshot is a point-in-time copy of breaker state.
type BreakerSnapshot struct {
	Open              bool      `json:"open"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	OpenedAt          time.Time `json:"opened_at,omitempty"`
}

// NewBreaker creates a breaker with the given trip threshold and open timeout.
func NewBreaker(threshold int, timeout time.Duration) *Breaker {
	return &Breaker{threshold: threshold, timeout: timeout, now: time.Now}
}

// Allow reports whether work may proceed, closing the breaker first when the
// open timeout has elapsed. The closed transition is reported through the
// second return value so callers can count it.
func (b *Breaker) Allow() (allowed, closedNow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return true, false
	}
	if b.now().Sub(b.openedAt) > b.timeout {
		b.open = false
		b.consecutiveErrors = 0
		return true, true
	}
	return false, false
}

// RecordSuccess resets the consecutive-error run.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveErrors = 0
}

// RecordFailure counts one failure and reports whether it tripped the breaker.
func (b *Breaker) RecordFailure() (openedNow bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveErrors++
	if !b.open && b.consecutiveErrors >= b.threshold {
		b.open = true
		b.openedAt = b.now()
		return true
	}
	return false
}

// IsOpen reports the current state without side effects.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.open && b.now().Sub(b.openedAt) > b.timeout {
		return false
	}
	return b.open
}

// Snapshot copies the breaker state.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Open:              b.open,
		ConsecutiveErrors: b.consecutiveErrors,
		OpenedAt:          b.openedAt,
	}
}
