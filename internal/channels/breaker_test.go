package channels

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	assert.False(t, b.RecordFailure())
	assert.False(t, b.RecordFailure())
	assert.True(t, b.RecordFailure(), "third consecutive failure trips")
	assert.True(t, b.IsOpen())

	allowed, _ := b.Allow()
	assert.False(t, allowed)
}

func TestBreakerSuccessResetsRun(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.False(t, b.RecordFailure(), "run restarted after success")
	assert.False(t, b.IsOpen())
}

func TestBreakerAutoClosesAfterTimeout(t *testing.T) {
	clock := time.Unix(1700000000, 0)
	b := NewBreaker(1, 30*time.Second)
	b.now = func() time.Time { return clock }

	assert.True(t, b.RecordFailure())
	assert.True(t, b.IsOpen())

	clock = clock.Add(31 * time.Second)
	allowed, closedNow := b.Allow()
	assert.True(t, allowed)
	assert.True(t, closedNow)
	assert.False(t, b.IsOpen())

	// Only the first caller observes the transition.
	allowed, closedNow = b.Allow()
	assert.True(t, allowed)
	assert.False(t, closedNow)
}

func TestBreakerSnapshot(t *testing.T) {
	b := NewBreaker(2, time.Minute)
	b.RecordFailure()

	snap := b.Snapshot()
	assert.False(t, snap.Open)
	assert.Equal(t, 1, snap.ConsecutiveErrors)
}

func TestMetricsEMAAndBounds(t *testing.T) {
	m := NewMetrics()

	m.RecordResult(10, true, 2)
	assert.Equal(t, 10.0, m.EMALatencyMs(), "first sample seeds the EMA")

	m.RecordResult(20, false, 0)
	assert.InDelta(t, 0.1*20+0.9*10, m.EMALatencyMs(), 1e-9)

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Processed)
	assert.Equal(t, int64(1), snap.Errors)
	assert.Equal(t, int64(2), snap.EventsGenerated)
	assert.Equal(t, 10.0, snap.MinLatencyMs)
	assert.Equal(t, 20.0, snap.MaxLatencyMs)
	assert.InDelta(t, 0.5, snap.ErrorRate, 1e-9)
}

func TestMetricsSnapshotImmutable(t *testing.T) {
	m := NewMetrics()
	m.RecordResult(5, true, 1)

	snap := m.Snapshot()
	m.RecordResult(50, false, 0)

	assert.Equal(t, int64(1), snap.Processed, "snapshot unaffected by later updates")
	assert.Equal(t, int64(0), snap.Errors)
}

func TestMetricsSampleRingBounded(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < latencySampleSize+40; i++ {
		m.RecordResult(float64(i), true, 0)
	}
	assert.Len(t, m.LatencySamples(), latencySampleSize)
}
