package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/models"
)

func volTick(ticker string, price float64, volume int64, ts float64) *models.TickRecord {
	t := tick(ticker, price, ts)
	t.Volume = volume
	return t
}

func TestSurgeDetectorFiresOnVolumeAndPrice(t *testing.T) {
	d := NewSurgeDetector(DefaultSurgeConfig())
	base := 1700000000.0

	state := NewSymbolTickState(volTick("GME", 20.00, 1000, base))
	// Seed nine quiet ticks inside the 20 s interval.
	for i := 1; i <= 9; i++ {
		tk := volTick("GME", 20.00+float64(i)*0.01, 1000, base+float64(i))
		state.Observe(tk)
		assert.Empty(t, d.Detect(state, tk))
	}

	// Effective thresholds with sensitivity 0.4: 1.2x volume, 1.6% price.
	spike := volTick("GME", 20.50, 5000, base+10)
	state.Observe(spike)
	events := d.Detect(state, spike)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, models.EventSurge, ev.Kind)
	assert.Equal(t, models.DirectionUp, ev.Direction)
	assert.Greater(t, ev.Fields["volume_ratio"].(float64), 1.2)

	// Rate-limited: an identical spike right after stays quiet.
	again := volTick("GME", 21.00, 6000, base+11)
	state.Observe(again)
	assert.Empty(t, d.Detect(state, again))
}

func TestSurgeDetectorNeedsMinDataPoints(t *testing.T) {
	d := NewSurgeDetector(DefaultSurgeConfig())
	base := 1700000000.0

	state := NewSymbolTickState(volTick("GME", 20.00, 1000, base))
	spike := volTick("GME", 21.00, 9000, base+1)
	state.Observe(spike)
	assert.Empty(t, d.Detect(state, spike), "two samples are not enough")
}

func TestTrendDetectorWarmupAndEmission(t *testing.T) {
	cfg := DefaultTrendConfig()
	cfg.DirectionThreshold = 0.002
	cfg.GlobalSensitivity = 1.0
	cfg.StrengthThreshold = 0.01
	d := NewTrendDetector(cfg)
	base := 1700000000.0

	state := NewSymbolTickState(tick("NVDA", 100.00, base))
	price := 100.00

	// Steady climb inside the warmup window: no emission yet.
	for i := 1; i <= 8; i++ {
		price *= 1.004
		tk := tick("NVDA", price, base+float64(i)*10)
		state.Observe(tk)
		assert.Empty(t, d.Detect(state, tk))
	}

	// Past the 90 s warmup with eight rising returns in the window.
	price *= 1.004
	tk := tick("NVDA", price, base+100)
	state.Observe(tk)
	events := d.Detect(state, tk)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTrend, events[0].Kind)
	assert.Equal(t, models.DirectionUp, events[0].Direction)

	// Same-direction re-emission is suppressed until a retracement.
	price *= 1.004
	tk2 := tick("NVDA", price, base+110)
	state.Observe(tk2)
	assert.Empty(t, d.Detect(state, tk2))
}

func TestTrendRetracementAllowsSecondLeg(t *testing.T) {
	cfg := DefaultTrendConfig()
	cfg.DirectionThreshold = 0.002
	cfg.GlobalSensitivity = 1.0
	cfg.StrengthThreshold = 0.01
	cfg.RetracementThreshold = 0.25
	d := NewTrendDetector(cfg)
	base := 1700000000.0

	state := NewSymbolTickState(tick("NVDA", 100.00, base))
	price := 100.00
	ts := base
	push := func(p float64) []models.Event {
		ts += 15
		tk := tick("NVDA", p, ts)
		state.Observe(tk)
		return d.Detect(state, tk)
	}

	var fired bool
	for i := 0; i < 12 && !fired; i++ {
		price *= 1.004
		fired = len(push(price)) > 0
	}
	require.True(t, fired, "first trend leg should emit")

	// Deep pullback clears the retracement requirement.
	pullback := state.LastTrendPrice * (1 - 0.3*state.LastTrendMagnitude)
	push(pullback)

	// A fresh climb can emit again.
	price = pullback
	fired = false
	for i := 0; i < 12 && !fired; i++ {
		price *= 1.004
		fired = len(push(price)) > 0
	}
	assert.True(t, fired, "second trend leg should emit after retracement")
}
