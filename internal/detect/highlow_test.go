package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/models"
)

func tick(ticker string, price float64, ts float64) *models.TickRecord {
	t := &models.TickRecord{
		Ticker:       ticker,
		Price:        price,
		Volume:       1000,
		Timestamp:    ts,
		MarketStatus: models.MarketRegular,
	}
	if err := t.Validate(); err != nil {
		panic(err)
	}
	return t
}

func runTicks(d *HighLowDetector, ticks []*models.TickRecord) (*SymbolTickState, [][]models.Event) {
	var state *SymbolTickState
	var out [][]models.Event
	for _, tk := range ticks {
		if state == nil {
			state = NewSymbolTickState(tk)
			out = append(out, nil) // first sight establishes baselines only
			continue
		}
		state.Observe(tk)
		out = append(out, d.Detect(state, tk))
	}
	return state, out
}

func TestHighLowSessionHighEmission(t *testing.T) {
	d := NewHighLowDetector(DefaultHighLowConfig())
	base := 1700000000.0

	state, events := runTicks(d, []*models.TickRecord{
		tick("AAPL", 150.00, base+0),
		tick("AAPL", 150.20, base+1),
		tick("AAPL", 150.60, base+2),
	})

	assert.Empty(t, events[0], "no event on first sight")
	// 0.13% is under the opening-window threshold; the high moves silently.
	assert.Empty(t, events[1])
	require.Len(t, events[2], 1)

	ev := events[2][0]
	assert.Equal(t, models.EventSessionHigh, ev.Kind)
	assert.Equal(t, 150.60, ev.Price)
	assert.Equal(t, models.DirectionUp, ev.Direction)
	assert.Equal(t, 150.60, state.SessionHigh)
}

func TestHighLowCooldown(t *testing.T) {
	cfg := DefaultHighLowConfig()
	cfg.CooldownSeconds = 5
	d := NewHighLowDetector(cfg)
	base := 1700000000.0

	state := NewSymbolTickState(tick("AAPL", 150.00, base))

	t1 := tick("AAPL", 150.50, base+1)
	state.Observe(t1)
	events := d.Detect(state, t1)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSessionHigh, events[0].Kind)
	assert.Equal(t, 150.50, state.SessionHigh)

	// Inside the cooldown: no event and the baseline holds.
	t3 := tick("AAPL", 151.00, base+3)
	state.Observe(t3)
	assert.Empty(t, d.Detect(state, t3))
	assert.Equal(t, 150.50, state.SessionHigh)

	// Cooldown elapsed: the pending move fires.
	t6 := tick("AAPL", 151.00, base+6)
	state.Observe(t6)
	events = d.Detect(state, t6)
	require.Len(t, events, 1)
	assert.Equal(t, 151.00, events[0].Price)
	assert.Equal(t, 151.00, state.SessionHigh)
}

func TestHighLowSessionLow(t *testing.T) {
	d := NewHighLowDetector(DefaultHighLowConfig())
	base := 1700000000.0

	_, events := runTicks(d, []*models.TickRecord{
		tick("XOM", 100.00, base+0),
		tick("XOM", 99.00, base+2),
	})

	require.Len(t, events[1], 1)
	ev := events[1][0]
	assert.Equal(t, models.EventSessionLow, ev.Kind)
	assert.Equal(t, models.DirectionDown, ev.Direction)
	assert.Equal(t, 99.00, ev.Price)
}

func TestHighLowExtendedHoursMultiplier(t *testing.T) {
	d := NewHighLowDetector(DefaultHighLowConfig())
	base := 1700000000.0

	first := tick("AAPL", 100.00, base)
	first.MarketStatus = models.MarketPremarket
	state := NewSymbolTickState(first)

	// 0.25% clears the regular opening threshold (0.15%) but not the
	// premarket one (0.1 * 2.0 * 1.5 = 0.3%).
	next := tick("AAPL", 100.25, base+1)
	next.MarketStatus = models.MarketPremarket
	state.Observe(next)
	assert.Empty(t, d.Detect(state, next))

	bigger := tick("AAPL", 100.60, base+2)
	bigger.MarketStatus = models.MarketPremarket
	state.Observe(bigger)
	events := d.Detect(state, bigger)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventSessionHigh, events[0].Kind)
}

func TestHighLowMarketAwareDisabled(t *testing.T) {
	cfg := DefaultHighLowConfig()
	cfg.MarketAware = false
	d := NewHighLowDetector(cfg)
	base := 1700000000.0

	state := NewSymbolTickState(tick("AAPL", 150.00, base))
	t1 := tick("AAPL", 150.20, base+1)
	state.Observe(t1)

	// Without multipliers 0.133% clears the base 0.1% threshold.
	events := d.Detect(state, t1)
	require.Len(t, events, 1)
	assert.Equal(t, 150.20, events[0].Price)
}
