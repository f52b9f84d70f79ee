package detect

import (
	"fmt"

	"github.com/sawpanic/marketflow/internal/models"
)

// openingWindowSeconds is how long after session start the opening
// multiplier applies.
const openingWindowSeconds = 300

// HighLowConfig tunes the session high/low detector.
type HighLowConfig struct {
	MinPriceChange          float64 `yaml:"min_price_change"`
	MinPercentChange        float64 `yaml:"min_percent_change"` // percent units
	CooldownSeconds         float64 `yaml:"cooldown_seconds"`
	MarketAware             bool    `yaml:"market_aware"`
	ExtendedHoursMultiplier float64 `yaml:"extended_hours_multiplier"`
	OpeningMultiplier       float64 `yaml:"opening_multiplier"`
}

// DefaultHighLowConfig returns the production defaults.
func DefaultHighLowConfig() HighLowConfig {
	return HighLowConfig{
		MinPriceChange:          0.01,
		MinPercentChange:        0.1,
		CooldownSeconds:         1,
		MarketAware:             true,
		ExtendedHoursMultiplier: 2.0,
		OpeningMultiplier:       1.5,
	}
}

// HighLowDetector emits SessionHigh/SessionLow events when a symbol makes a
// meaningful new extreme. Small new extremes move the baseline silently;
// extremes reached during a cooldown window neither emit nor move the
// baseline, so the pending move can fire once the cooldown lapses.
type HighLowDetector struct {
	cfg HighLowConfig
}

// NewHighLowDetector builds a detector with the given config; zero-value
// fields fall back to defaults.
func NewHighLowDetector(cfg HighLowConfig) *HighLowDetector {
	def := DefaultHighLowConfig()
	if cfg.MinPriceChange == 0 {
		cfg.MinPriceChange = def.MinPriceChange
	}
	if cfg.MinPercentChange == 0 {
		cfg.MinPercentChange = def.MinPercentChange
	}
	if cfg.CooldownSeconds == 0 {
		cfg.CooldownSeconds = def.CooldownSeconds
	}
	if cfg.ExtendedHoursMultiplier == 0 {
		cfg.ExtendedHoursMultiplier = def.ExtendedHoursMultiplier
	}
	if cfg.OpeningMultiplier == 0 {
		cfg.OpeningMultiplier = def.OpeningMultiplier
	}
	return &HighLowDetector{cfg: cfg}
}

// Detect evaluates one tick against state. The caller must have already
// called state.Observe for this tick.
func (d *HighLowDetector) Detect(state *SymbolTickState, tick *models.TickRecord) []models.Event {
	multiplier := d.thresholdMultiplier(state, tick)
	minDelta := d.cfg.MinPriceChange * multiplier
	minPct := d.cfg.MinPercentChange * multiplier

	var events []models.Event

	if tick.Price > state.SessionHigh {
		delta := tick.Price - state.SessionHigh
		pct := delta / state.SessionHigh * 100
		if delta >= minDelta && pct >= minPct {
			if state.CooldownPassed(models.EventSessionHigh, tick.Timestamp, d.cfg.CooldownSeconds) {
				state.SessionHigh = tick.Price
				state.MarkEvent(models.EventSessionHigh, tick.Timestamp)
				events = append(events, models.Event{
					Kind:      models.EventSessionHigh,
					Ticker:    tick.Ticker,
					Price:     tick.Price,
					Time:      tick.Timestamp,
					Direction: models.DirectionUp,
					Label:     fmt.Sprintf("%s new session high %.4f", tick.Ticker, tick.Price),
					Fields: map[string]any{
						"previous_high":  tick.Price - delta,
						"price_change":   delta,
						"percent_change": pct,
					},
				})
			}
			// Cooldown active: keep the old baseline so the move can emit later.
		} else {
			state.SessionHigh = tick.Price
		}
	}

	if tick.Price < state.SessionLow {
		delta := state.SessionLow - tick.Price
		pct := delta / state.SessionLow * 100
		if delta >= minDelta && pct >= minPct {
			if state.CooldownPassed(models.EventSessionLow, tick.Timestamp, d.cfg.CooldownSeconds) {
				state.SessionLow = tick.Price
				state.MarkEvent(models.EventSessionLow, tick.Timestamp)
				events = append(events, models.Event{
					Kind:      models.EventSessionLow,
					Ticker:    tick.Ticker,
					Price:     tick.Price,
					Time:      tick.Timestamp,
					Direction: models.DirectionDown,
					Label:     fmt.Sprintf("%s new session low %.4f", tick.Ticker, tick.Price),
					Fields: map[string]any{
						"previous_low":   tick.Price + delta,
						"price_change":   -delta,
						"percent_change": -pct,
					},
				})
			}
		} else {
			state.SessionLow = tick.Price
		}
	}

	return events
}

func (d *HighLowDetector) thresholdMultiplier(state *SymbolTickState, tick *models.TickRecord) float64 {
	if !d.cfg.MarketAware {
		return 1.0
	}
	m := 1.0
	if tick.MarketStatus.IsExtendedHours() {
		m *= d.cfg.ExtendedHoursMultiplier
	}
	if tick.Timestamp-state.SessionStart < openingWindowSeconds {
		m *= d.cfg.OpeningMultiplier
	}
	return m
}
