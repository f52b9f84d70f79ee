package detect

import (
	"fmt"
	"math"

	"github.com/sawpanic/marketflow/internal/models"
)

// TrendConfig tunes the rolling-returns trend detector.
type TrendConfig struct {
	WindowSize           int     `yaml:"window_size"`
	WarmupSeconds        float64 `yaml:"warmup_seconds"`
	DirectionThreshold   float64 `yaml:"direction_threshold"`
	StrengthThreshold    float64 `yaml:"strength_threshold"`
	GlobalSensitivity    float64 `yaml:"global_sensitivity"`
	RetracementThreshold float64 `yaml:"retracement_threshold"`
}

// DefaultTrendConfig returns the production defaults.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		WindowSize:           8,
		WarmupSeconds:        90,
		DirectionThreshold:   0.025,
		StrengthThreshold:    0.05,
		GlobalSensitivity:    1.5,
		RetracementThreshold: 0.25,
	}
}

// TrendDetector emits Trend(up|down) when the mean directional return over
// the rolling window clears the sensitivity-scaled direction threshold and
// the cumulative move clears the strength threshold. A same-direction trend
// is suppressed until price retraces a fraction of the prior trend magnitude.
type TrendDetector struct {
	cfg TrendConfig
}

// NewTrendDetector builds a detector; zero-value fields take defaults.
func NewTrendDetector(cfg TrendConfig) *TrendDetector {
	def := DefaultTrendConfig()
	if cfg.WindowSize == 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.WarmupSeconds == 0 {
		cfg.WarmupSeconds = def.WarmupSeconds
	}
	if cfg.DirectionThreshold == 0 {
		cfg.DirectionThreshold = def.DirectionThreshold
	}
	if cfg.StrengthThreshold == 0 {
		cfg.StrengthThreshold = def.StrengthThreshold
	}
	if cfg.GlobalSensitivity == 0 {
		cfg.GlobalSensitivity = def.GlobalSensitivity
	}
	if cfg.RetracementThreshold == 0 {
		cfg.RetracementThreshold = def.RetracementThreshold
	}
	return &TrendDetector{cfg: cfg}
}

// Detect evaluates one tick against state. The caller must have already
// called state.Observe for this tick.
func (d *TrendDetector) Detect(state *SymbolTickState, tick *models.TickRecord) []models.Event {
	d.trackRetracement(state, tick.Price)

	if state.AgeSeconds(tick.Timestamp) < d.cfg.WarmupSeconds {
		return nil
	}
	if len(state.Prices) < d.cfg.WindowSize+1 {
		return nil
	}

	window := state.Prices[len(state.Prices)-(d.cfg.WindowSize+1):]
	var sum float64
	for i := 1; i < len(window); i++ {
		prev := window[i-1].Price
		if prev <= 0 {
			return nil
		}
		sum += (window[i].Price - prev) / prev
	}
	mean := sum / float64(d.cfg.WindowSize)
	strength := math.Abs(sum)

	effectiveDirection := d.cfg.DirectionThreshold * d.cfg.GlobalSensitivity
	if math.Abs(mean) < effectiveDirection || strength < d.cfg.StrengthThreshold {
		return nil
	}

	direction := models.DirectionUp
	if mean < 0 {
		direction = models.DirectionDown
	}

	if !d.retracementCleared(state, direction) {
		return nil
	}

	state.LastTrendDirection = direction
	state.LastTrendMagnitude = strength
	state.LastTrendPrice = tick.Price
	state.TrendRetraceExtreme = tick.Price
	state.MarkEvent(models.EventTrend, tick.Timestamp)

	return []models.Event{{
		Kind:      models.EventTrend,
		Ticker:    tick.Ticker,
		Price:     tick.Price,
		Time:      tick.Timestamp,
		Direction: direction,
		Label:     fmt.Sprintf("%s trend %s strength %.4f", tick.Ticker, direction, strength),
		Fields: map[string]any{
			"mean_return":         mean,
			"cumulative_strength": strength,
			"window_size":         d.cfg.WindowSize,
		},
	}}
}

// trackRetracement records the deepest counter-move since the last emitted
// trend, so a later same-direction leg can qualify.
func (d *TrendDetector) trackRetracement(state *SymbolTickState, price float64) {
	switch state.LastTrendDirection {
	case models.DirectionUp:
		if price < state.TrendRetraceExtreme {
			state.TrendRetraceExtreme = price
		}
	case models.DirectionDown:
		if price > state.TrendRetraceExtreme {
			state.TrendRetraceExtreme = price
		}
	}
}

// retracementCleared reports whether a trend in direction may fire given the
// previously emitted trend. Opposite-direction trends always clear.
func (d *TrendDetector) retracementCleared(state *SymbolTickState, direction string) bool {
	if state.LastTrendDirection == "" || state.LastTrendDirection != direction {
		return true
	}
	required := d.cfg.RetracementThreshold * state.LastTrendMagnitude * state.LastTrendPrice
	if direction == models.DirectionUp {
		return state.LastTrendPrice-state.TrendRetraceExtreme >= required
	}
	return state.TrendRetraceExtreme-state.LastTrendPrice >= required
}
