package detect

import (
	"fmt"
	"math"

	"github.com/sawpanic/marketflow/internal/models"
)

// AggregateConfig tunes the per-bar analyzers in the OHLCV channel.
type AggregateConfig struct {
	VolumeSurgeMultiplier    float64 `yaml:"volume_surge_multiplier"`
	SignificantMoveThreshold float64 `yaml:"significant_move_threshold"` // percent units
}

// DefaultAggregateConfig returns the production defaults.
func DefaultAggregateConfig() AggregateConfig {
	return AggregateConfig{
		VolumeSurgeMultiplier:    3.0,
		SignificantMoveThreshold: 2.0,
	}
}

// Bar pattern labels derived from the trailing percent changes.
const (
	PatternStrongUptrend   = "strong_uptrend"
	PatternStrongDowntrend = "strong_downtrend"
	PatternWeakUptrend     = "weak_uptrend"
	PatternWeakDowntrend   = "weak_downtrend"
	PatternSideways        = "sideways"
)

// AggregateDetector analyzes minute bars against a symbol's rolling
// baselines: volume surges, significant moves, and rolling high/low closes.
type AggregateDetector struct {
	cfg AggregateConfig
}

// NewAggregateDetector builds a detector; zero-value fields take defaults.
func NewAggregateDetector(cfg AggregateConfig) *AggregateDetector {
	def := DefaultAggregateConfig()
	if cfg.VolumeSurgeMultiplier == 0 {
		cfg.VolumeSurgeMultiplier = def.VolumeSurgeMultiplier
	}
	if cfg.SignificantMoveThreshold == 0 {
		cfg.SignificantMoveThreshold = def.SignificantMoveThreshold
	}
	return &AggregateDetector{cfg: cfg}
}

// Detect analyzes one bar. baselineVolume is the rolling mean computed from
// the bars preceding this one (zero when the buffer is still warming up);
// the buffer must already contain the bar so rolling-close checks can see it.
func (d *AggregateDetector) Detect(buf *SymbolBarBuffer, bar *models.OHLCVRecord, baselineVolume float64) []models.Event {
	var events []models.Event

	if baselineVolume > 0 {
		ratio := float64(bar.Volume) / baselineVolume
		if ratio >= d.cfg.VolumeSurgeMultiplier {
			events = append(events, models.Event{
				Kind:   models.EventAggregateVolumeSurge,
				Ticker: bar.Ticker,
				Price:  bar.Close,
				Time:   bar.Timestamp,
				Label:  fmt.Sprintf("%s volume surge %.1fx baseline", bar.Ticker, ratio),
				Fields: map[string]any{
					"volume":          bar.Volume,
					"baseline_volume": baselineVolume,
					"volume_ratio":    ratio,
					"vwap":            bar.VWAP,
				},
			})
		}
	}

	if math.Abs(bar.PercentChange) >= d.cfg.SignificantMoveThreshold {
		direction := models.DirectionUp
		if bar.PercentChange < 0 {
			direction = models.DirectionDown
		}
		events = append(events, models.Event{
			Kind:      models.EventAggregateMove,
			Ticker:    bar.Ticker,
			Price:     bar.Close,
			Time:      bar.Timestamp,
			Direction: direction,
			Label:     fmt.Sprintf("%s moved %.2f%% in one bar", bar.Ticker, bar.PercentChange),
			Fields: map[string]any{
				"percent_change": bar.PercentChange,
				"open":           bar.Open,
				"close":          bar.Close,
			},
		})
	}

	closes := buf.RecentCloses(baselinePeriods)
	if len(closes) >= 2 {
		maxClose, minClose := closes[0], closes[0]
		for _, c := range closes[1:] {
			if c > maxClose {
				maxClose = c
			}
			if c < minClose {
				minClose = c
			}
		}
		if bar.Close == maxClose && maxClose != minClose {
			events = append(events, models.Event{
				Kind:      models.EventAggregateHighClose,
				Ticker:    bar.Ticker,
				Price:     bar.Close,
				Time:      bar.Timestamp,
				Direction: models.DirectionUp,
				Label:     fmt.Sprintf("%s highest close of last %d bars", bar.Ticker, len(closes)),
				Fields:    map[string]any{"window_bars": len(closes)},
			})
		}
		if bar.Close == minClose && maxClose != minClose {
			events = append(events, models.Event{
				Kind:      models.EventAggregateLowClose,
				Ticker:    bar.Ticker,
				Price:     bar.Close,
				Time:      bar.Timestamp,
				Direction: models.DirectionDown,
				Label:     fmt.Sprintf("%s lowest close of last %d bars", bar.Ticker, len(closes)),
				Fields:    map[string]any{"window_bars": len(closes)},
			})
		}
	}

	return events
}

// ClassifyPattern labels the last five bars' percent changes.
func ClassifyPattern(changes []float64) string {
	if len(changes) > 5 {
		changes = changes[len(changes)-5:]
	}
	if len(changes) < 3 {
		return PatternSideways
	}
	positive := 0
	var sum float64
	for _, c := range changes {
		if c > 0 {
			positive++
		}
		sum += c
	}
	n := len(changes)
	switch {
	case positive >= n-1 && sum >= 1.0:
		return PatternStrongUptrend
	case positive <= 1 && sum <= -1.0:
		return PatternStrongDowntrend
	case sum >= 0.3:
		return PatternWeakUptrend
	case sum <= -0.3:
		return PatternWeakDowntrend
	default:
		return PatternSideways
	}
}
