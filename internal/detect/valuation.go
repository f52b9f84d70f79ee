package detect

import (
	"fmt"
	"math"

	"github.com/sawpanic/marketflow/internal/models"
)

// ValuationConfig tunes the FMV detectors.
type ValuationConfig struct {
	ConfidenceThreshold     float64 `yaml:"confidence_threshold"`
	DeviationThreshold      float64 `yaml:"deviation_threshold"` // percent units
	SignalStrengthThreshold float64 `yaml:"signal_strength_threshold"`
	TrendWindow             int     `yaml:"trend_window"`
	TrendConsistency        float64 `yaml:"trend_consistency"`
}

// DefaultValuationConfig returns the production defaults.
func DefaultValuationConfig() ValuationConfig {
	return ValuationConfig{
		ConfidenceThreshold:     0.8,
		DeviationThreshold:      1.0,
		SignalStrengthThreshold: 0.7,
		TrendWindow:             5,
		TrendConsistency:        0.8,
	}
}

// ValuationDetector emits deviation, high-confidence, and trend events from
// fair-market-value estimates. Low-confidence records are filtered upstream
// in the FMV channel.
type ValuationDetector struct {
	cfg ValuationConfig
}

// NewValuationDetector builds a detector; zero-value fields take defaults.
func NewValuationDetector(cfg ValuationConfig) *ValuationDetector {
	def := DefaultValuationConfig()
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.DeviationThreshold == 0 {
		cfg.DeviationThreshold = def.DeviationThreshold
	}
	if cfg.SignalStrengthThreshold == 0 {
		cfg.SignalStrengthThreshold = def.SignalStrengthThreshold
	}
	if cfg.TrendWindow == 0 {
		cfg.TrendWindow = def.TrendWindow
	}
	if cfg.TrendConsistency == 0 {
		cfg.TrendConsistency = def.TrendConsistency
	}
	return &ValuationDetector{cfg: cfg}
}

// ConfidenceThreshold exposes the filter cutoff the FMV channel applies.
func (d *ValuationDetector) ConfidenceThreshold() float64 {
	return d.cfg.ConfidenceThreshold
}

// Detect evaluates one FMV record against the symbol's valuation history.
// The record must already be appended to the history.
func (d *ValuationDetector) Detect(hist *ValuationHistory, rec *models.FMVRecord) []models.Event {
	var events []models.Event

	absDev := math.Abs(rec.DeviationPercent)
	if absDev >= d.cfg.DeviationThreshold {
		events = append(events, models.Event{
			Kind:   models.EventFMVDeviation,
			Ticker: rec.Ticker,
			Price:  rec.MarketPrice,
			Time:   rec.Timestamp,
			Label:  fmt.Sprintf("%s fmv deviates %.2f%% from market", rec.Ticker, rec.DeviationPercent),
			Fields: map[string]any{
				"fmv_price":         rec.FMV,
				"market_price":      rec.MarketPrice,
				"deviation_percent": rec.DeviationPercent,
				"confidence":        rec.Confidence,
				"is_undervalued":    rec.IsUndervalued(),
				"is_overvalued":     !rec.IsUndervalued(),
			},
		})
	}

	strength := rec.Confidence * math.Min(absDev/10, 1)
	if strength >= d.cfg.SignalStrengthThreshold {
		events = append(events, models.Event{
			Kind:   models.EventFMVHighConfidence,
			Ticker: rec.Ticker,
			Price:  rec.MarketPrice,
			Time:   rec.Timestamp,
			Label:  fmt.Sprintf("%s high-confidence valuation signal %.2f", rec.Ticker, strength),
			Fields: map[string]any{
				"signal_strength":   strength,
				"confidence":        rec.Confidence,
				"deviation_percent": rec.DeviationPercent,
				"valuation_model":   rec.ValuationModel,
			},
		})
	}

	if ev, ok := d.trendEvent(hist, rec); ok {
		events = append(events, ev)
	}

	return events
}

// trendEvent fires when the recent deviations consistently share a sign.
func (d *ValuationDetector) trendEvent(hist *ValuationHistory, rec *models.FMVRecord) (models.Event, bool) {
	recent := hist.RecentDeviations(d.cfg.TrendWindow)
	if len(recent) < d.cfg.TrendWindow {
		return models.Event{}, false
	}

	positive, negative := 0, 0
	for _, dev := range recent {
		if dev > 0 {
			positive++
		} else if dev < 0 {
			negative++
		}
	}
	need := int(math.Ceil(d.cfg.TrendConsistency * float64(len(recent))))

	var direction, bias string
	switch {
	case positive >= need:
		direction, bias = models.DirectionUp, "undervalued"
	case negative >= need:
		direction, bias = models.DirectionDown, "overvalued"
	default:
		return models.Event{}, false
	}

	return models.Event{
		Kind:      models.EventFMVTrend,
		Ticker:    rec.Ticker,
		Price:     rec.MarketPrice,
		Time:      rec.Timestamp,
		Direction: direction,
		Label:     fmt.Sprintf("%s consistently %s over last %d estimates", rec.Ticker, bias, len(recent)),
		Fields: map[string]any{
			"bias":           bias,
			"window":         len(recent),
			"positive_count": positive,
			"negative_count": negative,
		},
	}, true
}
