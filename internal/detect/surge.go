package detect

import (
	"fmt"
	"math"

	"github.com/sawpanic/marketflow/internal/models"
)

// SurgeConfig tunes the combined volume/price surge detector.
type SurgeConfig struct {
	VolumeThreshold       float64 `yaml:"volume_threshold"`
	PriceThresholdPercent float64 `yaml:"price_threshold_percent"`
	IntervalSeconds       float64 `yaml:"interval_seconds"`
	GlobalSensitivity     float64 `yaml:"global_sensitivity"`
	MinDataPoints         int     `yaml:"min_data_points"`
}

// DefaultSurgeConfig returns the production defaults.
func DefaultSurgeConfig() SurgeConfig {
	return SurgeConfig{
		VolumeThreshold:       3.0,
		PriceThresholdPercent: 4.0,
		IntervalSeconds:       20,
		GlobalSensitivity:     0.4,
		MinDataPoints:         8,
	}
}

// SurgeDetector emits Surge when, over the trailing interval, the current
// tick volume dwarfs the interval average and price moved sharply in the
// same window. Both thresholds are scaled by the global sensitivity.
// Re-emission is rate-limited to one surge per interval per symbol.
type SurgeDetector struct {
	cfg SurgeConfig
}

// NewSurgeDetector builds a detector; zero-value fields take defaults.
func NewSurgeDetector(cfg SurgeConfig) *SurgeDetector {
	def := DefaultSurgeConfig()
	if cfg.VolumeThreshold == 0 {
		cfg.VolumeThreshold = def.VolumeThreshold
	}
	if cfg.PriceThresholdPercent == 0 {
		cfg.PriceThresholdPercent = def.PriceThresholdPercent
	}
	if cfg.IntervalSeconds == 0 {
		cfg.IntervalSeconds = def.IntervalSeconds
	}
	if cfg.GlobalSensitivity == 0 {
		cfg.GlobalSensitivity = def.GlobalSensitivity
	}
	if cfg.MinDataPoints == 0 {
		cfg.MinDataPoints = def.MinDataPoints
	}
	return &SurgeDetector{cfg: cfg}
}

// Detect evaluates one tick against state. The caller must have already
// called state.Observe for this tick.
func (d *SurgeDetector) Detect(state *SymbolTickState, tick *models.TickRecord) []models.Event {
	cutoff := tick.Timestamp - d.cfg.IntervalSeconds

	// Volumes of prior ticks inside the window; the current tick is the
	// candidate being compared against the window average.
	var priorVolume int64
	priorCount := 0
	for i := 0; i < len(state.Volumes)-1; i++ {
		v := state.Volumes[i]
		if v.Time >= cutoff {
			priorVolume += v.Volume
			priorCount++
		}
	}
	if priorCount+1 < d.cfg.MinDataPoints {
		return nil
	}
	avgVolume := float64(priorVolume) / float64(priorCount)
	if avgVolume <= 0 {
		return nil
	}

	var oldest float64
	for _, p := range state.Prices {
		if p.Time >= cutoff {
			oldest = p.Price
			break
		}
	}
	if oldest <= 0 {
		return nil
	}

	volumeRatio := float64(tick.Volume) / avgVolume
	pricePct := math.Abs(tick.Price-oldest) / oldest * 100

	effVolume := d.cfg.VolumeThreshold * d.cfg.GlobalSensitivity
	effPrice := d.cfg.PriceThresholdPercent * d.cfg.GlobalSensitivity
	if volumeRatio < effVolume || pricePct < effPrice {
		return nil
	}

	if !state.CooldownPassed(models.EventSurge, tick.Timestamp, d.cfg.IntervalSeconds) {
		return nil
	}
	state.MarkEvent(models.EventSurge, tick.Timestamp)

	direction := models.DirectionUp
	if tick.Price < oldest {
		direction = models.DirectionDown
	}

	return []models.Event{{
		Kind:      models.EventSurge,
		Ticker:    tick.Ticker,
		Price:     tick.Price,
		Time:      tick.Timestamp,
		Direction: direction,
		Label:     fmt.Sprintf("%s surge: %.1fx volume, %.2f%% move", tick.Ticker, volumeRatio, pricePct),
		Fields: map[string]any{
			"volume_ratio":     volumeRatio,
			"price_change_pct": pricePct,
			"interval_seconds": d.cfg.IntervalSeconds,
			"window_samples":   priorCount + 1,
		},
	}}
}
