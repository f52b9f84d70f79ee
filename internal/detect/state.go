// Package detect holds the per-symbol analytic state and the event detectors
// that run inside the processing channels.
package detect

import (
	"github.com/sawpanic/marketflow/internal/models"
)

const (
	tickHistoryCap      = 100
	barBufferCap        = 100
	valuationHistoryCap = 50
	baselinePeriods     = 10
)

// SymbolTickState tracks the rolling per-symbol view the tick detectors need.
// The owning handler guards all access with its own lock.
type SymbolTickState struct {
	Ticker       string
	LastPrice    float64
	LastUpdate   float64
	SessionStart float64

	SessionHigh float64
	SessionLow  float64
	DayHigh     float64
	DayLow      float64

	Prices  []pricePoint
	Volumes []volumePoint

	// LastEventAt maps event kind to the time it last fired, for cooldowns.
	LastEventAt map[models.EventKind]float64

	// Trend suppression bookkeeping.
	LastTrendDirection  string
	LastTrendMagnitude  float64
	LastTrendPrice      float64
	TrendRetraceExtreme float64
}

type pricePoint struct {
	Time  float64
	Price float64
}

type volumePoint struct {
	Time   float64
	Volume int64
}

// NewSymbolTickState seeds state from the first tick seen for a ticker.
// No events fire on first sight; the first tick only establishes baselines.
func NewSymbolTickState(tick *models.TickRecord) *SymbolTickState {
	s := &SymbolTickState{
		Ticker:       tick.Ticker,
		SessionStart: tick.Timestamp,
		SessionHigh:  tick.Price,
		SessionLow:   tick.Price,
		LastEventAt:  make(map[models.EventKind]float64),
	}
	s.Observe(tick)
	return s
}

// Observe folds a tick into the rolling state. Detector decisions happen
// separately so observation stays unconditional.
func (s *SymbolTickState) Observe(tick *models.TickRecord) {
	s.LastPrice = tick.Price
	if tick.Timestamp > s.LastUpdate {
		s.LastUpdate = tick.Timestamp
	}
	if tick.DayHigh > s.DayHigh {
		s.DayHigh = tick.DayHigh
	}
	if s.DayLow == 0 || (tick.DayLow > 0 && tick.DayLow < s.DayLow) {
		s.DayLow = tick.DayLow
	}

	s.Prices = append(s.Prices, pricePoint{Time: tick.Timestamp, Price: tick.Price})
	if len(s.Prices) > tickHistoryCap {
		s.Prices = s.Prices[len(s.Prices)-tickHistoryCap:]
	}
	s.Volumes = append(s.Volumes, volumePoint{Time: tick.Timestamp, Volume: tick.Volume})
	if len(s.Volumes) > tickHistoryCap {
		s.Volumes = s.Volumes[len(s.Volumes)-tickHistoryCap:]
	}
}

// AgeSeconds is the time the symbol has been tracked, per the given clock.
func (s *SymbolTickState) AgeSeconds(now float64) float64 {
	return now - s.SessionStart
}

// CooldownPassed reports whether kind may fire again at time now.
func (s *SymbolTickState) CooldownPassed(kind models.EventKind, now, cooldownSeconds float64) bool {
	last, ok := s.LastEventAt[kind]
	if !ok {
		return true
	}
	return now-last >= cooldownSeconds
}

// MarkEvent stamps the cooldown clock for kind.
func (s *SymbolTickState) MarkEvent(kind models.EventKind, now float64) {
	s.LastEventAt[kind] = now
}

// SymbolBarBuffer keeps the last bars for one symbol plus rolling baselines.
type SymbolBarBuffer struct {
	Ticker     string
	Bars       []*models.OHLCVRecord
	LastUpdate float64

	// Rolling means over the trailing baseline window, recomputed once the
	// buffer holds at least baselinePeriods bars.
	VolumeBaseline float64
	PriceBaseline  float64
}

// NewSymbolBarBuffer creates an empty buffer for a ticker.
func NewSymbolBarBuffer(ticker string) *SymbolBarBuffer {
	return &SymbolBarBuffer{Ticker: ticker}
}

// Append adds the newest bar and refreshes the baselines.
func (b *SymbolBarBuffer) Append(bar *models.OHLCVRecord) {
	b.Bars = append(b.Bars, bar)
	if len(b.Bars) > barBufferCap {
		b.Bars = b.Bars[len(b.Bars)-barBufferCap:]
	}
	if bar.Timestamp > b.LastUpdate {
		b.LastUpdate = bar.Timestamp
	}
	if len(b.Bars) >= baselinePeriods {
		b.recomputeBaselines()
	}
}

func (b *SymbolBarBuffer) recomputeBaselines() {
	window := b.Bars
	if len(window) > baselinePeriods {
		window = window[len(window)-baselinePeriods:]
	}
	var vol, price float64
	for _, bar := range window {
		vol += float64(bar.Volume)
		price += bar.Close
	}
	b.VolumeBaseline = vol / float64(len(window))
	b.PriceBaseline = price / float64(len(window))
}

// RecentCloses returns the last n closes, newest last.
func (b *SymbolBarBuffer) RecentCloses(n int) []float64 {
	bars := b.Bars
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	return closes
}

// RecentPercentChanges returns the last n percent changes, newest last.
func (b *SymbolBarBuffer) RecentPercentChanges(n int) []float64 {
	bars := b.Bars
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	changes := make([]float64, len(bars))
	for i, bar := range bars {
		changes[i] = bar.PercentChange
	}
	return changes
}

// ValuationHistory keeps the trailing FMV observations for one symbol.
type ValuationHistory struct {
	Ticker      string
	Values      []float64
	Confidences []float64
	Deviations  []float64
	LastUpdate  float64
}

// NewValuationHistory creates an empty history for a ticker.
func NewValuationHistory(ticker string) *ValuationHistory {
	return &ValuationHistory{Ticker: ticker}
}

// Append folds one FMV record into the rings.
func (h *ValuationHistory) Append(rec *models.FMVRecord) {
	h.Values = appendBounded(h.Values, rec.FMV, valuationHistoryCap)
	h.Confidences = appendBounded(h.Confidences, rec.Confidence, valuationHistoryCap)
	h.Deviations = appendBounded(h.Deviations, rec.DeviationPercent, valuationHistoryCap)
	if rec.Timestamp > h.LastUpdate {
		h.LastUpdate = rec.Timestamp
	}
}

// RecentDeviations returns the last n deviations, newest last.
func (h *ValuationHistory) RecentDeviations(n int) []float64 {
	d := h.Deviations
	if len(d) > n {
		d = d[len(d)-n:]
	}
	return d
}

func appendBounded(s []float64, v float64, capN int) []float64 {
	s = append(s, v)
	if len(s) > capN {
		s = s[len(s)-capN:]
	}
	return s
}
