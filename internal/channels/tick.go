package channels

import (
	"sync"
	"time"

	"github.com/sawpanic/marketflow/internal/detect"
	"github.com/sawpanic/marketflow/internal/models"
)

// TickDetectorConfig bundles the tick-channel detector settings.
type TickDetectorConfig struct {
	HighLow detect.HighLowConfig `yaml:"highlow"`
	Trend   detect.TrendConfig   `yaml:"trend"`
	Surge   detect.SurgeConfig   `yaml:"surge"`
}

// TickChannel processes individual trades immediately, maintaining
// per-symbol session state and running the real-time detectors.
type TickChannel struct {
	*Channel
	h *tickHandler
}

// NewTickChannel builds a tick channel. Ticks always process on the
// immediate strategy; any configured batching is overridden.
func NewTickChannel(cfg Config, det TickDetectorConfig) *TickChannel {
	if cfg.Name == "" {
		cfg.Name = "tick"
	}
	cfg.Batching.Strategy = BatchImmediate
	if cfg.CleanupIntervalSeconds == 0 {
		cfg.CleanupIntervalSeconds = 300
	}
	if cfg.StateIdleTTLSeconds == 0 {
		cfg.StateIdleTTLSeconds = 3600
	}

	h := &tickHandler{
		states:  make(map[string]*detect.SymbolTickState),
		highLow: detect.NewHighLowDetector(det.HighLow),
		trend:   detect.NewTrendDetector(det.Trend),
		surge:   detect.NewSurgeDetector(det.Surge),
		idleTTL: time.Duration(cfg.StateIdleTTLSeconds) * time.Second,
	}
	ch := &TickChannel{Channel: NewChannel(cfg, models.DataTypeTick, h), h: h}
	return ch
}

// SymbolState returns a copy of the tracked scalars for a ticker, for
// status readers outside the processing goroutine.
func (c *TickChannel) SymbolState(ticker string) (TickStateSnapshot, bool) {
	return c.h.snapshot(ticker)
}

// TrackedSymbols is the number of tickers with live state.
func (c *TickChannel) TrackedSymbols() int {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return len(c.h.states)
}

// TickStateSnapshot is a copied view of one symbol's session scalars.
type TickStateSnapshot struct {
	Ticker      string  `json:"ticker"`
	LastPrice   float64 `json:"last_price"`
	LastUpdate  float64 `json:"last_update"`
	SessionHigh float64 `json:"session_high"`
	SessionLow  float64 `json:"session_low"`
	Samples     int     `json:"samples"`
}

type tickHandler struct {
	mu      sync.Mutex
	states  map[string]*detect.SymbolTickState
	highLow *detect.HighLowDetector
	trend   *detect.TrendDetector
	surge   *detect.SurgeDetector
	idleTTL time.Duration
}

func (h *tickHandler) ValidateData(data any) bool {
	switch v := data.(type) {
	case *models.TickRecord:
		return v.Validate() == nil
	case models.TickRecord:
		return v.Validate() == nil
	case map[string]any:
		_, err := models.TickFromMap(v)
		return err == nil
	default:
		return false
	}
}

func (h *tickHandler) ProcessData(data any) *models.ProcessingResult {
	tick, err := coerceTick(data)
	if err != nil {
		return models.FailResult(err)
	}

	// h.mu covers both the map and the per-symbol state: the janitor and
	// snapshot readers take the same lock.
	h.mu.Lock()
	defer h.mu.Unlock()

	state, ok := h.states[tick.Ticker]
	if !ok {
		state = detect.NewSymbolTickState(tick)
		h.states[tick.Ticker] = state
		// First sight establishes baselines; detectors need history.
		return models.OKResult(nil).
			WithMeta("ticker", tick.Ticker).
			WithMeta("price", tick.Price).
			WithMeta("events_generated", 0).
			WithMeta("first_sight", true)
	}

	state.Observe(tick)

	var events []models.Event
	events = append(events, h.highLow.Detect(state, tick)...)
	events = append(events, h.trend.Detect(state, tick)...)
	events = append(events, h.surge.Detect(state, tick)...)

	return models.OKResult(events).
		WithMeta("ticker", tick.Ticker).
		WithMeta("price", tick.Price).
		WithMeta("events_generated", len(events)).
		WithMeta("detectors", []string{"highlow", "trend", "surge"})
}

func (h *tickHandler) Cleanup(now time.Time) int {
	cutoff := float64(now.Add(-h.idleTTL).Unix())
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for ticker, state := range h.states {
		if state.LastUpdate < cutoff {
			delete(h.states, ticker)
			removed++
		}
	}
	return removed
}

func (h *tickHandler) Shutdown() {
	h.mu.Lock()
	h.states = make(map[string]*detect.SymbolTickState)
	h.mu.Unlock()
}

func (h *tickHandler) snapshot(ticker string) (TickStateSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	state, ok := h.states[ticker]
	if !ok {
		return TickStateSnapshot{}, false
	}
	return TickStateSnapshot{
		Ticker:      state.Ticker,
		LastPrice:   state.LastPrice,
		LastUpdate:  state.LastUpdate,
		SessionHigh: state.SessionHigh,
		SessionLow:  state.SessionLow,
		Samples:     len(state.Prices),
	}, true
}

func coerceTick(data any) (*models.TickRecord, error) {
	switch v := data.(type) {
	case *models.TickRecord:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return v, nil
	case models.TickRecord:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return &v, nil
	case map[string]any:
		return models.TickFromMap(v)
	default:
		return nil, models.ErrInvalidData
	}
}
