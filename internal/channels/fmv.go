package channels

import (
	"sync"
	"time"

	"github.com/sawpanic/marketflow/internal/detect"
	"github.com/sawpanic/marketflow/internal/models"
)

// FMVChannel processes fair-market-value estimates on the hybrid batching
// strategy, filtering low-confidence records before detection.
type FMVChannel struct {
	*Channel
	h *fmvHandler
}

// NewFMVChannel builds an FMV channel.
func NewFMVChannel(cfg Config, det detect.ValuationConfig) *FMVChannel {
	if cfg.Name == "" {
		cfg.Name = "fmv"
	}
	if cfg.Batching.Strategy == "" || cfg.Batching.Strategy == BatchImmediate {
		cfg.Batching.Strategy = BatchHybrid
	}
	if cfg.Batching.MaxBatchSize == 0 {
		cfg.Batching.MaxBatchSize = 50
	}
	if cfg.Batching.MaxWaitTimeMs == 0 {
		cfg.Batching.MaxWaitTimeMs = 500
	}
	if cfg.CleanupIntervalSeconds == 0 {
		cfg.CleanupIntervalSeconds = 900
	}
	if cfg.StateIdleTTLSeconds == 0 {
		cfg.StateIdleTTLSeconds = 14400
	}

	h := &fmvHandler{
		histories: make(map[string]*detect.ValuationHistory),
		detector:  detect.NewValuationDetector(det),
		idleTTL:   time.Duration(cfg.StateIdleTTLSeconds) * time.Second,
	}
	return &FMVChannel{Channel: NewChannel(cfg, models.DataTypeFMV, h), h: h}
}

// TrackedSymbols is the number of tickers with valuation history.
func (c *FMVChannel) TrackedSymbols() int {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return len(c.h.histories)
}

// FilteredCount reports how many records the confidence filter dropped.
func (c *FMVChannel) FilteredCount() int64 {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return c.h.filtered
}

type fmvHandler struct {
	mu        sync.Mutex
	histories map[string]*detect.ValuationHistory
	detector  *detect.ValuationDetector
	filtered  int64
	idleTTL   time.Duration
}

func (h *fmvHandler) ValidateData(data any) bool {
	switch v := data.(type) {
	case *models.FMVRecord:
		return v.Validate() == nil
	case models.FMVRecord:
		return v.Validate() == nil
	case map[string]any:
		_, err := models.FMVFromMap(v)
		return err == nil
	default:
		return false
	}
}

func (h *fmvHandler) ProcessData(data any) *models.ProcessingResult {
	rec, err := coerceFMV(data)
	if err != nil {
		return models.FailResult(err)
	}

	if rec.Confidence < h.detector.ConfidenceThreshold() {
		h.mu.Lock()
		h.filtered++
		h.mu.Unlock()
		return models.OKResult(nil).
			WithMeta("ticker", rec.Ticker).
			WithMeta("status", "filtered_low_confidence").
			WithMeta("confidence", rec.Confidence)
	}

	// h.mu covers both the map and the history rings: the janitor reads
	// LastUpdate under the same lock.
	h.mu.Lock()
	defer h.mu.Unlock()

	hist, ok := h.histories[rec.Ticker]
	if !ok {
		hist = detect.NewValuationHistory(rec.Ticker)
		h.histories[rec.Ticker] = hist
	}

	hist.Append(rec)
	events := h.detector.Detect(hist, rec)

	return models.OKResult(events).
		WithMeta("ticker", rec.Ticker).
		WithMeta("fmv", rec.FMV).
		WithMeta("deviation_percent", rec.DeviationPercent).
		WithMeta("events_generated", len(events))
}

func (h *fmvHandler) Cleanup(now time.Time) int {
	cutoff := float64(now.Add(-h.idleTTL).Unix())
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for ticker, hist := range h.histories {
		if hist.LastUpdate < cutoff {
			delete(h.histories, ticker)
			removed++
		}
	}
	return removed
}

func (h *fmvHandler) Shutdown() {
	h.mu.Lock()
	h.histories = make(map[string]*detect.ValuationHistory)
	h.mu.Unlock()
}

func coerceFMV(data any) (*models.FMVRecord, error) {
	switch v := data.(type) {
	case *models.FMVRecord:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return v, nil
	case models.FMVRecord:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return &v, nil
	case map[string]any:
		return models.FMVFromMap(v)
	default:
		return nil, models.ErrInvalidData
	}
}
