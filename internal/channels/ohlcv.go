package channels

import (
	"sync"
	"time"

	"github.com/sawpanic/marketflow/internal/detect"
	"github.com/sawpanic/marketflow/internal/models"
)

// BarSink receives minute aggregates for durable storage. Enqueue must not
// block; false means the bar was dropped.
type BarSink interface {
	Enqueue(bar *models.OHLCVRecord) bool
}

// OHLCVChannel processes minute aggregates in size-based batches, keeps
// rolling per-symbol bar buffers, and feeds the persistence writer.
type OHLCVChannel struct {
	*Channel
	h *ohlcvHandler
}

// NewOHLCVChannel builds an OHLCV channel. sink may be nil when persistence
// is disabled.
func NewOHLCVChannel(cfg Config, det detect.AggregateConfig, sink BarSink) *OHLCVChannel {
	if cfg.Name == "" {
		cfg.Name = "ohlcv"
	}
	if cfg.Batching.Strategy == "" || cfg.Batching.Strategy == BatchImmediate {
		cfg.Batching.Strategy = BatchSize
	}
	if cfg.Batching.MaxBatchSize == 0 {
		cfg.Batching.MaxBatchSize = 100
	}
	if cfg.Batching.MaxWaitTimeMs == 0 {
		cfg.Batching.MaxWaitTimeMs = 100
	}
	if cfg.CleanupIntervalSeconds == 0 {
		cfg.CleanupIntervalSeconds = 600
	}
	if cfg.StateIdleTTLSeconds == 0 {
		cfg.StateIdleTTLSeconds = 7200
	}

	h := &ohlcvHandler{
		buffers:  make(map[string]*detect.SymbolBarBuffer),
		detector: detect.NewAggregateDetector(det),
		sink:     sink,
		idleTTL:  time.Duration(cfg.StateIdleTTLSeconds) * time.Second,
	}
	return &OHLCVChannel{Channel: NewChannel(cfg, models.DataTypeOHLCV, h), h: h}
}

// TrackedSymbols is the number of tickers with live bar buffers.
func (c *OHLCVChannel) TrackedSymbols() int {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return len(c.h.buffers)
}

// SinkDrops reports how many bars the persistence sink refused.
func (c *OHLCVChannel) SinkDrops() int64 {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return c.h.sinkDrops
}

type ohlcvHandler struct {
	mu        sync.Mutex
	buffers   map[string]*detect.SymbolBarBuffer
	detector  *detect.AggregateDetector
	sink      BarSink
	sinkDrops int64
	idleTTL   time.Duration
}

func (h *ohlcvHandler) ValidateData(data any) bool {
	switch v := data.(type) {
	case *models.OHLCVRecord:
		return v.Validate() == nil
	case models.OHLCVRecord:
		return v.Validate() == nil
	case map[string]any:
		_, err := models.OHLCVFromMap(v)
		return err == nil
	default:
		return false
	}
}

func (h *ohlcvHandler) ProcessData(data any) *models.ProcessingResult {
	bar, err := coerceOHLCV(data)
	if err != nil {
		return models.FailResult(err)
	}

	// h.mu covers both the map and the buffer contents: the janitor reads
	// LastUpdate under the same lock.
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.buffers[bar.Ticker]
	if !ok {
		buf = detect.NewSymbolBarBuffer(bar.Ticker)
		h.buffers[bar.Ticker] = buf
	}

	// Baselines are read before the new bar lands so the bar is compared
	// against its predecessors, not itself.
	baselineVolume := buf.VolumeBaseline
	baselinePrice := buf.PriceBaseline
	buf.Append(bar)

	events := h.detector.Detect(buf, bar, baselineVolume)
	pattern := detect.ClassifyPattern(buf.RecentPercentChanges(5))

	// Enqueue is non-blocking by contract, safe to call under the lock.
	if h.sink != nil && !h.sink.Enqueue(bar) {
		h.sinkDrops++
	}

	return models.OKResult(events).
		WithMeta("ticker", bar.Ticker).
		WithMeta("close", bar.Close).
		WithMeta("baseline_volume", baselineVolume).
		WithMeta("baseline_price", baselinePrice).
		WithMeta("pattern", pattern).
		WithMeta("events_generated", len(events))
}

func (h *ohlcvHandler) Cleanup(now time.Time) int {
	cutoff := float64(now.Add(-h.idleTTL).Unix())
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for ticker, buf := range h.buffers {
		if buf.LastUpdate < cutoff {
			delete(h.buffers, ticker)
			removed++
		}
	}
	return removed
}

func (h *ohlcvHandler) Shutdown() {
	h.mu.Lock()
	h.buffers = make(map[string]*detect.SymbolBarBuffer)
	h.mu.Unlock()
}

func coerceOHLCV(data any) (*models.OHLCVRecord, error) {
	switch v := data.(type) {
	case *models.OHLCVRecord:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return v, nil
	case models.OHLCVRecord:
		if err := v.Validate(); err != nil {
			return nil, err
		}
		return &v, nil
	case map[string]any:
		return models.OHLCVFromMap(v)
	default:
		return nil, models.ErrInvalidData
	}
}
