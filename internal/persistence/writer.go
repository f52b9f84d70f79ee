package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/sawpanic/marketflow/internal/models"
)

const (
	flushTimeout      = 10 * time.Second
	batchTimeSamples  = 100
	healthErrorBudget = 50
)

// Config is the persistence tuning surface.
type Config struct {
	Enabled              bool   `yaml:"enabled"`
	BatchSize            int    `yaml:"batch_size"`
	FlushIntervalSeconds int    `yaml:"flush_interval_seconds"`
	QueueCapacity        int    `yaml:"queue_capacity"`
	DSN                  string `yaml:"dsn"`
	MaxOpenConns         int    `yaml:"max_open_conns"`
	MinIdleConns         int    `yaml:"min_idle_conns"`
	ConnectTimeoutSecs   int    `yaml:"connect_timeout_seconds"`
}

func (c *Config) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushIntervalSeconds <= 0 {
		c.FlushIntervalSeconds = 5
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 1000
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 5
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 1
	}
	if c.ConnectTimeoutSecs <= 0 {
		c.ConnectTimeoutSecs = 10
	}
}

// Stats is a point-in-time view of writer throughput.
type Stats struct {
	Queued      int       `json:"queued"`
	Persisted   int64     `json:"persisted"`
	Batches     int64     `json:"batches"`
	Errors      int64     `json:"errors"`
	Dropped     int64     `json:"dropped"`
	Requeued    int64     `json:"requeued"`
	AvgBatchMs  float64   `json:"avg_batch_ms"`
	PersistRate float64   `json:"persist_rate_per_sec"`
	LastFlush   time.Time `json:"last_flush"`
	LastPingOK  bool      `json:"last_ping_ok"`
}

// Writer accepts minute aggregates on a bounded queue and flushes merged
// batches through the repository from a single background worker.
type Writer struct {
	cfg  Config
	repo Repository

	queue        chan *models.OHLCVRecord
	retryLimiter *rate.Limiter

	mu         sync.Mutex
	persisted  int64
	batches    int64
	errors     int64
	dropped    int64
	requeued   int64
	batchTimes []float64
	lastFlush  time.Time
	lastPingOK bool
	startedAt  time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log zerolog.Logger
}

// NewWriter builds a writer over the repository.
func NewWriter(cfg Config, repo Repository) *Writer {
	cfg.applyDefaults()
	return &Writer{
		cfg:          cfg,
		repo:         repo,
		queue:        make(chan *models.OHLCVRecord, cfg.QueueCapacity),
		retryLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		stopCh:       make(chan struct{}),
		log:          log.With().Str("component", "ohlcv_persistence").Logger(),
	}
}

// Start spawns the flush worker.
func (w *Writer) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(w.cfg.ConnectTimeoutSecs)*time.Second)
	defer cancel()
	pingOK := w.repo.Ping(ctx) == nil

	w.mu.Lock()
	w.startedAt = time.Now()
	w.lastFlush = w.startedAt
	w.lastPingOK = pingOK
	w.mu.Unlock()

	if !pingOK {
		w.log.Warn().Msg("store unreachable at start, writes will retry")
	}

	w.wg.Add(1)
	go w.run()
	w.log.Info().Int("batch_size", w.cfg.BatchSize).Int("queue_capacity", w.cfg.QueueCapacity).Msg("persistence started")
	return nil
}

// Stop drains the queue, flushes what remains, and closes the repository.
func (w *Writer) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.wg.Wait()
		if err := w.repo.Close(); err != nil {
			w.log.Warn().Err(err).Msg("repository close failed")
		}
		w.log.Info().Msg("persistence stopped")
	})
}

// Enqueue offers the record to the queue; minute truncation happens later
// in MergeRecords. Returns false and drops when the queue is full. Safe
// from any goroutine.
func (w *Writer) Enqueue(bar *models.OHLCVRecord) bool {
	select {
	case w.queue <- bar:
		return true
	default:
		w.mu.Lock()
		w.dropped++
		w.mu.Unlock()
		w.log.Warn().Str("ticker", bar.Ticker).Msg("persistence queue full, bar dropped")
		return false
	}
}

// Stats copies the counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	var avg float64
	for _, ms := range w.batchTimes {
		avg += ms
	}
	if n := len(w.batchTimes); n > 0 {
		avg /= float64(n)
	}
	var ratePerSec float64
	if uptime := time.Since(w.startedAt).Seconds(); uptime > 0 {
		ratePerSec = float64(w.persisted) / uptime
	}
	return Stats{
		Queued:      len(w.queue),
		Persisted:   w.persisted,
		Batches:     w.batches,
		Errors:      w.errors,
		Dropped:     w.dropped,
		Requeued:    w.requeued,
		AvgBatchMs:  avg,
		PersistRate: ratePerSec,
		LastFlush:   w.lastFlush,
		LastPingOK:  w.lastPingOK,
	}
}

// IsHealthy requires a reachable store and an error count under budget.
func (w *Writer) IsHealthy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.repo != nil && w.lastPingOK && w.errors < healthErrorBudget
}

func (w *Writer) run() {
	defer w.wg.Done()
	interval := time.Duration(w.cfg.FlushIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pending []*models.OHLCVRecord
	for {
		select {
		case <-w.stopCh:
			pending = append(pending, w.drainQueue()...)
			if len(pending) > 0 {
				w.flush(pending)
			}
			return
		case bar := <-w.queue:
			pending = append(pending, bar)
			if len(pending) >= w.cfg.BatchSize {
				pending = w.flush(pending)
			}
		case <-ticker.C:
			if len(pending) > 0 {
				pending = w.flush(pending)
			}
		}
	}
}

func (w *Writer) drainQueue() []*models.OHLCVRecord {
	var out []*models.OHLCVRecord
	for {
		select {
		case bar := <-w.queue:
			out = append(out, bar)
		default:
			return out
		}
	}
}

// flush merges and writes one batch. On error the records are requeued and
// the retry limiter paces the next attempt. Returns the records to carry
// forward, always nil in the current policy.
func (w *Writer) flush(pending []*models.OHLCVRecord) []*models.OHLCVRecord {
	rows := MergeRecords(pending)
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	err := w.repo.UpsertBatch(ctx, rows)
	cancel()

	elapsedMs := float64(time.Since(start).Microseconds()) / 1000.0

	w.mu.Lock()
	w.lastFlush = time.Now()
	w.batchTimes = append(w.batchTimes, elapsedMs)
	if len(w.batchTimes) > batchTimeSamples {
		w.batchTimes = w.batchTimes[len(w.batchTimes)-batchTimeSamples:]
	}
	if err != nil {
		w.errors++
		w.lastPingOK = false
		w.mu.Unlock()

		w.log.Error().Err(err).Int("rows", len(rows)).Msg("batch upsert failed, requeueing")
		w.requeue(pending)
		_ = w.retryLimiter.Wait(context.Background())
		return nil
	}
	w.batches++
	w.persisted += int64(len(rows))
	w.lastPingOK = true
	w.mu.Unlock()

	w.log.Debug().Int("rows", len(rows)).Float64("elapsed_ms", elapsedMs).Msg("batch persisted")
	return nil
}

func (w *Writer) requeue(pending []*models.OHLCVRecord) {
	var requeued, dropped int64
	for _, bar := range pending {
		select {
		case w.queue <- bar:
			requeued++
		default:
			dropped++
		}
	}
	w.mu.Lock()
	w.requeued += requeued
	w.dropped += dropped
	w.mu.Unlock()
}

// MergeRecords coalesces records by (symbol, minute): first non-zero open,
// max high, min low, latest close, summed volume. Output order follows
// first appearance of each key.
func MergeRecords(records []*models.OHLCVRecord) []Row {
	type key struct {
		symbol string
		minute int64
	}
	index := make(map[key]int, len(records))
	rows := make([]Row, 0, len(records))

	for _, rec := range records {
		minute := rec.MinuteStart()
		k := key{symbol: rec.Ticker, minute: minute.Unix()}
		i, seen := index[k]
		if !seen {
			index[k] = len(rows)
			rows = append(rows, Row{
				Symbol:    rec.Ticker,
				Timestamp: minute,
				Open:      rec.Open,
				High:      rec.High,
				Low:       rec.Low,
				Close:     rec.Close,
				Volume:    rec.Volume,
			})
			continue
		}
		row := &rows[i]
		if row.Open == 0 {
			row.Open = rec.Open
		}
		if rec.High > row.High {
			row.High = rec.High
		}
		if rec.Low < row.Low {
			row.Low = rec.Low
		}
		row.Close = rec.Close
		row.Volume += rec.Volume
	}
	return rows
}
