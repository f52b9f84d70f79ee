package channels

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketflow/internal/models"
)

const drainDeadline = 10 * time.Second

// Handler is the type-specific half of a channel: validation, the actual
// per-item processing, periodic state cleanup, and shutdown.
type Handler interface {
	ValidateData(data any) bool
	ProcessData(data any) *models.ProcessingResult
	Cleanup(now time.Time) int
	Shutdown()
}

// Channel is the shared processing-channel machinery: bounded queue,
// batching, circuit breaker, metrics, and lifecycle. Type-specific behavior
// is delegated to the Handler.
type Channel struct {
	name     string
	id       string
	dataType models.DataType
	cfg      Config
	handler  Handler

	mu        sync.Mutex
	status    Status
	batchBuf  []any
	lastFlush time.Time

	queue   chan any
	metrics *Metrics
	breaker *Breaker

	// procMu serializes handler invocations; handlers own per-symbol state
	// and are not reentrant-safe.
	procMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log zerolog.Logger
}

// NewChannel wires the shared machinery around a handler. Callers normally
// use NewTickChannel / NewOHLCVChannel / NewFMVChannel instead.
func NewChannel(cfg Config, dataType models.DataType, handler Handler) *Channel {
	cfg.applyDefaults()
	c := &Channel{
		name:     cfg.Name,
		id:       uuid.NewString(),
		dataType: dataType,
		cfg:      cfg,
		handler:  handler,
		status:   StatusInitializing,
		queue:    make(chan any, cfg.MaxQueueSize),
		metrics:  NewMetrics(),
		breaker: NewBreaker(cfg.CircuitBreakerThreshold,
			time.Duration(cfg.CircuitBreakerTimeoutSeconds)*time.Second),
		stopCh: make(chan struct{}),
	}
	c.log = log.With().Str("channel", c.name).Str("channel_type", string(dataType)).Logger()
	return c
}

// Name returns the channel's configured name.
func (c *Channel) Name() string { return c.name }

// ID returns the unique instance id.
func (c *Channel) ID() string { return c.id }

// DataType returns the record kind this channel processes.
func (c *Channel) DataType() models.DataType { return c.dataType }

// Config returns a copy of the effective configuration.
func (c *Channel) Config() Config { return c.cfg }

// Metrics exposes the channel's metrics block for snapshot readers.
func (c *Channel) Metrics() *Metrics { return c.metrics }

// Status returns the lifecycle state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Channel) setStatus(s Status) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

// Start activates the channel and spawns the background workers the
// batching strategy needs.
func (c *Channel) Start() error {
	c.mu.Lock()
	if c.status != StatusInitializing {
		c.mu.Unlock()
		return fmt.Errorf("channel %s: start from status %s", c.name, c.status)
	}
	c.status = StatusActive
	c.lastFlush = time.Now()
	c.mu.Unlock()

	if c.cfg.Batching.Strategy != BatchImmediate {
		c.wg.Add(2)
		go c.drainLoop()
		go c.flushLoop()
	}
	if c.cfg.CleanupIntervalSeconds > 0 {
		c.wg.Add(1)
		go c.janitorLoop()
	}

	c.log.Info().
		Str("strategy", string(c.cfg.Batching.Strategy)).
		Int("max_queue_size", c.cfg.MaxQueueSize).
		Msg("channel started")
	return nil
}

// Stop shuts the channel down: workers exit, the remaining queue and batch
// buffer drain through processWithMetrics, then the handler shuts down.
func (c *Channel) Stop() {
	c.stopOnce.Do(func() {
		c.setStatus(StatusShutdown)
		close(c.stopCh)

		done := make(chan struct{})
		go func() {
			c.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(drainDeadline):
			c.log.Warn().Msg("worker drain deadline exceeded")
		}

		c.drainRemaining()
		c.handler.Shutdown()
		c.metrics.MarkStopped()
		c.log.Info().Msg("channel stopped")
	})
}

// Pause stops accepting new work without tearing anything down.
func (c *Channel) Pause() {
	c.mu.Lock()
	if c.status == StatusActive {
		c.status = StatusPaused
	}
	c.mu.Unlock()
}

// Resume re-activates a paused channel.
func (c *Channel) Resume() {
	c.mu.Lock()
	if c.status == StatusPaused {
		c.status = StatusActive
	}
	c.mu.Unlock()
}

// Submit hands one item to the channel. Immediate channels process inline
// and report the result's success; batched channels enqueue and report
// acceptance. Rejected when not active or the breaker is open.
func (c *Channel) Submit(data any) bool {
	if c.Status() != StatusActive {
		c.metrics.RecordBreakerRejection()
		return false
	}
	if allowed, closedNow := c.breaker.Allow(); !allowed {
		c.metrics.RecordBreakerRejection()
		return false
	} else if closedNow {
		c.metrics.RecordBreakerClose()
		c.log.Info().Msg("circuit breaker closed after timeout")
	}

	if c.cfg.Batching.Strategy == BatchImmediate {
		return c.ProcessWithMetrics(data).Success
	}

	select {
	case c.queue <- data:
		return true
	default:
	}

	if c.cfg.Batching.OverflowAction == OverflowDropOldest {
		select {
		case <-c.queue:
			c.metrics.RecordOverflow()
		default:
		}
		select {
		case c.queue <- data:
			return true
		default:
		}
	}
	c.metrics.RecordOverflow()
	return false
}

// ProcessWithMetrics runs one item through the handler, recording latency,
// breaker transitions, and event counts. Never panics past the caller.
func (c *Channel) ProcessWithMetrics(data any) *models.ProcessingResult {
	start := time.Now()

	if allowed, closedNow := c.breaker.Allow(); !allowed {
		res := models.FailResult(models.ErrCircuitOpen).WithMeta("circuit_breaker", true)
		res.ProcessingTimeMs = msSince(start)
		c.metrics.RecordResult(res.ProcessingTimeMs, false, 0)
		c.metrics.RecordBreakerRejection()
		return res
	} else if closedNow {
		c.metrics.RecordBreakerClose()
		c.log.Info().Msg("circuit breaker closed after timeout")
	}

	if !c.handler.ValidateData(data) {
		res := models.FailResult(fmt.Errorf("%w: rejected by %s validator", models.ErrInvalidData, c.name))
		res.ProcessingTimeMs = msSince(start)
		c.metrics.RecordResult(res.ProcessingTimeMs, false, 0)
		c.recordFailure()
		return res
	}

	res := c.invokeHandler(data)

	res.ProcessingTimeMs = msSince(start)
	c.metrics.RecordResult(res.ProcessingTimeMs, res.Success, len(res.Events))
	if res.Success {
		c.breaker.RecordSuccess()
	} else {
		c.recordFailure()
	}
	return res
}

// invokeHandler calls the handler under the processing lock, converting
// panics into failed results.
func (c *Channel) invokeHandler(data any) (res *models.ProcessingResult) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("handler panic recovered")
			res = models.FailResult(fmt.Errorf("processing panic: %v", r)).
				WithMeta("exception", fmt.Sprint(r))
		}
	}()
	c.procMu.Lock()
	defer c.procMu.Unlock()
	return c.handler.ProcessData(data)
}

func (c *Channel) recordFailure() {
	if c.breaker.RecordFailure() {
		c.metrics.RecordBreakerOpen()
		c.log.Warn().
			Int("threshold", c.cfg.CircuitBreakerThreshold).
			Msg("circuit breaker opened")
	}
}

// QueueSize is the number of items waiting in the input queue.
func (c *Channel) QueueSize() int { return len(c.queue) }

// QueueUtilization is the queue fill ratio in [0,1].
func (c *Channel) QueueUtilization() float64 {
	if c.cfg.MaxQueueSize == 0 {
		return 0
	}
	return float64(len(c.queue)) / float64(c.cfg.MaxQueueSize)
}

// IsHealthy applies the health policy: live status, closed breaker,
// tolerable error rate and latency, queue not saturated.
func (c *Channel) IsHealthy() bool {
	status := c.Status()
	if status != StatusActive && status != StatusPaused {
		return false
	}
	if c.breaker.IsOpen() {
		return false
	}
	if c.metrics.ErrorRate() > c.cfg.ErrorThreshold {
		return false
	}
	if c.metrics.EMALatencyMs() > 5000 {
		return false
	}
	if c.QueueUtilization() > 0.9 {
		return false
	}
	return true
}

// HealthScore maps channel condition onto [0,100] for the load balancer.
func (c *Channel) HealthScore() float64 {
	score := 100.0
	score -= 30 * c.metrics.ErrorRate()
	score -= math.Min(c.metrics.EMALatencyMs()/200, 20)
	score -= 10 * c.QueueUtilization()
	if score < 0 {
		score = 0
	}
	return score
}

// BreakerSnapshot exposes breaker state for status reporting.
func (c *Channel) BreakerSnapshot() BreakerSnapshot {
	return c.breaker.Snapshot()
}

// drainLoop moves queued items into the batch buffer and flushes on the
// size condition.
func (c *Channel) drainLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.stopCh:
			return
		case item := <-c.queue:
			c.appendToBatch(item)
		}
	}
}

// flushLoop flushes on the time condition for time-based and hybrid
// strategies, and guards against a stuck buffer for size-based ones.
func (c *Channel) flushLoop() {
	defer c.wg.Done()
	interval := time.Duration(c.cfg.Batching.MaxWaitTimeMs) * time.Millisecond
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.flushIfDue()
		}
	}
}

func (c *Channel) appendToBatch(item any) {
	var flush []any
	c.mu.Lock()
	c.batchBuf = append(c.batchBuf, item)
	sizeDue := c.cfg.Batching.Strategy != BatchTime && len(c.batchBuf) >= c.cfg.Batching.MaxBatchSize
	overCap := len(c.batchBuf) >= 2*c.cfg.Batching.MaxBatchSize
	if sizeDue || overCap {
		flush = c.batchBuf
		c.batchBuf = nil
		c.lastFlush = time.Now()
	}
	c.mu.Unlock()

	if flush != nil {
		c.processBatch(flush)
	}
}

func (c *Channel) flushIfDue() {
	maxWait := time.Duration(c.cfg.Batching.MaxWaitTimeMs) * time.Millisecond
	var flush []any
	c.mu.Lock()
	timeDue := c.cfg.Batching.Strategy != BatchSize && time.Since(c.lastFlush) >= maxWait
	if timeDue && len(c.batchBuf) > 0 {
		flush = c.batchBuf
		c.batchBuf = nil
		c.lastFlush = time.Now()
	}
	c.mu.Unlock()

	if flush != nil {
		c.processBatch(flush)
	}
}

func (c *Channel) processBatch(items []any) {
	ok := true
	for _, item := range items {
		if res := c.ProcessWithMetrics(item); !res.Success {
			ok = false
		}
	}
	c.metrics.RecordBatch(ok)
}

// drainRemaining empties the queue and batch buffer during shutdown.
func (c *Channel) drainRemaining() {
	c.mu.Lock()
	leftover := c.batchBuf
	c.batchBuf = nil
	c.mu.Unlock()

	for {
		select {
		case item := <-c.queue:
			leftover = append(leftover, item)
		default:
			if len(leftover) > 0 {
				c.processBatch(leftover)
			}
			return
		}
	}
}

// janitorLoop periodically asks the handler to drop idle per-symbol state.
func (c *Channel) janitorLoop() {
	defer c.wg.Done()
	ticker := time.NewTicker(time.Duration(c.cfg.CleanupIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			if removed := c.handler.Cleanup(time.Now()); removed > 0 {
				c.log.Debug().Int("removed", removed).Msg("idle symbol state dropped")
			}
		}
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
