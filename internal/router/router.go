// Package router classifies inbound data, picks a channel instance, and
// dispatches with a deadline, forwarding produced events downstream.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/marketflow/internal/channels"
	"github.com/sawpanic/marketflow/internal/events"
	"github.com/sawpanic/marketflow/internal/identify"
	"github.com/sawpanic/marketflow/internal/models"
)

// Channel is the instance surface the router needs. *channels.Channel and
// the typed channels all satisfy it.
type Channel interface {
	Name() string
	ID() string
	DataType() models.DataType
	ProcessWithMetrics(data any) *models.ProcessingResult
	IsHealthy() bool
	HealthScore() float64
	QueueSize() int
	Metrics() *channels.Metrics
}

// Rule maps a data type onto a channel group. Lower priority runs first; a
// nil predicate always matches.
type Rule struct {
	DataType    models.DataType
	ChannelType models.DataType
	Priority    int
	Predicate   func(data any) bool
}

// Config is the router tuning surface.
type Config struct {
	Strategy                     Strategy `yaml:"routing_strategy"`
	RoutingTimeoutMs             int      `yaml:"routing_timeout_ms"`
	EnableFallbackRouting        bool     `yaml:"enable_fallback_routing"`
	CircuitBreakerThreshold      int      `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeoutSeconds int      `yaml:"circuit_breaker_timeout_seconds"`
	HealthCheckIntervalSeconds   int      `yaml:"health_check_interval_seconds"`
	IdentifierCacheSize          int      `yaml:"identifier_cache_size"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:                     StrategyHealthScore,
		RoutingTimeoutMs:             50,
		EnableFallbackRouting:        true,
		CircuitBreakerThreshold:      10,
		CircuitBreakerTimeoutSeconds: 60,
		HealthCheckIntervalSeconds:   30,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Strategy == "" {
		c.Strategy = def.Strategy
	}
	if c.RoutingTimeoutMs <= 0 {
		c.RoutingTimeoutMs = def.RoutingTimeoutMs
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = def.CircuitBreakerThreshold
	}
	if c.CircuitBreakerTimeoutSeconds <= 0 {
		c.CircuitBreakerTimeoutSeconds = def.CircuitBreakerTimeoutSeconds
	}
	if c.HealthCheckIntervalSeconds <= 0 {
		c.HealthCheckIntervalSeconds = def.HealthCheckIntervalSeconds
	}
}

// errDispatchFailed is how failed results feed the router breaker without
// losing the result itself.
var errDispatchFailed = errors.New("dispatch failed")

// Router owns the channel set. Registration happens during wiring; Route is
// safe for concurrent use afterwards.
type Router struct {
	cfg        Config
	identifier *identify.Identifier
	processor  events.Processor
	balancer   *Balancer
	breaker    *gobreaker.CircuitBreaker
	metrics    *Metrics

	mu    sync.RWMutex
	group map[models.DataType][]Channel
	rules []Rule

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log zerolog.Logger
}

// New builds a router. The processor may be nil; events are then dropped.
func New(cfg Config, processor events.Processor) *Router {
	cfg.applyDefaults()
	r := &Router{
		cfg:        cfg,
		identifier: identify.New(cfg.IdentifierCacheSize),
		processor:  processor,
		balancer:   NewBalancer(cfg.Strategy),
		metrics:    NewRouterMetrics(),
		group:      make(map[models.DataType][]Channel),
		stopCh:     make(chan struct{}),
		log:        log.With().Str("component", "router").Logger(),
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "router",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.CircuitBreakerTimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.CircuitBreakerThreshold)
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			r.log.Warn().Str("from", from.String()).Str("to", to.String()).Msg("router breaker state change")
		},
	})
	return r
}

// Register adds a channel instance to its type group.
func (r *Router) Register(ch Channel) {
	r.mu.Lock()
	r.group[ch.DataType()] = append(r.group[ch.DataType()], ch)
	r.mu.Unlock()
	r.log.Info().Str("channel", ch.Name()).Str("type", string(ch.DataType())).Msg("channel registered")
}

// AddRule installs a custom routing rule. Rules are kept sorted so lower
// priority values are consulted first.
func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool { return r.rules[i].Priority < r.rules[j].Priority })
	r.mu.Unlock()
}

// Channels returns all registered instances across groups in registration
// order, for the monitor and status surfaces.
func (r *Router) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Channel
	for _, dt := range []models.DataType{models.DataTypeTick, models.DataTypeOHLCV, models.DataTypeFMV} {
		out = append(out, r.group[dt]...)
	}
	return out
}

// Start spawns the periodic health check loop.
func (r *Router) Start() {
	r.wg.Add(1)
	go r.healthLoop()
}

// Stop terminates the health loop. Registered channels are stopped by their
// owner, not the router.
func (r *Router) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wg.Wait()
	})
}

// Metrics exposes the router counters.
func (r *Router) Metrics() *Metrics { return r.metrics }

// IdentifierStats reports classification cache effectiveness.
func (r *Router) IdentifierStats() identify.Stats { return r.identifier.Stats() }

// Route classifies data, picks an instance, and dispatches under the routing
// deadline. A nil result with a nil error means the payload was
// unclassifiable. Route never panics past the caller.
func (r *Router) Route(ctx context.Context, data any) (*models.ProcessingResult, error) {
	start := time.Now()

	if r.breaker.State() == gobreaker.StateOpen {
		r.metrics.RecordUnavailable()
		return nil, fmt.Errorf("%w: circuit open", models.ErrRouterUnavailable)
	}

	dataType := r.identifier.Identify(data)
	if dataType == models.DataTypeUnknown {
		r.metrics.RecordRoutingError()
		r.log.Debug().Msg("unclassifiable payload dropped")
		return nil, nil
	}

	target := r.resolveTarget(dataType, data)
	ch, fellBack, err := r.selectInstance(target)
	if err != nil {
		r.metrics.RecordRoutingError()
		return nil, err
	}
	if fellBack {
		r.metrics.RecordFallback()
		r.log.Warn().Str("channel", ch.Name()).Msg("no healthy instance, fallback route")
	}

	v, err := r.breaker.Execute(func() (any, error) {
		res := r.dispatch(ch, data)
		if res.Failed() {
			return res, errDispatchFailed
		}
		return res, nil
	})
	if v == nil {
		// Breaker rejected the call outright.
		r.metrics.RecordUnavailable()
		return nil, fmt.Errorf("%w: %v", models.ErrRouterUnavailable, err)
	}
	res := v.(*models.ProcessingResult)

	// A channel-level open breaker gets one retry against a healthy peer.
	if res.Failed() && res.Metadata["circuit_breaker"] == true {
		if peer := r.healthyPeer(target, ch); peer != nil {
			r.log.Debug().Str("from", ch.Name()).Str("to", peer.Name()).Msg("retrying against peer")
			res = r.dispatch(peer, data)
			ch = peer
		}
	}

	if res.Success {
		r.forwardEvents(ctx, ch, res.Events)
	} else {
		r.log.Debug().Str("channel", ch.Name()).Strs("errors", res.Errors).Msg("dispatch failed")
	}

	r.metrics.RecordRoute(dataType, ch.Name(), msSince(start), res.Success)
	return res, nil
}

// resolveTarget maps a data type onto a channel group via the custom rules,
// falling back to the identity mapping.
func (r *Router) resolveTarget(dataType models.DataType, data any) models.DataType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.DataType != dataType {
			continue
		}
		if rule.Predicate == nil || rule.Predicate(data) {
			return rule.ChannelType
		}
	}
	return dataType
}

// selectInstance asks the balancer for a healthy instance, applying the
// fallback policy when the whole group is unhealthy.
func (r *Router) selectInstance(target models.DataType) (Channel, bool, error) {
	r.mu.RLock()
	candidates := r.group[target]
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, false, fmt.Errorf("%w: no %s channel registered", models.ErrNoAvailableChannel, target)
	}

	healthy := make([]Channel, 0, len(candidates))
	for _, c := range candidates {
		if c.IsHealthy() {
			healthy = append(healthy, c)
		}
	}
	if len(healthy) > 0 {
		return r.balancer.Pick(target, healthy), false, nil
	}
	if !r.cfg.EnableFallbackRouting {
		return nil, false, fmt.Errorf("%w: all %s instances unhealthy", models.ErrNoAvailableChannel, target)
	}
	return r.balancer.Pick(target, candidates), true, nil
}

// healthyPeer returns a healthy instance other than exclude, nil if none.
func (r *Router) healthyPeer(target models.DataType, exclude Channel) Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.group[target] {
		if c.ID() != exclude.ID() && c.IsHealthy() {
			return c
		}
	}
	return nil
}

// dispatch invokes the channel under the routing deadline. On timeout the
// channel call is left to finish on its own; the result is discarded.
func (r *Router) dispatch(ch Channel, data any) *models.ProcessingResult {
	timeout := time.Duration(r.cfg.RoutingTimeoutMs) * time.Millisecond
	resCh := make(chan *models.ProcessingResult, 1)
	go func() {
		resCh <- ch.ProcessWithMetrics(data)
	}()

	select {
	case res := <-resCh:
		return res
	case <-time.After(timeout):
		r.metrics.RecordTimeout()
		r.log.Warn().Str("channel", ch.Name()).Dur("timeout", timeout).Msg("routing timeout")
		return models.FailResult(fmt.Errorf("%w after %s on %s", models.ErrRoutingTimeout, timeout, ch.Name())).
			WithMeta("error_type", "timeout").
			WithMeta("channel", ch.Name())
	}
}

func (r *Router) forwardEvents(ctx context.Context, ch Channel, evs []models.Event) {
	if r.processor == nil || len(evs) == 0 {
		return
	}
	for i := range evs {
		if evs[i].Channel == "" {
			evs[i].Channel = ch.Name()
		}
	}
	if err := r.processor.Process(ctx, evs); err != nil {
		r.log.Warn().Err(err).Int("events", len(evs)).Msg("event forward failed")
	}
}

// healthLoop periodically logs unhealthy instances.
func (r *Router) healthLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(time.Duration(r.cfg.HealthCheckIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			for _, c := range r.Channels() {
				if !c.IsHealthy() {
					r.log.Warn().
						Str("channel", c.Name()).
						Float64("health_score", c.HealthScore()).
						Msg("channel unhealthy")
				}
			}
		}
	}
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
