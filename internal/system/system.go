// Package system wires the processing core together: channels, router,
// persistence, events, and monitoring behind one lifecycle.
package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketflow/internal/channels"
	"github.com/sawpanic/marketflow/internal/config"
	"github.com/sawpanic/marketflow/internal/events"
	"github.com/sawpanic/marketflow/internal/identify"
	"github.com/sawpanic/marketflow/internal/models"
	"github.com/sawpanic/marketflow/internal/monitor"
	"github.com/sawpanic/marketflow/internal/persistence"
	"github.com/sawpanic/marketflow/internal/router"
)

// State is the system lifecycle phase.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateProcessing   State = "processing"
	StateDegraded     State = "degraded"
	StateError        State = "error"
	StateShutdown     State = "shutdown"
)

const degradedIssueThreshold = 3

// Deps are the externally constructed dependencies. Either may be nil: a
// nil repository disables persistence regardless of config, a nil processor
// is built from the events config.
type Deps struct {
	Repository persistence.Repository
	Processor  events.Processor
}

// MultiChannelSystem is the composition root.
type MultiChannelSystem struct {
	cfg config.Config

	processor events.Processor
	tick      *channels.TickChannel
	ohlcv     *channels.OHLCVChannel
	fmv       *channels.FMVChannel
	router    *router.Router
	writer    *persistence.Writer
	monitor   *monitor.Monitor
	metrics   *IntegrationMetrics
	ident     *identify.Identifier

	mu        sync.Mutex
	state     State
	startedAt time.Time

	log zerolog.Logger
}

// New assembles the system from config. No goroutines run until Start.
func New(cfg config.Config, deps Deps) (*MultiChannelSystem, error) {
	s := &MultiChannelSystem{
		cfg:     cfg,
		state:   StateInitializing,
		metrics: NewIntegrationMetrics(),
		ident:   identify.New(0),
		log:     log.With().Str("component", "system").Logger(),
	}

	processor := deps.Processor
	if processor == nil {
		var err error
		processor, err = events.NewProcessor(cfg.Events)
		if err != nil {
			s.state = StateError
			return nil, fmt.Errorf("build event processor: %w", err)
		}
	}
	s.processor = processor

	if cfg.Persistence.Enabled && deps.Repository != nil {
		s.writer = persistence.NewWriter(cfg.Persistence, deps.Repository)
	}

	if cfg.Channels.Tick.Channel.Enabled {
		s.tick = channels.NewTickChannel(cfg.Channels.Tick.Channel, cfg.Channels.Tick.Detectors)
	}
	if cfg.Channels.OHLCV.Channel.Enabled {
		var sink channels.BarSink
		if s.writer != nil {
			sink = s.writer
		}
		s.ohlcv = channels.NewOHLCVChannel(cfg.Channels.OHLCV.Channel, cfg.Channels.OHLCV.Detection, sink)
	}
	if cfg.Channels.FMV.Channel.Enabled {
		s.fmv = channels.NewFMVChannel(cfg.Channels.FMV.Channel, cfg.Channels.FMV.Detection)
	}
	if s.tick == nil && s.ohlcv == nil && s.fmv == nil {
		s.state = StateError
		return nil, fmt.Errorf("system: no channel enabled")
	}

	s.router = router.New(cfg.Router, processor)
	s.monitor = monitor.New(cfg.Monitor)
	return s, nil
}

// Start brings components up: persistence, channels, router, monitor. On
// any failure the already started components are stopped again.
func (s *MultiChannelSystem) Start() error {
	s.mu.Lock()
	if s.state != StateInitializing {
		s.mu.Unlock()
		return fmt.Errorf("system: start from state %s", s.state)
	}
	s.mu.Unlock()

	if s.writer != nil {
		if err := s.writer.Start(); err != nil {
			s.fail()
			return fmt.Errorf("start persistence: %w", err)
		}
	}
	for _, ch := range s.typedChannels() {
		if err := ch.Start(); err != nil {
			s.fail()
			s.stopComponents()
			return fmt.Errorf("start channel %s: %w", ch.Name(), err)
		}
	}

	if s.tick != nil {
		s.router.Register(s.tick)
		s.monitor.RegisterChannel(s.tick)
	}
	if s.ohlcv != nil {
		s.router.Register(s.ohlcv)
		s.monitor.RegisterChannel(s.ohlcv)
	}
	if s.fmv != nil {
		s.router.Register(s.fmv)
		s.monitor.RegisterChannel(s.fmv)
	}
	s.router.Start()
	s.monitor.Start()

	s.mu.Lock()
	s.state = StateReady
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.log.Info().
		Bool("tick", s.tick != nil).
		Bool("ohlcv", s.ohlcv != nil).
		Bool("fmv", s.fmv != nil).
		Bool("persistence", s.writer != nil).
		Msg("system started")
	return nil
}

// Stop shuts components down in reverse startup order.
func (s *MultiChannelSystem) Stop() {
	s.mu.Lock()
	if s.state == StateShutdown {
		s.mu.Unlock()
		return
	}
	s.state = StateShutdown
	s.mu.Unlock()

	s.stopComponents()
	if err := s.processor.Close(); err != nil {
		s.log.Warn().Err(err).Msg("event processor close failed")
	}
	s.log.Info().Msg("system stopped")
}

func (s *MultiChannelSystem) stopComponents() {
	s.monitor.Stop()
	s.router.Stop()
	for _, ch := range s.typedChannels() {
		ch.Stop()
	}
	if s.writer != nil {
		s.writer.Stop()
	}
}

func (s *MultiChannelSystem) fail() {
	s.mu.Lock()
	s.state = StateError
	s.mu.Unlock()
}

// Submit routes one data item through the pipeline and folds the outcome
// into the integration metrics.
func (s *MultiChannelSystem) Submit(ctx context.Context, data any) (*models.ProcessingResult, error) {
	switch s.State() {
	case StateReady, StateProcessing, StateDegraded:
	default:
		return nil, fmt.Errorf("%w: system state %s", models.ErrNotRunning, s.State())
	}

	start := time.Now()
	dataType := s.ident.Identify(data)
	res, err := s.router.Route(ctx, data)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	success := err == nil && res != nil && res.Success
	s.metrics.Record(dataType, latencyMs, success)

	s.updateState()
	return res, err
}

func (s *MultiChannelSystem) typedChannels() []*channels.Channel {
	var out []*channels.Channel
	if s.tick != nil {
		out = append(out, s.tick.Channel)
	}
	if s.ohlcv != nil {
		out = append(out, s.ohlcv.Channel)
	}
	if s.fmv != nil {
		out = append(out, s.fmv.Channel)
	}
	return out
}

// healthIssues counts current component problems.
func (s *MultiChannelSystem) healthIssues() int {
	issues := 0
	for _, ch := range s.typedChannels() {
		if !ch.IsHealthy() {
			issues++
		}
	}
	if s.writer != nil && !s.writer.IsHealthy() {
		issues++
	}
	return issues
}

// updateState moves between Processing and Degraded based on the issue
// count. Ready is left once traffic flows.
func (s *MultiChannelSystem) updateState() {
	issues := s.healthIssues()
	degradedNow := false

	s.mu.Lock()
	switch s.state {
	case StateReady, StateProcessing:
		if issues >= degradedIssueThreshold {
			s.state = StateDegraded
			degradedNow = true
		} else {
			s.state = StateProcessing
		}
	case StateDegraded:
		if issues < degradedIssueThreshold {
			s.state = StateProcessing
		}
	}
	s.mu.Unlock()

	if degradedNow {
		s.monitor.RaiseSystemAlert(monitor.AlertSystemHealth, monitor.SeverityError,
			fmt.Sprintf("system degraded: %d component issues", issues),
			map[string]any{"issues": issues})
	}
}

// State returns the lifecycle phase.
func (s *MultiChannelSystem) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the router is wired and every enabled channel is
// healthy.
func (s *MultiChannelSystem) Ready() bool {
	switch s.State() {
	case StateReady, StateProcessing, StateDegraded:
	default:
		return false
	}
	for _, ch := range s.typedChannels() {
		if !ch.IsHealthy() {
			return false
		}
	}
	return true
}

// Monitor exposes the monitor for HTTP surfaces and alert handlers.
func (s *MultiChannelSystem) Monitor() *monitor.Monitor { return s.monitor }

// Router exposes the router, read-only use expected.
func (s *MultiChannelSystem) Router() *router.Router { return s.router }

// ChannelStatus is one channel's row in the system status.
type ChannelStatus struct {
	Name        string                   `json:"name"`
	Type        models.DataType          `json:"type"`
	Status      channels.Status          `json:"status"`
	Healthy     bool                     `json:"healthy"`
	HealthScore float64                  `json:"health_score"`
	Metrics     channels.MetricsSnapshot `json:"metrics"`
}

// PerformanceTargets are the pass/fail flags against the monitor thresholds.
type PerformanceTargets struct {
	LatencyMet      bool `json:"latency_met"`
	SuccessRateMet  bool `json:"success_rate_met"`
	ChannelsHealthy bool `json:"channels_healthy"`
}

// Status is a full system snapshot.
type Status struct {
	State         State                  `json:"state"`
	UptimeSeconds float64                `json:"uptime_seconds"`
	Channels      []ChannelStatus        `json:"channels"`
	Router        router.MetricsSnapshot `json:"router"`
	Identifier    identify.Stats         `json:"identifier"`
	Persistence   *persistence.Stats     `json:"persistence,omitempty"`
	Metrics       IntegrationSnapshot    `json:"metrics"`
	Targets       PerformanceTargets     `json:"targets"`
}

// Status assembles the snapshot. Callable in any state.
func (s *MultiChannelSystem) Status() Status {
	s.mu.Lock()
	state := s.state
	startedAt := s.startedAt
	s.mu.Unlock()

	st := Status{
		State:      state,
		Router:     s.router.Metrics().Snapshot(),
		Identifier: s.router.IdentifierStats(),
		Metrics:    s.metrics.Snapshot(),
	}
	if !startedAt.IsZero() {
		st.UptimeSeconds = time.Since(startedAt).Seconds()
	}

	healthyAll := true
	for _, ch := range s.typedChannels() {
		healthy := ch.IsHealthy()
		healthyAll = healthyAll && healthy
		st.Channels = append(st.Channels, ChannelStatus{
			Name:        ch.Name(),
			Type:        ch.DataType(),
			Status:      ch.Status(),
			Healthy:     healthy,
			HealthScore: ch.HealthScore(),
			Metrics:     ch.Metrics().Snapshot(),
		})
	}
	if s.writer != nil {
		stats := s.writer.Stats()
		st.Persistence = &stats
	}

	thresholds := s.cfg.Monitor.Thresholds
	if thresholds == (monitor.Thresholds{}) {
		thresholds = monitor.DefaultThresholds()
	}
	st.Targets = PerformanceTargets{
		LatencyMet:      st.Metrics.EMALatencyMs <= thresholds.MaxLatencyMs,
		SuccessRateMet:  st.Metrics.SuccessRate >= thresholds.MinSuccessRate,
		ChannelsHealthy: healthyAll,
	}
	return st
}
