// Package config loads the YAML configuration surface for the processing
// core. Zero values are backfilled by each component's own defaults, so
// partial files stay valid.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/marketflow/internal/channels"
	"github.com/sawpanic/marketflow/internal/detect"
	"github.com/sawpanic/marketflow/internal/events"
	"github.com/sawpanic/marketflow/internal/monitor"
	"github.com/sawpanic/marketflow/internal/persistence"
	"github.com/sawpanic/marketflow/internal/router"
)

// LoggingConfig controls the zerolog setup.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// HTTPConfig controls the observability server.
type HTTPConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// TickChannelConfig bundles the tick channel knobs with its detectors.
type TickChannelConfig struct {
	Channel   channels.Config             `yaml:"channel"`
	Detectors channels.TickDetectorConfig `yaml:"detectors"`
}

// OHLCVChannelConfig bundles the aggregate channel knobs.
type OHLCVChannelConfig struct {
	Channel   channels.Config        `yaml:"channel"`
	Detection detect.AggregateConfig `yaml:"detection"`
}

// FMVChannelConfig bundles the valuation channel knobs.
type FMVChannelConfig struct {
	Channel   channels.Config        `yaml:"channel"`
	Detection detect.ValuationConfig `yaml:"detection"`
}

// ChannelsConfig holds the three typed channels.
type ChannelsConfig struct {
	Tick  TickChannelConfig  `yaml:"tick"`
	OHLCV OHLCVChannelConfig `yaml:"ohlcv"`
	FMV   FMVChannelConfig   `yaml:"fmv"`
}

// Config is the full application configuration.
type Config struct {
	Logging     LoggingConfig      `yaml:"logging"`
	Router      router.Config      `yaml:"router"`
	Channels    ChannelsConfig     `yaml:"channels"`
	Events      events.SinkConfig  `yaml:"events"`
	Persistence persistence.Config `yaml:"persistence"`
	Monitor     monitor.Config     `yaml:"monitor"`
	HTTP        HTTPConfig         `yaml:"http"`
}

// Default returns the configuration used when no file is given. All three
// channels are enabled; persistence and the HTTP surface are opt-in.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Pretty: true},
		Router:  router.DefaultConfig(),
		Channels: ChannelsConfig{
			Tick:  TickChannelConfig{Channel: channels.Config{Name: "tick", Enabled: true}},
			OHLCV: OHLCVChannelConfig{Channel: channels.Config{Name: "ohlcv", Enabled: true}},
			FMV:   FMVChannelConfig{Channel: channels.Config{Name: "fmv", Enabled: true}},
		},
		Events: events.SinkConfig{Type: events.SinkLog},
		HTTP:   HTTPConfig{ListenAddr: "127.0.0.1:8090"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the components cannot repair with defaults.
func (c *Config) Validate() error {
	if !c.Channels.Tick.Channel.Enabled &&
		!c.Channels.OHLCV.Channel.Enabled &&
		!c.Channels.FMV.Channel.Enabled {
		return fmt.Errorf("config: at least one channel must be enabled")
	}
	if c.Persistence.Enabled && c.Persistence.DSN == "" {
		return fmt.Errorf("config: persistence enabled without dsn")
	}
	if c.HTTP.Enabled && c.HTTP.ListenAddr == "" {
		return fmt.Errorf("config: http enabled without listen_addr")
	}
	switch c.Router.Strategy {
	case "", router.StrategyRoundRobin, router.StrategyLeastLoad,
		router.StrategyConsistentHash, router.StrategyHealthScore:
	default:
		return fmt.Errorf("config: unknown routing strategy %q", c.Router.Strategy)
	}
	return nil
}
