package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/channels"
	"github.com/sawpanic/marketflow/internal/router"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "marketflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.True(t, cfg.Channels.Tick.Channel.Enabled)
	assert.True(t, cfg.Channels.OHLCV.Channel.Enabled)
	assert.True(t, cfg.Channels.FMV.Channel.Enabled)
	assert.Equal(t, router.StrategyHealthScore, cfg.Router.Strategy)
	assert.Equal(t, 50, cfg.Router.RoutingTimeoutMs)
	assert.False(t, cfg.Persistence.Enabled)
}

func TestLoadPartialFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
router:
  routing_strategy: least-load
  routing_timeout_ms: 25
channels:
  fmv:
    channel:
      enabled: false
    detection:
      confidence_threshold: 0.9
  ohlcv:
    channel:
      enabled: true
      batching:
        max_batch_size: 250
persistence:
  enabled: true
  dsn: postgres://mf:mf@localhost/marketflow?sslmode=disable
  batch_size: 50
monitor:
  alert_cooldown_seconds: 60
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, router.StrategyLeastLoad, cfg.Router.Strategy)
	assert.Equal(t, 25, cfg.Router.RoutingTimeoutMs)
	assert.False(t, cfg.Channels.FMV.Channel.Enabled)
	assert.Equal(t, 0.9, cfg.Channels.FMV.Detection.ConfidenceThreshold)
	assert.Equal(t, 250, cfg.Channels.OHLCV.Channel.Batching.MaxBatchSize)
	assert.True(t, cfg.Channels.Tick.Channel.Enabled, "untouched sections keep defaults")
	assert.True(t, cfg.Persistence.Enabled)
	assert.Equal(t, 50, cfg.Persistence.BatchSize)
	assert.Equal(t, 60, cfg.Monitor.AlertCooldownSeconds)
}

func TestLoadRejectsAllChannelsDisabled(t *testing.T) {
	path := writeConfig(t, `
channels:
  tick:
    channel: {enabled: false}
  ohlcv:
    channel: {enabled: false}
  fmv:
    channel: {enabled: false}
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one channel")
}

func TestLoadRejectsPersistenceWithoutDSN(t *testing.T) {
	path := writeConfig(t, "persistence:\n  enabled: true\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, "router:\n  routing_strategy: random\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/marketflow.yaml")
	assert.Error(t, err)
}

func TestChannelDefaultsSurviveConstruction(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	tick := channels.NewTickChannel(cfg.Channels.Tick.Channel, cfg.Channels.Tick.Detectors)
	assert.Equal(t, channels.BatchImmediate, tick.Config().Batching.Strategy)
	assert.Equal(t, 1000, tick.Config().MaxQueueSize)
}
