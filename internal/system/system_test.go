package system

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/config"
	"github.com/sawpanic/marketflow/internal/events"
	"github.com/sawpanic/marketflow/internal/models"
	"github.com/sawpanic/marketflow/internal/persistence"
)

type memRepo struct {
	mu   sync.Mutex
	rows []persistence.Row
	err  error
}

func (r *memRepo) UpsertBatch(_ context.Context, rows []persistence.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.rows = append(r.rows, rows...)
	return nil
}

func (r *memRepo) Ping(context.Context) error { return nil }
func (r *memRepo) Close() error               { return nil }

func (r *memRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *memRepo) row(i int) persistence.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[i]
}

func startedSystem(t *testing.T, cfg config.Config, deps Deps) *MultiChannelSystem {
	t.Helper()
	s, err := New(cfg, deps)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(s.Stop)
	return s
}

func TestSystemLifecycleAndTickFlow(t *testing.T) {
	rec := events.NewRecorder()
	s := startedSystem(t, config.Default(), Deps{Processor: rec})

	require.True(t, s.Ready())
	assert.Equal(t, StateReady, s.State())

	base := 1700000000.0
	for i, p := range []float64{150.00, 150.20, 150.60} {
		res, err := s.Submit(context.Background(), &models.TickRecord{
			Ticker: "AAPL", Price: p, Volume: 1000, Timestamp: base + float64(i),
		})
		require.NoError(t, err)
		require.True(t, res.Success)
	}

	require.Eventually(t, func() bool { return rec.Count() == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, models.EventSessionHigh, rec.Events()[0].Kind)
	assert.Equal(t, StateProcessing, s.State())

	st := s.Status()
	assert.Len(t, st.Channels, 3)
	assert.Equal(t, int64(3), st.Metrics.Total)
	assert.Equal(t, int64(3), st.Metrics.PerType[models.DataTypeTick])
	assert.Equal(t, 1.0, st.Metrics.SuccessRate)
	assert.True(t, st.Targets.ChannelsHealthy)
	assert.True(t, st.Targets.SuccessRateMet)
	assert.Nil(t, st.Persistence)

	s.Stop()
	assert.Equal(t, StateShutdown, s.State())
	_, err := s.Submit(context.Background(), &models.TickRecord{Ticker: "AAPL", Price: 1, Timestamp: base})
	assert.ErrorIs(t, err, models.ErrNotRunning)
}

func TestSystemSubmitUnknownPayload(t *testing.T) {
	s := startedSystem(t, config.Default(), Deps{Processor: events.NewRecorder()})

	res, err := s.Submit(context.Background(), map[string]any{"bogus": true})
	require.NoError(t, err)
	assert.Nil(t, res)

	st := s.Status()
	assert.Equal(t, int64(1), st.Metrics.Failures)
	assert.Equal(t, int64(1), st.Router.RoutingErrors)
}

func TestSystemPersistenceFlow(t *testing.T) {
	repo := &memRepo{}
	cfg := config.Default()
	cfg.Persistence.Enabled = true
	cfg.Persistence.DSN = "postgres://test"
	cfg.Persistence.BatchSize = 1

	s := startedSystem(t, cfg, Deps{Processor: events.NewRecorder(), Repository: repo})

	res, err := s.Submit(context.Background(), &models.OHLCVRecord{
		Ticker: "MSFT", Timestamp: 1700000015,
		Open: 300, High: 301, Low: 299, Close: 300, Volume: 1000,
	})
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Eventually(t, func() bool { return repo.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	row := repo.row(0)
	assert.Equal(t, "MSFT", row.Symbol)
	assert.Equal(t, int64(1000), row.Volume)

	st := s.Status()
	require.NotNil(t, st.Persistence)
	assert.Equal(t, int64(1), st.Persistence.Persisted)
}

func TestSystemRoutesAllThreeTypes(t *testing.T) {
	s := startedSystem(t, config.Default(), Deps{Processor: events.NewRecorder()})
	ctx := context.Background()

	_, err := s.Submit(ctx, map[string]any{"sym": "TSLA", "p": 240.5, "v": 100.0, "t": 1700000000000.0})
	require.NoError(t, err)
	_, err = s.Submit(ctx, &models.OHLCVRecord{Ticker: "NVDA", Timestamp: 1700000060, Open: 1, High: 1, Low: 1, Close: 1, Volume: 5})
	require.NoError(t, err)
	_, err = s.Submit(ctx, &models.FMVRecord{Ticker: "AMD", Timestamp: 1700000000, FMV: 160, MarketPrice: 150, Confidence: 0.9})
	require.NoError(t, err)

	st := s.Status()
	assert.Equal(t, int64(1), st.Metrics.PerType[models.DataTypeTick])
	assert.Equal(t, int64(1), st.Metrics.PerType[models.DataTypeOHLCV])
	assert.Equal(t, int64(1), st.Metrics.PerType[models.DataTypeFMV])
}

func TestSystemDisabledChannelRejectsType(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.FMV.Channel.Enabled = false
	s := startedSystem(t, cfg, Deps{Processor: events.NewRecorder()})

	_, err := s.Submit(context.Background(), &models.FMVRecord{
		Ticker: "AMD", Timestamp: 1700000000, FMV: 160, MarketPrice: 150, Confidence: 0.9,
	})
	assert.ErrorIs(t, err, models.ErrNoAvailableChannel)
}

func TestSystemRejectsNoChannels(t *testing.T) {
	cfg := config.Default()
	cfg.Channels.Tick.Channel.Enabled = false
	cfg.Channels.OHLCV.Channel.Enabled = false
	cfg.Channels.FMV.Channel.Enabled = false

	_, err := New(cfg, Deps{Processor: events.NewRecorder()})
	assert.Error(t, err)
}

func TestSystemBadSinkConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Events.Type = "kafka"
	_, err := New(cfg, Deps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported event sink")
}

func TestIntegrationMetricsThroughputWindow(t *testing.T) {
	m := NewIntegrationMetrics()
	clock := time.Unix(1700000000, 0)
	m.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		m.Record(models.DataTypeTick, 1, true)
	}
	clock = clock.Add(time.Second)
	m.Record(models.DataTypeTick, 1, true)

	snap := m.Snapshot()
	assert.Equal(t, int64(11), snap.Total)
	assert.InDelta(t, 11.0, snap.PeakThroughput, 0.5)
	assert.Equal(t, 1.0, snap.SuccessRate)
}

func TestIntegrationMetricsEMA(t *testing.T) {
	m := NewIntegrationMetrics()
	m.Record(models.DataTypeTick, 100, true)
	assert.Equal(t, 100.0, m.Snapshot().EMALatencyMs)

	m.Record(models.DataTypeTick, 200, false)
	assert.InDelta(t, 0.05*200+0.95*100, m.Snapshot().EMALatencyMs, 1e-9)
	assert.InDelta(t, 0.5, m.Snapshot().SuccessRate, 1e-9)
}
