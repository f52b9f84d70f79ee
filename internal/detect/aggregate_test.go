package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/models"
)

func bar(ticker string, close float64, volume int64, ts float64) *models.OHLCVRecord {
	b := &models.OHLCVRecord{
		Ticker:    ticker,
		Timestamp: ts,
		Open:      close,
		High:      close,
		Low:       close,
		Close:     close,
		Volume:    volume,
	}
	if err := b.Validate(); err != nil {
		panic(err)
	}
	return b
}

func TestAggregateVolumeSurge(t *testing.T) {
	d := NewAggregateDetector(DefaultAggregateConfig())
	buf := NewSymbolBarBuffer("NVDA")
	base := 1700000000.0

	for i := 0; i < 10; i++ {
		buf.Append(bar("NVDA", 500.00, 1_000_000, base+float64(i)*60))
	}
	require.InDelta(t, 1_000_000, buf.VolumeBaseline, 1)

	surge := &models.OHLCVRecord{
		Ticker: "NVDA", Timestamp: base + 600,
		Open: 500, High: 503, Low: 499.5, Close: 502.5, Volume: 3_500_000,
		PercentChange: 0.5,
	}
	require.NoError(t, surge.Validate())

	baseline := buf.VolumeBaseline // computed before the surge bar lands
	buf.Append(surge)
	events := d.Detect(buf, surge, baseline)

	var kinds []models.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	require.Contains(t, kinds, models.EventAggregateVolumeSurge)
	assert.NotContains(t, kinds, models.EventAggregateMove, "0.5%% is below the move threshold")

	for _, ev := range events {
		if ev.Kind == models.EventAggregateVolumeSurge {
			assert.InDelta(t, 3.5, ev.Fields["volume_ratio"].(float64), 1e-9)
		}
	}
}

func TestAggregateSignificantMove(t *testing.T) {
	d := NewAggregateDetector(DefaultAggregateConfig())
	buf := NewSymbolBarBuffer("TSLA")

	move := &models.OHLCVRecord{
		Ticker: "TSLA", Timestamp: 1700000060,
		Open: 200, High: 206, Low: 199, Close: 205, Volume: 1000,
	}
	require.NoError(t, move.Validate())
	require.InDelta(t, 2.5, move.PercentChange, 1e-9)

	buf.Append(move)
	events := d.Detect(buf, move, 0)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAggregateMove, events[0].Kind)
	assert.Equal(t, models.DirectionUp, events[0].Direction)
}

func TestAggregateRollingHighLowClose(t *testing.T) {
	d := NewAggregateDetector(DefaultAggregateConfig())
	buf := NewSymbolBarBuffer("MSFT")
	base := 1700000000.0

	closes := []float64{300, 301, 299, 302, 300.5}
	var last []models.Event
	for i, c := range closes {
		b := bar("MSFT", c, 1000, base+float64(i)*60)
		buf.Append(b)
		last = d.Detect(buf, b, 0)
	}
	assert.Empty(t, last, "300.5 is neither a rolling high nor low")

	high := bar("MSFT", 303, 1000, base+300)
	buf.Append(high)
	events := d.Detect(buf, high, 0)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAggregateHighClose, events[0].Kind)

	low := bar("MSFT", 298, 1000, base+360)
	buf.Append(low)
	events = d.Detect(buf, low, 0)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventAggregateLowClose, events[0].Kind)
}

func TestClassifyPattern(t *testing.T) {
	assert.Equal(t, PatternStrongUptrend, ClassifyPattern([]float64{0.3, 0.4, 0.2, 0.5, 0.3}))
	assert.Equal(t, PatternStrongDowntrend, ClassifyPattern([]float64{-0.3, -0.4, -0.2, -0.5, -0.3}))
	assert.Equal(t, PatternWeakUptrend, ClassifyPattern([]float64{0.2, -0.1, 0.3, 0.1, -0.1}))
	assert.Equal(t, PatternWeakDowntrend, ClassifyPattern([]float64{-0.2, 0.1, -0.3, -0.1, 0.1}))
	assert.Equal(t, PatternSideways, ClassifyPattern([]float64{0.1, -0.1, 0.05, -0.05, 0.02}))
	assert.Equal(t, PatternSideways, ClassifyPattern([]float64{0.5, 0.6}))
}

func TestBarBufferBounded(t *testing.T) {
	buf := NewSymbolBarBuffer("A")
	for i := 0; i < barBufferCap+20; i++ {
		buf.Append(bar("A", 100+float64(i%5), 1000, 1700000000+float64(i)*60))
	}
	assert.Len(t, buf.Bars, barBufferCap)
}
