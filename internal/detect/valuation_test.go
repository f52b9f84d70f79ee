package detect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/models"
)

func fmv(ticker string, est, market, confidence, ts float64) *models.FMVRecord {
	f := &models.FMVRecord{
		Ticker:      ticker,
		Timestamp:   ts,
		FMV:         est,
		MarketPrice: market,
		Confidence:  confidence,
	}
	if err := f.Validate(); err != nil {
		panic(err)
	}
	return f
}

func TestValuationDeviationEvent(t *testing.T) {
	d := NewValuationDetector(DefaultValuationConfig())
	hist := NewValuationHistory("AMD")

	rec := fmv("AMD", 160.0, 150.0, 0.9, 1700000000)
	hist.Append(rec)
	events := d.Detect(hist, rec)

	require.Len(t, events, 1, "deviation only: strength 0.9*0.667=0.60 is under 0.7")
	ev := events[0]
	assert.Equal(t, models.EventFMVDeviation, ev.Kind)
	assert.InDelta(t, 6.667, ev.Fields["deviation_percent"].(float64), 1e-3)
	assert.Equal(t, true, ev.Fields["is_undervalued"])
}

func TestValuationHighConfidenceSignal(t *testing.T) {
	d := NewValuationDetector(DefaultValuationConfig())
	hist := NewValuationHistory("AMD")

	// 12% deviation caps the scale factor at 1.0; strength = confidence.
	rec := fmv("AMD", 168.0, 150.0, 0.95, 1700000000)
	hist.Append(rec)
	events := d.Detect(hist, rec)

	var kinds []models.EventKind
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, models.EventFMVDeviation)
	assert.Contains(t, kinds, models.EventFMVHighConfidence)
}

func TestValuationTrendConsistency(t *testing.T) {
	d := NewValuationDetector(DefaultValuationConfig())
	hist := NewValuationHistory("AMD")
	base := 1700000000.0

	var last []models.Event
	for i := 0; i < 5; i++ {
		rec := fmv("AMD", 153.0, 150.0, 0.9, base+float64(i))
		hist.Append(rec)
		last = d.Detect(hist, rec)
	}

	var trend *models.Event
	for i := range last {
		if last[i].Kind == models.EventFMVTrend {
			trend = &last[i]
		}
	}
	require.NotNil(t, trend, "five same-sign deviations should form a trend")
	assert.Equal(t, models.DirectionUp, trend.Direction)
	assert.Equal(t, "undervalued", trend.Fields["bias"])
}

func TestValuationTrendNeedsFullWindow(t *testing.T) {
	d := NewValuationDetector(DefaultValuationConfig())
	hist := NewValuationHistory("AMD")

	rec := fmv("AMD", 153.0, 150.0, 0.9, 1700000000)
	hist.Append(rec)
	events := d.Detect(hist, rec)
	for _, ev := range events {
		assert.NotEqual(t, models.EventFMVTrend, ev.Kind)
	}
}

func TestValuationHistoryBounded(t *testing.T) {
	hist := NewValuationHistory("AMD")
	for i := 0; i < valuationHistoryCap+25; i++ {
		hist.Append(fmv("AMD", 151, 150, 0.9, 1700000000+float64(i)))
	}
	assert.Len(t, hist.Values, valuationHistoryCap)
	assert.Len(t, hist.Deviations, valuationHistoryCap)
	assert.Len(t, hist.Confidences, valuationHistoryCap)
}
