package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickFromMapCompactShape(t *testing.T) {
	tick, err := TickFromMap(map[string]any{
		"sym": "AAPL",
		"p":   150.25,
		"v":   1200,
		"t":   1700000000123.0, // milliseconds
		"ev":  "T",
		"b":   150.24,
		"a":   150.26,
		"s":   "REGULAR",
	})
	require.NoError(t, err)

	assert.Equal(t, "AAPL", tick.Ticker)
	assert.Equal(t, 150.25, tick.Price)
	assert.Equal(t, int64(1200), tick.Volume)
	assert.InDelta(t, 1700000000.123, tick.Timestamp, 1e-6)
	assert.Equal(t, MarketRegular, tick.MarketStatus)
	assert.Equal(t, 150.25, tick.TickClose, "tick close defaults to price")
}

func TestTickValidateRejectsBadInputs(t *testing.T) {
	cases := []TickRecord{
		{Ticker: "", Price: 10, Volume: 1, Timestamp: 1},
		{Ticker: "AAPL", Price: 0, Volume: 1, Timestamp: 1},
		{Ticker: "AAPL", Price: 10, Volume: -1, Timestamp: 1},
		{Ticker: "AAPL", Price: 10, Volume: 1, Timestamp: 0},
	}
	for _, tc := range cases {
		err := tc.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidData))
	}
}

func TestTickRoundTrip(t *testing.T) {
	in := &TickRecord{Ticker: "TSLA", Price: 240.5, Volume: 500, Timestamp: 1700000100}
	require.NoError(t, in.Validate())

	out, err := TickFromMap(in.ToMap())
	require.NoError(t, err)
	assert.Equal(t, in.Ticker, out.Ticker)
	assert.Equal(t, in.Price, out.Price)
	assert.Equal(t, in.Volume, out.Volume)
	assert.Equal(t, in.Timestamp, out.Timestamp)
}

func TestOHLCVValidatePriceInvariants(t *testing.T) {
	bad := OHLCVRecord{Ticker: "MSFT", Timestamp: 1700000000, Open: 300, High: 299, Low: 298, Close: 300, Volume: 10}
	err := bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidData))

	bad = OHLCVRecord{Ticker: "MSFT", Timestamp: 1700000000, Open: 300, High: 302, Low: 301, Close: 301, Volume: 10}
	err = bad.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidData))
}

func TestOHLCVPercentChangeDerived(t *testing.T) {
	bar := OHLCVRecord{Ticker: "MSFT", Timestamp: 1700000000, Open: 200, High: 210, Low: 199, Close: 204, Volume: 10}
	require.NoError(t, bar.Validate())
	assert.InDelta(t, 2.0, bar.PercentChange, 1e-9)

	// Explicit value wins.
	bar2 := OHLCVRecord{Ticker: "MSFT", Timestamp: 1700000000, Open: 200, High: 210, Low: 199, Close: 204, Volume: 10, PercentChange: 1.5}
	require.NoError(t, bar2.Validate())
	assert.Equal(t, 1.5, bar2.PercentChange)
}

func TestOHLCVFromMapMinuteShape(t *testing.T) {
	bar, err := OHLCVFromMap(map[string]any{
		"ticker":        "NVDA",
		"time":          1700000060.0,
		"minute_open":   500.0,
		"minute_high":   505.0,
		"minute_low":    499.0,
		"minute_close":  503.0,
		"minute_volume": 250000,
		"minute_vwap":   502.1,
	})
	require.NoError(t, err)
	assert.Equal(t, "NVDA", bar.Ticker)
	assert.Equal(t, 505.0, bar.High)
	assert.Equal(t, int64(250000), bar.Volume)
	assert.Equal(t, 502.1, bar.VWAP)
	assert.Equal(t, "1m", bar.Timeframe)
}

func TestOHLCVMinuteStart(t *testing.T) {
	bar := OHLCVRecord{Ticker: "A", Timestamp: 1700000095, Open: 1, High: 1, Low: 1, Close: 1, Volume: 0}
	require.NoError(t, bar.Validate())
	assert.Equal(t, int64(1700000040), bar.MinuteStart().Unix())
}

func TestFMVDeviationDerived(t *testing.T) {
	f := FMVRecord{Ticker: "AMD", Timestamp: 1700000000, FMV: 160, MarketPrice: 150, Confidence: 0.9}
	require.NoError(t, f.Validate())
	assert.InDelta(t, 6.6667, f.DeviationPercent, 1e-3)
	assert.True(t, f.IsUndervalued())
}

func TestFMVValidateConfidenceRange(t *testing.T) {
	f := FMVRecord{Ticker: "AMD", Timestamp: 1700000000, FMV: 160, MarketPrice: 150, Confidence: 1.2}
	err := f.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidData))
}

func TestFMVRoundTrip(t *testing.T) {
	in := &FMVRecord{Ticker: "AMD", Timestamp: 1700000000, FMV: 160, MarketPrice: 150, Confidence: 0.85, ValuationModel: "dcf_v2"}
	require.NoError(t, in.Validate())

	out, err := FMVFromMap(in.ToMap())
	require.NoError(t, err)
	assert.Equal(t, in.Ticker, out.Ticker)
	assert.Equal(t, in.FMV, out.FMV)
	assert.Equal(t, in.Confidence, out.Confidence)
	assert.InDelta(t, in.DeviationPercent, out.DeviationPercent, 1e-9)
}
