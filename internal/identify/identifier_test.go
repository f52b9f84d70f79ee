package identify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketflow/internal/models"
)

func TestIdentifyTypedRecords(t *testing.T) {
	id := New(0)

	assert.Equal(t, models.DataTypeTick, id.Identify(&models.TickRecord{}))
	assert.Equal(t, models.DataTypeTick, id.Identify(models.TickRecord{}))
	assert.Equal(t, models.DataTypeOHLCV, id.Identify(&models.OHLCVRecord{}))
	assert.Equal(t, models.DataTypeFMV, id.Identify(&models.FMVRecord{}))
}

func TestIdentifyMapShapes(t *testing.T) {
	id := New(0)

	cases := []struct {
		name string
		in   map[string]any
		want models.DataType
	}{
		{"fmv wins over price keys", map[string]any{"ticker": "A", "price": 1.0, "timestamp": 1.0, "fmv": 1.1}, models.DataTypeFMV},
		{"fmv_price key", map[string]any{"ticker": "A", "fmv_price": 1.1, "market_price": 1.0}, models.DataTypeFMV},
		{"long ohlcv", map[string]any{"ticker": "A", "open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5}, models.DataTypeOHLCV},
		{"short ohlcv", map[string]any{"sym": "A", "o": 1.0, "h": 2.0, "l": 0.5, "c": 1.5, "v": 10}, models.DataTypeOHLCV},
		{"minute aggregate", map[string]any{"ticker": "A", "time": 1.0, "minute_open": 1.0, "minute_high": 2.0, "minute_low": 0.5, "minute_close": 1.5}, models.DataTypeOHLCV},
		{"tick", map[string]any{"ticker": "A", "price": 1.0, "timestamp": 1.0}, models.DataTypeTick},
		{"compact tick", map[string]any{"sym": "A", "p": 1.0, "t": 1000.0, "v": 5}, models.DataTypeTick},
		{"unknown", map[string]any{"foo": 1, "bar": 2}, models.DataTypeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, id.Identify(tc.in))
		})
	}
}

func TestIdentifyDeterministicAndCached(t *testing.T) {
	id := New(8)
	payload := map[string]any{"ticker": "A", "price": 1.0, "timestamp": 1.0}

	first := id.Identify(payload)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, id.Identify(payload))
	}

	stats := id.Stats()
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(5), stats.Hits)
}

func TestIdentifyNonMapPayload(t *testing.T) {
	id := New(0)
	assert.Equal(t, models.DataTypeUnknown, id.Identify("not a record"))
	assert.Equal(t, models.DataTypeUnknown, id.Identify(nil))
}

func TestIdentifyStrict(t *testing.T) {
	id := New(0)

	_, err := id.IdentifyStrict(map[string]any{"foo": 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrInvalidData))

	dt, err := id.IdentifyStrict(&models.FMVRecord{})
	require.NoError(t, err)
	assert.Equal(t, models.DataTypeFMV, dt)
}
