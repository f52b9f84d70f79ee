// Package identify classifies inbound feed payloads into the typed record
// kinds the router understands.
package identify

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sawpanic/marketflow/internal/models"
)

const defaultCacheSize = 1000

// Identifier classifies arbitrary data items into {tick, ohlcv, fmv, unknown}.
// Structural scans over map payloads are memoized by shape signature so a
// steady feed of identically shaped messages costs one scan.
type Identifier struct {
	cache *lru.Cache[string, models.DataType]

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports cache effectiveness.
type Stats struct {
	CacheSize int   `json:"cache_size"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
}

// New creates an Identifier with the given shape-cache capacity.
// Sizes <= 0 fall back to the default of 1000.
func New(cacheSize int) *Identifier {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, _ := lru.New[string, models.DataType](cacheSize)
	return &Identifier{cache: cache}
}

// Identify returns the data type of the item. Typed records classify by
// their Go type; map payloads classify by key shape. Never errors.
func (id *Identifier) Identify(data any) models.DataType {
	switch data.(type) {
	case *models.TickRecord, models.TickRecord:
		return models.DataTypeTick
	case *models.OHLCVRecord, models.OHLCVRecord:
		return models.DataTypeOHLCV
	case *models.FMVRecord, models.FMVRecord:
		return models.DataTypeFMV
	}

	m, ok := data.(map[string]any)
	if !ok {
		return models.DataTypeUnknown
	}

	sig := shapeSignature(m)
	if cached, ok := id.cache.Get(sig); ok {
		id.hits.Add(1)
		return cached
	}
	id.misses.Add(1)

	dt := classifyShape(m)
	id.cache.Add(sig, dt)
	return dt
}

// IdentifyStrict behaves like Identify but fails on unclassifiable input.
func (id *Identifier) IdentifyStrict(data any) (models.DataType, error) {
	dt := id.Identify(data)
	if dt == models.DataTypeUnknown {
		return dt, fmt.Errorf("%w: unclassifiable payload shape", models.ErrInvalidData)
	}
	return dt, nil
}

// Stats returns a point-in-time snapshot of cache counters.
func (id *Identifier) Stats() Stats {
	return Stats{
		CacheSize: id.cache.Len(),
		Hits:      id.hits.Load(),
		Misses:    id.misses.Load(),
	}
}

// classifyShape applies the structural rules in priority order. FMV keys are
// checked first because valuation payloads also carry price/ticker keys.
func classifyShape(m map[string]any) models.DataType {
	if hasAny(m, "fmv", "fmv_price", "fair_market_value") {
		return models.DataTypeFMV
	}
	if hasAll(m, "open", "high", "low", "close") ||
		hasAll(m, "o", "h", "l", "c", "v") ||
		hasAll(m, "minute_open", "minute_high", "minute_low", "minute_close") {
		return models.DataTypeOHLCV
	}
	if (hasAll(m, "ticker", "price", "timestamp") || hasAll(m, "sym", "p", "t")) &&
		!hasAny(m, "open", "high", "low", "close") {
		return models.DataTypeTick
	}
	return models.DataTypeUnknown
}

// shapeSignature builds a stable cache key from the sorted key set.
func shapeSignature(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}

func hasAny(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func hasAll(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}
