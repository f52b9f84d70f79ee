package models

import (
	"fmt"
)

// TickRecord is a single per-trade (or per-quote) datum for one symbol.
// Timestamps are epoch seconds; wire payloads carrying milliseconds are
// converted during coercion.
type TickRecord struct {
	Ticker       string       `json:"ticker"`
	Price        float64      `json:"price"`
	Volume       int64        `json:"volume"`
	Timestamp    float64      `json:"timestamp"`
	Source       string       `json:"source,omitempty"`
	EventType    string       `json:"event_type,omitempty"` // A, T, or Q
	MarketStatus MarketStatus `json:"market_status,omitempty"`

	Bid float64 `json:"bid,omitempty"`
	Ask float64 `json:"ask,omitempty"`

	TickOpen  float64 `json:"tick_open,omitempty"`
	TickHigh  float64 `json:"tick_high,omitempty"`
	TickLow   float64 `json:"tick_low,omitempty"`
	TickClose float64 `json:"tick_close,omitempty"`

	DayOpen float64 `json:"day_open,omitempty"`
	DayHigh float64 `json:"day_high,omitempty"`
	DayLow  float64 `json:"day_low,omitempty"`

	TickVWAP          float64 `json:"tick_vwap,omitempty"`
	DayVWAP           float64 `json:"day_vwap,omitempty"`
	AccumulatedVolume int64   `json:"accumulated_volume,omitempty"`
}

// Validate checks construction invariants and backfills derived fields.
// TickClose defaults to Price when unset.
func (t *TickRecord) Validate() error {
	if t.Ticker == "" {
		return fmt.Errorf("%w: tick requires ticker", ErrInvalidData)
	}
	if t.Price <= 0 {
		return fmt.Errorf("%w: tick price must be positive, got %v", ErrInvalidData, t.Price)
	}
	if t.Volume < 0 {
		return fmt.Errorf("%w: tick volume must be non-negative, got %d", ErrInvalidData, t.Volume)
	}
	if t.Timestamp <= 0 {
		return fmt.Errorf("%w: tick timestamp must be positive", ErrInvalidData)
	}
	if t.MarketStatus == "" {
		t.MarketStatus = MarketRegular
	}
	if t.TickClose == 0 {
		t.TickClose = t.Price
	}
	return nil
}

// TickFromMap coerces a wire payload into a TickRecord. Both the long-form
// keys and the compact feed shape {sym,p,v,t,ev,b,a,vw,s} are accepted;
// compact timestamps are milliseconds.
func TickFromMap(m map[string]any) (*TickRecord, error) {
	t := &TickRecord{}

	if sym, ok := mapString(m, "sym"); ok {
		// Compact feed shape.
		t.Ticker = sym
		t.Price, _ = mapFloat(m, "p")
		t.Volume, _ = mapInt(m, "v")
		if ms, ok := mapFloat(m, "t"); ok {
			t.Timestamp = ms / 1000.0
		}
		t.EventType, _ = mapString(m, "ev")
		t.Bid, _ = mapFloat(m, "b")
		t.Ask, _ = mapFloat(m, "a")
		t.TickVWAP, _ = mapFloat(m, "vw")
		if s, ok := mapString(m, "s"); ok {
			t.MarketStatus = MarketStatus(s)
		}
	} else {
		t.Ticker, _ = mapString(m, "ticker", "symbol")
		t.Price, _ = mapFloat(m, "price")
		t.Volume, _ = mapInt(m, "volume")
		t.Timestamp, _ = mapFloat(m, "timestamp", "time")
		t.Source, _ = mapString(m, "source")
		t.EventType, _ = mapString(m, "event_type")
		t.Bid, _ = mapFloat(m, "bid")
		t.Ask, _ = mapFloat(m, "ask")
		t.TickOpen, _ = mapFloat(m, "tick_open")
		t.TickHigh, _ = mapFloat(m, "tick_high")
		t.TickLow, _ = mapFloat(m, "tick_low")
		t.TickClose, _ = mapFloat(m, "tick_close")
		t.DayOpen, _ = mapFloat(m, "day_open")
		t.DayHigh, _ = mapFloat(m, "day_high")
		t.DayLow, _ = mapFloat(m, "day_low")
		t.TickVWAP, _ = mapFloat(m, "tick_vwap", "vwap")
		t.DayVWAP, _ = mapFloat(m, "day_vwap")
		t.AccumulatedVolume, _ = mapInt(m, "accumulated_volume")
		if s, ok := mapString(m, "market_status"); ok {
			t.MarketStatus = MarketStatus(s)
		}
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// ToMap renders the record in long-form wire keys.
func (t *TickRecord) ToMap() map[string]any {
	m := map[string]any{
		"ticker":    t.Ticker,
		"price":     t.Price,
		"volume":    t.Volume,
		"timestamp": t.Timestamp,
	}
	if t.Source != "" {
		m["source"] = t.Source
	}
	if t.EventType != "" {
		m["event_type"] = t.EventType
	}
	if t.MarketStatus != "" {
		m["market_status"] = string(t.MarketStatus)
	}
	if t.Bid != 0 {
		m["bid"] = t.Bid
	}
	if t.Ask != 0 {
		m["ask"] = t.Ask
	}
	if t.TickClose != 0 {
		m["tick_close"] = t.TickClose
	}
	if t.TickVWAP != 0 {
		m["tick_vwap"] = t.TickVWAP
	}
	if t.DayVWAP != 0 {
		m["day_vwap"] = t.DayVWAP
	}
	if t.AccumulatedVolume != 0 {
		m["accumulated_volume"] = t.AccumulatedVolume
	}
	return m
}
