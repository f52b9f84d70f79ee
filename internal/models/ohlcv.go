package models

import (
	"fmt"
	"math"
	"time"
)

// OHLCVRecord is an open/high/low/close/volume aggregate for one symbol over
// one timeframe window. Timestamp marks the end of the period, epoch seconds.
type OHLCVRecord struct {
	Ticker    string  `json:"ticker"`
	Timestamp float64 `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`

	AvgVolume     float64 `json:"avg_volume,omitempty"`
	PercentChange float64 `json:"percent_change,omitempty"`
	VWAP          float64 `json:"vwap,omitempty"`
	DailyOpen     float64 `json:"daily_open,omitempty"`

	AccumulatedVolume int64  `json:"accumulated_volume,omitempty"`
	TradeCount        int64  `json:"trade_count,omitempty"`
	Timeframe         string `json:"timeframe,omitempty"`
	MarketSession     string `json:"market_session,omitempty"`
	Source            string `json:"source,omitempty"`
}

// Validate checks bar invariants and derives PercentChange when absent.
func (o *OHLCVRecord) Validate() error {
	if o.Ticker == "" {
		return fmt.Errorf("%w: ohlcv requires ticker", ErrInvalidData)
	}
	if o.Timestamp <= 0 {
		return fmt.Errorf("%w: ohlcv timestamp must be positive", ErrInvalidData)
	}
	if o.Open <= 0 || o.High <= 0 || o.Low <= 0 || o.Close <= 0 {
		return fmt.Errorf("%w: ohlcv prices must be positive", ErrInvalidData)
	}
	if o.Volume < 0 {
		return fmt.Errorf("%w: ohlcv volume must be non-negative", ErrInvalidData)
	}
	if o.High < math.Max(o.Open, o.Close) {
		return fmt.Errorf("%w: ohlcv high %v below max(open, close)", ErrInvalidData, o.High)
	}
	if o.Low > math.Min(o.Open, o.Close) {
		return fmt.Errorf("%w: ohlcv low %v above min(open, close)", ErrInvalidData, o.Low)
	}
	if o.Timeframe == "" {
		o.Timeframe = "1m"
	} else if !ValidTimeframes[o.Timeframe] {
		return fmt.Errorf("%w: unsupported timeframe %q", ErrInvalidData, o.Timeframe)
	}
	if o.PercentChange == 0 && o.Open > 0 {
		o.PercentChange = (o.Close - o.Open) / o.Open * 100
	}
	return nil
}

// Time returns the period-end timestamp as UTC time.
func (o *OHLCVRecord) Time() time.Time {
	sec := int64(o.Timestamp)
	nsec := int64((o.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// MinuteStart returns the UTC minute boundary the bar belongs to.
func (o *OHLCVRecord) MinuteStart() time.Time {
	return o.Time().Truncate(time.Minute)
}

// OHLCVFromMap coerces a wire payload into an OHLCVRecord. Both the
// minute_* aggregate shape and short o/h/l/c/v keys are accepted.
func OHLCVFromMap(m map[string]any) (*OHLCVRecord, error) {
	o := &OHLCVRecord{}
	o.Ticker, _ = mapString(m, "ticker", "sym", "symbol")
	o.Timestamp, _ = mapFloat(m, "timestamp", "time", "t")
	o.Open, _ = mapFloat(m, "open", "minute_open", "o")
	o.High, _ = mapFloat(m, "high", "minute_high", "h")
	o.Low, _ = mapFloat(m, "low", "minute_low", "l")
	o.Close, _ = mapFloat(m, "close", "minute_close", "c")
	o.Volume, _ = mapInt(m, "volume", "minute_volume", "v")
	o.AvgVolume, _ = mapFloat(m, "avg_volume")
	o.PercentChange, _ = mapFloat(m, "percent_change")
	o.VWAP, _ = mapFloat(m, "vwap", "minute_vwap")
	o.DailyOpen, _ = mapFloat(m, "daily_open")
	o.AccumulatedVolume, _ = mapInt(m, "accumulated_volume")
	o.TradeCount, _ = mapInt(m, "trade_count")
	o.Timeframe, _ = mapString(m, "timeframe")
	o.MarketSession, _ = mapString(m, "market_session")
	o.Source, _ = mapString(m, "source")

	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// ToMap renders the record in long-form wire keys.
func (o *OHLCVRecord) ToMap() map[string]any {
	m := map[string]any{
		"ticker":    o.Ticker,
		"timestamp": o.Timestamp,
		"open":      o.Open,
		"high":      o.High,
		"low":       o.Low,
		"close":     o.Close,
		"volume":    o.Volume,
		"timeframe": o.Timeframe,
	}
	if o.AvgVolume != 0 {
		m["avg_volume"] = o.AvgVolume
	}
	if o.PercentChange != 0 {
		m["percent_change"] = o.PercentChange
	}
	if o.VWAP != 0 {
		m["vwap"] = o.VWAP
	}
	if o.AccumulatedVolume != 0 {
		m["accumulated_volume"] = o.AccumulatedVolume
	}
	if o.Source != "" {
		m["source"] = o.Source
	}
	return m
}
