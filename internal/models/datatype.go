package models

// DataType classifies an inbound data item.
type DataType string

const (
	DataTypeTick    DataType = "tick"
	DataTypeOHLCV   DataType = "ohlcv"
	DataTypeFMV     DataType = "fmv"
	DataTypeUnknown DataType = "unknown"
)

func (d DataType) String() string {
	return string(d)
}

// MarketStatus identifies the trading session a datum was observed in.
type MarketStatus string

const (
	MarketPremarket  MarketStatus = "PREMARKET"
	MarketRegular    MarketStatus = "REGULAR"
	MarketAfterhours MarketStatus = "AFTERHOURS"
)

// IsExtendedHours reports whether the status is outside the regular session.
func (s MarketStatus) IsExtendedHours() bool {
	return s == MarketPremarket || s == MarketAfterhours
}

// ValidTimeframes enumerates the OHLCV aggregation windows accepted on the wire.
var ValidTimeframes = map[string]bool{
	"1s": true, "5s": true, "15s": true, "30s": true,
	"1m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "4h": true, "1d": true,
}
