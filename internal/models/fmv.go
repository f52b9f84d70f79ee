package models

import "fmt"

// FMVRecord carries a fair-market-value estimate for one symbol, with the
// model's confidence and its deviation from the observed market price.
type FMVRecord struct {
	Ticker           string  `json:"ticker"`
	Timestamp        float64 `json:"timestamp"`
	FMV              float64 `json:"fmv"`
	MarketPrice      float64 `json:"market_price"`
	Confidence       float64 `json:"confidence"`
	DeviationPercent float64 `json:"deviation_percent,omitempty"`
	ValuationModel   string  `json:"valuation_model,omitempty"`

	ModelInputs     map[string]float64 `json:"model_inputs,omitempty"`
	RiskAdjustments map[string]float64 `json:"risk_adjustments,omitempty"`
	Source          string             `json:"source,omitempty"`
}

// Validate checks valuation invariants and derives DeviationPercent when absent.
func (f *FMVRecord) Validate() error {
	if f.Ticker == "" {
		return fmt.Errorf("%w: fmv requires ticker", ErrInvalidData)
	}
	if f.Timestamp <= 0 {
		return fmt.Errorf("%w: fmv timestamp must be positive", ErrInvalidData)
	}
	if f.FMV <= 0 {
		return fmt.Errorf("%w: fmv estimate must be positive, got %v", ErrInvalidData, f.FMV)
	}
	if f.MarketPrice <= 0 {
		return fmt.Errorf("%w: fmv market price must be positive, got %v", ErrInvalidData, f.MarketPrice)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("%w: fmv confidence must be in [0,1], got %v", ErrInvalidData, f.Confidence)
	}
	if f.DeviationPercent == 0 {
		f.DeviationPercent = (f.FMV - f.MarketPrice) / f.MarketPrice * 100
	}
	return nil
}

// IsUndervalued reports whether the model values the symbol above market.
func (f *FMVRecord) IsUndervalued() bool {
	return f.DeviationPercent > 0
}

// FMVFromMap coerces a wire payload into an FMVRecord.
func FMVFromMap(m map[string]any) (*FMVRecord, error) {
	f := &FMVRecord{}
	f.Ticker, _ = mapString(m, "ticker", "sym", "symbol")
	f.Timestamp, _ = mapFloat(m, "timestamp", "time", "t")
	f.FMV, _ = mapFloat(m, "fmv", "fmv_price", "fair_market_value")
	f.MarketPrice, _ = mapFloat(m, "market_price", "price")
	f.Confidence, _ = mapFloat(m, "confidence")
	f.DeviationPercent, _ = mapFloat(m, "fmv_vs_market_pct", "deviation_percent")
	f.ValuationModel, _ = mapString(m, "valuation_model")
	f.Source, _ = mapString(m, "source")

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// ToMap renders the record in long-form wire keys.
func (f *FMVRecord) ToMap() map[string]any {
	m := map[string]any{
		"ticker":       f.Ticker,
		"timestamp":    f.Timestamp,
		"fmv":          f.FMV,
		"market_price": f.MarketPrice,
		"confidence":   f.Confidence,
	}
	if f.DeviationPercent != 0 {
		m["deviation_percent"] = f.DeviationPercent
	}
	if f.ValuationModel != "" {
		m["valuation_model"] = f.ValuationModel
	}
	if f.Source != "" {
		m["source"] = f.Source
	}
	return m
}
