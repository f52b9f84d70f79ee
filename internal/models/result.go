package models

// ProcessingResult is the outcome of handing one data item to a channel.
// Success is false exactly when Errors is non-empty.
type ProcessingResult struct {
	Success          bool           `json:"success"`
	Events           []Event        `json:"events,omitempty"`
	Errors           []string       `json:"errors,omitempty"`
	ProcessingTimeMs float64        `json:"processing_time_ms"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// OKResult builds a successful result carrying the given events.
func OKResult(events []Event) *ProcessingResult {
	return &ProcessingResult{Success: true, Events: events, Metadata: map[string]any{}}
}

// FailResult builds a failed result from an error.
func FailResult(err error) *ProcessingResult {
	return &ProcessingResult{
		Success:  false,
		Errors:   []string{err.Error()},
		Metadata: map[string]any{},
	}
}

// Failed reports whether the result carries errors.
func (r *ProcessingResult) Failed() bool { return !r.Success }

// WithMeta sets a metadata key and returns the result for chaining.
func (r *ProcessingResult) WithMeta(key string, value any) *ProcessingResult {
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	r.Metadata[key] = value
	return r
}
