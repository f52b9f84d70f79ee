package models

import "errors"

// Error kinds surfaced by the processing core. Components wrap these with
// fmt.Errorf("...: %w", Err...) so callers can match with errors.Is.
var (
	ErrInvalidData        = errors.New("invalid data")
	ErrUnknownDataType    = errors.New("unknown data type")
	ErrNoAvailableChannel = errors.New("no available channel")
	ErrChannelUnhealthy   = errors.New("channel unhealthy")
	ErrCircuitOpen        = errors.New("circuit breaker open")
	ErrRoutingTimeout     = errors.New("routing timeout")
	ErrRouterUnavailable  = errors.New("router unavailable")
	ErrQueueFull          = errors.New("queue full")
	ErrNotRunning         = errors.New("component not running")
)
