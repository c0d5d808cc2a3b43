// Package metrics defines the instrumentation sink for goal runs, action
// dispatch, backend health and schedule ticks. All implementations are
// fire-and-forget: methods never block and never return errors, so callers can
// instrument hot paths without guarding against a misbehaving backend.
package metrics

import (
	"strings"
	"time"
)

// Sink records operational metrics. Implementations MUST NOT block or
// propagate errors; if the metrics backend is unavailable they log and
// continue.
type Sink interface {
	// Run lifecycle
	RunStarted(goal string)
	RunCompleted(goal, status string, duration time.Duration)

	// Action dispatch
	ActionCompleted(actionType, status string, duration time.Duration)
	FallbackUsed(backend string)

	// Backend health
	BackendFailure(backend, statusClass string)
	BreakerStateUpdate(backend string, open bool)

	// Simulation
	JobsSimulated(count int)

	// Scheduler
	ScheduleTick(goal string, err error)
}

// StatusClass constants for BackendFailure.
const (
	StatusClass2xx             = "2xx"
	StatusClass4xx             = "4xx"
	StatusClass5xx             = "5xx"
	StatusClassTimeout         = "timeout"
	StatusClassConnectionError = "connection_error"
	StatusClassOtherError      = "other_error"
)

// ClassifyStatus maps an HTTP status code and error to a status class label.
// The error takes precedence over the status code when both are present.
func ClassifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return StatusClassTimeout
		}
		if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") || strings.Contains(msg, "dial") {
			return StatusClassConnectionError
		}
		return StatusClassOtherError
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusClass2xx
	case statusCode >= 400 && statusCode < 500:
		return StatusClass4xx
	case statusCode >= 500:
		return StatusClass5xx
	default:
		return StatusClassOtherError
	}
}
