// Package streaming provides the in-process pub/sub channel run events
// travel on: the agent publishes lifecycle and action events, and the MCP
// notifier, metrics bridge, and tests subscribe.
package streaming

import "context"

// RunEvent is a real-time event emitted during a goal run.
type RunEvent struct {
	RunID     string `json:"run_id"`
	Goal      string `json:"goal,omitempty"`
	ActionID  string `json:"action_id,omitempty"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	RunID      string   `json:"run_id,omitempty"`
	Goal       string   `json:"goal,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time run events.
type EventHub interface {
	Publish(ctx context.Context, event RunEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan RunEvent, func(), error)
}
