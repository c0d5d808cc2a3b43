package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/fabriqa/takt/internal/streaming"
)

// RunNotifier bridges hub run events to MCP notifications: each event is
// pushed to the session that launched the event's goal.
type RunNotifier struct {
	mcpServer *server.MCPServer
	hub       streaming.EventHub
	sessions  *SessionRegistry
	logger    *slog.Logger
}

// NewRunNotifier creates a notifier over the given hub and session registry.
func NewRunNotifier(mcpServer *server.MCPServer, hub streaming.EventHub, sessions *SessionRegistry, logger *slog.Logger) *RunNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunNotifier{mcpServer: mcpServer, hub: hub, sessions: sessions, logger: logger}
}

// Start subscribes to the hub and forwards events until ctx is cancelled.
func (n *RunNotifier) Start(ctx context.Context) error {
	events, cancel, err := n.hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}

	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				n.forward(ev)
			}
		}
	}()
	return nil
}

// forward pushes one event to its goal's watching session. Best-effort: no
// watcher, no delivery.
func (n *RunNotifier) forward(ev streaming.RunEvent) {
	sessionID, ok := n.sessions.SessionFor(ev.Goal)
	if !ok {
		return
	}
	payload := map[string]any{
		"run_id":     ev.RunID,
		"goal":       ev.Goal,
		"event_type": ev.EventType,
	}
	if ev.ActionID != "" {
		payload["action_id"] = ev.ActionID
	}
	if ev.Payload != nil {
		payload["payload"] = ev.Payload
	}

	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", payload)
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send — not an error.
		n.sessions.Remove(sessionID)
		return
	}
	if err != nil {
		n.logger.Debug("run event push failed",
			slog.String("goal", ev.Goal), slog.String("error", err.Error()))
	}
}
