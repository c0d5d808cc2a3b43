package mcp

import "sync"

// SessionRegistry maps goal names to the MCP session that most recently
// launched them. Populated automatically when a client calls takt.run, so
// run events can be pushed back to the interested session.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]string // goal → sessionID
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[string]string)}
}

// Register associates a goal with a session ID. A later run of the same
// goal from another session overwrites the mapping.
func (r *SessionRegistry) Register(goal, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[goal] = sessionID
}

// SessionFor returns the session ID watching the given goal, if any.
func (r *SessionRegistry) SessionFor(goal string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sid, ok := r.sessions[goal]
	return sid, ok
}

// Remove deletes all goal mappings for the given session ID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for goal, sid := range r.sessions {
		if sid == sessionID {
			delete(r.sessions, goal)
		}
	}
}
