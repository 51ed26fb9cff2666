// Package wsrelay implements the relay core: the agent registry, stream
// table, connection-open coordinator, and the two peer session state
// machines.
package wsrelay

import "sync"

// RegisterResult reports the outcome of AgentRegistry.Register.
type RegisterResult int

const (
	// Accepted means the new session now occupies the name's slot.
	Accepted RegisterResult = iota
	// Duplicate means another live session already holds the name.
	Duplicate
)

// AgentRegistry is the process-wide mapping from agent name to its live
// session, grounded on internal/websocket/agent_hub.go's connections map
// but stripped of any database persistence — the relay keeps no state
// beyond the lifetime of the process.
type AgentRegistry struct {
	mu       sync.Mutex
	sessions map[string]*AgentSession
}

// NewAgentRegistry creates an empty registry.
func NewAgentRegistry() *AgentRegistry {
	return &AgentRegistry{sessions: make(map[string]*AgentSession)}
}

// Register installs session under name. If the slot is empty, or the
// previously stored session has already terminated (its done channel is
// closed), the new session is installed and Accepted is returned.
// Otherwise the slot is held by a live session and Duplicate is returned.
func (r *AgentRegistry) Register(name string, session *AgentSession) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[name]; ok {
		if !existing.isDone() {
			return Duplicate
		}
	}
	r.sessions[name] = session
	return Accepted
}

// Unregister removes name's slot, but only if it still holds session —
// this keeps the operation idempotent and safe against a stale session
// racing a newer registration for the same name.
func (r *AgentRegistry) Unregister(name string, session *AgentSession) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sessions[name]; ok && existing == session {
		delete(r.sessions, name)
	}
}

// Lookup returns the live session registered under name, or nil.
func (r *AgentRegistry) Lookup(name string) *AgentSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[name]
}
