package wsrelay

import (
	"fmt"
	"sync"
)

// StreamState is a stream's position in its lifecycle.
type StreamState int

const (
	StateOpening StreamState = iota
	StateOpen
)

// Stream is one logical TCP byte stream brokered between an agent
// session and an access-client session.
type Stream struct {
	ID      string
	Agent   *AgentSession
	Client  *AccessSession
	mu      sync.Mutex
	state   StreamState
}

func (s *Stream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stream) setState(state StreamState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// StreamTable is the process-wide mapping from stream id to the pair of
// sessions participating in it, grounded on the same map-of-structs
// pattern as AgentRegistry but holding lookup-only references: table
// membership never extends a session's lifetime.
type StreamTable struct {
	mu      sync.Mutex
	streams map[string]*Stream
}

// NewStreamTable creates an empty stream table.
func NewStreamTable() *StreamTable {
	return &StreamTable{streams: make(map[string]*Stream)}
}

// Create inserts a new OPENING stream under id. Returns an error if id is
// already present — a defensive check, since minted identifiers are
// unique in practice.
func (t *StreamTable) Create(id string, agent *AgentSession, client *AccessSession) (*Stream, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.streams[id]; exists {
		return nil, fmt.Errorf("duplicate stream id %q", id)
	}
	stream := &Stream{ID: id, Agent: agent, Client: client, state: StateOpening}
	t.streams[id] = stream
	return stream, nil
}

// Get returns the stream registered under id, or nil.
func (t *StreamTable) Get(id string) *Stream {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streams[id]
}

// Remove deletes id's entry, if present.
func (t *StreamTable) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.streams, id)
}

// RemoveAllFor removes every stream whose agent or client session is the
// given session, returning the removed streams so the caller can tear
// down the other side of each one.
func (t *StreamTable) RemoveAllFor(session interface{}) []*Stream {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []*Stream
	for id, stream := range t.streams {
		switch s := session.(type) {
		case *AgentSession:
			if stream.Agent == s {
				removed = append(removed, stream)
				delete(t.streams, id)
			}
		case *AccessSession:
			if stream.Client == s {
				removed = append(removed, stream)
				delete(t.streams, id)
			}
		}
	}
	return removed
}
