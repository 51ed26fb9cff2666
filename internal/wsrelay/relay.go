package wsrelay

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adrblo/http-network-relay/internal/credentials"
	"github.com/adrblo/http-network-relay/internal/sanitize"
)

// EventSink receives relay lifecycle events for optional ambient
// telemetry publishing. A nil sink is valid and simply drops events.
type EventSink interface {
	AgentRegistered(name string)
	AgentDisconnected(name string)
	StreamOpened(id, agentName string)
	StreamClosed(id, reason string)
	AuthFailure(role, detail string)
}

// Relay owns the shared state every session needs: the agent registry,
// stream table, open-connection coordinator, credential store, and the
// ambient sanitizer/telemetry collaborators. One Relay serves both
// WebSocket endpoints.
type Relay struct {
	Credentials *credentials.Store
	Registry    *AgentRegistry
	Streams     *StreamTable
	Coordinator *Coordinator
	Sanitizer   *sanitize.Policy
	Events      EventSink
	Logger      zerolog.Logger
}

// New constructs a Relay ready to serve sessions.
func New(creds *credentials.Store, sanitizer *sanitize.Policy, events EventSink, logger zerolog.Logger) *Relay {
	if events == nil {
		events = NoopEvents
	}
	return &Relay{
		Credentials: creds,
		Registry:    NewAgentRegistry(),
		Streams:     NewStreamTable(),
		Coordinator: NewCoordinator(),
		Sanitizer:   sanitizer,
		Events:      events,
		Logger:      logger,
	}
}

// noopEvents is used when telemetry is disabled.
type noopEvents struct{}

func (noopEvents) AgentRegistered(string)      {}
func (noopEvents) AgentDisconnected(string)    {}
func (noopEvents) StreamOpened(string, string) {}
func (noopEvents) StreamClosed(string, string) {}
func (noopEvents) AuthFailure(string, string)  {}

// NoopEvents is the default EventSink when telemetry is disabled.
var NoopEvents EventSink = noopEvents{}

// Upgrader is shared by both WebSocket endpoints; CheckOrigin is
// permissive because authentication happens entirely in-band via the
// START frame.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
