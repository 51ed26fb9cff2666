package wsrelay

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adrblo/http-network-relay/internal/apperrors"
	"github.com/adrblo/http-network-relay/internal/protocol"
)

// AgentSession is one connected edge agent. It authenticates, registers
// under its claimed name, then demultiplexes inbound frames to the
// correct stream, forwarding TCP_DATA to the access-client side and
// resolving the coordinator for INITIATE_OK/INITIATE_ERROR replies.
type AgentSession struct {
	relay      *Relay
	sock       *socket
	name       string
	registered bool
	logger     zerolog.Logger
	closeOne   sync.Once
}

// ServeAgent runs a freshly upgraded agent WebSocket connection to
// completion: authenticate, register, demultiplex, and finalize on any
// exit path.
func ServeAgent(relay *Relay, conn *websocket.Conn) {
	sock := newSocket(conn)
	logger := relay.Logger.With().Str("component", "agent_session").Logger()
	session := &AgentSession{relay: relay, sock: sock, logger: logger}

	go sock.writePump()
	session.serve()
}

func (a *AgentSession) isDone() bool { return a.sock.isDone() }

func (a *AgentSession) serve() {
	defer a.finalize()

	conn := a.sock.conn
	conn.SetReadDeadline(time.Now().Add(startTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		a.logger.Warn().Err(err).Msg("agent disconnected before sending start")
		return
	}

	msg, err := protocol.DecodeAgentMessage(data)
	if err != nil {
		a.fail(apperrors.Wrap(apperrors.CodeProtocolViolation, "malformed start frame from agent", err))
		return
	}
	start, ok := msg.(*protocol.AgentStart)
	if !ok {
		a.fail(apperrors.ProtocolViolation("first frame from agent was not start"))
		return
	}

	if !a.relay.Credentials.VerifyAgent(start.Name, start.Secret) {
		a.relay.Events.AuthFailure("agent", start.Name)
		a.fail(apperrors.AuthFailure("invalid agent credentials"))
		return
	}
	a.name = start.Name

	if a.relay.Registry.Register(a.name, a) == Duplicate {
		a.fail(apperrors.DuplicateAgent(a.name))
		return
	}
	a.registered = true
	a.relay.Events.AgentRegistered(a.name)
	a.logger.Info().Str("agent", a.name).Msg("agent registered")

	a.sock.armReadDeadline()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				a.logger.Warn().Err(err).Str("agent", a.name).Msg("agent connection closed unexpectedly")
			} else {
				a.logger.Info().Str("agent", a.name).Msg("agent disconnected")
			}
			return
		}
		a.handleFrame(data)
	}
}

func (a *AgentSession) handleFrame(data []byte) {
	msg, err := protocol.DecodeAgentMessage(data)
	if err != nil {
		a.logger.Debug().Err(err).Str("agent", a.name).Msg("ignoring malformed frame from agent")
		return
	}

	switch m := msg.(type) {
	case *protocol.AgentInitiateConnectionOK:
		a.relay.Coordinator.Post(m.ConnectionID, InitiateReply{OK: true})

	case *protocol.AgentInitiateConnectionError:
		a.relay.Coordinator.Post(m.ConnectionID, InitiateReply{OK: false, Message: m.Message})

	case *protocol.AgentTCPData:
		stream := a.relay.Streams.Get(m.ConnectionID)
		if stream == nil {
			a.logger.Debug().Err(apperrors.StrayIdentifier(m.ConnectionID)).Msg("tcp_data for unknown stream")
			return
		}
		frame, err := protocol.Encode(&protocol.RelayTCPDataToClient{Kind: protocol.KindTCPData, DataBase64: m.DataBase64})
		if err != nil {
			a.logger.Error().Err(err).Msg("encode tcp_data for client")
			return
		}
		stream.Client.sock.enqueue(frame)

	case *protocol.AgentConnectionReset:
		a.handleConnectionReset(m)

	default:
		a.logger.Debug().Str("agent", a.name).Msg("ignoring unknown variant from agent")
	}
}

func (a *AgentSession) handleConnectionReset(m *protocol.AgentConnectionReset) {
	stream := a.relay.Streams.Get(m.ConnectionID)
	if stream == nil {
		a.logger.Debug().Err(apperrors.StrayIdentifier(m.ConnectionID)).Msg("connection_reset for unknown stream")
		return
	}

	sanitizedMsg := m.Message
	if a.relay.Sanitizer != nil {
		sanitizedMsg = a.relay.Sanitizer.String(sanitizedMsg)
	}

	// A reset while the stream is still OPENING is routed through the
	// coordinator as a synthetic initiate error, so the STARTING-phase
	// waiter's single failure path handles it.
	if stream.State() == StateOpening {
		a.relay.Coordinator.Post(m.ConnectionID, InitiateReply{OK: false, Message: sanitizedMsg})
		return
	}

	frame, err := protocol.Encode(&protocol.RelayError{Kind: protocol.KindError, Message: "Connection reset: " + sanitizedMsg})
	if err == nil {
		stream.Client.sock.enqueue(frame)
	}
	stream.Client.closeSocket()
	a.relay.Streams.Remove(m.ConnectionID)
	a.relay.Events.StreamClosed(m.ConnectionID, "connection_reset")
}

// send enqueues a frame on the agent's own socket. Used by an
// AccessSession to push INITIATE_CONNECTION and TCP_DATA toward the
// agent.
func (a *AgentSession) send(frame []byte) bool {
	return a.sock.enqueue(frame)
}

// closeSocket shuts down the agent's write pump exactly once, safe to
// call from any goroutine that decides this session must end (its own
// read loop, or a peer session during cleanup).
func (a *AgentSession) closeSocket() {
	a.closeOne.Do(func() { close(a.sock.send) })
}

// fail logs a classified session failure. The agent side of the wire
// protocol has no `error` frame of its own, so every code here resolves
// to the "merely log" leg of the relay's error-handling policy; the Code
// is still extracted via errors.As so the log line carries a stable,
// machine-readable category instead of an ad hoc message.
func (a *AgentSession) fail(err error) {
	var re *apperrors.RelayError
	if errors.As(err, &re) {
		a.logger.Warn().Err(err).Str("agent", a.name).Str("code", string(re.Code)).Msg("agent session terminating")
		return
	}
	a.logger.Warn().Err(err).Str("agent", a.name).Msg("agent session terminating")
}

func (a *AgentSession) finalize() {
	if a.registered {
		a.relay.Registry.Unregister(a.name, a)
		a.relay.Events.AgentDisconnected(a.name)
		for _, stream := range a.relay.Streams.RemoveAllFor(a) {
			a.relay.Events.StreamClosed(stream.ID, "agent_gone")
			// A still-OPENING stream's waiter reports the failure and
			// closes its own socket.
			if stream.State() == StateOpening {
				a.relay.Coordinator.Post(stream.ID, InitiateReply{OK: false, Message: "agent gone"})
				continue
			}
			stream.Client.fail(apperrors.PeerGone("agent disconnected mid-stream").WithWire("agent gone"))
			stream.Client.closeSocket()
		}
	}
	a.closeSocket()
}
