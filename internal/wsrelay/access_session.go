package wsrelay

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/adrblo/http-network-relay/internal/apperrors"
	"github.com/adrblo/http-network-relay/internal/protocol"
)

// AccessSession is one connected access client. It authenticates,
// requests a stream to a named agent, and once the agent accepts the
// stream, pumps TCP_DATA frames to the agent until either side ends the
// conversation.
type AccessSession struct {
	relay    *Relay
	sock     *socket
	logger   zerolog.Logger
	streamID string
	closeOne sync.Once
}

// ServeAccessClient runs a freshly upgraded access-client WebSocket
// connection to completion.
func ServeAccessClient(relay *Relay, conn *websocket.Conn) {
	sock := newSocket(conn)
	logger := relay.Logger.With().Str("component", "access_session").Logger()
	session := &AccessSession{relay: relay, sock: sock, logger: logger}

	go sock.writePump()
	session.serve()
}

func (c *AccessSession) closeSocket() {
	c.closeOne.Do(func() { close(c.sock.send) })
}

func (c *AccessSession) serve() {
	defer c.finalize()

	conn := c.sock.conn
	conn.SetReadDeadline(time.Now().Add(startTimeout))

	_, data, err := conn.ReadMessage()
	if err != nil {
		c.logger.Warn().Err(err).Msg("access client disconnected before sending start")
		return
	}

	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		c.fail(apperrors.Wrap(apperrors.CodeProtocolViolation, "malformed start frame from access client", err))
		return
	}
	start, ok := msg.(*protocol.ClientStart)
	if !ok {
		c.fail(apperrors.ProtocolViolation("first frame from access client was not start"))
		return
	}

	if !c.relay.Credentials.VerifyClient(start.Secret) {
		c.relay.Events.AuthFailure("access_client", start.ConnectionTarget)
		c.fail(apperrors.AuthFailure("invalid access client credentials").WithWire("Invalid access client secret"))
		return
	}

	protocolName := start.Protocol
	if c.relay.Sanitizer != nil {
		protocolName = c.relay.Sanitizer.String(protocolName)
	}

	agent := c.relay.Registry.Lookup(start.ConnectionTarget)
	if agent == nil {
		c.fail(apperrors.UnknownTarget(start.ConnectionTarget).WithWire("Agent not registered"))
		return
	}

	if protocolName != "tcp" {
		c.fail(apperrors.UnsupportedProtocol(protocolName).WithWire("Initiating connection failed: unsupported protocol " + protocolName))
		return
	}

	streamID := uuid.NewString()
	c.streamID = streamID

	stream, err := c.relay.Streams.Create(streamID, agent, c)
	if err != nil {
		c.sendError("failed to allocate stream")
		return
	}

	c.relay.Coordinator.Register(streamID)
	initiate, err := protocol.Encode(&protocol.RelayInitiateConnection{
		Kind:         protocol.KindInitiateConnection,
		ConnectionID: streamID,
		TargetIP:     start.TargetIP,
		TargetPort:   start.TargetPort,
		Protocol:     protocolName,
	})
	if err != nil {
		c.sendError("internal error")
		c.relay.Streams.Remove(streamID)
		return
	}
	if !agent.send(initiate) {
		c.sendError("agent unavailable")
		c.relay.Streams.Remove(streamID)
		return
	}

	reply, delivered := c.relay.Coordinator.Wait(streamID, initiateTimeout)
	if !delivered {
		c.sendError("Initiating connection failed: timed out waiting for agent")
		c.relay.Streams.Remove(streamID)
		return
	}
	if !reply.OK {
		c.sendError("Initiating connection failed: " + reply.Message)
		c.relay.Streams.Remove(streamID)
		return
	}

	stream.setState(StateOpen)
	c.relay.Events.StreamOpened(streamID, start.ConnectionTarget)

	ok2, err := protocol.Encode(&protocol.RelayStartOK{Kind: protocol.KindStartOK})
	if err != nil || !c.sock.enqueue(ok2) {
		c.relay.Streams.Remove(streamID)
		return
	}

	c.sock.armReadDeadline()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("access client connection closed unexpectedly")
			} else {
				c.logger.Info().Msg("access client disconnected")
			}
			return
		}
		c.handleFrame(agent, data)
	}
}

func (c *AccessSession) handleFrame(agent *AgentSession, data []byte) {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		c.logger.Debug().Err(err).Msg("ignoring malformed frame from access client")
		return
	}

	switch m := msg.(type) {
	case *protocol.ClientTCPData:
		frame, err := protocol.Encode(&protocol.RelayTCPDataToAgent{Kind: protocol.KindTCPData, ConnectionID: c.streamID, DataBase64: m.DataBase64})
		if err != nil {
			c.logger.Error().Err(err).Msg("encode tcp_data for agent")
			return
		}
		agent.send(frame)
	default:
		c.logger.Debug().Msg("ignoring unknown variant from access client")
	}
}

func (c *AccessSession) sendError(message string) {
	frame, err := protocol.Encode(&protocol.RelayError{Kind: protocol.KindError, Message: message})
	if err == nil {
		c.sock.enqueue(frame)
	}
}

// fail logs a classified session failure and, when the failure's Code
// carries a Wire message, sends that message to the access client as an
// `error` frame before the caller closes the session. Codes with no Wire
// message (malformed pre-auth frames) terminate the session silently.
func (c *AccessSession) fail(err error) {
	var re *apperrors.RelayError
	if errors.As(err, &re) {
		c.logger.Warn().Err(err).Str("code", string(re.Code)).Msg("access session terminating")
		if re.Wire != "" {
			c.sendError(re.Wire)
		}
		return
	}
	c.logger.Warn().Err(err).Msg("access session terminating")
}

// finalize tears down the stream this session opened, if any. No
// notification is sent to the agent side: the source this relay is
// modeled on does not proactively notify the agent when an access client
// disconnects, and this relay matches that behavior — the agent
// discovers the dead stream only if it later sends a frame for the
// now-absent id, which is logged and dropped as a stray identifier.
func (c *AccessSession) finalize() {
	if c.streamID != "" {
		c.relay.Streams.Remove(c.streamID)
	}
	c.closeSocket()
}
