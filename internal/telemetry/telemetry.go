// Package telemetry publishes relay lifecycle events — agent
// registrations, stream opens/closes, auth failures — to NATS for
// whoever wants to watch the relay from outside. It is optional ambient
// observability, not a channel relay traffic depends on: the relay
// functions identically with telemetry disabled.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subjects events are published under.
const (
	SubjectAgentRegistered   = "http_network_relay.agent.registered"
	SubjectAgentDisconnected = "http_network_relay.agent.disconnected"
	SubjectStreamOpened      = "http_network_relay.stream.opened"
	SubjectStreamClosed      = "http_network_relay.stream.closed"
	SubjectAuthFailure       = "http_network_relay.auth.failure"
)

// Config configures the NATS connection. A zero-value URL disables
// telemetry entirely.
type Config struct {
	URL string
}

// Publisher publishes relay lifecycle events to NATS. It implements
// wsrelay.EventSink structurally (see internal/wsrelay/relay.go); wiring
// it there avoids an import cycle since wsrelay does not need to know
// telemetry exists.
type Publisher struct {
	conn    *nats.Conn
	enabled bool
	logger  zerolog.Logger
}

// NewPublisher connects to NATS, or returns a disabled publisher if
// cfg.URL is empty or the connection fails — telemetry degrading never
// takes the relay down with it.
func NewPublisher(cfg Config, logger zerolog.Logger) *Publisher {
	if cfg.URL == "" {
		return &Publisher{enabled: false, logger: logger}
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("http-network-relay"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(10),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("telemetry disconnected from nats")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("telemetry reconnected to nats")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Warn().Err(err).Msg("telemetry nats error")
		}),
	)
	if err != nil {
		logger.Warn().Err(err).Str("url", cfg.URL).Msg("telemetry disabled: failed to connect to nats")
		return &Publisher{enabled: false, logger: logger}
	}

	logger.Info().Str("url", conn.ConnectedUrl()).Msg("telemetry connected to nats")
	return &Publisher{conn: conn, enabled: true, logger: logger}
}

// Close closes the NATS connection, if any, without draining it first.
func (p *Publisher) Close() {
	if p.enabled {
		p.conn.Close()
	}
}

func (p *Publisher) publish(subject string, payload interface{}) {
	if !p.enabled {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to marshal telemetry event")
		return
	}
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("failed to publish telemetry event")
	}
}

type agentEvent struct {
	Name string `json:"name"`
}

type streamEvent struct {
	ConnectionID string `json:"connection_id"`
	Detail       string `json:"detail,omitempty"`
}

type authFailureEvent struct {
	Role   string `json:"role"`
	Detail string `json:"detail"`
}

// AgentRegistered implements wsrelay.EventSink.
func (p *Publisher) AgentRegistered(name string) {
	p.publish(SubjectAgentRegistered, agentEvent{Name: name})
}

// AgentDisconnected implements wsrelay.EventSink.
func (p *Publisher) AgentDisconnected(name string) {
	p.publish(SubjectAgentDisconnected, agentEvent{Name: name})
}

// StreamOpened implements wsrelay.EventSink.
func (p *Publisher) StreamOpened(id, agentName string) {
	p.publish(SubjectStreamOpened, streamEvent{ConnectionID: id, Detail: agentName})
}

// StreamClosed implements wsrelay.EventSink.
func (p *Publisher) StreamClosed(id, reason string) {
	p.publish(SubjectStreamClosed, streamEvent{ConnectionID: id, Detail: reason})
}

// AuthFailure implements wsrelay.EventSink.
func (p *Publisher) AuthFailure(role, detail string) {
	p.publish(SubjectAuthFailure, authFailureEvent{Role: role, Detail: detail})
}
