// Package handlers provides the relay's HTTP surface: the two WebSocket
// upgrade endpoints edge agents and access clients connect to, plus a
// liveness probe, grounded on
// streamspace/api/internal/handlers/agent_websocket.go's upgrade-then-
// hand-off structure.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/adrblo/http-network-relay/internal/ratelimit"
	"github.com/adrblo/http-network-relay/internal/wsrelay"
)

// Handler wires the relay core and optional rate limiter to gin routes.
type Handler struct {
	relay   *wsrelay.Relay
	limiter *ratelimit.Limiter
}

// New constructs a Handler. limiter may be a disabled Limiter (see
// ratelimit.New with Config.Enabled=false); it is never nil.
func New(relay *wsrelay.Relay, limiter *ratelimit.Limiter) *Handler {
	return &Handler{relay: relay, limiter: limiter}
}

// RegisterRoutes installs the relay's three endpoints on router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/healthz", h.handleHealthz)
	router.GET("/ws_for_edge_agents", h.handleEdgeAgent)
	router.GET("/ws_for_access_clients", h.handleAccessClient)
}

func (h *Handler) handleHealthz(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

// handleEdgeAgent upgrades the HTTP request to a WebSocket and hands the
// connection to a new agent session. Authentication happens in-band via
// the agent's START frame, not at the HTTP layer.
func (h *Handler) handleEdgeAgent(c *gin.Context) {
	conn, err := wsrelay.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.relay.Logger.Warn().Err(err).Msg("failed to upgrade edge agent connection")
		return
	}
	wsrelay.ServeAgent(h.relay, conn)
}

// handleAccessClient upgrades the HTTP request to a WebSocket and hands
// the connection to a new access-client session, subject to the optional
// per-source-IP rate limit.
func (h *Handler) handleAccessClient(c *gin.Context) {
	if !h.limiter.Allow(c.Request.Context(), ratelimit.StartKey(c.ClientIP())) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	conn, err := wsrelay.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.relay.Logger.Warn().Err(err).Msg("failed to upgrade access client connection")
		return
	}
	wsrelay.ServeAccessClient(h.relay, conn)
}
