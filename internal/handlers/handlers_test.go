package handlers_test

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/adrblo/http-network-relay/internal/credentials"
	"github.com/adrblo/http-network-relay/internal/handlers"
	"github.com/adrblo/http-network-relay/internal/logger"
	"github.com/adrblo/http-network-relay/internal/ratelimit"
	"github.com/adrblo/http-network-relay/internal/sanitize"
	"github.com/adrblo/http-network-relay/internal/wsrelay"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.json")
	contents := `{"edge-agents":{"test_agent":"agent-secret"},"access-client-secrets":["client-secret"]}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	creds, err := credentials.Load(path)
	require.NoError(t, err)

	logger.Initialize("error", false)
	relay := wsrelay.New(creds, sanitize.NewStrict(), wsrelay.NoopEvents, *logger.GetLogger())

	limiter, err := ratelimit.New(ratelimit.Config{Enabled: false})
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers.New(relay, limiter).RegisterRoutes(router)

	return httptest.NewServer(router)
}

func dialWS(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

type envelope struct {
	Inner json.RawMessage `json:"inner"`
}

func sendFrame(t *testing.T, conn *websocket.Conn, variant interface{}) {
	t.Helper()
	inner, err := json.Marshal(variant)
	require.NoError(t, err)
	frame, err := json.Marshal(envelope{Inner: inner})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

func readKind(t *testing.T, conn *websocket.Conn) (string, map[string]interface{}) {
	t.Helper()
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(env.Inner, &fields))
	kind, _ := fields["kind"].(string)
	return kind, fields
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "ok", string(body))
	require.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
}

// TestEchoReverse exercises the full round trip: an edge agent connects,
// an access client opens a stream to it, a byte payload the access client
// sends arrives on the agent side tagged with the right stream id, and the
// agent's reversed reply arrives back at the access client.
func TestEchoReverse(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	agentConn := dialWS(t, server, "/ws_for_edge_agents")
	defer agentConn.Close()
	sendFrame(t, agentConn, map[string]string{"kind": "start", "name": "test_agent", "secret": "agent-secret"})

	clientConn := dialWS(t, server, "/ws_for_access_clients")
	defer clientConn.Close()
	sendFrame(t, clientConn, map[string]interface{}{
		"kind":              "start",
		"connection_target": "test_agent",
		"target_ip":         "127.0.0.1",
		"target_port":       9999,
		"protocol":          "tcp",
		"secret":            "client-secret",
	})

	kind, fields := readKind(t, agentConn)
	require.Equal(t, "initiate_connection", kind)
	connectionID, _ := fields["connection_id"].(string)
	require.NotEmpty(t, connectionID)

	sendFrame(t, agentConn, map[string]string{"kind": "initiate_connection_ok", "connection_id": connectionID})

	kind, _ = readKind(t, clientConn)
	require.Equal(t, "start_ok", kind)

	payload := base64.StdEncoding.EncodeToString([]byte("hello"))
	sendFrame(t, clientConn, map[string]string{"kind": "tcp_data", "data_base64": payload})

	kind, fields = readKind(t, agentConn)
	require.Equal(t, "tcp_data", kind)
	require.Equal(t, connectionID, fields["connection_id"])
	require.Equal(t, payload, fields["data_base64"])

	reversed := base64.StdEncoding.EncodeToString([]byte("olleh"))
	sendFrame(t, agentConn, map[string]string{"kind": "tcp_data", "connection_id": connectionID, "data_base64": reversed})

	kind, fields = readKind(t, clientConn)
	require.Equal(t, "tcp_data", kind)
	require.Equal(t, reversed, fields["data_base64"])
}

func TestUnknownAgentRejected(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	clientConn := dialWS(t, server, "/ws_for_access_clients")
	defer clientConn.Close()
	sendFrame(t, clientConn, map[string]interface{}{
		"kind":              "start",
		"connection_target": "ghost",
		"target_ip":         "127.0.0.1",
		"target_port":       80,
		"protocol":          "tcp",
		"secret":            "client-secret",
	})

	kind, fields := readKind(t, clientConn)
	require.Equal(t, "error", kind)
	require.Equal(t, "Agent not registered", fields["message"])
}

func TestInvalidClientSecretRejected(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	clientConn := dialWS(t, server, "/ws_for_access_clients")
	defer clientConn.Close()
	sendFrame(t, clientConn, map[string]interface{}{
		"kind":              "start",
		"connection_target": "test_agent",
		"target_ip":         "127.0.0.1",
		"target_port":       80,
		"protocol":          "tcp",
		"secret":            "wrong-secret",
	})

	kind, fields := readKind(t, clientConn)
	require.Equal(t, "error", kind)
	require.Equal(t, "Invalid access client secret", fields["message"])
}

func TestUnsupportedProtocolRejected(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	agentConn := dialWS(t, server, "/ws_for_edge_agents")
	defer agentConn.Close()
	sendFrame(t, agentConn, map[string]string{"kind": "start", "name": "test_agent", "secret": "agent-secret"})

	clientConn := dialWS(t, server, "/ws_for_access_clients")
	defer clientConn.Close()
	sendFrame(t, clientConn, map[string]interface{}{
		"kind":              "start",
		"connection_target": "test_agent",
		"target_ip":         "127.0.0.1",
		"target_port":       80,
		"protocol":          "udp",
		"secret":            "client-secret",
	})

	kind, fields := readKind(t, clientConn)
	require.Equal(t, "error", kind)
	require.Equal(t, "Initiating connection failed: unsupported protocol udp", fields["message"])
}

func TestDuplicateAgentRegistrationRejectsSecondConnection(t *testing.T) {
	server := newTestServer(t)
	defer server.Close()

	first := dialWS(t, server, "/ws_for_edge_agents")
	defer first.Close()
	sendFrame(t, first, map[string]string{"kind": "start", "name": "test_agent", "secret": "agent-secret"})

	second := dialWS(t, server, "/ws_for_edge_agents")
	defer second.Close()
	sendFrame(t, second, map[string]string{"kind": "start", "name": "test_agent", "secret": "agent-secret"})

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	require.Error(t, err, "duplicate registration should close the second connection")
}
