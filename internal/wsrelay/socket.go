package wsrelay

import (
	"time"

	"github.com/gorilla/websocket"
)

// Keepalive and framing constants, grounded on
// internal/handlers/agent_websocket.go's writeWait/pongWait/pingPeriod/
// maxMessageSize values.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	// startTimeout bounds how long a freshly upgraded socket may take to
	// send its first (START) frame.
	startTimeout = 10 * time.Second

	// initiateTimeout bounds how long an access-client session waits for
	// its agent's INITIATE_OK/INITIATE_ERROR reply.
	initiateTimeout = 30 * time.Second
)

// socket funnels writes to a *websocket.Conn through a single goroutine,
// since gorilla/websocket forbids concurrent writers and several logical
// producers (the session's own read loop, the coordinator, a sibling
// session relaying TCP_DATA) may need to send on the same connection.
// Grounded on agent_websocket.go's writePump.
type socket struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

func newSocket(conn *websocket.Conn) *socket {
	conn.SetReadLimit(maxMessageSize)
	return &socket{
		conn: conn,
		send: make(chan []byte, 256),
		done: make(chan struct{}),
	}
}

// isDone reports whether the socket has already terminated, without
// blocking.
func (s *socket) isDone() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// enqueue attempts a non-blocking send on the socket's write channel. It
// returns false if the socket has already terminated or the send buffer
// is full (a slow or dead peer should not be allowed to block the
// producer indefinitely).
func (s *socket) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// closeDone closes done unless it is already closed, so calling it again
// from the same goroutine is a no-op. The check and the close are not
// atomic: two goroutines calling it at the same moment can both reach
// close and panic. The writePump's own exit path is its caller in the
// relay.
func (s *socket) closeDone() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

// writePump is the socket's single writer goroutine: it drains send,
// funneling queued frames into the websocket, and emits periodic pings.
// It returns when send is closed or a write fails.
func (s *socket) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.closeDone()
		s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop configures pong-driven read deadlines on conn. Call once per
// socket before entering the caller's own ReadMessage loop.
func (s *socket) armReadDeadline() {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
}
