package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// sendBufferSize bounds how many frames a slow client can queue before the
// session is treated as dead.
const sendBufferSize = 16

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

var errSessionClosed = errors.New("session closed")
var errSendBufferFull = errors.New("send buffer full")

// session owns one WebSocket connection. All writes funnel through a buffered
// channel drained by a single writer goroutine, which keeps Send non-blocking
// and avoids concurrent writes on the underlying connection.
type session struct {
	id   string
	conn *websocket.Conn

	outbound  chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(id string, conn *websocket.Conn) *session {
	return &session{
		id:       id,
		conn:     conn,
		outbound: make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
	}
}

// Send queues a frame for the writer goroutine. It never blocks: a full
// buffer or a closed session returns an error so the presence registry can
// purge the session.
func (s *session) Send(payload []byte) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}
	select {
	case s.outbound <- payload:
		return nil
	case <-s.closed:
		return errSessionClosed
	default:
		return errSendBufferFull
	}
}

// writeLoop is the only goroutine that touches the connection's write side.
// It also drives keepalive pings; a client that stops answering gets its read
// deadline expired and the read loop tears the session down.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				s.close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.close()
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.conn.Close()
	})
}
