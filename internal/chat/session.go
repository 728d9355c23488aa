// Package chat – Session
//
// A Session is one authenticated, live websocket connection. It owns exactly
// one identity and is a member of at most one room at a time. Sessions are
// ephemeral: created when a connection is accepted, destroyed when it closes.
//
// Concurrency model: the gateway's read loop is the only reader of the
// connection, and writePump is the only writer. Everything outbound goes
// through the buffered send channel; deliveries to a full buffer are dropped
// rather than blocking the sender (the client catches up via history replay).
package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// SocketConfig bounds the websocket read/write behavior of a session.
type SocketConfig struct {
	// WriteWait is the deadline for a single outbound write.
	WriteWait time.Duration
	// PongWait is how long a connection may stay silent before the read loop
	// gives up; it bounds how long a dead peer can occupy a room.
	PongWait time.Duration
	// PingPeriod is the interval between server pings. Must be under PongWait.
	PingPeriod time.Duration
	// MaxMessageSize caps inbound frames in bytes.
	MaxMessageSize int64
	// SendBuffer is the outbound channel capacity per session.
	SendBuffer int
}

// withDefaults fills zero fields with production defaults.
func (c SocketConfig) withDefaults() SocketConfig {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 16 << 10
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	return c
}

// Session is the in-memory state of one live connection.
type Session struct {
	id     string
	userID string
	conn   *websocket.Conn
	cfg    SocketConfig
	log    zerolog.Logger

	send chan []byte
	done chan struct{}
	once sync.Once

	mu   sync.Mutex
	room string
}

// newSession wraps an upgraded connection for the authenticated user.
func newSession(conn *websocket.Conn, userID string, cfg SocketConfig, log zerolog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		userID: userID,
		conn:   conn,
		cfg:    cfg.withDefaults(),
		log:    log.With().Str("session_id", id).Str("user_id", userID).Logger(),
		send:   make(chan []byte, cfg.withDefaults().SendBuffer),
		done:   make(chan struct{}),
	}
}

// ID returns the session's process-unique identifier.
func (s *Session) ID() string { return s.id }

// UserID returns the authenticated user bound to this connection.
func (s *Session) UserID() string { return s.userID }

// Room returns the session's current room id, or "" when not joined.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) setRoom(roomID string) {
	s.mu.Lock()
	s.room = roomID
	s.mu.Unlock()
}

// trySend queues raw bytes for delivery without blocking. It reports false
// when the session is closing or its buffer is full; the caller treats that
// as a skipped best-effort delivery.
func (s *Session) trySend(msg []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- msg:
		return true
	default:
		return false
	}
}

// close tears the connection down. Idempotent; safe from any goroutine.
func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// writePump drains the send channel onto the connection and keeps the peer
// alive with periodic pings. It is the sole writer of the connection and
// exits when the session closes or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case msg := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.log.Debug().Err(err).Msg("session write failed")
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debug().Err(err).Msg("session ping failed")
				return
			}
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
