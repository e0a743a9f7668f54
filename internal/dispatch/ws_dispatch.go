package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/ride-hailing/internal/observability"
)

const writeWait = 10 * time.Second

// ErrNoSession is returned when a channel id has no live connection here.
var ErrNoSession = errors.New("no ws session")

// WSSession is one connected websocket. Writes are serialised because
// gorilla connections support a single concurrent writer.
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(msg Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(msg)
}

// Ping writes a control ping frame.
func (s *WSSession) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// WSRegistry holds the live sessions of this process keyed by channel id.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*WSSession
}

func NewWSRegistry() *WSRegistry { return &WSRegistry{sessions: make(map[string]*WSSession)} }

func (r *WSRegistry) Add(channelID string, conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	r.sessions[channelID] = s
	r.mu.Unlock()
	observability.SessionsActive.Inc()
	return s
}

func (r *WSRegistry) Remove(channelID string) {
	r.mu.Lock()
	_, ok := r.sessions[channelID]
	delete(r.sessions, channelID)
	r.mu.Unlock()
	if ok {
		observability.SessionsActive.Dec()
	}
}

// Deliver implements Sender.
func (r *WSRegistry) Deliver(_ context.Context, channelID string, msg Envelope) error {
	r.mu.RLock()
	s, ok := r.sessions[channelID]
	r.mu.RUnlock()
	if !ok {
		return ErrNoSession
	}
	return s.Send(msg)
}
