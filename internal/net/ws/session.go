package ws

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sasha-s/go-deadlock"
)

const writeWait = 10 * time.Second

const (
	textMessage = 1
	pingMessage = 9
)

// Conn is the slice of the websocket connection the registry needs. The
// gorilla connection satisfies it; tests substitute a recorder.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Session binds one socket to one identity. Identity fields are written only
// by the registry under its lock during connect and teleport; once a session
// is invalidated its outbound events are suppressed.
type Session struct {
	ID string

	UserID  string
	ActorID string
	AreaID  string
	LastX   int
	LastY   int

	writeMu deadlock.Mutex
	conn    Conn
	stale   atomic.Bool
	cleaned atomic.Bool
}

// BeginCleanup claims the one-time disconnect cleanup for this session. Only
// the first caller gets true; the read loop and an eviction can race here.
func (s *Session) BeginCleanup() bool {
	return s != nil && s.cleaned.CompareAndSwap(false, true)
}

// Complete reports whether the session finished its join sequence.
func (s *Session) Complete() bool {
	return s != nil && s.UserID != "" && s.ActorID != "" && s.AreaID != ""
}

// Invalidate marks the session stale; later sends are suppressed.
func (s *Session) Invalidate() {
	if s != nil {
		s.stale.Store(true)
	}
}

// Stale reports whether the session has been invalidated.
func (s *Session) Stale() bool {
	return s == nil || s.stale.Load()
}

// Send marshals and writes one event, refusing when the session has been
// invalidated so a replaced socket never receives gameplay events.
func (s *Session) Send(payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.sendRaw(data)
}

func (s *Session) sendRaw(data []byte) error {
	if s.Stale() {
		return errors.New("ws: send on stale session")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(textMessage, data)
}

// Ping writes a heartbeat frame, sharing the write lock with event sends.
func (s *Session) Ping() error {
	if s.Stale() {
		return errors.New("ws: ping on stale session")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(pingMessage, nil)
}

// notifyAndClose writes one final payload past the stale check, then closes.
// Used for the replaced-connection notice.
func (s *Session) notifyAndClose(payload any) {
	if s == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err == nil {
		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		s.conn.WriteMessage(textMessage, data)
		s.writeMu.Unlock()
	}
	s.conn.Close()
}

// CloseConn invalidates the session and closes the socket.
func (s *Session) CloseConn() {
	if s == nil {
		return
	}
	s.Invalidate()
	s.conn.Close()
}
