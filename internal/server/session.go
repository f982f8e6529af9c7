// Package server runs one Session per WebSocket connection, handling the read
// loop, the write pump and the connection's lifecycle in the Registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the framed transport a Session runs over. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// State is where a Session is in its lifecycle.
type State int

const (
	StateConnecting State = iota
	StateRegistered
	StateJoined
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateRegistered:
		return "registered"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the handling task for one connection. Its read loop is the only
// reader of conn and its write pump the only writer.
type Session struct {
	id          ConnID
	addr        string
	conn        Conn
	out         *outboundQueue
	registry    *Registry
	broadcaster *Broadcaster
	limiter     *rateLimiter
	cfg         Config
	log         *slog.Logger

	// join notices waiting for this connection's next chat message
	notices []Frame
	// set while inbound messages are being dropped by the limiter
	throttled bool

	mu    sync.Mutex
	state State

	closeOnce sync.Once
}

func newSession(conn Conn, addr string, registry *Registry, broadcaster *Broadcaster, cfg Config, log *slog.Logger) *Session {
	s := &Session{
		id:          NewConnID(),
		addr:        addr,
		conn:        conn,
		registry:    registry,
		broadcaster: broadcaster,
		limiter:     newRateLimiter(cfg.RateLimitBurst, cfg.RateLimitRefillInterval),
		cfg:         cfg,
		state:       StateConnecting,
	}
	s.log = log.With("conn_id", s.id, "remote_addr", addr)
	s.out = newOutboundQueue(cfg.SendBufferSize, s.closeTransport)
	return s
}

func (s *Session) ID() ConnID {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run registers the connection, serves it until the transport closes, the
// join is rejected or ctx is cancelled, and always deregisters before
// returning. The returned error says why the session ended; nil is a clean close.
func (s *Session) Run(ctx context.Context) error {
	if err := s.registry.Register(s.id, s.out); err != nil {
		s.closeTransport()
		return err
	}
	s.setState(StateRegistered)
	s.log.Info("Connection registered", "connections", s.registry.Len())

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump()
	}()

	stop := context.AfterFunc(ctx, s.out.Close)

	defer func() {
		stop()
		s.registry.Deregister(s.id)
		s.setState(StateClosed)
		s.out.Close()
		<-writerDone
		s.closeTransport()
		s.log.Info("Connection closed", "connections", s.registry.Len())
	}()

	return s.readLoop()
}

func (s *Session) readLoop() error {
	s.setupRead()

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			return s.readError(err)
		}

		if !s.limiter.allow() {
			s.throttle()
			continue
		}
		s.throttled = false

		in, err := Decode(messageType, data)
		if err != nil {
			s.log.Warn("Skipping malformed message", "error", err)
			continue
		}

		if err := s.handle(in); err != nil {
			return err
		}
	}
}

// throttle drops one inbound message. The sender is told once per run of
// dropped messages.
func (s *Session) throttle() {
	s.log.Warn("Rate limit exceeded; discarding message",
		"burst", s.cfg.RateLimitBurst, "interval", s.cfg.RateLimitRefillInterval)
	if s.throttled {
		return
	}
	s.throttled = true
	if err := s.out.Send(rateLimitedNotice()); err != nil {
		s.log.Warn("Could not queue rate limit notice", "error", err)
	}
}

func (s *Session) handle(in Inbound) error {
	switch msg := in.(type) {
	case JoinRequest:
		return s.join(msg.Username)
	case ChatMessage:
		notices := s.notices
		s.notices = nil
		s.log.Debug("Received message", "bytes", len(msg.Frame.Payload))
		s.broadcaster.Deliver(s.id, msg.Frame, notices)
	}
	return nil
}

func (s *Session) join(username string) error {
	res := s.registry.TryClaimUsername(s.id, username)
	if !res.Admitted {
		s.log.Warn("Join rejected", "username", res.Username, "reason", res.Reason)
		if res.NoticeErr != nil {
			s.log.Warn("Could not queue rejection notice", "error", res.NoticeErr)
		}
		return res.Reason
	}

	s.setState(StateJoined)
	s.log.Info("User joined", "username", res.Username)

	notice := joinNotice(res.Username)
	if s.cfg.AnnounceJoinsImmediately {
		s.broadcaster.Announce(s.id, notice)
		return nil
	}
	s.notices = append(s.notices, notice)
	return nil
}

func (s *Session) setupRead() {
	s.conn.SetReadLimit(s.cfg.MaxMessageSize)
	if err := s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait)); err != nil {
		s.log.Warn("Error setting initial read deadline", "error", err)
	}
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.cfg.PongWait))
	})
}

// readError maps a read failure to the session's exit error. Ordinary
// closes end the session cleanly.
func (s *Session) readError(err error) error {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.log.Warn("Message exceeded maximum size", "max_bytes", s.cfg.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		s.log.Debug("Client disconnected", "reason", err)
		return nil
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		s.log.Debug("Connection closed", "reason", err)
		return nil
	default:
		s.log.Warn("WebSocket read error", "error", err)
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.closeTransport()
	}()

	for {
		select {
		case f, ok := <-s.out.Frames():
			if !ok {
				s.writeClose()
				return
			}
			if err := s.write(f.messageType(), f.Payload); err != nil {
				if !isExpectedCloseError(err) {
					s.log.Warn("Error writing message", "error", err)
				}
				return
			}
		case <-ticker.C:
			if err := s.write(websocket.PingMessage, nil); err != nil {
				s.log.Debug("Error writing ping", "error", err)
				return
			}
		}
	}
}

func (s *Session) write(messageType int, data []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait)); err != nil {
		return err
	}
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) writeClose() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := s.write(websocket.CloseMessage, msg); err != nil && !isExpectedCloseError(err) {
		s.log.Debug("Error writing close message", "error", err)
	}
}

func (s *Session) closeTransport() {
	s.closeOnce.Do(func() {
		if err := s.conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Debug("Error closing connection", "error", err)
		}
	})
}
