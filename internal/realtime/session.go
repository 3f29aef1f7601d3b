package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/observability"
)

// Conn is the subset of *websocket.Conn the session needs; tests
// substitute an in-memory fake.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

const sendBuffer = 16

// ClientFrame is a request from the connected client.
type ClientFrame struct {
	Action   string  `json:"action"` // subscribe, unsubscribe, online, offline, location
	Topic    string  `json:"topic,omitempty"`
	OrderID  string  `json:"order_id,omitempty"`
	Lat      float64 `json:"lat,omitempty"`
	Lon      float64 `json:"lon,omitempty"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// ControlFrame acknowledges or rejects a client action. Live events
// are sent as Event values alongside these.
type ControlFrame struct {
	Kind   string `json:"kind"` // "ack" or "error"
	Action string `json:"action,omitempty"`
	Topic  string `json:"topic,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Session is one connected client. userID is empty for
// unauthenticated connections, which may observe nothing: they can
// neither subscribe nor push locations.
type Session struct {
	hub    *Hub
	conn   Conn
	userID string
	send   chan any
	done   chan struct{}
	once   sync.Once
	topics map[string]struct{}
	logger *slog.Logger
}

func NewSession(hub *Hub, conn Conn, userID string, logger *slog.Logger) *Session {
	return &Session{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan any, sendBuffer),
		done:   make(chan struct{}),
		topics: make(map[string]struct{}),
		logger: logger,
	}
}

// Run pumps frames until the connection drops or ctx is cancelled.
// It blocks; callers run it from the websocket handler goroutine.
func (s *Session) Run(ctx context.Context) {
	observability.WSSessions.Inc()
	defer observability.WSSessions.Dec()
	defer s.Close()

	go s.writePump()

	for {
		var frame ClientFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}
		s.handle(ctx, frame)
	}
}

func (s *Session) handle(ctx context.Context, frame ClientFrame) {
	switch frame.Action {
	case "subscribe":
		if s.userID == "" {
			s.control(frame, apperr.ErrUnauthorized)
			return
		}
		s.control(frame, s.hub.subscribe(ctx, s, frame.Topic))
	case "unsubscribe":
		s.hub.unsubscribe(s, frame.Topic)
		s.control(frame, nil)
	case "online":
		if s.userID == "" {
			s.control(frame, apperr.ErrUnauthorized)
			return
		}
		frame.Topic = PoolTopic
		s.control(frame, s.hub.subscribe(ctx, s, PoolTopic))
	case "offline":
		s.hub.unsubscribe(s, PoolTopic)
		s.control(frame, nil)
	case "location":
		if s.userID == "" {
			s.control(frame, apperr.ErrUnauthorized)
			return
		}
		err := s.hub.record(ctx, s.userID, frame.OrderID, frame.Lat, frame.Lon, frame.Accuracy)
		s.control(frame, err)
	default:
		s.control(frame, errors.New("unknown action"))
	}
}

func (s *Session) control(frame ClientFrame, err error) {
	out := ControlFrame{Kind: "ack", Action: frame.Action, Topic: frame.Topic}
	if err != nil {
		out.Kind = "error"
		out.Error = err.Error()
	}
	s.enqueue(out)
}

// enqueue never blocks; a full buffer means the event is dropped
// for this subscriber.
func (s *Session) enqueue(v any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- v:
		return true
	default:
		return false
	}
}

func (s *Session) writePump() {
	for {
		select {
		case <-s.done:
			return
		case v := <-s.send:
			if err := s.conn.WriteJSON(v); err != nil {
				s.Close()
				return
			}
		}
	}
}

func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.hub.remove(s)
		_ = s.conn.Close()
	})
}
