package realtime

import (
	"context"
	"log/slog"
	"sync"

	"github.com/example/campus-dispatch/internal/observability"
)

// AuthorizeFunc re-validates, at subscribe time, that the user may
// join a topic. It is called on every subscribe; authorization is
// never cached on the connection.
type AuthorizeFunc func(ctx context.Context, userID, topic string) error

// RecordFunc accepts a location push from a connected assignee.
// The implementation re-validates assignment and order status
// before persisting or broadcasting anything.
type RecordFunc func(ctx context.Context, reporterID, orderID string, lat, lon, accuracy float64) error

// Hub is the topic-based fan-out. A single process owns every
// topic, so events within one topic are delivered in publish order;
// across topics no ordering is promised.
type Hub struct {
	mu        sync.RWMutex
	topics    map[string]map[*Session]struct{}
	authorize AuthorizeFunc
	record    RecordFunc
	logger    *slog.Logger
}

func NewHub(authorize AuthorizeFunc, record RecordFunc, logger *slog.Logger) *Hub {
	return &Hub{
		topics:    make(map[string]map[*Session]struct{}),
		authorize: authorize,
		record:    record,
		logger:    logger,
	}
}

// Publish delivers ev to every current subscriber of topic,
// at-most-once each. Slow subscribers are skipped rather than
// back-pressuring the publisher; reconnecting clients re-fetch
// state over HTTP and resume live updates.
func (h *Hub) Publish(topic string, ev Event) {
	h.mu.RLock()
	subs := h.topics[topic]
	sessions := make([]*Session, 0, len(subs))
	for s := range subs {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()
	for _, s := range sessions {
		if !s.enqueue(ev) {
			observability.WSDropped.Inc()
			h.logger.Warn("dropped event for slow subscriber", "topic", topic, "kind", ev.Kind)
		}
	}
}

// Subscribers reports the current subscriber count of a topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

func (h *Hub) subscribe(ctx context.Context, s *Session, topic string) error {
	if err := h.authorize(ctx, s.userID, topic); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*Session]struct{})
		h.topics[topic] = set
	}
	set[s] = struct{}{}
	s.topics[topic] = struct{}{}
	return nil
}

func (h *Hub) unsubscribe(s *Session, topic string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(s, topic)
}

func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for topic := range s.topics {
		h.dropLocked(s, topic)
	}
}

func (h *Hub) dropLocked(s *Session, topic string) {
	if set, ok := h.topics[topic]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.topics, topic)
		}
	}
	delete(s.topics, topic)
}
