package realtime

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/logging"
	"github.com/example/campus-dispatch/internal/models"
)

type fakeConn struct {
	mu        sync.Mutex
	frames    chan ClientFrame
	writes    []any
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan ClientFrame, 8), closed: make(chan struct{})}
}

func (c *fakeConn) ReadJSON(v any) error {
	select {
	case f := <-c.frames:
		*(v.(*ClientFrame)) = f
		return nil
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeConn) WriteJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, v)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Event
	for _, w := range c.writes {
		if ev, ok := w.(Event); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (c *fakeConn) controls() []ControlFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ControlFrame
	for _, w := range c.writes {
		if cf, ok := w.(ControlFrame); ok {
			out = append(out, cf)
		}
	}
	return out
}

func allowAll(ctx context.Context, userID, topic string) error { return nil }

func startSession(t *testing.T, hub *Hub, userID string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	s := NewSession(hub, conn, userID, logging.NewLogger("error"))
	go s.Run(context.Background())
	t.Cleanup(s.Close)
	return s, conn
}

func TestSubscribeAndFanOutInOrder(t *testing.T) {
	hub := NewHub(allowAll, nil, logging.NewLogger("error"))
	topic := OrderTopic(models.KindDelivery, "o1")

	_, conn := startSession(t, hub, "alice")
	conn.frames <- ClientFrame{Action: "subscribe", Topic: topic}
	require.Eventually(t, func() bool { return hub.Subscribers(topic) == 1 },
		time.Second, 5*time.Millisecond)

	for i := 0; i < 3; i++ {
		hub.Publish(topic, Event{Kind: EventOrderStatus, Status: &StatusPayload{
			OrderID: "o1", Status: fmt.Sprintf("step-%d", i),
		}})
	}
	require.Eventually(t, func() bool { return len(conn.events()) == 3 },
		time.Second, 5*time.Millisecond)

	events := conn.events()
	for i, ev := range events {
		require.Equal(t, EventOrderStatus, ev.Kind)
		require.Equal(t, fmt.Sprintf("step-%d", i), ev.Status.Status)
	}

	controls := conn.controls()
	require.Len(t, controls, 1)
	require.Equal(t, "ack", controls[0].Kind)
}

func TestPublishReachesOnlySubscribedTopic(t *testing.T) {
	hub := NewHub(allowAll, nil, logging.NewLogger("error"))
	_, conn := startSession(t, hub, "alice")
	conn.frames <- ClientFrame{Action: "subscribe", Topic: "order:a"}
	require.Eventually(t, func() bool { return hub.Subscribers("order:a") == 1 },
		time.Second, 5*time.Millisecond)

	hub.Publish("order:b", Event{Kind: EventOrderStatus})
	hub.Publish("order:a", Event{Kind: EventOrderAccepted})

	require.Eventually(t, func() bool { return len(conn.events()) == 1 },
		time.Second, 5*time.Millisecond)
	require.Equal(t, EventOrderAccepted, conn.events()[0].Kind)
}

func TestSubscribeDeniedByAuthorizer(t *testing.T) {
	deny := func(ctx context.Context, userID, topic string) error {
		return fmt.Errorf("%w: not a party", apperr.ErrUnauthorized)
	}
	hub := NewHub(deny, nil, logging.NewLogger("error"))
	_, conn := startSession(t, hub, "mallory")
	conn.frames <- ClientFrame{Action: "subscribe", Topic: "order:secret"}

	require.Eventually(t, func() bool { return len(conn.controls()) == 1 },
		time.Second, 5*time.Millisecond)
	require.Equal(t, "error", conn.controls()[0].Kind)
	require.Zero(t, hub.Subscribers("order:secret"))
}

func TestUnauthenticatedSessionCanDoNothing(t *testing.T) {
	recorded := 0
	record := func(ctx context.Context, reporterID, orderID string, lat, lon, accuracy float64) error {
		recorded++
		return nil
	}
	hub := NewHub(allowAll, record, logging.NewLogger("error"))
	_, conn := startSession(t, hub, "")
	conn.frames <- ClientFrame{Action: "subscribe", Topic: "order:o1"}
	conn.frames <- ClientFrame{Action: "online"}
	conn.frames <- ClientFrame{Action: "location", OrderID: "o1", Lat: 1, Lon: 2}

	require.Eventually(t, func() bool { return len(conn.controls()) == 3 },
		time.Second, 5*time.Millisecond)
	for _, cf := range conn.controls() {
		require.Equal(t, "error", cf.Kind)
	}
	require.Zero(t, hub.Subscribers("order:o1"))
	require.Zero(t, hub.Subscribers(PoolTopic))
	require.Zero(t, recorded)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(allowAll, nil, logging.NewLogger("error"))
	_, conn := startSession(t, hub, "alice")
	conn.frames <- ClientFrame{Action: "subscribe", Topic: "ride:r1"}
	require.Eventually(t, func() bool { return hub.Subscribers("ride:r1") == 1 },
		time.Second, 5*time.Millisecond)

	conn.frames <- ClientFrame{Action: "unsubscribe", Topic: "ride:r1"}
	require.Eventually(t, func() bool { return hub.Subscribers("ride:r1") == 0 },
		time.Second, 5*time.Millisecond)

	hub.Publish("ride:r1", Event{Kind: EventOrderStatus})
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, conn.events())
}

func TestCloseRemovesAllSubscriptions(t *testing.T) {
	hub := NewHub(allowAll, nil, logging.NewLogger("error"))
	s, conn := startSession(t, hub, "alice")
	conn.frames <- ClientFrame{Action: "subscribe", Topic: "order:x"}
	conn.frames <- ClientFrame{Action: "online"}
	require.Eventually(t, func() bool {
		return hub.Subscribers("order:x") == 1 && hub.Subscribers(PoolTopic) == 1
	}, time.Second, 5*time.Millisecond)

	s.Close()
	require.Zero(t, hub.Subscribers("order:x"))
	require.Zero(t, hub.Subscribers(PoolTopic))
}

func TestLocationFrameRoutedToRecorder(t *testing.T) {
	type push struct {
		reporter, order string
		lat, lon        float64
	}
	var (
		mu     sync.Mutex
		pushes []push
	)
	record := func(ctx context.Context, reporterID, orderID string, lat, lon, accuracy float64) error {
		mu.Lock()
		defer mu.Unlock()
		pushes = append(pushes, push{reporterID, orderID, lat, lon})
		return nil
	}
	hub := NewHub(allowAll, record, logging.NewLogger("error"))
	_, conn := startSession(t, hub, "bob")
	conn.frames <- ClientFrame{Action: "location", OrderID: "o9", Lat: 39.99, Lon: 116.31, Accuracy: 4}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(pushes) == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	got := pushes[0]
	mu.Unlock()
	require.Equal(t, push{"bob", "o9", 39.99, 116.31}, got)

	require.Eventually(t, func() bool { return len(conn.controls()) == 1 },
		time.Second, 5*time.Millisecond)
	require.Equal(t, "ack", conn.controls()[0].Kind)
}
