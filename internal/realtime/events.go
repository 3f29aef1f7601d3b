package realtime

import (
	"fmt"
	"time"

	"github.com/example/campus-dispatch/internal/models"
)

// EventKind is the closed set of event variants pushed over the
// fan-out channel. Every event carries exactly one payload matching
// its kind, so clients can switch on kind instead of sniffing
// untyped maps.
type EventKind string

const (
	EventRequestNew     EventKind = "request.new"
	EventOrderTaken     EventKind = "order.taken"
	EventOrderAccepted  EventKind = "order.accepted"
	EventOrderStatus    EventKind = "order.status"
	EventOrderCancelled EventKind = "order.cancelled"
	EventOrderLocation  EventKind = "order.location"
)

type Event struct {
	Kind     EventKind        `json:"kind"`
	Order    *OrderPayload    `json:"order,omitempty"`
	Status   *StatusPayload   `json:"status,omitempty"`
	Location *LocationPayload `json:"location,omitempty"`
}

type OrderPayload struct {
	OrderID    string      `json:"order_id"`
	OrderKind  models.Kind `json:"order_kind"`
	Status     string      `json:"status"`
	AssigneeID string      `json:"assignee_id,omitempty"`
	Pickup     string      `json:"pickup,omitempty"`
	Dropoff    string      `json:"dropoff,omitempty"`
	Fee        float64     `json:"fee,omitempty"`
	Urgency    string      `json:"urgency,omitempty"`
	ETASeconds float64     `json:"eta_seconds,omitempty"`
}

type StatusPayload struct {
	OrderID string    `json:"order_id"`
	Status  string    `json:"status"`
	ActorID string    `json:"actor_id,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	At      time.Time `json:"at"`
}

type LocationPayload struct {
	OrderID    string    `json:"order_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Topic names. Orders and rides get distinct prefixes so clients
// subscribe with the identifier they already hold.
const PoolTopic = "pool:deliverers"

func OrderTopic(kind models.Kind, orderID string) string {
	if kind == models.KindRide {
		return "ride:" + orderID
	}
	return "order:" + orderID
}

func UserTopic(userID string) string { return "user:" + userID }

func NewRequestEvent(o *models.Order) Event {
	return Event{Kind: EventRequestNew, Order: orderPayload(o)}
}

func TakenEvent(o *models.Order) Event {
	return Event{Kind: EventOrderTaken, Order: orderPayload(o)}
}

func AcceptedEvent(o *models.Order, etaSeconds float64) Event {
	p := orderPayload(o)
	p.ETASeconds = etaSeconds
	return Event{Kind: EventOrderAccepted, Order: p}
}

func StatusEvent(o *models.Order, actorID string, at time.Time) Event {
	return Event{Kind: EventOrderStatus, Status: &StatusPayload{
		OrderID: o.ID, Status: string(o.Status), ActorID: actorID, At: at,
	}}
}

func CancelledEvent(o *models.Order, actorID, reason string, at time.Time) Event {
	return Event{Kind: EventOrderCancelled, Status: &StatusPayload{
		OrderID: o.ID, Status: string(models.StatusCancelled), ActorID: actorID, Reason: reason, At: at,
	}}
}

func LocationEvent(s *models.LocationSample) Event {
	return Event{Kind: EventOrderLocation, Location: &LocationPayload{
		OrderID: s.OrderID, Lat: s.Lat, Lon: s.Lon, Accuracy: s.Accuracy, RecordedAt: s.RecordedAt,
	}}
}

func orderPayload(o *models.Order) *OrderPayload {
	p := &OrderPayload{
		OrderID:   o.ID,
		OrderKind: o.Kind,
		Status:    string(o.Status),
		Pickup:    o.PickupText,
		Dropoff:   o.DropoffText,
		Fee:       o.Fee,
		Urgency:   o.Urgency,
	}
	if o.AssigneeID != nil {
		p.AssigneeID = *o.AssigneeID
	}
	return p
}

func (e Event) String() string { return fmt.Sprintf("event<%s>", e.Kind) }
