package models

import "time"

// Kind distinguishes the two engagement variants. They share one
// lifecycle engine but run different state machines.
type Kind string

const (
	KindDelivery Kind = "delivery"
	KindRide     Kind = "ride"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusPickedUp   Status = "picked_up"
	StatusOnTheWay   Status = "on_the_way"
	StatusDelivered  Status = "delivered"
	StatusArriving   Status = "arriving"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	PasswordHash     string    `json:"-"`
	Verified         bool      `json:"verified"`
	AssigneeEligible bool      `json:"assignee_eligible"`
	RatingAvg        float64   `json:"rating_avg"`
	RatingCount      int       `json:"rating_count"`
	TotalEarnings    float64   `json:"total_earnings"`
	CompletedCount   int       `json:"completed_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Order is the central entity for both deliveries and rides.
// AssigneeID stays nil until acceptance and is immutable afterwards;
// reassignment requires cancellation and a brand-new order.
type Order struct {
	ID          string  `json:"id"`
	Kind        Kind    `json:"kind"`
	RequesterID string  `json:"requester_id"`
	AssigneeID  *string `json:"assignee_id,omitempty"`
	Status      Status  `json:"status"`

	PickupText  string `json:"pickup"`
	DropoffText string `json:"dropoff"`
	PickupLoc   *Coord `json:"pickup_loc,omitempty"`
	DropoffLoc  *Coord `json:"dropoff_loc,omitempty"`
	Notes       string `json:"notes,omitempty"`
	Count       int    `json:"count"`

	Fee float64 `json:"fee"`
	Tip float64 `json:"tip"`

	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	UpdatedAt   time.Time  `json:"updated_at"`

	CancelReason string  `json:"cancel_reason,omitempty"`
	CancelledBy  *string `json:"cancelled_by,omitempty"`

	// Urgency is derived at listing time from wait duration; it is
	// never persisted.
	Urgency string `json:"urgency,omitempty"`
}

// StatusEvent is the append-only audit record of one transition.
type StatusEvent struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	ActorID   *string   `json:"actor_id,omitempty"`
	Loc       *Coord    `json:"loc,omitempty"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type LocationSample struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"order_id"`
	ReporterID string    `json:"reporter_id"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	Accuracy   float64   `json:"accuracy"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Rating is unique per (order, rater, rated) triple.
type Rating struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	RaterID   string    `json:"rater_id"`
	RatedID   string    `json:"rated_id"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// IsParty reports whether user is the requester or the assignee.
func (o *Order) IsParty(userID string) bool {
	if o.RequesterID == userID {
		return true
	}
	return o.AssigneeID != nil && *o.AssigneeID == userID
}

// IsAssignee reports whether user is the bound assignee.
func (o *Order) IsAssignee(userID string) bool {
	return o.AssigneeID != nil && *o.AssigneeID == userID
}
