package storage

import (
	"context"
	"time"

	"github.com/example/campus-dispatch/internal/models"
)

// Store defines persistence operations for users, orders and their
// satellite records. The conditional mutators (AcceptOrder,
// AdvanceOrder, CancelOrder) report success through their bool
// return: false means the guard row predicate did not match, i.e.
// a concurrent writer got there first. Callers turn that into a
// conflict, never into a retry loop with stale state.
type Store interface {
	// WithTx runs fn against a transactional view of the store.
	// Every multi-row consistency update (accept + event, complete +
	// earnings credit, rating + recompute) goes through here.
	WithTx(ctx context.Context, fn func(Store) error) error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	MarkVerified(ctx context.Context, id string) error
	CreditCompletion(ctx context.Context, userID string, amount float64) error

	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListAvailable(ctx context.Context, excludeUserID string) ([]models.Order, error)
	HasActiveEngagement(ctx context.Context, userID string) (bool, error)

	// AcceptOrder binds assignee to a still-pending, unassigned
	// order. The check and the write are one atomic statement.
	AcceptOrder(ctx context.Context, orderID, assigneeID string, at time.Time) (bool, error)
	// AdvanceOrder moves the order from exactly `from` to `to`,
	// stamping the transition timestamp. Tip is applied only on the
	// completing transition.
	AdvanceOrder(ctx context.Context, orderID string, from, to models.Status, at time.Time, tip float64) (bool, error)
	CancelOrder(ctx context.Context, orderID string, from models.Status, reason, actorID string, at time.Time) (bool, error)

	AppendEvent(ctx context.Context, e *models.StatusEvent) error
	ListEvents(ctx context.Context, orderID string) ([]models.StatusEvent, error)

	AppendLocation(ctx context.Context, s *models.LocationSample) error
	LatestLocation(ctx context.Context, orderID string) (*models.LocationSample, error)
	LocationHistory(ctx context.Context, orderID string, limit int) ([]models.LocationSample, error)

	CreateRating(ctx context.Context, r *models.Rating) error
	// RecomputeUserRating recomputes the denormalized average from
	// the full rating set. Full recompute, not incremental, so the
	// stored aggregate can never drift.
	RecomputeUserRating(ctx context.Context, userID string) error
}

// TerminalStatuses are states no transition leaves.
var TerminalStatuses = []models.Status{
	models.StatusDelivered,
	models.StatusCompleted,
	models.StatusCancelled,
}
