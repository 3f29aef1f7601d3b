package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/estimate"
	"github.com/example/campus-dispatch/internal/models"
	"github.com/example/campus-dispatch/internal/observability"
	"github.com/example/campus-dispatch/internal/realtime"
	"github.com/example/campus-dispatch/internal/storage"
)

// Publisher is the slice of the fan-out hub the engine needs.
type Publisher interface {
	Publish(topic string, ev realtime.Event)
}

// Engine validates and applies lifecycle transitions. Every
// mutation runs inside one store transaction; events are published
// only after the transaction commits.
type Engine struct {
	store  storage.Store
	pub    Publisher
	est    estimate.Estimator // optional
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(store storage.Store, pub Publisher, est estimate.Estimator, logger *slog.Logger) *Engine {
	return &Engine{store: store, pub: pub, est: est, logger: logger, now: time.Now}
}

type RequestInput struct {
	Kind       models.Kind
	Pickup     string
	Dropoff    string
	PickupLoc  *models.Coord
	DropoffLoc *models.Coord
	Notes      string
	Count      int
	Fee        float64
}

func (in *RequestInput) validate() error {
	if in.Kind != models.KindDelivery && in.Kind != models.KindRide {
		return fmt.Errorf("%w: unknown kind %q", apperr.ErrValidation, in.Kind)
	}
	if in.Pickup == "" || in.Dropoff == "" {
		return fmt.Errorf("%w: pickup and dropoff are required", apperr.ErrValidation)
	}
	if in.Count < 0 {
		return fmt.Errorf("%w: count must not be negative", apperr.ErrValidation)
	}
	if in.Fee < 0 {
		return fmt.Errorf("%w: fee must not be negative", apperr.ErrValidation)
	}
	for _, c := range []*models.Coord{in.PickupLoc, in.DropoffLoc} {
		if c == nil {
			continue
		}
		if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
			return fmt.Errorf("%w: coordinates out of range", apperr.ErrValidation)
		}
	}
	return nil
}

// Request creates a pending order. A requester may hold at most one
// active engagement at a time.
func (e *Engine) Request(ctx context.Context, requesterID string, in RequestInput) (*models.Order, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if in.Count == 0 {
		in.Count = 1
	}
	now := e.now()
	o := &models.Order{
		ID:          uuid.NewString(),
		Kind:        in.Kind,
		RequesterID: requesterID,
		Status:      models.StatusPending,
		PickupText:  in.Pickup,
		DropoffText: in.Dropoff,
		PickupLoc:   in.PickupLoc,
		DropoffLoc:  in.DropoffLoc,
		Notes:       in.Notes,
		Count:       in.Count,
		Fee:         in.Fee,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := e.store.WithTx(ctx, func(tx storage.Store) error {
		active, err := tx.HasActiveEngagement(ctx, requesterID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: requester already has an active engagement", apperr.ErrConflict)
		}
		if err := tx.CreateOrder(ctx, o); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, &models.StatusEvent{
			OrderID: o.ID, Status: models.StatusPending, ActorID: &o.RequesterID, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}
	observability.OrdersCreated.WithLabelValues(string(o.Kind)).Inc()
	e.pub.Publish(realtime.PoolTopic, realtime.NewRequestEvent(o))
	e.logger.Info("engagement requested", "order_id", o.ID, "kind", o.Kind, "requester", requesterID)
	return o, nil
}

// ListAvailable returns pending orders not owned by the caller,
// oldest first, annotated with a wait-derived urgency tier.
func (e *Engine) ListAvailable(ctx context.Context, callerID string) ([]models.Order, error) {
	orders, err := e.store.ListAvailable(ctx, callerID)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range orders {
		orders[i].Urgency = UrgencyFor(now.Sub(orders[i].CreatedAt))
	}
	return orders, nil
}

// Accept binds the caller as assignee. Of N concurrent attempts on
// one pending order exactly one wins; the rest observe a conflict.
func (e *Engine) Accept(ctx context.Context, orderID, userID string) (*models.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.RequesterID == userID {
		return nil, fmt.Errorf("%w: cannot accept your own request", apperr.ErrValidation)
	}
	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.AssigneeEligible {
		return nil, fmt.Errorf("%w: not eligible to accept requests", apperr.ErrUnauthorized)
	}
	now := e.now()
	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		active, err := tx.HasActiveEngagement(ctx, userID)
		if err != nil {
			return err
		}
		if active {
			return fmt.Errorf("%w: already holding an active engagement", apperr.ErrConflict)
		}
		ok, err := tx.AcceptOrder(ctx, orderID, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			observability.AcceptConflicts.Inc()
			return fmt.Errorf("%w: no longer available", apperr.ErrConflict)
		}
		return tx.AppendEvent(ctx, &models.StatusEvent{
			OrderID: orderID, Status: models.StatusAccepted, ActorID: &userID, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	o.AssigneeID = &userID
	o.Status = models.StatusAccepted
	o.AcceptedAt = &now
	o.UpdatedAt = now

	var etaSec float64
	if e.est != nil && o.PickupLoc != nil && o.DropoffLoc != nil {
		if v, err := e.est.EstimateSeconds(*o.PickupLoc, *o.DropoffLoc); err == nil {
			etaSec = v
		}
	}

	observability.OrdersAccepted.WithLabelValues(string(o.Kind)).Inc()
	e.pub.Publish(realtime.OrderTopic(o.Kind, o.ID), realtime.AcceptedEvent(o, etaSec))
	e.pub.Publish(realtime.PoolTopic, realtime.TakenEvent(o))
	e.logger.Info("engagement accepted", "order_id", o.ID, "assignee", userID)
	return o, nil
}

// Advance moves the order to target. Only the bound assignee may
// advance forward states; each target is legal from exactly its
// listed predecessor. On the completing transition the assignee's
// earnings and completion counters are credited in the same
// transaction.
func (e *Engine) Advance(ctx context.Context, orderID, userID string, target models.Status, tip float64, loc *models.Coord, note string) (*models.Order, error) {
	if target == models.StatusCancelled {
		return nil, fmt.Errorf("%w: use cancel for cancellation", apperr.ErrValidation)
	}
	if tip < 0 {
		return nil, fmt.Errorf("%w: tip must not be negative", apperr.ErrValidation)
	}
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ValidTarget(o.Kind, target) || target == models.StatusPending {
		return nil, fmt.Errorf("%w: %q is not a %s status", apperr.ErrValidation, target, o.Kind)
	}
	if !o.IsAssignee(userID) {
		return nil, fmt.Errorf("%w: only the assignee may advance status", apperr.ErrUnauthorized)
	}
	if !CanTransition(o.Kind, o.Status, target) {
		return nil, fmt.Errorf("%w: cannot move from %s to %s", apperr.ErrConflict, o.Status, target)
	}
	completing := target == CompletingStatus(o.Kind)
	if tip > 0 && !completing {
		return nil, fmt.Errorf("%w: tip is only accepted on completion", apperr.ErrValidation)
	}

	now := e.now()
	from := o.Status
	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		ok, err := tx.AdvanceOrder(ctx, orderID, from, target, now, tip)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order is no longer %s", apperr.ErrConflict, from)
		}
		if err := tx.AppendEvent(ctx, &models.StatusEvent{
			OrderID: orderID, Status: target, ActorID: &userID, Loc: loc, Note: note, CreatedAt: now,
		}); err != nil {
			return err
		}
		if completing {
			return tx.CreditCompletion(ctx, userID, o.Fee+tip)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.Status = target
	o.UpdatedAt = now
	switch target {
	case models.StatusPickedUp, models.StatusInProgress:
		o.StartedAt = &now
	case models.StatusDelivered, models.StatusCompleted:
		o.CompletedAt = &now
		o.Tip += tip
	}
	if completing {
		observability.OrdersCompleted.WithLabelValues(string(o.Kind)).Inc()
		duration := time.Duration(0)
		if o.AcceptedAt != nil {
			duration = now.Sub(*o.AcceptedAt)
		}
		e.logger.Info("engagement completed",
			"order_id", o.ID, "assignee", userID,
			"duration_s", duration.Seconds(), "earnings", o.Fee+tip)
	}
	e.pub.Publish(realtime.OrderTopic(o.Kind, o.ID), realtime.StatusEvent(o, userID, now))
	return o, nil
}

// Cancel is legal from any non-terminal state and only for a party
// to the order.
func (e *Engine) Cancel(ctx context.Context, orderID, userID, reason string) (*models.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(userID) {
		return nil, fmt.Errorf("%w: only a party may cancel", apperr.ErrUnauthorized)
	}
	if IsTerminal(o.Status) {
		return nil, fmt.Errorf("%w: order already %s", apperr.ErrConflict, o.Status)
	}

	now := e.now()
	from := o.Status
	err = e.store.WithTx(ctx, func(tx storage.Store) error {
		ok, err := tx.CancelOrder(ctx, orderID, from, reason, userID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: order is no longer %s", apperr.ErrConflict, from)
		}
		return tx.AppendEvent(ctx, &models.StatusEvent{
			OrderID: orderID, Status: models.StatusCancelled, ActorID: &userID, Note: reason, CreatedAt: now,
		})
	})
	if err != nil {
		return nil, err
	}

	o.Status = models.StatusCancelled
	o.CancelledAt = &now
	o.UpdatedAt = now
	o.CancelReason = reason
	o.CancelledBy = &userID

	observability.OrdersCancelled.WithLabelValues(string(o.Kind)).Inc()
	e.pub.Publish(realtime.OrderTopic(o.Kind, o.ID), realtime.CancelledEvent(o, userID, reason, now))
	if from == models.StatusPending {
		// stop the pool from surfacing it as available
		e.pub.Publish(realtime.PoolTopic, realtime.TakenEvent(o))
	}
	e.logger.Info("engagement cancelled", "order_id", o.ID, "by", userID, "reason", reason)
	return o, nil
}

// Get returns the order to a party; pending orders are visible to
// any authenticated caller so the available listing can be drilled
// into.
func (e *Engine) Get(ctx context.Context, orderID, userID string) (*models.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status != models.StatusPending && !o.IsParty(userID) {
		return nil, fmt.Errorf("%w: not a party to this order", apperr.ErrUnauthorized)
	}
	return o, nil
}

// History returns the full transition audit trail, parties only.
func (e *Engine) History(ctx context.Context, orderID, userID string) ([]models.StatusEvent, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(userID) {
		return nil, fmt.Errorf("%w: not a party to this order", apperr.ErrUnauthorized)
	}
	return e.store.ListEvents(ctx, orderID)
}
