// Package rating records one evaluation per (order, rater, rated)
// triple and keeps the denormalized average on the rated user in
// sync by full recompute inside the same transaction.
package rating

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/lifecycle"
	"github.com/example/campus-dispatch/internal/models"
	"github.com/example/campus-dispatch/internal/storage"
)

type Service struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store storage.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger, now: time.Now}
}

// Rate evaluates the counterparty of a completed order. The unique
// constraint on (order, rater, rated) turns a second attempt into a
// conflict.
func (s *Service) Rate(ctx context.Context, raterID, orderID string, score int, comment string) (*models.Rating, error) {
	if score < 1 || score > 5 {
		return nil, fmt.Errorf("%w: score must be between 1 and 5", apperr.ErrValidation)
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsParty(raterID) {
		return nil, fmt.Errorf("%w: not a party to this order", apperr.ErrUnauthorized)
	}
	if o.Status != lifecycle.CompletingStatus(o.Kind) {
		return nil, fmt.Errorf("%w: order is not completed", apperr.ErrConflict)
	}

	// the rated party is the other side of the order
	var ratedID string
	if o.RequesterID == raterID {
		ratedID = *o.AssigneeID
	} else {
		ratedID = o.RequesterID
	}

	r := &models.Rating{
		OrderID:   orderID,
		RaterID:   raterID,
		RatedID:   ratedID,
		Score:     score,
		Comment:   comment,
		CreatedAt: s.now(),
	}
	err = s.store.WithTx(ctx, func(tx storage.Store) error {
		if err := tx.CreateRating(ctx, r); err != nil {
			return err
		}
		return tx.RecomputeUserRating(ctx, ratedID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("rating recorded", "order_id", orderID, "rater", raterID, "rated", ratedID, "score", score)
	return r, nil
}
