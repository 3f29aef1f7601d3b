package location

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/lifecycle"
	"github.com/example/campus-dispatch/internal/models"
	"github.com/example/campus-dispatch/internal/observability"
	"github.com/example/campus-dispatch/internal/realtime"
	"github.com/example/campus-dispatch/internal/storage"
)

// StreamProducer is optional; samples still persist and broadcast
// when no kafka pipeline is configured.
type StreamProducer interface {
	Publish(s models.LocationSample) error
}

// Service is the append-only location channel. Writes re-validate
// assignment and order status at record time, so stale or spoofed
// broadcasts after cancellation or completion are impossible.
type Service struct {
	store    storage.Store
	pub      lifecycle.Publisher
	producer StreamProducer
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(store storage.Store, pub lifecycle.Publisher, producer StreamProducer, logger *slog.Logger) *Service {
	return &Service{store: store, pub: pub, producer: producer, logger: logger, now: time.Now}
}

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// Record accepts one position sample from the active assignee of a
// trackable order.
func (s *Service) Record(ctx context.Context, reporterID, orderID string, lat, lon, accuracy float64) (*models.LocationSample, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: coordinates out of range", apperr.ErrValidation)
	}
	if accuracy < 0 {
		return nil, fmt.Errorf("%w: accuracy must not be negative", apperr.ErrValidation)
	}
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.IsAssignee(reporterID) {
		return nil, fmt.Errorf("%w: only the assigned party may report location", apperr.ErrUnauthorized)
	}
	if o.Status == models.StatusPending || lifecycle.IsTerminal(o.Status) {
		return nil, fmt.Errorf("%w: order is not trackable in status %s", apperr.ErrConflict, o.Status)
	}

	sample := &models.LocationSample{
		OrderID:    orderID,
		ReporterID: reporterID,
		Lat:        lat,
		Lon:        lon,
		Accuracy:   accuracy,
		RecordedAt: s.now(),
	}
	if err := s.store.AppendLocation(ctx, sample); err != nil {
		return nil, err
	}
	observability.LocationSamples.Inc()
	s.pub.Publish(realtime.OrderTopic(o.Kind, o.ID), realtime.LocationEvent(sample))
	if s.producer != nil {
		if err := s.producer.Publish(*sample); err != nil {
			// tracking pipeline is best-effort; the sample is durable
			s.logger.Warn("location stream publish failed", "order_id", orderID, "error", err)
		}
	}
	return sample, nil
}

// Latest returns the most recent sample, parties only. Unauthorized
// callers get a rejection, never an empty result.
func (s *Service) Latest(ctx context.Context, callerID, orderID string) (*models.LocationSample, error) {
	if err := s.authorizeRead(ctx, callerID, orderID); err != nil {
		return nil, err
	}
	return s.store.LatestLocation(ctx, orderID)
}

// History returns up to limit samples, most recent first.
func (s *Service) History(ctx context.Context, callerID, orderID string, limit int) ([]models.LocationSample, error) {
	if err := s.authorizeRead(ctx, callerID, orderID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return s.store.LocationHistory(ctx, orderID, limit)
}

func (s *Service) authorizeRead(ctx context.Context, callerID, orderID string) error {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.IsParty(callerID) {
		return fmt.Errorf("%w: not a party to this order", apperr.ErrUnauthorized)
	}
	return nil
}
