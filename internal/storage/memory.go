package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/models"
)

// MemoryStore keeps everything in maps behind a single mutex. It
// mirrors the postgres conditional-update semantics exactly, so the
// engine's concurrency tests exercise the same guarantees without a
// database.
type MemoryStore struct {
	mu      sync.Mutex
	txMu    sync.Mutex
	users   map[string]*models.User
	emails  map[string]string
	orders  map[string]*models.Order
	events  map[string][]models.StatusEvent
	samples map[string][]models.LocationSample
	ratings map[string]*models.Rating // keyed by order|rater|rated
	nextID  int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]*models.User),
		emails:  make(map[string]string),
		orders:  make(map[string]*models.Order),
		events:  make(map[string][]models.StatusEvent),
		samples: make(map[string][]models.LocationSample),
		ratings: make(map[string]*models.Rating),
	}
}

// WithTx serializes transactional blocks against each other. All
// mutating paths run through here, which is enough to make the
// multi-statement blocks all-or-nothing observable for tests.
func (m *MemoryStore) WithTx(ctx context.Context, fn func(Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(m)
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emails[u.Email]; ok {
		return fmt.Errorf("%w: email taken", apperr.ErrConflict)
	}
	cp := *u
	m.users[u.ID] = &cp
	m.emails[u.Email] = u.ID
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	id, ok := m.emails[email]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return m.GetUser(ctx, id)
}

func (m *MemoryStore) MarkVerified(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	u.Verified = true
	u.AssigneeEligible = true
	return nil
}

func (m *MemoryStore) CreditCompletion(ctx context.Context, userID string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apperr.ErrNotFound
	}
	u.TotalEarnings += amount
	u.CompletedCount++
	return nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return fmt.Errorf("%w: duplicate order id", apperr.ErrConflict)
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListAvailable(ctx context.Context, excludeUserID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Order
	for _, o := range m.orders {
		if o.Status == models.StatusPending && o.RequesterID != excludeUserID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) HasActiveEngagement(ctx context.Context, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if !isTerminal(o.Status) && (o.RequesterID == userID || (o.AssigneeID != nil && *o.AssigneeID == userID)) {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) AcceptOrder(ctx context.Context, orderID, assigneeID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != models.StatusPending || o.AssigneeID != nil {
		return false, nil
	}
	id := assigneeID
	o.AssigneeID = &id
	o.Status = models.StatusAccepted
	t := at
	o.AcceptedAt = &t
	o.UpdatedAt = at
	return true, nil
}

func (m *MemoryStore) AdvanceOrder(ctx context.Context, orderID string, from, to models.Status, at time.Time, tip float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	t := at
	switch to {
	case models.StatusPickedUp, models.StatusInProgress:
		o.StartedAt = &t
	case models.StatusDelivered, models.StatusCompleted:
		o.CompletedAt = &t
		o.Tip += tip
	}
	return true, nil
}

func (m *MemoryStore) CancelOrder(ctx context.Context, orderID string, from models.Status, reason, actorID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = models.StatusCancelled
	t := at
	o.CancelledAt = &t
	o.UpdatedAt = at
	o.CancelReason = reason
	actor := actorID
	o.CancelledBy = &actor
	return true, nil
}

func (m *MemoryStore) AppendEvent(ctx context.Context, e *models.StatusEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	e.ID = m.nextID
	m.events[e.OrderID] = append(m.events[e.OrderID], *e)
	return nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, orderID string) ([]models.StatusEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.StatusEvent, len(m.events[orderID]))
	copy(out, m.events[orderID])
	return out, nil
}

func (m *MemoryStore) AppendLocation(ctx context.Context, s *models.LocationSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.samples[s.OrderID] = append(m.samples[s.OrderID], *s)
	return nil
}

func (m *MemoryStore) LatestLocation(ctx context.Context, orderID string) (*models.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.samples[orderID]
	if len(arr) == 0 {
		return nil, apperr.ErrNotFound
	}
	best := arr[0]
	for _, s := range arr[1:] {
		if s.RecordedAt.After(best.RecordedAt) || (s.RecordedAt.Equal(best.RecordedAt) && s.ID > best.ID) {
			best = s
		}
	}
	return &best, nil
}

func (m *MemoryStore) LocationHistory(ctx context.Context, orderID string, limit int) ([]models.LocationSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := make([]models.LocationSample, len(m.samples[orderID]))
	copy(arr, m.samples[orderID])
	sort.Slice(arr, func(i, j int) bool {
		if arr[i].RecordedAt.Equal(arr[j].RecordedAt) {
			return arr[i].ID > arr[j].ID
		}
		return arr[i].RecordedAt.After(arr[j].RecordedAt)
	})
	if limit > 0 && len(arr) > limit {
		arr = arr[:limit]
	}
	return arr, nil
}

func (m *MemoryStore) CreateRating(ctx context.Context, r *models.Rating) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := r.OrderID + "|" + r.RaterID + "|" + r.RatedID
	if _, ok := m.ratings[key]; ok {
		return fmt.Errorf("%w: already rated", apperr.ErrConflict)
	}
	m.nextID++
	r.ID = m.nextID
	cp := *r
	m.ratings[key] = &cp
	return nil
}

func (m *MemoryStore) RecomputeUserRating(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return apperr.ErrNotFound
	}
	var sum, n int
	for _, r := range m.ratings {
		if r.RatedID == userID {
			sum += r.Score
			n++
		}
	}
	if n == 0 {
		u.RatingAvg, u.RatingCount = 0, 0
		return nil
	}
	u.RatingAvg = float64(sum) / float64(n)
	u.RatingCount = n
	return nil
}

func isTerminal(s models.Status) bool {
	for _, t := range TerminalStatuses {
		if s == t {
			return true
		}
	}
	return false
}
