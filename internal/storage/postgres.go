package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/example/campus-dispatch/internal/apperr"
	"github.com/example/campus-dispatch/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx so the same
// query methods serve plain and transactional calls.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db *sql.DB
	q  queryer
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, q: db}
}

func (p *PostgresStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := p.q.(*sql.Tx); ok {
		// already inside a transaction; reuse it
		return fn(p)
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classify(err))
	}
	if err := fn(&PostgresStore{db: p.db, q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", classify(err))
	}
	return nil
}

func (p *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, verified, assignee_eligible, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Verified, u.AssigneeEligible, u.CreatedAt)
	if err != nil {
		return fmt.Errorf("create user: %w", classify(err))
	}
	return nil
}

func (p *PostgresStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	return p.scanUser(p.q.QueryRowContext(ctx, userColumns+` WHERE id=$1`, id))
}

func (p *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return p.scanUser(p.q.QueryRowContext(ctx, userColumns+` WHERE email=$1`, email))
}

const userColumns = `
	SELECT id, email, name, password_hash, verified, assignee_eligible,
	       rating_avg, rating_count, total_earnings, completed_count, created_at
	FROM users`

func (p *PostgresStore) scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Verified, &u.AssigneeEligible,
		&u.RatingAvg, &u.RatingCount, &u.TotalEarnings, &u.CompletedCount, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", classify(err))
	}
	return &u, nil
}

func (p *PostgresStore) MarkVerified(ctx context.Context, id string) error {
	res, err := p.q.ExecContext(ctx, `UPDATE users SET verified=true, assignee_eligible=true WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("mark verified: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CreditCompletion(ctx context.Context, userID string, amount float64) error {
	res, err := p.q.ExecContext(ctx, `
		UPDATE users SET total_earnings = total_earnings + $1,
		                 completed_count = completed_count + 1
		WHERE id=$2`, amount, userID)
	if err != nil {
		return fmt.Errorf("credit completion: %w", classify(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) CreateOrder(ctx context.Context, o *models.Order) error {
	var pLat, pLon, dLat, dLon *float64
	if o.PickupLoc != nil {
		pLat, pLon = &o.PickupLoc.Lat, &o.PickupLoc.Lon
	}
	if o.DropoffLoc != nil {
		dLat, dLon = &o.DropoffLoc.Lat, &o.DropoffLoc.Lon
	}
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO orders (id, kind, requester_id, status,
			pickup_text, dropoff_text, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
			notes, item_count, fee, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$14)`,
		o.ID, string(o.Kind), o.RequesterID, string(o.Status),
		o.PickupText, o.DropoffText, pLat, pLon, dLat, dLon,
		o.Notes, o.Count, o.Fee, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order: %w", classify(err))
	}
	return nil
}

const orderColumns = `
	SELECT id, kind, requester_id, assignee_id, status,
	       pickup_text, dropoff_text, pickup_lat, pickup_lon, dropoff_lat, dropoff_lon,
	       notes, item_count, fee, tip,
	       created_at, accepted_at, started_at, completed_at, cancelled_at, updated_at,
	       cancel_reason, cancelled_by
	FROM orders`

func (p *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	rows, err := p.q.QueryContext(ctx, orderColumns+` WHERE id=$1`, id)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", classify(err))
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("get order: %w", classify(err))
		}
		return nil, apperr.ErrNotFound
	}
	return scanOrder(rows)
}

func scanOrder(rows *sql.Rows) (*models.Order, error) {
	var o models.Order
	var assignee, cancelledBy, cancelReason sql.NullString
	var pLat, pLon, dLat, dLon sql.NullFloat64
	var acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime
	err := rows.Scan(&o.ID, &o.Kind, &o.RequesterID, &assignee, &o.Status,
		&o.PickupText, &o.DropoffText, &pLat, &pLon, &dLat, &dLon,
		&o.Notes, &o.Count, &o.Fee, &o.Tip,
		&o.CreatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt, &o.UpdatedAt,
		&cancelReason, &cancelledBy)
	if err != nil {
		return nil, fmt.Errorf("scan order: %w", classify(err))
	}
	if assignee.Valid {
		o.AssigneeID = &assignee.String
	}
	if cancelledBy.Valid {
		o.CancelledBy = &cancelledBy.String
	}
	o.CancelReason = cancelReason.String
	if pLat.Valid && pLon.Valid {
		o.PickupLoc = &models.Coord{Lat: pLat.Float64, Lon: pLon.Float64}
	}
	if dLat.Valid && dLon.Valid {
		o.DropoffLoc = &models.Coord{Lat: dLat.Float64, Lon: dLon.Float64}
	}
	o.AcceptedAt = timePtr(acceptedAt)
	o.StartedAt = timePtr(startedAt)
	o.CompletedAt = timePtr(completedAt)
	o.CancelledAt = timePtr(cancelledAt)
	return &o, nil
}

// ListAvailable returns pending orders not owned by the caller,
// oldest first so the longest-waiting request surfaces on top.
func (p *PostgresStore) ListAvailable(ctx context.Context, excludeUserID string) ([]models.Order, error) {
	rows, err := p.q.QueryContext(ctx,
		orderColumns+` WHERE status='pending' AND requester_id <> $1 ORDER BY created_at ASC`,
		excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("list available: %w", classify(err))
	}
	defer rows.Close()
	var out []models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list available: %w", classify(err))
	}
	return out, nil
}

func (p *PostgresStore) HasActiveEngagement(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := p.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM orders
			WHERE (requester_id=$1 OR assignee_id=$1)
			  AND status NOT IN ('delivered','completed','cancelled')
		)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("active engagement: %w", classify(err))
	}
	return exists, nil
}

// AcceptOrder is the single-assignment guarantee. The pending and
// unassigned predicates live in the same UPDATE as the write, so of
// N concurrent attempts exactly one sees RowsAffected==1.
func (p *PostgresStore) AcceptOrder(ctx context.Context, orderID, assigneeID string, at time.Time) (bool, error) {
	res, err := p.q.ExecContext(ctx, `
		UPDATE orders SET assignee_id=$1, status='accepted', accepted_at=$2, updated_at=$2
		WHERE id=$3 AND status='pending' AND assignee_id IS NULL`,
		assigneeID, at, orderID)
	if err != nil {
		return false, fmt.Errorf("accept order: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("accept order: %w", classify(err))
	}
	return n == 1, nil
}

func (p *PostgresStore) AdvanceOrder(ctx context.Context, orderID string, from, to models.Status, at time.Time, tip float64) (bool, error) {
	res, err := p.q.ExecContext(ctx, `
		UPDATE orders SET status=$1, updated_at=$2,
			started_at   = CASE WHEN $1 IN ('picked_up','in_progress') THEN $2 ELSE started_at END,
			completed_at = CASE WHEN $1 IN ('delivered','completed') THEN $2 ELSE completed_at END,
			tip          = CASE WHEN $1 IN ('delivered','completed') THEN tip + $3 ELSE tip END
		WHERE id=$4 AND status=$5`,
		string(to), at, tip, orderID, string(from))
	if err != nil {
		return false, fmt.Errorf("advance order: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advance order: %w", classify(err))
	}
	return n == 1, nil
}

func (p *PostgresStore) CancelOrder(ctx context.Context, orderID string, from models.Status, reason, actorID string, at time.Time) (bool, error) {
	res, err := p.q.ExecContext(ctx, `
		UPDATE orders SET status='cancelled', cancelled_at=$1, updated_at=$1,
			cancel_reason=$2, cancelled_by=$3
		WHERE id=$4 AND status=$5`,
		at, reason, actorID, orderID, string(from))
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", classify(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", classify(err))
	}
	return n == 1, nil
}

func (p *PostgresStore) AppendEvent(ctx context.Context, e *models.StatusEvent) error {
	var lat, lon *float64
	if e.Loc != nil {
		lat, lon = &e.Loc.Lat, &e.Loc.Lon
	}
	_, err := p.q.ExecContext(ctx, `
		INSERT INTO order_status_events (order_id, status, actor_id, lat, lon, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.OrderID, string(e.Status), e.ActorID, lat, lon, e.Note, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", classify(err))
	}
	return nil
}

func (p *PostgresStore) ListEvents(ctx context.Context, orderID string) ([]models.StatusEvent, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT id, order_id, status, actor_id, lat, lon, note, created_at
		FROM order_status_events WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", classify(err))
	}
	defer rows.Close()
	var out []models.StatusEvent
	for rows.Next() {
		var e models.StatusEvent
		var actor sql.NullString
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&e.ID, &e.OrderID, &e.Status, &actor, &lat, &lon, &e.Note, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", classify(err))
		}
		if actor.Valid {
			e.ActorID = &actor.String
		}
		if lat.Valid && lon.Valid {
			e.Loc = &models.Coord{Lat: lat.Float64, Lon: lon.Float64}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list events: %w", classify(err))
	}
	return out, nil
}

func (p *PostgresStore) AppendLocation(ctx context.Context, s *models.LocationSample) error {
	err := p.q.QueryRowContext(ctx, `
		INSERT INTO location_samples (order_id, reporter_id, lat, lon, accuracy, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		s.OrderID, s.ReporterID, s.Lat, s.Lon, s.Accuracy, s.RecordedAt).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("append location: %w", classify(err))
	}
	return nil
}

func (p *PostgresStore) LatestLocation(ctx context.Context, orderID string) (*models.LocationSample, error) {
	var s models.LocationSample
	err := p.q.QueryRowContext(ctx, `
		SELECT id, order_id, reporter_id, lat, lon, accuracy, recorded_at
		FROM location_samples WHERE order_id=$1
		ORDER BY recorded_at DESC, id DESC LIMIT 1`, orderID).
		Scan(&s.ID, &s.OrderID, &s.ReporterID, &s.Lat, &s.Lon, &s.Accuracy, &s.RecordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest location: %w", classify(err))
	}
	return &s, nil
}

func (p *PostgresStore) LocationHistory(ctx context.Context, orderID string, limit int) ([]models.LocationSample, error) {
	rows, err := p.q.QueryContext(ctx, `
		SELECT id, order_id, reporter_id, lat, lon, accuracy, recorded_at
		FROM location_samples WHERE order_id=$1
		ORDER BY recorded_at DESC, id DESC LIMIT $2`, orderID, limit)
	if err != nil {
		return nil, fmt.Errorf("location history: %w", classify(err))
	}
	defer rows.Close()
	var out []models.LocationSample
	for rows.Next() {
		var s models.LocationSample
		if err := rows.Scan(&s.ID, &s.OrderID, &s.ReporterID, &s.Lat, &s.Lon, &s.Accuracy, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan location: %w", classify(err))
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("location history: %w", classify(err))
	}
	return out, nil
}

func (p *PostgresStore) CreateRating(ctx context.Context, r *models.Rating) error {
	err := p.q.QueryRowContext(ctx, `
		INSERT INTO ratings (order_id, rater_id, rated_id, score, comment, created_at)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		r.OrderID, r.RaterID, r.RatedID, r.Score, r.Comment, r.CreatedAt).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create rating: %w", classify(err))
	}
	return nil
}

func (p *PostgresStore) RecomputeUserRating(ctx context.Context, userID string) error {
	_, err := p.q.ExecContext(ctx, `
		UPDATE users SET
			rating_avg   = COALESCE((SELECT AVG(score)::float8 FROM ratings WHERE rated_id=$1), 0),
			rating_count = (SELECT COUNT(*) FROM ratings WHERE rated_id=$1)
		WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("recompute rating: %w", classify(err))
	}
	return nil
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// classify maps driver-level failures onto the shared taxonomy:
// unique violations become conflicts, connection-level failures
// become retryable transients.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", apperr.ErrConflict, pqErr.Constraint)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: %s", apperr.ErrNotFound, pqErr.Constraint)
		}
		if pqErr.Code.Class() == "08" { // connection exceptions
			return fmt.Errorf("%w: %v", apperr.ErrTransient, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", apperr.ErrTransient, err)
	}
	return err
}
