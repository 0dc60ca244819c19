package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/db"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	Scope           string
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockOwner serializes booking writes for one owner until tx ends.
func (r *BookingRepository) LockOwner(ctx context.Context, tx pgx.Tx, ownerID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "booking:"+ownerID)
	return err
}

// LockIdempotencyKey returns the stored record (exists=true) or reserves the key. The row stays
// locked until tx ends so concurrent retries wait for the first attempt.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, scope, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, scope, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (scope, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (scope, idempotency_key) DO NOTHING
	`, scope, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, scope, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, scope, key, bookingID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = NULLIF($3, '')::uuid,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE scope = $1 AND idempotency_key = $2
	`, scope, key, bookingID, statusCode, response)
	return err
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO bookings
			(event_type_id, owner_id, invitee_name, invitee_email, invitee_timezone, notes,
			 start_time, end_time, status, manage_token_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id::text
	`, b.EventTypeID, b.OwnerID, b.InviteeName, b.InviteeEmail, b.InviteeTimezone, b.Notes,
		b.StartTime, b.EndTime, b.Status, b.ManageTokenHash).Scan(&id)
	if err != nil {
		return "", err
	}
	b.ID = id
	return id, nil
}

func (r *BookingRepository) SetCheckoutSession(ctx context.Context, tx pgx.Tx, bookingID, sessionID string, expiresAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings
		SET checkout_session_id = $2, checkout_expires_at = $3, updated_at = now()
		WHERE id = $1
	`, bookingID, sessionID, expiresAt)
	return err
}

const bookingColumns = `
	id::text, event_type_id::text, owner_id, invitee_name, invitee_email, invitee_timezone, notes,
	start_time, end_time, status, manage_token_hash, COALESCE(checkout_session_id, ''),
	checkout_expires_at, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanBooking(row pgx.Row) (model.Booking, error) {
	var b model.Booking
	err := row.Scan(
		&b.ID,
		&b.EventTypeID,
		&b.OwnerID,
		&b.InviteeName,
		&b.InviteeEmail,
		&b.InviteeTimezone,
		&b.Notes,
		&b.StartTime,
		&b.EndTime,
		&b.Status,
		&b.ManageTokenHash,
		&b.CheckoutSession,
		&b.CheckoutExpiresAt,
		&b.CancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
	)
	return b, err
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, bookingID))
	if err != nil {
		return model.Booking{}, notFound(err)
	}
	return b, nil
}

func (r *BookingRepository) GetBySessionForUpdate(ctx context.Context, tx pgx.Tx, sessionID string) (model.Booking, error) {
	b, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE checkout_session_id = $1 FOR UPDATE`, sessionID))
	if err != nil {
		return model.Booking{}, notFound(err)
	}
	return b, nil
}

// Cancel moves a booking to status (cancelled or expired) and returns the cancellation time.
func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, bookingID, status, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
			cancelled_at = now(),
			cancellation_reason = NULLIF($3, ''),
			updated_at = now()
		WHERE id = $1
		RETURNING cancelled_at
	`, bookingID, status, reason).Scan(&cancelledAt)
	return cancelledAt, notFound(err)
}

func (r *BookingRepository) Confirm(ctx context.Context, tx pgx.Tx, bookingID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET status = 'booked', updated_at = now()
		WHERE id = $1 AND status = 'pending_payment'
	`, bookingID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BookingRepository) Reschedule(ctx context.Context, tx pgx.Tx, bookingID string, start, end time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE bookings SET start_time = $2, end_time = $3, updated_at = now()
		WHERE id = $1
	`, bookingID, start, end)
	return err
}

// DuePending locks pending_payment bookings whose payment window has closed: the checkout
// session's expiry when one was opened, created_at + ttl otherwise. Rows locked by another
// transaction are skipped.
func (r *BookingRepository) DuePending(ctx context.Context, tx pgx.Tx, now time.Time, ttl time.Duration, limit int) ([]model.Booking, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'pending_payment'
			AND COALESCE(checkout_expires_at, created_at + make_interval(secs => $2)) <= $1
		ORDER BY created_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`, now, ttl.Seconds(), limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

// BookedIntervals returns the intervals of an owner's active bookings overlapping [from, to].
// excludeID skips one booking (used when rescheduling it).
func (r *BookingRepository) BookedIntervals(ctx context.Context, ownerID string, from, to time.Time, excludeID string) ([]availability.BookedInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM bookings
		WHERE owner_id = $1
			AND status IN ('booked', 'pending_payment')
			AND start_time <= $3
			AND end_time >= $2
			AND ($4 = '' OR id::text <> $4)
		ORDER BY start_time
	`, ownerID, from, to, excludeID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (availability.BookedInterval, error) {
		var b availability.BookedInterval
		err := row.Scan(&b.Start, &b.End)
		return b, err
	})
}

func (r *BookingRepository) ListByOwner(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]model.Booking, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE owner_id = $1 AND start_time >= $2 AND start_time < $3
		ORDER BY start_time DESC
		LIMIT $4
	`, ownerID, from, to, limit)
	if err != nil {
		return nil, err
	}
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Booking, error) {
		return scanBooking(row)
	})
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, scope, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT scope,
			idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE scope = $1 AND idempotency_key = $2
		FOR UPDATE
	`, scope, key).Scan(
		&rec.Scope,
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
