package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/db"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/outbox"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/payments"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
)

type Invalidator interface {
	Invalidate(ctx context.Context, ownerID string)
}

// Expirer releases the time held by bookings whose payment never completed.
type Expirer struct {
	pool      *db.Pool
	bookings  *storage.BookingRepository
	outbox    *outbox.Repository
	cache     Invalidator
	payments  payments.Provider
	logger    *slog.Logger
	ttl       time.Duration
	batchSize int
}

type ExpirerConfig struct {
	TTL       time.Duration
	BatchSize int
}

func NewExpirer(pool *db.Pool, bookings *storage.BookingRepository, outboxRepo *outbox.Repository, cache Invalidator, pay payments.Provider, logger *slog.Logger, cfg ExpirerConfig) *Expirer {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Expirer{
		pool:      pool,
		bookings:  bookings,
		outbox:    outboxRepo,
		cache:     cache,
		payments:  pay,
		logger:    logger,
		ttl:       cfg.TTL,
		batchSize: cfg.BatchSize,
	}
}

// RunOnce expires one batch of bookings whose payment window has closed. Only one replica does
// the work per tick; the others see the advisory lock taken and return.
func (e *Expirer) RunOnce(ctx context.Context) error {
	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var locked bool
	if err := tx.QueryRow(ctx, `SELECT pg_try_advisory_xact_lock(hashtextextended('booking:expire-pending', 0))`).Scan(&locked); err != nil {
		return fmt.Errorf("expiry lock: %w", err)
	}
	if !locked {
		return nil
	}

	now := time.Now().UTC()
	due, err := e.bookings.DuePending(ctx, tx, now, e.ttl, e.batchSize)
	if err != nil {
		return fmt.Errorf("due pending: %w", err)
	}
	var expired []model.Booking
	for _, b := range due {
		if !e.closeCheckout(ctx, b) {
			continue
		}
		at, err := e.bookings.Cancel(ctx, tx, b.ID, model.StatusExpired, expiredReason)
		if err != nil {
			return fmt.Errorf("expire booking %s: %w", b.ID, err)
		}
		b.Status = model.StatusExpired
		b.CancelledAt = &at
		b.CancelReason = expiredReason
		evt, err := outbox.BookingEvent(outbox.EventBookingExpired, b, now)
		if err != nil {
			return err
		}
		if err := e.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("outbox insert: %w", err)
		}
		expired = append(expired, b)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	owners := map[string]struct{}{}
	for _, b := range expired {
		if _, seen := owners[b.OwnerID]; seen {
			continue
		}
		owners[b.OwnerID] = struct{}{}
		e.cache.Invalidate(ctx, b.OwnerID)
	}
	if len(expired) > 0 {
		e.logger.Info("pending bookings expired", "count", len(expired))
	}
	return nil
}

const expiredReason = "payment not completed"

// closeCheckout reports whether b's time can be released. The checkout session is closed first
// so a customer cannot pay for a slot someone else may take. A session that was paid in the
// meantime keeps the booking pending until the completion webhook confirms it.
func (e *Expirer) closeCheckout(ctx context.Context, b model.Booking) bool {
	if b.CheckoutSession == "" {
		return true
	}
	err := e.payments.ExpireCheckout(ctx, b.CheckoutSession)
	switch {
	case err == nil:
		return true
	case errors.Is(err, payments.ErrCheckoutCompleted):
		e.logger.Info("pending booking paid before expiry", "booking_id", b.ID, "session_id", b.CheckoutSession)
		return false
	default:
		e.logger.Warn("checkout session expire failed; retrying next run", "booking_id", b.ID, "err", err)
		return false
	}
}
