package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/httpx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/outbox"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

type WebhookConfig struct {
	Secret    string
	Tolerance time.Duration
}

type WebhookHandler struct {
	repo         *storage.BookingRepository
	outboxRepo   *outbox.Repository
	availability Availability
	cfg          WebhookConfig
	logger       *slog.Logger
	now          func() time.Time
}

func NewWebhookHandler(repo *storage.BookingRepository, outboxRepo *outbox.Repository, a Availability, cfg WebhookConfig, logger *slog.Logger) *WebhookHandler {
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = webhook.DefaultTolerance
	}
	return &WebhookHandler{repo: repo, outboxRepo: outboxRepo, availability: a, cfg: cfg, logger: logger, now: time.Now}
}

// Stripe handles checkout webhooks. The signature is the only authentication.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if strings.TrimSpace(h.cfg.Secret) == "" {
		httpx.WriteError(w, http.StatusServiceUnavailable, "stripe webhook not configured")
		return
	}
	sigHeader := r.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing Stripe-Signature header")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	evt, err := webhook.ConstructEventWithOptions(body, sigHeader, h.cfg.Secret, webhook.ConstructEventOptions{
		Tolerance:                h.cfg.Tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid signature")
		return
	}

	ctx := r.Context()
	evtType := string(evt.Type)
	h.logger.Info("payment provider event received", "provider", "stripe", "provider_event_id", evt.ID, "event_type", evtType)

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.InsertProviderEvent(ctx, tx, storage.ProviderEvent{
		Provider:        "stripe",
		ProviderEventID: evt.ID,
		EventType:       evtType,
		Payload:         body,
	}); err != nil {
		if errors.Is(err, storage.ErrDuplicateProviderEvent) {
			h.logger.Info("payment provider event duplicate ignored", "provider_event_id", evt.ID)
			httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	var (
		changed   *model.Booking
		eventType string
	)
	switch evtType {
	case "checkout.session.completed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &session); err != nil {
			h.logger.Error("stripe: invalid checkout session payload", "err", err)
			break
		}
		bookingID := strings.TrimSpace(session.Metadata["booking_id"])
		if bookingID == "" {
			bookingID = strings.TrimSpace(session.ClientReferenceID)
		}
		if bookingID == "" {
			h.logger.Warn("stripe: checkout session without booking reference", "session_id", session.ID)
			break
		}
		b, err := h.repo.GetForUpdate(ctx, tx, bookingID)
		if err != nil {
			if storage.IsNotFound(err) {
				h.logger.Warn("stripe: checkout session for unknown booking", "booking_id", bookingID)
				break
			}
			writeServiceError(w, r, h.logger, err)
			return
		}
		switch checkoutOutcome(evtType, b.Status) {
		case outcomeConfirm:
			err = h.confirm(ctx, tx, &b)
			eventType = outbox.EventBookingConfirmed
		case outcomeExpire:
			err = h.expire(ctx, tx, &b)
			eventType = outbox.EventBookingExpired
		case outcomeUnmatchedPayment:
			// The slot was already released, so the payment has no booking behind it.
			h.logger.Error("stripe: payment completed for released booking", "booking_id", b.ID, "status", b.Status, "session_id", session.ID)
			eventType = outbox.EventBookingPaymentUnmatched
		default:
			h.logger.Warn("stripe: booking no longer pending payment", "booking_id", b.ID, "status", b.Status, "event_type", evtType)
		}
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		if eventType != "" {
			changed = &b
		}
	default:
		// Recorded for audit only.
	}

	if changed != nil {
		out, err := outbox.BookingEvent(eventType, *changed, h.now())
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		if err := h.outboxRepo.Insert(ctx, tx, out); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if changed != nil && eventType != outbox.EventBookingPaymentUnmatched {
		h.availability.Invalidate(ctx, changed.OwnerID)
		h.logger.Info("booking payment state applied", "booking_id", changed.ID, "status", changed.Status)
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *WebhookHandler) confirm(ctx context.Context, tx pgx.Tx, b *model.Booking) error {
	if err := h.repo.Confirm(ctx, tx, b.ID); err != nil {
		return err
	}
	b.Status = model.StatusBooked
	return nil
}

func (h *WebhookHandler) expire(ctx context.Context, tx pgx.Tx, b *model.Booking) error {
	at, err := h.repo.Cancel(ctx, tx, b.ID, model.StatusExpired, "payment not completed")
	if err != nil {
		return err
	}
	b.Status = model.StatusExpired
	b.CancelledAt = &at
	b.CancelReason = "payment not completed"
	return nil
}

type checkoutResult int

const (
	outcomeIgnore checkoutResult = iota
	outcomeConfirm
	outcomeExpire
	outcomeUnmatchedPayment
)

// checkoutOutcome decides what a checkout session event does to a booking in status.
func checkoutOutcome(eventType, status string) checkoutResult {
	switch {
	case status == model.StatusPendingPayment && eventType == "checkout.session.completed":
		return outcomeConfirm
	case status == model.StatusPendingPayment && eventType == "checkout.session.expired":
		return outcomeExpire
	case eventType == "checkout.session.completed" && !model.BlocksTime(status):
		return outcomeUnmatchedPayment
	default:
		return outcomeIgnore
	}
}
