package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/auth"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/httpx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/outbox"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/payments"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/policy"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/scheduling"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

var errSlotTaken = errors.New("time slot is no longer available")

type BookingHandler struct {
	repo         *storage.BookingRepository
	outboxRepo   *outbox.Repository
	schedules    scheduling.Provider
	availability Availability
	payments     payments.Provider
	policy       policy.Policy
	logger       *slog.Logger
	validate     *validator.Validate
	now          func() time.Time
}

func NewBookingHandler(repo *storage.BookingRepository, outboxRepo *outbox.Repository, schedules scheduling.Provider, a Availability, pay payments.Provider, p policy.Policy, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		repo:         repo,
		outboxRepo:   outboxRepo,
		schedules:    schedules,
		availability: a,
		payments:     pay,
		policy:       p,
		logger:       logger,
		validate:     newValidator(),
		now:          time.Now,
	}
}

type bookRequest struct {
	EventTypeID string    `json:"event_type_id" validate:"required,uuid"`
	Name        string    `json:"name" validate:"required,max=200"`
	Email       string    `json:"email" validate:"required,email,max=320"`
	Timezone    string    `json:"timezone" validate:"required,timezone"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	Notes       string    `json:"notes" validate:"max=2000"`
}

type bookResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	ManageToken string `json:"manage_token"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

type manageRequest struct {
	BookingID string `json:"booking_id" validate:"required,uuid"`
	Token     string `json:"token" validate:"required,max=128"`
	Reason    string `json:"reason" validate:"max=500"`
}

type rescheduleRequest struct {
	BookingID string    `json:"booking_id" validate:"required,uuid"`
	Token     string    `json:"token" validate:"required,max=128"`
	StartTime time.Time `json:"start_time" validate:"required"`
}

type bookingItem struct {
	BookingID    string `json:"booking_id"`
	EventTypeID  string `json:"event_type_id"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	Timezone     string `json:"invitee_timezone"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	CancelledAt  string `json:"cancelled_at,omitempty"`
	CreatedAt    string `json:"created_at"`
}

// Book creates a booking for a visitor. The slot is re-checked under the owner's advisory
// lock, so two visitors racing for the same slot cannot both win; the exclusion constraint on
// bookings backs this up.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req bookRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Notes = strings.TrimSpace(req.Notes)
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	sched, err := h.schedules.ScheduleForEventType(ctx, req.EventTypeID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	start := req.StartTime.UTC().Truncate(time.Minute)
	end := start.Add(sched.Duration)

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	scope := "book:" + req.EventTypeID
	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.repo.LockIdempotencyKey(ctx, tx, scope, idempotencyKey)
		if err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		if exists && rec.StatusCode > 0 {
			writeRaw(w, rec.StatusCode, rec.ResponsePayload)
			return
		}
	}

	if err := h.repo.LockOwner(ctx, tx, sched.OwnerID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	ok, err := h.availability.Bookable(ctx, req.EventTypeID, start, end, req.Timezone, "")
	if err != nil {
		// Dependency and validation errors are not recorded against the key so the client can retry.
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !ok {
		h.rejectIdempotent(ctx, w, r, tx, scope, idempotencyKey, http.StatusConflict, errSlotTaken.Error())
		return
	}

	token := newManageToken()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	b := model.Booking{
		EventTypeID:     req.EventTypeID,
		OwnerID:         sched.OwnerID,
		InviteeName:     req.Name,
		InviteeEmail:    req.Email,
		InviteeTimezone: req.Timezone,
		Notes:           req.Notes,
		StartTime:       start,
		EndTime:         end,
		Status:          model.StatusBooked,
		ManageTokenHash: string(hash),
	}
	if sched.Price.IsPositive() {
		b.Status = model.StatusPendingPayment
	}
	if _, err := h.repo.Create(ctx, tx, &b); err != nil {
		// The transaction is aborted at this point, so the key stays unfinalized.
		if storage.IsConflict(err) {
			httpx.WriteError(w, http.StatusConflict, errSlotTaken.Error())
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := bookResponse{
		BookingID:   b.ID,
		Status:      b.Status,
		StartTime:   b.StartTime.Format(time.RFC3339),
		EndTime:     b.EndTime.Format(time.RFC3339),
		ManageToken: token,
	}
	if b.Status == model.StatusPendingPayment {
		checkout, err := h.payments.CreateCheckout(ctx, payments.CheckoutRequest{
			BookingID:      b.ID,
			Title:          sched.Title,
			Price:          sched.Price,
			Currency:       sched.Currency,
			CustomerEmail:  b.InviteeEmail,
			ExpiresAt:      h.now().Add(h.policy.PendingPaymentTTL()),
			IdempotencyKey: "checkout:" + b.ID,
		})
		if err != nil {
			if errors.Is(err, payments.ErrPaymentsDisabled) {
				writeServiceError(w, r, h.logger, err)
				return
			}
			h.logger.Error("checkout session create failed", "err", err, "booking_id", b.ID)
			httpx.WriteError(w, http.StatusBadGateway, "failed to start payment")
			return
		}
		if err := h.repo.SetCheckoutSession(ctx, tx, b.ID, checkout.SessionID, checkout.ExpiresAt); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		b.CheckoutSession = checkout.SessionID
		b.CheckoutExpiresAt = &checkout.ExpiresAt
		resp.CheckoutURL = checkout.URL
	}

	evt, err := outbox.BookingEvent(outbox.EventBookingCreated, b, h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if idempotencyKey != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, scope, idempotencyKey, b.ID, http.StatusCreated, body); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			httpx.WriteError(w, http.StatusConflict, errSlotTaken.Error())
			return
		}
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.availability.Invalidate(ctx, b.OwnerID)

	h.logger.Info("booking created", "booking_id", b.ID, "owner_id", b.OwnerID, "status", b.Status)
	writeRaw(w, http.StatusCreated, body)
}

// Cancel lets the visitor holding the manage token cancel their booking. Repeating a
// cancellation is answered with the original result.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req manageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, ok := h.loadManaged(w, r, tx, req.BookingID, req.Token)
	if !ok {
		return
	}
	if b.Status == model.StatusCancelled && b.CancelledAt != nil {
		httpx.WriteJSON(w, http.StatusOK, toBookingItem(b))
		return
	}
	if !model.BlocksTime(b.Status) {
		httpx.WriteError(w, http.StatusConflict, "booking cannot be cancelled")
		return
	}

	cancelledAt, err := h.repo.Cancel(ctx, tx, b.ID, model.StatusCancelled, req.Reason)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	b.Status = model.StatusCancelled
	b.CancelledAt = &cancelledAt
	b.CancelReason = req.Reason

	evt, err := outbox.BookingEvent(outbox.EventBookingCancelled, b, h.now())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.availability.Invalidate(ctx, b.OwnerID)

	h.logger.Info("booking cancelled", "booking_id", b.ID, "owner_id", b.OwnerID)
	httpx.WriteJSON(w, http.StatusOK, toBookingItem(b))
}

// Reschedule moves a confirmed booking to a new start. The booking's own interval is ignored
// while checking the new slot, so it may overlap the old one.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req rescheduleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b, ok := h.loadManaged(w, r, tx, req.BookingID, req.Token)
	if !ok {
		return
	}
	if b.Status != model.StatusBooked {
		httpx.WriteError(w, http.StatusConflict, "only confirmed bookings can be rescheduled")
		return
	}

	sched, err := h.schedules.ScheduleForEventType(ctx, b.EventTypeID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	start := req.StartTime.UTC().Truncate(time.Minute)
	end := start.Add(sched.Duration)
	if start.Equal(b.StartTime) && end.Equal(b.EndTime) {
		httpx.WriteJSON(w, http.StatusOK, toBookingItem(b))
		return
	}

	if err := h.repo.LockOwner(ctx, tx, b.OwnerID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	ok, err = h.availability.Bookable(ctx, b.EventTypeID, start, end, b.InviteeTimezone, b.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if !ok {
		httpx.WriteError(w, http.StatusConflict, errSlotTaken.Error())
		return
	}
	if err := h.repo.Reschedule(ctx, tx, b.ID, start, end); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	prevFrom, prevTo := b.StartTime, b.EndTime
	b.StartTime, b.EndTime = start, end
	evt, err := outbox.BookingEventWith(outbox.EventBookingRescheduled, b, h.now(), func(p *outbox.BookingPayload) {
		p.PreviousFrom = prevFrom.UTC().Format(time.RFC3339)
		p.PreviousTo = prevTo.UTC().Format(time.RFC3339)
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, evt); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.availability.Invalidate(ctx, b.OwnerID)

	h.logger.Info("booking rescheduled", "booking_id", b.ID, "owner_id", b.OwnerID)
	httpx.WriteJSON(w, http.StatusOK, toBookingItem(b))
}

// List returns the authenticated owner's bookings starting in [from, to).
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	from, to, ok := listWindow(w, r, h.now())
	if !ok {
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	bookings, err := h.repo.ListByOwner(r.Context(), auth.OwnerID(r), from, to, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	items := make([]bookingItem, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, toBookingItem(b))
	}
	httpx.WriteJSON(w, http.StatusOK, items)
}

// loadManaged locks the booking and checks the manage token. It writes the error response
// itself and returns false when the caller should stop.
func (h *BookingHandler) loadManaged(w http.ResponseWriter, r *http.Request, tx pgx.Tx, bookingID, token string) (model.Booking, bool) {
	b, err := h.repo.GetForUpdate(r.Context(), tx, bookingID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return model.Booking{}, false
	}
	if bcrypt.CompareHashAndPassword([]byte(b.ManageTokenHash), []byte(token)) != nil {
		httpx.WriteError(w, http.StatusForbidden, "invalid token")
		return model.Booking{}, false
	}
	return b, true
}

// rejectIdempotent answers with code and, when an idempotency key is present, records the
// answer so retries see the same result.
func (h *BookingHandler) rejectIdempotent(ctx context.Context, w http.ResponseWriter, r *http.Request, tx pgx.Tx, scope, key string, code int, msg string) {
	body, _ := json.Marshal(map[string]string{"error": msg})
	if key != "" {
		if err := h.repo.FinalizeIdempotency(ctx, tx, scope, key, "", code, body); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
		if err := tx.Commit(ctx); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}
	writeRaw(w, code, body)
}

func listWindow(w http.ResponseWriter, r *http.Request, now time.Time) (time.Time, time.Time, bool) {
	from := now.AddDate(0, 0, -30)
	to := now.AddDate(0, 0, 90)
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid from")
			return time.Time{}, time.Time{}, false
		}
		from = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteError(w, http.StatusBadRequest, "invalid to")
			return time.Time{}, time.Time{}, false
		}
		to = t
	}
	if !to.After(from) {
		httpx.WriteError(w, http.StatusBadRequest, "to must be after from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func toBookingItem(b model.Booking) bookingItem {
	item := bookingItem{
		BookingID:    b.ID,
		EventTypeID:  b.EventTypeID,
		InviteeName:  b.InviteeName,
		InviteeEmail: b.InviteeEmail,
		Timezone:     b.InviteeTimezone,
		StartTime:    b.StartTime.UTC().Format(time.RFC3339),
		EndTime:      b.EndTime.UTC().Format(time.RFC3339),
		Status:       b.Status,
	}
	if b.CancelledAt != nil {
		item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
	}
	if !b.CreatedAt.IsZero() {
		item.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return item
}

// newManageToken returns a random visitor secret; only its bcrypt hash is stored with the booking.
func newManageToken() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func writeRaw(w http.ResponseWriter, code int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}
