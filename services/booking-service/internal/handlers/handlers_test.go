package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/payments"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/policy"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/scheduling"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/slots"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAvailability struct {
	month       slots.MonthResult
	monthErr    error
	bookable    bool
	bookableErr error

	gotTZ       string
	gotMonth    time.Month
	gotStart    time.Time
	invalidated []string
}

func (f *fakeAvailability) MonthAvailability(_ context.Context, _ string, _ int, month time.Month, tz string) (slots.MonthResult, error) {
	f.gotTZ = tz
	f.gotMonth = month
	return f.month, f.monthErr
}

func (f *fakeAvailability) Bookable(_ context.Context, _ string, start, _ time.Time, tz, _ string) (bool, error) {
	f.gotTZ = tz
	f.gotStart = start
	return f.bookable, f.bookableErr
}

func (f *fakeAvailability) Invalidate(_ context.Context, ownerID string) {
	f.invalidated = append(f.invalidated, ownerID)
}

type missingSchedules struct{}

func (missingSchedules) ScheduleForEventType(_ context.Context, id string) (scheduling.Schedule, error) {
	return scheduling.Schedule{}, fmt.Errorf("%w: %s", availability.ErrScheduleNotFound, id)
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return body["error"]
}

func TestAvailabilityMonth(t *testing.T) {
	fa := &fakeAvailability{month: slots.MonthResult{EventTypeID: "et-1", Month: "2026-10", Timezone: "Europe/Paris", DurationMinutes: 30}}
	h := NewAvailabilityHandler(fa, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?event_type_id=et-1&month=2026-10&timezone=Europe/Paris", nil)
	rec := httptest.NewRecorder()
	h.Month(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if fa.gotTZ != "Europe/Paris" || fa.gotMonth != time.October {
		t.Fatalf("unexpected call args tz=%q month=%v", fa.gotTZ, fa.gotMonth)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Fatalf("expected no-store, got %q", got)
	}
	var res slots.MonthResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.DurationMinutes != 30 || res.Month != "2026-10" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAvailabilityMonthErrors(t *testing.T) {
	cases := []struct {
		name  string
		query string
		err   error
		code  int
	}{
		{name: "missing event type", query: "month=2026-10", code: http.StatusBadRequest},
		{name: "bad month", query: "event_type_id=et-1&month=2026-13", code: http.StatusBadRequest},
		{name: "unknown event type", query: "event_type_id=et-1&month=2026-10", err: availability.ErrScheduleNotFound, code: http.StatusNotFound},
		{name: "outside horizon", query: "event_type_id=et-1&month=2030-01", err: slots.ErrOutsideHorizon, code: http.StatusBadRequest},
		{name: "bad timezone", query: "event_type_id=et-1&month=2026-10&timezone=Nowhere/Land", err: availability.ErrInvalidTimezone, code: http.StatusBadRequest},
		{name: "dependency failure", query: "event_type_id=et-1&month=2026-10", err: fmt.Errorf("redis down"), code: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewAvailabilityHandler(&fakeAvailability{monthErr: tc.err}, testLogger())
			rec := httptest.NewRecorder()
			h.Month(rec, httptest.NewRequest(http.MethodGet, "/x?"+tc.query, nil))
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d: %s", tc.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAvailabilityCheck(t *testing.T) {
	fa := &fakeAvailability{bookable: true}
	h := NewAvailabilityHandler(fa, testLogger())

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/x?event_type_id=et-1&start_time=2026-10-19T09:00:00Z&end_time=2026-10-19T10:00:00Z", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"bookable":true`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if fa.gotTZ != "UTC" {
		t.Fatalf("expected default timezone UTC, got %q", fa.gotTZ)
	}
	if !fa.gotStart.Equal(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %v", fa.gotStart)
	}

	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/x?event_type_id=et-1&start_time=soon&end_time=2026-10-19T10:00:00Z", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start, got %d", rec.Code)
	}

	h = NewAvailabilityHandler(&fakeAvailability{bookableErr: slots.ErrDurationMismatch}, testLogger())
	rec = httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/x?event_type_id=et-1&start_time=2026-10-19T09:00:00Z&end_time=2026-10-19T09:20:00Z", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duration mismatch, got %d", rec.Code)
	}
}

func newTestBookingHandler() *BookingHandler {
	return NewBookingHandler(nil, nil, missingSchedules{}, &fakeAvailability{}, payments.Disabled(), policy.Default(), testLogger())
}

func TestBookValidation(t *testing.T) {
	h := newTestBookingHandler()
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "not json", body: "{", want: "invalid json body"},
		{name: "unknown field", body: `{"event_type_id":"1","extra":true}`, want: "invalid json body"},
		{name: "bad email", body: `{"event_type_id":"8a0f4c1e-0d55-4b8e-9a57-1d8f0e7d8c10","name":"Ann","email":"ann","timezone":"UTC","start_time":"2026-10-19T09:00:00Z"}`, want: "email: email"},
		{name: "bad timezone", body: `{"event_type_id":"8a0f4c1e-0d55-4b8e-9a57-1d8f0e7d8c10","name":"Ann","email":"ann@example.com","timezone":"Mars/Base","start_time":"2026-10-19T09:00:00Z"}`, want: "timezone: timezone"},
		{name: "missing start", body: `{"event_type_id":"8a0f4c1e-0d55-4b8e-9a57-1d8f0e7d8c10","name":"Ann","email":"ann@example.com","timezone":"UTC"}`, want: "start_time: required"},
		{name: "bad event type", body: `{"event_type_id":"abc","name":"Ann","email":"ann@example.com","timezone":"UTC","start_time":"2026-10-19T09:00:00Z"}`, want: "event_type_id: uuid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); !strings.Contains(got, tc.want) {
				t.Fatalf("expected error containing %q, got %q", tc.want, got)
			}
		})
	}
}

func TestBookUnknownEventType(t *testing.T) {
	h := newTestBookingHandler()
	body := `{"event_type_id":"8a0f4c1e-0d55-4b8e-9a57-1d8f0e7d8c10","name":"Ann","email":"Ann@Example.com","timezone":"Europe/London","start_time":"2026-10-19T09:00:00Z"}`
	rec := httptest.NewRecorder()
	h.Book(rec, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestManageValidation(t *testing.T) {
	h := newTestBookingHandler()

	rec := httptest.NewRecorder()
	h.Cancel(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"booking_id":"nope","token":"t"}`)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(decodeError(t, rec), "booking_id: uuid") {
		t.Fatalf("cancel: expected uuid validation error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Reschedule(rec, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"booking_id":"8a0f4c1e-0d55-4b8e-9a57-1d8f0e7d8c10","start_time":"2026-10-19T09:00:00Z"}`)))
	if rec.Code != http.StatusBadRequest || !strings.Contains(decodeError(t, rec), "token: required") {
		t.Fatalf("reschedule: expected token validation error, got %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.Cancel(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

func TestListWindow(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	rec := httptest.NewRecorder()
	from, to, ok := listWindow(rec, httptest.NewRequest(http.MethodGet, "/x", nil), now)
	if !ok || !from.Equal(now.AddDate(0, 0, -30)) || !to.Equal(now.AddDate(0, 0, 90)) {
		t.Fatalf("unexpected default window %v..%v ok=%v", from, to, ok)
	}

	rec = httptest.NewRecorder()
	if _, _, ok := listWindow(rec, httptest.NewRequest(http.MethodGet, "/x?from=2026-11-01T00:00:00Z&to=2026-10-01T00:00:00Z", nil), now); ok {
		t.Fatalf("expected inverted window to be rejected")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestScheduleValidation(t *testing.T) {
	h := NewScheduleHandler(nil, nil, &fakeAvailability{}, testLogger())
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "bad timezone", body: `{"timezone":"Mars/Base","periods":[]}`, want: "timezone: timezone"},
		{name: "unknown day", body: `{"timezone":"UTC","periods":[{"day":"funday","start_time":"09:00","end_time":"10:00"}]}`, want: `unknown day "funday"`},
		{name: "bad clock", body: `{"timezone":"UTC","periods":[{"day":"mon","start_time":"9am","end_time":"10:00"}]}`, want: "periods[0]: start_time"},
		{name: "start after end", body: `{"timezone":"UTC","periods":[{"day":"monday","start_time":"12:00","end_time":"09:00"}]}`, want: "periods[0]"},
		{name: "missing end", body: `{"timezone":"UTC","periods":[{"day":"monday","start_time":"12:00"}]}`, want: "periods[0].end_time: required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Serve(rec, httptest.NewRequest(http.MethodPut, "/api/v1/schedules", strings.NewReader(tc.body)))
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			if got := decodeError(t, rec); !strings.Contains(got, tc.want) {
				t.Fatalf("expected error containing %q, got %q", tc.want, got)
			}
		})
	}
}

func TestParseWeekday(t *testing.T) {
	cases := map[string]time.Weekday{
		"monday":   time.Monday,
		"Mon":      time.Monday,
		" SUN ":    time.Sunday,
		"saturday": time.Saturday,
	}
	for in, want := range cases {
		got, ok := parseWeekday(in)
		if !ok || got != want {
			t.Fatalf("parseWeekday(%q) = %v, %v; want %v", in, got, ok, want)
		}
	}
	if _, ok := parseWeekday("mo"); ok {
		t.Fatalf("expected two-letter abbreviation to be rejected")
	}
}

func TestStripeWebhookRejectsUnsigned(t *testing.T) {
	body := `{"id":"evt_1","type":"checkout.session.completed"}`

	h := NewWebhookHandler(nil, nil, &fakeAvailability{}, WebhookConfig{}, testLogger())
	rec := httptest.NewRecorder()
	h.Stripe(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without secret, got %d", rec.Code)
	}

	h = NewWebhookHandler(nil, nil, &fakeAvailability{}, WebhookConfig{Secret: "whsec_test"}, testLogger())
	rec = httptest.NewRecorder()
	h.Stripe(rec, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(body))
	req.Header.Set("Stripe-Signature", fmt.Sprintf("t=%d,v1=deadbeef", time.Now().Unix()))
	rec = httptest.NewRecorder()
	h.Stripe(rec, req)
	if rec.Code != http.StatusBadRequest || decodeError(t, rec) != "invalid signature" {
		t.Fatalf("expected invalid signature, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCheckoutOutcome(t *testing.T) {
	cases := []struct {
		event  string
		status string
		want   checkoutResult
	}{
		{"checkout.session.completed", model.StatusPendingPayment, outcomeConfirm},
		{"checkout.session.expired", model.StatusPendingPayment, outcomeExpire},
		// Released by the expiry job before the payment landed.
		{"checkout.session.completed", model.StatusExpired, outcomeUnmatchedPayment},
		{"checkout.session.completed", model.StatusCancelled, outcomeUnmatchedPayment},
		{"checkout.session.completed", model.StatusBooked, outcomeIgnore},
		{"checkout.session.expired", model.StatusExpired, outcomeIgnore},
		{"checkout.session.expired", model.StatusBooked, outcomeIgnore},
	}
	for _, tc := range cases {
		if got := checkoutOutcome(tc.event, tc.status); got != tc.want {
			t.Errorf("%s on %s: expected %d, got %d", tc.event, tc.status, tc.want, got)
		}
	}
}
