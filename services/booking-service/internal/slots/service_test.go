package slots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/policy"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/scheduling"
)

type fakeSchedules struct {
	schedules map[string]scheduling.Schedule
}

func (f *fakeSchedules) ScheduleForEventType(_ context.Context, id string) (scheduling.Schedule, error) {
	s, ok := f.schedules[id]
	if !ok {
		return scheduling.Schedule{}, fmt.Errorf("%w: %s", availability.ErrScheduleNotFound, id)
	}
	return s, nil
}

type fakeBooking struct {
	id         string
	start, end time.Time
}

type fakeBookings struct {
	items []fakeBooking
	calls int
}

func (f *fakeBookings) BookedIntervals(_ context.Context, _ string, from, to time.Time, excludeID string) ([]availability.BookedInterval, error) {
	f.calls++
	var out []availability.BookedInterval
	for _, b := range f.items {
		if b.id == excludeID || b.start.After(to) || b.end.Before(from) {
			continue
		}
		out = append(out, availability.BookedInterval{Start: b.start, End: b.end})
	}
	return out, nil
}

type fakeBusy struct {
	items []availability.BookedInterval
	err   error
}

func (f *fakeBusy) BusyIntervals(_ context.Context, _ string, _, _ time.Time) ([]availability.BookedInterval, error) {
	return f.items, f.err
}

type memoryStore struct {
	values map[string][]byte
	gens   map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string][]byte{}, gens: map[string]int64{}}
}

func (m *memoryStore) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	raw, ok := m.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memoryStore) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.values[key] = raw
	return nil
}

func (m *memoryStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryStore) Generation(_ context.Context, ownerID string) (int64, error) {
	return m.gens[ownerID], nil
}

func (m *memoryStore) BumpGeneration(_ context.Context, ownerID string) error {
	m.gens[ownerID]++
	return nil
}

func utc(day, hour, minute int) time.Time {
	return time.Date(2026, time.October, day, hour, minute, 0, 0, time.UTC)
}

func mustClock(t *testing.T, hhmm string) availability.Clock {
	t.Helper()
	c, err := availability.ParseClock(hhmm)
	if err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return c
}

func newTestService(t *testing.T, store *memoryStore) (*Service, *fakeBookings, *fakeBusy) {
	t.Helper()
	schedules := &fakeSchedules{schedules: map[string]scheduling.Schedule{
		"intro-call": {
			EventTypeID: "intro-call",
			OwnerID:     "owner-1",
			Timezone:    "UTC",
			Periods: []availability.WeeklyPeriod{
				{Day: time.Monday, Start: mustClock(t, "09:00"), End: mustClock(t, "12:00")},
			},
			Duration: time.Hour,
		},
	}}
	bookings := &fakeBookings{items: []fakeBooking{{id: "b1", start: utc(19, 10, 0), end: utc(19, 11, 0)}}}
	busy := &fakeBusy{items: []availability.BookedInterval{{Start: utc(26, 9, 0), End: utc(26, 10, 0)}}}

	var svc *Service
	if store == nil {
		svc = NewService(schedules, bookings, busy, nil, policy.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	} else {
		svc = NewService(schedules, bookings, busy, store, policy.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	}
	svc.now = func() time.Time { return utc(12, 8, 30) }
	return svc, bookings, busy
}

func daySlots(res MonthResult, date string) string {
	for _, d := range res.Days {
		if d.Date != date {
			continue
		}
		parts := make([]string, 0, len(d.Slots))
		for _, s := range d.Slots {
			parts = append(parts, s.From().Format("15:04")+"-"+s.To().Format("15:04"))
		}
		return strings.Join(parts, ",")
	}
	return "missing"
}

func TestMonthAvailability(t *testing.T) {
	svc, _, _ := newTestService(t, nil)

	res, err := svc.MonthAvailability(context.Background(), "intro-call", 2026, time.October, "UTC")
	if err != nil {
		t.Fatalf("MonthAvailability: %v", err)
	}
	if len(res.Days) != 31 || res.Month != "2026-10" || res.DurationMinutes != 60 {
		t.Fatalf("unexpected result header: %d days, month %s, duration %d", len(res.Days), res.Month, res.DurationMinutes)
	}

	cases := map[string]string{
		"2026-10-05": "",
		"2026-10-12": "10:00-11:00,11:00-12:00",
		"2026-10-13": "",
		"2026-10-19": "09:00-10:00,11:00-12:00",
		"2026-10-26": "10:00-11:00,11:00-12:00",
	}
	for date, want := range cases {
		if got := daySlots(res, date); got != want {
			t.Errorf("%s: expected %q, got %q", date, want, got)
		}
	}
}

func TestMonthAvailability_CachedUntilInvalidated(t *testing.T) {
	store := newMemoryStore()
	svc, bookings, _ := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.MonthAvailability(ctx, "intro-call", 2026, time.October, "UTC"); err != nil {
		t.Fatalf("first call: %v", err)
	}
	bookings.items = append(bookings.items, fakeBooking{id: "b2", start: utc(19, 9, 0), end: utc(19, 10, 0)})

	res, err := svc.MonthAvailability(ctx, "intro-call", 2026, time.October, "UTC")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if bookings.calls != 1 {
		t.Fatalf("expected cached result, lookups ran %d times", bookings.calls)
	}
	if got := daySlots(res, "2026-10-19"); got != "09:00-10:00,11:00-12:00" {
		t.Fatalf("cached 2026-10-19: got %q", got)
	}

	svc.Invalidate(ctx, "owner-1")
	res, err = svc.MonthAvailability(ctx, "intro-call", 2026, time.October, "UTC")
	if err != nil {
		t.Fatalf("third call: %v", err)
	}
	if bookings.calls != 2 {
		t.Fatalf("expected a fresh lookup after invalidation, got %d", bookings.calls)
	}
	if got := daySlots(res, "2026-10-19"); got != "11:00-12:00" {
		t.Fatalf("fresh 2026-10-19: got %q", got)
	}
}

func TestMonthAvailability_Errors(t *testing.T) {
	svc, _, busy := newTestService(t, nil)
	ctx := context.Background()

	if _, err := svc.MonthAvailability(ctx, "missing", 2026, time.October, "UTC"); !errors.Is(err, availability.ErrScheduleNotFound) {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
	if _, err := svc.MonthAvailability(ctx, "intro-call", 2028, time.January, "UTC"); !errors.Is(err, ErrOutsideHorizon) {
		t.Fatalf("expected ErrOutsideHorizon, got %v", err)
	}
	if _, err := svc.MonthAvailability(ctx, "intro-call", 2026, time.October, "Mars/Olympus"); !errors.Is(err, availability.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}

	busy.err = errors.New("connection reset")
	if _, err := svc.MonthAvailability(ctx, "intro-call", 2026, time.October, "UTC"); err == nil || !strings.Contains(err.Error(), "busy intervals") {
		t.Fatalf("expected busy lookup failure, got %v", err)
	}
}

func TestBookable(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()

	cases := []struct {
		name       string
		start, end time.Time
		exclude    string
		want       bool
	}{
		{"free", utc(19, 9, 0), utc(19, 10, 0), "", true},
		{"taken", utc(19, 10, 0), utc(19, 11, 0), "", false},
		{"taken by the booking being moved", utc(19, 10, 0), utc(19, 11, 0), "b1", true},
		{"external busy", utc(26, 9, 0), utc(26, 10, 0), "", false},
		{"inside minimum notice", utc(12, 9, 0), utc(12, 10, 0), "", false},
		{"outside template", utc(20, 9, 0), utc(20, 10, 0), "", false},
	}
	for _, tc := range cases {
		got, err := svc.Bookable(ctx, "intro-call", tc.start, tc.end, "UTC", tc.exclude)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.want {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	if _, err := svc.Bookable(ctx, "intro-call", utc(19, 9, 0), utc(19, 9, 30), "UTC", ""); !errors.Is(err, ErrDurationMismatch) {
		t.Fatalf("expected ErrDurationMismatch, got %v", err)
	}
	if _, err := svc.Bookable(ctx, "intro-call", utc(19, 10, 0), utc(19, 9, 0), "UTC", ""); !errors.Is(err, availability.ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}
