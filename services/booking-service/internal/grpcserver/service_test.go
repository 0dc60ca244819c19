package grpcserver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/grpcx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/slots"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAvailability struct {
	lastExclude string
}

func (f *fakeAvailability) MonthAvailability(_ context.Context, eventTypeID string, year int, month time.Month, tz string) (slots.MonthResult, error) {
	if eventTypeID != "intro-call" {
		return slots.MonthResult{}, fmt.Errorf("%w: %s", availability.ErrScheduleNotFound, eventTypeID)
	}
	s, err := availability.NewTimeSlot(
		time.Date(year, month, 19, 9, 0, 0, 0, time.UTC),
		time.Date(year, month, 19, 9, 30, 0, 0, time.UTC),
	)
	if err != nil {
		return slots.MonthResult{}, err
	}
	return slots.MonthResult{
		EventTypeID:     eventTypeID,
		Month:           fmt.Sprintf("%04d-%02d", year, int(month)),
		Timezone:        tz,
		DurationMinutes: 30,
		Days:            []availability.DayAvailability{{Date: "2026-10-19", Slots: []availability.TimeSlot{s}}},
	}, nil
}

func (f *fakeAvailability) Bookable(_ context.Context, _ string, start, end time.Time, _ string, exclude string) (bool, error) {
	f.lastExclude = exclude
	if !end.After(start) {
		return false, availability.ErrInvalidInterval
	}
	return start.Hour() == 9, nil
}

func startServer(t *testing.T, a Availability) *Client {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv, _ := grpcx.NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)))
	Register(srv, a)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := NewClient(context.Background(), lis.Addr().String(), grpcx.DialOptions{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestIsSlotBookable(t *testing.T) {
	fake := &fakeAvailability{}
	client := startServer(t, fake)
	ctx := context.Background()
	start := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)

	ok, err := client.IsSlotBookable(ctx, "intro-call", start, start.Add(30*time.Minute), "UTC", "b-7")
	if err != nil || !ok {
		t.Fatalf("expected bookable, got %v %v", ok, err)
	}
	if fake.lastExclude != "b-7" {
		t.Fatalf("exclude id not forwarded: %q", fake.lastExclude)
	}

	ok, err = client.IsSlotBookable(ctx, "intro-call", start.Add(time.Hour), start.Add(90*time.Minute), "UTC", "")
	if err != nil || ok {
		t.Fatalf("expected not bookable, got %v %v", ok, err)
	}

	_, err = client.IsSlotBookable(ctx, "intro-call", start, start, "UTC", "")
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
}

func TestMonthAvailability(t *testing.T) {
	client := startServer(t, &fakeAvailability{})
	ctx := context.Background()

	res, err := client.MonthAvailability(ctx, "intro-call", 2026, time.October, "Europe/Berlin")
	if err != nil {
		t.Fatalf("MonthAvailability: %v", err)
	}
	if res.Month != "2026-10" || res.DurationMinutes != 30 || res.Timezone != "Europe/Berlin" {
		t.Fatalf("unexpected header %+v", res)
	}
	if len(res.Days) != 1 || len(res.Days[0].Slots) != 1 {
		t.Fatalf("unexpected days %+v", res.Days)
	}
	if got := res.Days[0].Slots[0].From().UTC().Format(time.RFC3339); got != "2026-10-19T09:00:00Z" {
		t.Fatalf("unexpected slot start %s", got)
	}

	_, err = client.MonthAvailability(ctx, "unknown", 2026, time.October, "UTC")
	if status.Code(err) != codes.NotFound {
		t.Fatalf("expected NotFound, got %v", err)
	}
}
