package ics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
)

func TestWeeklyRule(t *testing.T) {
	if got := WeeklyRule(time.Monday); got != "FREQ=WEEKLY;BYDAY=MO" {
		t.Fatalf("monday: %q", got)
	}
	if got := WeeklyRule(time.Sunday); got != "FREQ=WEEKLY;BYDAY=SU" {
		t.Fatalf("sunday: %q", got)
	}
}

func TestBookingFeed(t *testing.T) {
	start, _ := availability.ParseClock("09:00")
	end, _ := availability.ParseClock("12:30")
	now := time.Date(2026, time.October, 19, 8, 0, 0, 0, time.UTC)

	out, err := BookingFeed(FeedOptions{
		Name: "Ana's bookings",
		Schedule: &model.Schedule{
			OwnerID:  "owner-1",
			Timezone: "Europe/London",
			Periods:  []availability.WeeklyPeriod{{Day: time.Monday, Start: start, End: end}},
		},
		Now: now,
	}, []model.Booking{
		{
			ID:           "b-1",
			InviteeName:  "Ben",
			InviteeEmail: "ben@example.com",
			StartTime:    time.Date(2026, time.October, 20, 9, 0, 0, 0, time.UTC),
			EndTime:      time.Date(2026, time.October, 20, 9, 30, 0, 0, time.UTC),
			Status:       model.StatusPendingPayment,
		},
	})
	if err != nil {
		t.Fatalf("BookingFeed: %v", err)
	}

	for _, want := range []string{
		"BEGIN:VCALENDAR",
		"METHOD:PUBLISH",
		"UID:b-1@calendar-booking",
		"DTSTART:20261020T090000Z",
		"SUMMARY:Booking with Ben",
		"STATUS:TENTATIVE",
		"DTSTART;TZID=Europe/London:20261019T090000",
		"DTEND;TZID=Europe/London:20261019T123000",
		"RRULE:FREQ=WEEKLY;BYDAY=MO",
		"TRANSP:TRANSPARENT",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("feed is missing %q:\n%s", want, out)
		}
	}
}

func TestBookingFeed_InvalidTimezone(t *testing.T) {
	start, _ := availability.ParseClock("09:00")
	end, _ := availability.ParseClock("10:00")
	_, err := BookingFeed(FeedOptions{Schedule: &model.Schedule{
		Timezone: "Nowhere/City",
		Periods:  []availability.WeeklyPeriod{{Day: time.Monday, Start: start, End: end}},
	}}, nil)
	if !errors.Is(err, availability.ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
}

func TestExpandBusy(t *testing.T) {
	start := time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	single, err := ExpandBusy(start, end, nil, "", start, 0)
	if err != nil || len(single) != 1 || !single[0].End.Equal(end) {
		t.Fatalf("single: %v %v", single, err)
	}

	weekly, err := ExpandBusy(start, end, nil, "RRULE:FREQ=WEEKLY;BYDAY=MO;COUNT=3", start, 0)
	if err != nil {
		t.Fatalf("weekly: %v", err)
	}
	if len(weekly) != 3 || !weekly[2].Start.Equal(start.AddDate(0, 0, 14)) || !weekly[2].End.Equal(end.AddDate(0, 0, 14)) {
		t.Fatalf("weekly: unexpected %v", weekly)
	}

	daily, err := ExpandBusy(start, end, nil, "FREQ=DAILY", start.Add(30*time.Minute), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("daily: %v", err)
	}
	if len(daily) != 8 || !daily[0].Start.Equal(start) {
		t.Fatalf("daily: expected the in-progress occurrence plus 7 more, got %d starting %v", len(daily), daily[0].Start)
	}

	if _, err := ExpandBusy(start, end, nil, "FREQ=SOMETIMES", start, 0); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule, got %v", err)
	}
	if _, err := ExpandBusy(end, start, nil, "", start, 0); !errors.Is(err, ErrInvalidRule) {
		t.Fatalf("expected ErrInvalidRule for inverted interval, got %v", err)
	}
}

func TestExpandBusyKeepsWallClockAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	// Monday 09:00 EST, parsed from a fixed -05:00 offset.
	start := time.Date(2026, time.January, 5, 9, 0, 0, 0, time.FixedZone("", -5*3600))
	end := start.Add(30 * time.Minute)
	from := time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)

	occ, err := ExpandBusy(start, end, ny, "FREQ=WEEKLY;BYDAY=MO", from, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("ExpandBusy: %v", err)
	}
	afterDST := time.Date(2026, time.March, 9, 13, 0, 0, 0, time.UTC)
	var found bool
	for _, o := range occ {
		if local := o.Start.In(ny); local.Hour() != 9 || local.Minute() != 0 {
			t.Fatalf("occurrence %v is %s in New York", o.Start, local.Format("15:04 MST"))
		}
		if o.Start.Equal(afterDST) {
			found = true
			if !o.End.Equal(afterDST.Add(30 * time.Minute)) {
				t.Fatalf("unexpected end %v", o.End)
			}
		}
	}
	if !found {
		t.Fatalf("expected an occurrence at %v, got %v", afterDST, occ)
	}
}
