package availability

import (
	"errors"
	"testing"
	"time"
)

func utcTemplate(t *testing.T, periods ...WeeklyPeriod) Template {
	t.Helper()
	tpl, err := NewTemplate("UTC", periods)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	return tpl
}

func findDay(t *testing.T, days []DayAvailability, date string) DayAvailability {
	t.Helper()
	for _, d := range days {
		if d.Date == date {
			return d
		}
	}
	t.Fatalf("day %s missing", date)
	return DayAvailability{}
}

func booked(t *testing.T, from, to string) BookedInterval {
	return BookedInterval{Start: at(t, from), End: at(t, to)}
}

func TestComputeMonthAvailability_Scenario(t *testing.T) {
	tpl := utcTemplate(t,
		WeeklyPeriod{Day: time.Monday, Start: clock(t, "09:00"), End: clock(t, "14:00")},
		WeeklyPeriod{Day: time.Monday, Start: clock(t, "16:00"), End: clock(t, "18:45")},
	)

	days, err := ComputeMonthAvailability(MonthQuery{
		Template: tpl,
		Booked: []BookedInterval{
			booked(t, "09:15", "09:45"),
			booked(t, "10:30", "11:00"),
			booked(t, "12:00", "13:15"),
			booked(t, "18:15", "18:45"),
		},
		Year:     2026,
		Month:    time.October,
		Location: time.UTC,
		Duration: 30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if len(days) != 31 {
		t.Fatalf("expected 31 days, got %d", len(days))
	}

	assertSlots(t, findDay(t, days, "2026-10-19").Slots,
		"09:45-10:15",
		"11:00-11:30",
		"11:30-12:00",
		"13:15-13:45",
		"16:00-16:30",
		"16:30-17:00",
		"17:00-17:30",
		"17:30-18:00",
	)

	if got := len(findDay(t, days, "2026-10-26").Slots); got != 15 {
		t.Fatalf("expected 15 free slots on an unbooked Monday, got %d", got)
	}
	tuesday := findDay(t, days, "2026-10-20")
	if tuesday.Slots == nil || len(tuesday.Slots) != 0 {
		t.Fatalf("expected empty non-nil slot list on Tuesday, got %v", tuesday.Slots)
	}
}

func TestComputeMonthAvailability_VisitorTimezoneAcrossDST(t *testing.T) {
	newYork := mustLoad(t, "America/New_York")
	tpl, err := NewTemplate("Europe/London", []WeeklyPeriod{
		{Day: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")},
	})
	if err != nil {
		t.Skipf("template: %v", err)
	}

	days, err := ComputeMonthAvailability(MonthQuery{
		Template: tpl,
		Year:     2026,
		Month:    time.October,
		Location: newYork,
		Duration: time.Hour,
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	// London leaves summer time on 25 Oct, New York only on 1 Nov.
	assertSlots(t, findDay(t, days, "2026-10-19").Slots, "04:00-05:00")
	assertSlots(t, findDay(t, days, "2026-10-26").Slots, "05:00-06:00")
	if s := findDay(t, days, "2026-10-26").Slots[0]; s.From().Location() != newYork {
		t.Fatalf("slots should be expressed in the visitor location, got %s", s.From().Location())
	}
}

func TestComputeMonthAvailability_StepAndNotBefore(t *testing.T) {
	tpl := utcTemplate(t, WeeklyPeriod{Day: time.Monday, Start: clock(t, "09:00"), End: clock(t, "10:00")})

	days, err := ComputeMonthAvailability(MonthQuery{
		Template:  tpl,
		Year:      2026,
		Month:     time.October,
		Location:  time.UTC,
		Duration:  30 * time.Minute,
		Step:      15 * time.Minute,
		NotBefore: at(t, "09:10"),
	})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := len(findDay(t, days, "2026-10-12").Slots); got != 0 {
		t.Fatalf("expected past Monday to be empty, got %d slots", got)
	}
	assertSlots(t, findDay(t, days, "2026-10-19").Slots, "09:15-09:45", "09:30-10:00")
	assertSlots(t, findDay(t, days, "2026-10-26").Slots, "09:00-09:30", "09:15-09:45", "09:30-10:00")
}

func TestComputeMonthAvailability_Errors(t *testing.T) {
	tpl := utcTemplate(t)
	_, err := ComputeMonthAvailability(MonthQuery{Template: tpl, Year: 2026, Month: time.October, Location: time.UTC})
	if !errors.Is(err, ErrInvalidDuration) {
		t.Fatalf("expected ErrInvalidDuration, got %v", err)
	}
	_, err = ComputeMonthAvailability(MonthQuery{
		Template: tpl,
		Booked:   []BookedInterval{booked(t, "10:00", "09:00")},
		Year:     2026,
		Month:    time.October,
		Location: time.UTC,
		Duration: time.Hour,
	})
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
	_, err = ComputeMonthAvailability(MonthQuery{Template: tpl, Year: 2026, Month: time.October, Duration: time.Hour})
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
}

func TestIsSlotBookable_Scenario(t *testing.T) {
	tpl := utcTemplate(t, WeeklyPeriod{Day: time.Monday, Start: clock(t, "12:00"), End: clock(t, "18:00")})
	busy := []BookedInterval{
		booked(t, "12:25", "12:55"),
		booked(t, "15:30", "16:30"),
		booked(t, "16:45", "17:15"),
	}

	cases := []struct {
		from, to string
		want     bool
	}{
		{"12:00", "12:20", true},
		{"12:00", "12:25", true},
		{"12:20", "12:40", false},
		{"16:50", "17:10", false},
		{"17:15", "18:00", true},
		{"17:30", "18:30", false},
		{"11:30", "12:10", false},
	}
	for _, tc := range cases {
		ok, err := IsSlotBookable(tpl, busy, slot(t, tc.from, tc.to), time.UTC)
		if err != nil {
			t.Fatalf("%s-%s: %v", tc.from, tc.to, err)
		}
		if ok != tc.want {
			t.Fatalf("%s-%s: expected %v, got %v", tc.from, tc.to, tc.want, ok)
		}
	}
}

func TestIsSlotBookable_VisitorTimezone(t *testing.T) {
	newYork := mustLoad(t, "America/New_York")
	tpl, err := NewTemplate("Europe/London", []WeeklyPeriod{
		{Day: time.Monday, Start: clock(t, "09:00"), End: clock(t, "17:00")},
	})
	if err != nil {
		t.Skipf("template: %v", err)
	}

	inside, _ := NewTimeSlot(time.Date(2026, 10, 19, 4, 0, 0, 0, newYork), time.Date(2026, 10, 19, 4, 30, 0, 0, newYork))
	before, _ := NewTimeSlot(time.Date(2026, 10, 19, 3, 30, 0, 0, newYork), time.Date(2026, 10, 19, 4, 0, 0, 0, newYork))

	if ok, err := IsSlotBookable(tpl, nil, inside, newYork); err != nil || !ok {
		t.Fatalf("expected 04:00 New York to be bookable, got %v %v", ok, err)
	}
	if ok, err := IsSlotBookable(tpl, nil, before, newYork); err != nil || ok {
		t.Fatalf("expected 03:30 New York to be unavailable, got %v %v", ok, err)
	}
}

func TestIsSlotBookable_MidnightSplitIsNotBridged(t *testing.T) {
	tokyo := mustLoad(t, "Asia/Tokyo")
	tpl := utcTemplate(t, WeeklyPeriod{Day: time.Monday, Start: clock(t, "12:00"), End: clock(t, "18:00")})

	crossing, _ := NewTimeSlot(time.Date(2026, 10, 19, 23, 30, 0, 0, tokyo), time.Date(2026, 10, 20, 0, 30, 0, 0, tokyo))
	after, _ := NewTimeSlot(time.Date(2026, 10, 20, 0, 0, 0, 0, tokyo), time.Date(2026, 10, 20, 1, 0, 0, 0, tokyo))

	if ok, _ := IsSlotBookable(tpl, nil, crossing, tokyo); ok {
		t.Fatalf("slot spanning the 23:59/00:00 split should not be bookable")
	}
	if ok, _ := IsSlotBookable(tpl, nil, after, tokyo); !ok {
		t.Fatalf("slot after local midnight should be bookable")
	}
}

func TestIsSlotBookable_InvalidBooked(t *testing.T) {
	tpl := utcTemplate(t, WeeklyPeriod{Day: time.Monday, Start: clock(t, "12:00"), End: clock(t, "18:00")})
	_, err := IsSlotBookable(tpl, []BookedInterval{booked(t, "13:00", "13:00")}, slot(t, "12:00", "12:30"), time.UTC)
	if !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}
