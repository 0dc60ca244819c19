package availability

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Template is an owner's weekly availability in the owner's timezone.
type Template struct {
	Location *time.Location
	Periods  []WeeklyPeriod
}

// NewTemplate resolves an IANA timezone name and validates every period.
func NewTemplate(timezone string, periods []WeeklyPeriod) (Template, error) {
	loc, err := LoadLocation(timezone)
	if err != nil {
		return Template{}, err
	}
	for _, p := range periods {
		if err := p.Validate(); err != nil {
			return Template{}, err
		}
	}
	return Template{Location: loc, Periods: periods}, nil
}

func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidTimezone)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, name)
	}
	return loc, nil
}

// BookedInterval is an occupied span of absolute time.
type BookedInterval struct {
	Start time.Time
	End   time.Time
}

func (b BookedInterval) Slot() (TimeSlot, error) {
	return NewTimeSlot(b.Start, b.End)
}

type DayAvailability struct {
	Date  string     `json:"date"`
	Slots []TimeSlot `json:"slots"`
}

type MonthQuery struct {
	Template Template
	Booked   []BookedInterval
	Year     int
	Month    time.Month
	// Location is the visitor's timezone; days and slots are expressed in it.
	Location *time.Location
	Duration time.Duration
	// Step is the distance between consecutive slot starts. Zero means Duration.
	Step time.Duration
	// NotBefore drops slots that start earlier. Zero disables the filter.
	NotBefore time.Time
}

// ComputeMonthAvailability returns one entry per calendar day of the month in the visitor's
// timezone, each listing the slots of length Duration still free on that day.
func ComputeMonthAvailability(q MonthQuery) ([]DayAvailability, error) {
	if q.Location == nil || q.Template.Location == nil {
		return nil, fmt.Errorf("%w: missing location", ErrInvalidTimezone)
	}
	if q.Duration < time.Minute {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDuration, q.Duration)
	}
	booked, err := bookedSlots(q.Booked)
	if err != nil {
		return nil, err
	}

	first := time.Date(q.Year, q.Month, 1, 0, 0, 0, 0, q.Location)
	days := make([]DayAvailability, 0, 31)
	for day := first; day.Month() == first.Month(); day = day.AddDate(0, 0, 1) {
		next := day.AddDate(0, 0, 1)
		period := NewTimePeriod(daySlots(q.Template, day)...)
		for _, b := range booked {
			if b.from.After(next) || b.to.Before(day) {
				continue
			}
			period.Erase(b)
		}

		free := make([]TimeSlot, 0)
		for _, s := range period.AvailableSlices(q.Duration, q.Step) {
			if !q.NotBefore.IsZero() && s.from.Before(q.NotBefore) {
				continue
			}
			free = append(free, s)
		}
		days = append(days, DayAvailability{Date: day.Format(dateLayout), Slots: free})
	}
	return days, nil
}

// IsSlotBookable reports whether candidate lies entirely inside free template time once the
// booked intervals are removed. loc is the visitor's timezone and decides which local days the
// candidate is checked against.
func IsSlotBookable(t Template, booked []BookedInterval, candidate TimeSlot, loc *time.Location) (bool, error) {
	if loc == nil || t.Location == nil {
		return false, fmt.Errorf("%w: missing location", ErrInvalidTimezone)
	}
	if candidate.IsZero() || !candidate.to.After(candidate.from) {
		return false, fmt.Errorf("%w: empty candidate", ErrInvalidInterval)
	}
	busy, err := bookedSlots(booked)
	if err != nil {
		return false, err
	}

	var free []TimeSlot
	last := midnight(candidate.to.In(loc))
	for day := midnight(candidate.from.In(loc)); !day.After(last); day = day.AddDate(0, 0, 1) {
		free = append(free, daySlots(t, day)...)
	}

	period := NewTimePeriod(free...)
	for _, b := range busy {
		if b.OverlapsWith(candidate) != OverlapNone || candidate.OverlapsWith(b) != OverlapNone {
			period.Erase(b)
		}
	}
	return period.ContainsBookable(candidate), nil
}

// daySlots projects the template onto the visitor-local day starting at midnight day.
func daySlots(t Template, day time.Time) []TimeSlot {
	projected := ConvertWeeklyPeriodsToTimezone(t.Periods, t.Location, day.Location(), day)
	var out []TimeSlot
	for _, p := range projected {
		if p.Day != day.Weekday() {
			continue
		}
		from, to := p.Start.On(day), p.End.On(day)
		if !to.After(from) {
			continue
		}
		out = append(out, TimeSlot{from: from, to: to})
	}
	return out
}

func bookedSlots(booked []BookedInterval) ([]TimeSlot, error) {
	out := make([]TimeSlot, 0, len(booked))
	for _, b := range booked {
		s, err := b.Slot()
		if err != nil {
			return nil, fmt.Errorf("booked interval: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
