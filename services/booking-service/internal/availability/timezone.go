package availability

import (
	"cmp"
	"fmt"
	"slices"
	"time"
)

// WeeklyPeriod is a recurring availability window on one day of the week, in the wall-clock
// time of whatever location it is declared against.
type WeeklyPeriod struct {
	Day   time.Weekday `json:"day" yaml:"day"`
	Start Clock        `json:"start_time" yaml:"start_time"`
	End   Clock        `json:"end_time" yaml:"end_time"`
}

func (p WeeklyPeriod) Validate() error {
	if p.Day < time.Sunday || p.Day > time.Saturday {
		return fmt.Errorf("%w: day %d", ErrInvalidPeriod, int(p.Day))
	}
	if !p.Start.Valid() || !p.End.Valid() {
		return fmt.Errorf("%w: clock out of range", ErrInvalidPeriod)
	}
	if p.Start >= p.End {
		return fmt.Errorf("%w: %s %s-%s ends before it starts", ErrInvalidPeriod, p.Day, p.Start, p.End)
	}
	return nil
}

func (p WeeklyPeriod) String() string {
	return fmt.Sprintf("%s %s-%s", p.Day, p.Start, p.End)
}

// SortPeriods orders periods by day, then start.
func SortPeriods(periods []WeeklyPeriod) {
	slices.SortFunc(periods, func(a, b WeeklyPeriod) int {
		if c := cmp.Compare(a.Day, b.Day); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Start, b.Start); c != 0 {
			return c
		}
		return cmp.Compare(a.End, b.End)
	})
}

// ConvertWeeklyPeriodsToTimezone re-expresses periods declared in source as weekly periods in
// target. Each period is anchored to its occurrence nearest ref, so the offsets in effect around
// ref (including DST) decide the result. A period that crosses midnight in target is split into
// a piece ending at 23:59 and a piece starting at 00:00 the next day.
func ConvertWeeklyPeriodsToTimezone(periods []WeeklyPeriod, source, target *time.Location, ref time.Time) []WeeklyPeriod {
	sorted := slices.Clone(periods)
	SortPeriods(sorted)

	out := make([]WeeklyPeriod, 0, len(sorted))
	for _, p := range sorted {
		anchor := anchorDate(p.Day, source, ref)
		start := p.Start.On(anchor).In(target)
		end := p.End.On(anchor).In(target)

		if start.Weekday() == end.Weekday() {
			out = appendPeriod(out, start.Weekday(), ClockOf(start), ClockOf(end))
			continue
		}
		out = appendPeriod(out, start.Weekday(), ClockOf(start), EndOfDay)
		out = appendPeriod(out, end.Weekday(), Midnight, ClockOf(end))
	}
	SortPeriods(out)
	return out
}

func appendPeriod(out []WeeklyPeriod, day time.Weekday, start, end Clock) []WeeklyPeriod {
	if start >= end {
		return out
	}
	return append(out, WeeklyPeriod{Day: day, Start: start, End: end})
}

// anchorDate returns local midnight in loc of the date within three days of ref whose weekday is day.
func anchorDate(day time.Weekday, loc *time.Location, ref time.Time) time.Time {
	local := ref.In(loc)
	base := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	delta := (int(day) - int(local.Weekday()) + 7) % 7
	if delta > 3 {
		delta -= 7
	}
	return base.AddDate(0, 0, delta)
}
