package availability

import (
	"fmt"
	"time"
)

// Clock is a wall-clock time of day with minute resolution, stored as minutes past midnight.
type Clock int

const (
	Midnight Clock = 0
	EndOfDay Clock = 23*60 + 59
)

func NewClock(hour, minute int) (Clock, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("clock %02d:%02d out of range", hour, minute)
	}
	return Clock(hour*60 + minute), nil
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("clock %q: expected HH:MM", s)
	}
	hour, ok1 := twoDigits(s[0:2])
	minute, ok2 := twoDigits(s[3:5])
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("clock %q: expected HH:MM", s)
	}
	return NewClock(hour, minute)
}

func twoDigits(s string) (int, bool) {
	if s[0] < '0' || s[0] > '9' || s[1] < '0' || s[1] > '9' {
		return 0, false
	}
	return int(s[0]-'0')*10 + int(s[1]-'0'), true
}

// ClockOf returns the wall-clock time of t in its own location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) Hour() int   { return int(c) / 60 }
func (c Clock) Minute() int { return int(c) % 60 }

func (c Clock) Valid() bool { return c >= Midnight && c <= EndOfDay }

// On returns the instant at which day's calendar date reaches c, in day's location.
// Wall-clock times that fall inside a DST gap are normalized by time.Date.
func (c Clock) On(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c Clock) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("clock %d out of range", int(c))
	}
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
