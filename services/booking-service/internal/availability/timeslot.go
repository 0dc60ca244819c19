package availability

import (
	"encoding/json"
	"fmt"
	"time"
)

// Overlap reports which edge of a slot another slot crosses.
type Overlap int

const (
	OverlapNone Overlap = iota
	OverlapLower
	OverlapUpper
)

func (o Overlap) String() string {
	switch o {
	case OverlapLower:
		return "lower"
	case OverlapUpper:
		return "upper"
	default:
		return "none"
	}
}

// TimeSlot is a closed interval [From, To] of absolute instants at minute resolution.
// Both bounds are inclusive: slots that only touch are treated as overlapping.
type TimeSlot struct {
	from time.Time
	to   time.Time
}

func NewTimeSlot(from, to time.Time) (TimeSlot, error) {
	from = from.Truncate(time.Minute)
	to = to.Truncate(time.Minute)
	if !to.After(from) {
		return TimeSlot{}, fmt.Errorf("%w: %s - %s", ErrInvalidInterval, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return TimeSlot{from: from, to: to}, nil
}

func (s TimeSlot) From() time.Time         { return s.from }
func (s TimeSlot) To() time.Time           { return s.to }
func (s TimeSlot) Duration() time.Duration { return s.to.Sub(s.from) }
func (s TimeSlot) IsZero() bool            { return s.from.IsZero() && s.to.IsZero() }

func (s TimeSlot) Equal(other TimeSlot) bool {
	return s.from.Equal(other.from) && s.to.Equal(other.to)
}

// In returns the same interval expressed in loc.
func (s TimeSlot) In(loc *time.Location) TimeSlot {
	return TimeSlot{from: s.from.In(loc), to: s.to.In(loc)}
}

// IsWithinBounds reports whether other lies entirely inside s.
func (s TimeSlot) IsWithinBounds(other TimeSlot) bool {
	return !other.from.Before(s.from) && !other.to.After(s.to)
}

// IsEnveloped reports whether s lies entirely inside other.
func (s TimeSlot) IsEnveloped(other TimeSlot) bool {
	return other.IsWithinBounds(s)
}

// OverlapsWith checks the upper edge first: other ending inside s wins over other starting inside s.
func (s TimeSlot) OverlapsWith(other TimeSlot) Overlap {
	if s.contains(other.to) {
		return OverlapUpper
	}
	if s.contains(other.from) {
		return OverlapLower
	}
	return OverlapNone
}

func (s TimeSlot) contains(t time.Time) bool {
	return !t.Before(s.from) && !t.After(s.to)
}

// Cut removes removed from s and returns what is left, in chronological order.
func (s TimeSlot) Cut(removed TimeSlot) []TimeSlot {
	if s.IsWithinBounds(removed) {
		out := make([]TimeSlot, 0, 2)
		if !removed.from.Equal(s.from) {
			out = append(out, TimeSlot{from: s.from, to: removed.from})
		}
		if !removed.to.Equal(s.to) {
			out = append(out, TimeSlot{from: removed.to, to: s.to})
		}
		return out
	}
	if s.IsEnveloped(removed) {
		return []TimeSlot{}
	}

	overlap := s.OverlapsWith(removed)
	switch {
	case overlap == OverlapLower && !removed.from.Equal(s.from):
		return []TimeSlot{{from: s.from, to: removed.from}}
	case overlap == OverlapUpper && !removed.to.Equal(s.to):
		return []TimeSlot{{from: removed.to, to: s.to}}
	case overlap != OverlapNone:
		return []TimeSlot{}
	}
	return []TimeSlot{s}
}

// Slice splits s into candidate slots of length duration whose starts advance by offset.
// Generation stops at the first candidate that would cross s.To; nothing is truncated.
// An offset <= 0 means back-to-back slices.
func (s TimeSlot) Slice(duration, offset time.Duration) []TimeSlot {
	duration = duration.Truncate(time.Minute)
	if duration <= 0 {
		return nil
	}
	offset = offset.Truncate(time.Minute)
	if offset <= 0 {
		offset = duration
	}

	var out []TimeSlot
	for start := s.from; ; start = start.Add(offset) {
		candidate := TimeSlot{from: start, to: start.Add(duration)}
		if !s.IsWithinBounds(candidate) {
			break
		}
		out = append(out, candidate)
	}
	return out
}

func (s TimeSlot) String() string {
	return s.from.Format(time.RFC3339) + " - " + s.to.Format(time.RFC3339)
}

type timeSlotJSON struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (s TimeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(timeSlotJSON{StartTime: s.from, EndTime: s.to})
}

func (s *TimeSlot) UnmarshalJSON(b []byte) error {
	var raw timeSlotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	v, err := NewTimeSlot(raw.StartTime, raw.EndTime)
	if err != nil {
		return err
	}
	*s = v
	return nil
}
