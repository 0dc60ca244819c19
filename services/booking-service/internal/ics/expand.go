package ics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const (
	DefaultHorizon = 90 * 24 * time.Hour
	MaxOccurrences = 500
)

var ErrInvalidRule = errors.New("invalid recurrence rule")

type Occurrence struct {
	Start time.Time
	End   time.Time
}

// ExpandBusy turns a possibly recurring busy event into concrete occurrences between from and
// from+horizon. Occurrences already in progress at from are kept. An empty rule yields the
// event itself.
//
// Recurrences keep start's wall-clock time in loc, so a weekly 09:00 meeting stays at 09:00
// across DST changes. A nil loc means start's own location.
func ExpandBusy(start, end time.Time, loc *time.Location, rule string, from time.Time, horizon time.Duration) ([]Occurrence, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s not after start %s", ErrInvalidRule, end.Format(time.RFC3339), start.Format(time.RFC3339))
	}
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return []Occurrence{{Start: start, End: end}}, nil
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	rule = strings.TrimPrefix(rule, "RRULE:")

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	if loc == nil {
		loc = start.Location()
	}
	r.DTStart(start.In(loc))

	length := end.Sub(start)
	starts := r.Between(from.Add(-length), from.Add(horizon), true)
	if len(starts) > MaxOccurrences {
		starts = starts[:MaxOccurrences]
	}
	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		out = append(out, Occurrence{Start: s, End: s.Add(length)})
	}
	return out, nil
}
