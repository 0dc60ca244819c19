package availability

import (
	"testing"
	"time"
)

var testDay = time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) // Monday

func at(t *testing.T, hhmm string) time.Time {
	t.Helper()
	c, err := ParseClock(hhmm)
	if err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return c.On(testDay)
}

func slot(t *testing.T, from, to string) TimeSlot {
	t.Helper()
	s, err := NewTimeSlot(at(t, from), at(t, to))
	if err != nil {
		t.Fatalf("slot %s-%s: %v", from, to, err)
	}
	return s
}

func clock(t *testing.T, hhmm string) Clock {
	t.Helper()
	c, err := ParseClock(hhmm)
	if err != nil {
		t.Fatalf("parse %q: %v", hhmm, err)
	}
	return c
}

func formatSlots(slots []TimeSlot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.From().Format("15:04")+"-"+s.To().Format("15:04"))
	}
	return out
}

func assertSlots(t *testing.T, got []TimeSlot, want ...string) {
	t.Helper()
	g := formatSlots(got)
	if len(g) != len(want) {
		t.Fatalf("expected %v, got %v", want, g)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, g)
		}
	}
}
