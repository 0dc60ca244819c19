package availability

import "time"

// TimePeriod is the ordered set of free slots inside one day. Erase is the only mutation.
type TimePeriod struct {
	slots []TimeSlot
}

func NewTimePeriod(slots ...TimeSlot) *TimePeriod {
	return &TimePeriod{slots: append([]TimeSlot(nil), slots...)}
}

// Erase removes booked from every free slot.
func (p *TimePeriod) Erase(booked TimeSlot) {
	next := make([]TimeSlot, 0, len(p.slots)+1)
	for _, s := range p.slots {
		next = append(next, s.Cut(booked)...)
	}
	p.slots = next
}

func (p *TimePeriod) AvailableSlices(duration, offset time.Duration) []TimeSlot {
	var out []TimeSlot
	for _, s := range p.slots {
		out = append(out, s.Slice(duration, offset)...)
	}
	return out
}

func (p *TimePeriod) ContainsBookable(candidate TimeSlot) bool {
	for _, s := range p.slots {
		if s.IsWithinBounds(candidate) {
			return true
		}
	}
	return false
}

func (p *TimePeriod) Slots() []TimeSlot {
	return append([]TimeSlot(nil), p.slots...)
}
