package outbox

import (
	"encoding/json"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
)

// Topics. The Kafka topic of an event equals its type.
const (
	EventBookingCreated     = "booking.created.v1"
	EventBookingConfirmed   = "booking.confirmed.v1"
	EventBookingCancelled   = "booking.cancelled.v1"
	EventBookingRescheduled = "booking.rescheduled.v1"
	EventBookingExpired     = "booking.expired.v1"

	// A payment completed for a booking that no longer holds its slot and needs a refund.
	EventBookingPaymentUnmatched = "booking.payment_unmatched.v1"
)

// Event is the envelope written to outbox_events in the same transaction as the state change.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type BookingPayload struct {
	BookingID    string `json:"booking_id"`
	EventTypeID  string `json:"event_type_id"`
	OwnerID      string `json:"owner_id"`
	InviteeName  string `json:"invitee_name"`
	InviteeEmail string `json:"invitee_email"`
	Timezone     string `json:"invitee_timezone"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	Status       string `json:"status"`
	Reason       string `json:"reason,omitempty"`
	PreviousFrom string `json:"previous_start_time,omitempty"`
	PreviousTo   string `json:"previous_end_time,omitempty"`
	OccurredAt   string `json:"occurred_at"`
}

// BookingEvent builds an event describing b's current state.
func BookingEvent(eventType string, b model.Booking, now time.Time) (Event, error) {
	return BookingEventWith(eventType, b, now, func(*BookingPayload) {})
}

func BookingEventWith(eventType string, b model.Booking, now time.Time, decorate func(*BookingPayload)) (Event, error) {
	p := BookingPayload{
		BookingID:    b.ID,
		EventTypeID:  b.EventTypeID,
		OwnerID:      b.OwnerID,
		InviteeName:  b.InviteeName,
		InviteeEmail: b.InviteeEmail,
		Timezone:     b.InviteeTimezone,
		StartTime:    b.StartTime.UTC().Format(time.RFC3339),
		EndTime:      b.EndTime.UTC().Format(time.RFC3339),
		Status:       b.Status,
		Reason:       b.CancelReason,
		OccurredAt:   now.UTC().Format(time.RFC3339),
	}
	decorate(&p)
	body, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     eventType,
		Payload:       body,
	}, nil
}
