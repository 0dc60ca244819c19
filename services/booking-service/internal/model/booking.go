package model

import (
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/shopspring/decimal"
)

const (
	StatusBooked         = "booked"
	StatusPendingPayment = "pending_payment"
	StatusCancelled      = "cancelled"
	StatusExpired        = "expired"
)

// BlocksTime reports whether a booking in status occupies its interval.
func BlocksTime(status string) bool {
	return status == StatusBooked || status == StatusPendingPayment
}

type Booking struct {
	ID                string
	EventTypeID       string
	OwnerID           string
	InviteeName       string
	InviteeEmail      string
	InviteeTimezone   string
	Notes             string
	StartTime         time.Time
	EndTime           time.Time
	Status            string
	ManageTokenHash   string
	CheckoutSession   string
	CheckoutExpiresAt *time.Time
	CancelledAt       *time.Time
	CancelReason      string
	CreatedAt         time.Time
}

type EventType struct {
	ID              string
	OwnerID         string
	Slug            string
	Title           string
	Description     string
	DurationMinutes int
	Price           decimal.Decimal
	Currency        string
	Active          bool
	CreatedAt       time.Time
}

func (e EventType) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

func (e EventType) RequiresPayment() bool {
	return e.Price.IsPositive()
}

type Schedule struct {
	ID        string
	OwnerID   string
	Timezone  string
	Periods   []availability.WeeklyPeriod
	UpdatedAt time.Time
}

// BusyInterval is time blocked in an owner's external calendar.
type BusyInterval struct {
	OwnerID    string
	Source     string
	ExternalID string
	StartTime  time.Time
	EndTime    time.Time
}
