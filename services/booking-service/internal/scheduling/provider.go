package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
	"github.com/shopspring/decimal"
)

// Schedule is everything availability needs to know about one event type.
type Schedule struct {
	EventTypeID string                      `json:"event_type_id"`
	OwnerID     string                      `json:"owner_id"`
	Title       string                      `json:"title"`
	Timezone    string                      `json:"timezone"`
	Periods     []availability.WeeklyPeriod `json:"periods"`
	Duration    time.Duration               `json:"duration"`
	Price       decimal.Decimal             `json:"price"`
	Currency    string                      `json:"currency"`
}

func (s Schedule) Template() (availability.Template, error) {
	return availability.NewTemplate(s.Timezone, s.Periods)
}

// Provider resolves an event type to its owner's weekly schedule. Unknown or inactive event
// types, and owners without a schedule, yield availability.ErrScheduleNotFound.
type Provider interface {
	ScheduleForEventType(ctx context.Context, eventTypeID string) (Schedule, error)
}

type storageProvider struct {
	repo *storage.ScheduleRepository
}

func NewStorageProvider(repo *storage.ScheduleRepository) Provider {
	return &storageProvider{repo: repo}
}

func (p *storageProvider) ScheduleForEventType(ctx context.Context, eventTypeID string) (Schedule, error) {
	s, et, err := p.repo.GetForEventType(ctx, eventTypeID)
	if err != nil {
		if storage.IsNotFound(err) {
			return Schedule{}, fmt.Errorf("%w: event type %s", availability.ErrScheduleNotFound, eventTypeID)
		}
		return Schedule{}, err
	}
	return FromModel(s, et), nil
}

func FromModel(s model.Schedule, et model.EventType) Schedule {
	return Schedule{
		EventTypeID: et.ID,
		OwnerID:     s.OwnerID,
		Title:       et.Title,
		Timezone:    s.Timezone,
		Periods:     s.Periods,
		Duration:    et.Duration(),
		Price:       et.Price,
		Currency:    et.Currency,
	}
}
