package busysync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/ics"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const Topic = "calendar.busy.synced.v1"

// Event is one external calendar entry, as published by the calendar sync worker.
type Event struct {
	OwnerID    string    `json:"owner_id" validate:"required,max=64"`
	Source     string    `json:"source" validate:"required,max=64"`
	ExternalID string    `json:"external_id" validate:"required,max=255"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	EndTime    time.Time `json:"end_time" validate:"required,gtfield=StartTime"`
	Timezone   string    `json:"timezone,omitempty" validate:"omitempty,timezone"`
	RRule      string    `json:"rrule,omitempty" validate:"max=512"`
	Cancelled  bool      `json:"cancelled"`
}

type Store interface {
	Sync(ctx context.Context, ownerID, source, externalID string, intervals []model.BusyInterval) error
}

type Invalidator interface {
	Invalidate(ctx context.Context, ownerID string)
}

type Handler struct {
	store    Store
	cache    Invalidator
	logger   *slog.Logger
	validate *validator.Validate
	horizon  time.Duration
	now      func() time.Time
}

func NewHandler(store Store, cache Invalidator, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		cache:    cache,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		horizon:  ics.DefaultHorizon,
		now:      time.Now,
	}
}

// Decode parses and validates a message body.
func (h *Handler) Decode(raw []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		return Event{}, fmt.Errorf("decode busy event: %w", err)
	}
	if err := h.validate.Struct(evt); err != nil {
		return Event{}, fmt.Errorf("validate busy event: %w", err)
	}
	return evt, nil
}

// Intervals expands evt into the rows to store. Cancelled events store nothing. Recurring
// events repeat in evt.Timezone when set, otherwise at start_time's fixed offset.
func (h *Handler) Intervals(evt Event) ([]model.BusyInterval, error) {
	if evt.Cancelled {
		return nil, nil
	}
	var loc *time.Location
	if evt.Timezone != "" {
		l, err := time.LoadLocation(evt.Timezone)
		if err != nil {
			return nil, fmt.Errorf("busy event timezone %q: %w", evt.Timezone, err)
		}
		loc = l
	}
	occ, err := ics.ExpandBusy(evt.StartTime, evt.EndTime, loc, evt.RRule, h.now(), h.horizon)
	if err != nil {
		return nil, err
	}
	out := make([]model.BusyInterval, 0, len(occ))
	for _, o := range occ {
		out = append(out, model.BusyInterval{
			OwnerID:    evt.OwnerID,
			Source:     evt.Source,
			ExternalID: evt.ExternalID,
			StartTime:  o.Start.UTC(),
			EndTime:    o.End.UTC(),
		})
	}
	return out, nil
}

// Handle is a consumer.Handler.
func (h *Handler) Handle(ctx context.Context, msg kafka.Message) error {
	evt, err := h.Decode(msg.Value)
	if err != nil {
		return err
	}
	intervals, err := h.Intervals(evt)
	if err != nil {
		return err
	}
	if err := h.store.Sync(ctx, evt.OwnerID, evt.Source, evt.ExternalID, intervals); err != nil {
		return fmt.Errorf("store busy intervals: %w", err)
	}
	h.cache.Invalidate(ctx, evt.OwnerID)
	h.logger.Debug("external busy synced",
		"owner_id", evt.OwnerID,
		"source", evt.Source,
		"external_id", evt.ExternalID,
		"occurrences", len(intervals),
		"cancelled", evt.Cancelled,
	)
	return nil
}
