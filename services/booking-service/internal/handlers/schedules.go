package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/auth"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/httpx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
)

// ScheduleInvalidator drops cached schedules of event types.
type ScheduleInvalidator interface {
	Invalidate(ctx context.Context, eventTypeIDs ...string) error
}

type ScheduleHandler struct {
	repo         *storage.ScheduleRepository
	schedules    ScheduleInvalidator
	availability Availability
	logger       *slog.Logger
	validate     *validator.Validate
}

func NewScheduleHandler(repo *storage.ScheduleRepository, schedules ScheduleInvalidator, a Availability, logger *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		repo:         repo,
		schedules:    schedules,
		availability: a,
		logger:       logger,
		validate:     newValidator(),
	}
}

type periodBody struct {
	Day       string `json:"day" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
}

type scheduleBody struct {
	Timezone string       `json:"timezone" validate:"required,timezone"`
	Periods  []periodBody `json:"periods" validate:"max=70,dive"`
}

type scheduleResponse struct {
	Timezone  string       `json:"timezone"`
	Periods   []periodBody `json:"periods"`
	UpdatedAt string       `json:"updated_at,omitempty"`
}

// Serve handles GET and PUT /api/v1/schedules for the authenticated owner.
func (h *ScheduleHandler) Serve(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.get(w, r)
	case http.MethodPut:
		h.put(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *ScheduleHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.GetByOwner(r.Context(), auth.OwnerID(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toScheduleResponse(s))
}

func (h *ScheduleHandler) put(w http.ResponseWriter, r *http.Request) {
	var body scheduleBody
	if err := httpx.DecodeJSON(r, &body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := h.validate.Struct(body); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	periods, err := parsePeriods(body.Periods)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := auth.OwnerID(r)
	s, eventTypeIDs, err := h.repo.Replace(r.Context(), ownerID, body.Timezone, periods)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if err := h.schedules.Invalidate(r.Context(), eventTypeIDs...); err != nil {
		h.logger.Warn("schedule cache invalidation failed", "err", err, "owner_id", ownerID)
	}
	h.availability.Invalidate(r.Context(), ownerID)

	h.logger.Info("schedule replaced", "owner_id", ownerID, "timezone", s.Timezone, "periods", len(s.Periods))
	httpx.WriteJSON(w, http.StatusOK, toScheduleResponse(s))
}

// parsePeriods turns request periods into validated weekly periods. Overlapping periods are
// allowed; availability merges them when slots are computed.
func parsePeriods(in []periodBody) ([]availability.WeeklyPeriod, error) {
	out := make([]availability.WeeklyPeriod, 0, len(in))
	for i, p := range in {
		day, ok := parseWeekday(p.Day)
		if !ok {
			return nil, fmt.Errorf("periods[%d]: unknown day %q", i, p.Day)
		}
		start, err := availability.ParseClock(p.StartTime)
		if err != nil {
			return nil, fmt.Errorf("periods[%d]: start_time: %w", i, err)
		}
		end, err := availability.ParseClock(p.EndTime)
		if err != nil {
			return nil, fmt.Errorf("periods[%d]: end_time: %w", i, err)
		}
		wp := availability.WeeklyPeriod{Day: day, Start: start, End: end}
		if err := wp.Validate(); err != nil {
			return nil, fmt.Errorf("periods[%d]: %w", i, err)
		}
		out = append(out, wp)
	}
	return out, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}

func toScheduleResponse(s model.Schedule) scheduleResponse {
	out := scheduleResponse{Timezone: s.Timezone, Periods: make([]periodBody, 0, len(s.Periods))}
	for _, p := range s.Periods {
		out.Periods = append(out.Periods, periodBody{
			Day:       strings.ToLower(p.Day.String()),
			StartTime: p.Start.String(),
			EndTime:   p.End.String(),
		})
	}
	if !s.UpdatedAt.IsZero() {
		out.UpdatedAt = s.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return out
}
