package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/auth"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/httpx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/ics"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
)

const feedLimit = 500

type CalendarHandler struct {
	schedules *storage.ScheduleRepository
	bookings  *storage.BookingRepository
	logger    *slog.Logger
	now       func() time.Time
}

func NewCalendarHandler(schedules *storage.ScheduleRepository, bookings *storage.BookingRepository, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{schedules: schedules, bookings: bookings, logger: logger, now: time.Now}
}

// Feed serves the owner's bookings and working hours as text/calendar.
func (h *CalendarHandler) Feed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	now := h.now()
	from, to, ok := listWindow(w, r, now)
	if !ok {
		return
	}
	ownerID := auth.OwnerID(r)

	var sched *model.Schedule
	s, err := h.schedules.GetByOwner(r.Context(), ownerID)
	switch {
	case err == nil:
		sched = &s
	case storage.IsNotFound(err):
	default:
		writeServiceError(w, r, h.logger, err)
		return
	}

	bookings, err := h.bookings.ListByOwner(r.Context(), ownerID, from, to, feedLimit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	body, err := ics.BookingFeed(ics.FeedOptions{Name: "Bookings", Schedule: sched, Now: now}, bookings)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="bookings.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}
