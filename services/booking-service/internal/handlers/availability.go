package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/httpx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/slots"
)

// Availability is implemented by *slots.Service.
type Availability interface {
	MonthAvailability(ctx context.Context, eventTypeID string, year int, month time.Month, visitorTZ string) (slots.MonthResult, error)
	Bookable(ctx context.Context, eventTypeID string, start, end time.Time, visitorTZ, excludeBookingID string) (bool, error)
	Invalidate(ctx context.Context, ownerID string)
}

type AvailabilityHandler struct {
	availability Availability
	logger       *slog.Logger
}

func NewAvailabilityHandler(a Availability, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{availability: a, logger: logger}
}

// Month serves GET ?event_type_id=&month=YYYY-MM&timezone=.
func (h *AvailabilityHandler) Month(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	eventTypeID := strings.TrimSpace(q.Get("event_type_id"))
	if eventTypeID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "event_type_id is required")
		return
	}
	month, err := time.Parse("2006-01", strings.TrimSpace(q.Get("month")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "month must be YYYY-MM")
		return
	}

	res, err := h.availability.MonthAvailability(r.Context(), eventTypeID, month.Year(), month.Month(), timezoneParam(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	httpx.WriteJSON(w, http.StatusOK, res)
}

type checkResponse struct {
	Bookable bool `json:"bookable"`
}

// Check serves GET ?event_type_id=&start_time=&end_time=&timezone=.
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	eventTypeID := strings.TrimSpace(q.Get("event_type_id"))
	if eventTypeID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "event_type_id is required")
		return
	}
	start, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("start_time")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid start_time")
		return
	}
	end, err := time.Parse(time.RFC3339, strings.TrimSpace(q.Get("end_time")))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid end_time")
		return
	}

	ok, err := h.availability.Bookable(r.Context(), eventTypeID, start, end, timezoneParam(r), "")
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, checkResponse{Bookable: ok})
}

func timezoneParam(r *http.Request) string {
	if tz := strings.TrimSpace(r.URL.Query().Get("timezone")); tz != "" {
		return tz
	}
	return "UTC"
}
