package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/httpx"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/payments"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/slots"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
)

// writeServiceError maps domain errors to status codes. Unexpected errors are logged and
// answered with a generic message.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, availability.ErrScheduleNotFound), storage.IsNotFound(err):
		httpx.WriteError(w, http.StatusNotFound, "not found")
	case errors.Is(err, availability.ErrInvalidInterval),
		errors.Is(err, availability.ErrInvalidTimezone),
		errors.Is(err, availability.ErrInvalidDuration),
		errors.Is(err, availability.ErrInvalidPeriod),
		errors.Is(err, slots.ErrDurationMismatch),
		errors.Is(err, slots.ErrOutsideHorizon):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case storage.IsConflict(err):
		httpx.WriteError(w, http.StatusConflict, "time slot is no longer available")
	case errors.Is(err, payments.ErrPaymentsDisabled):
		httpx.WriteError(w, http.StatusServiceUnavailable, "payments are not available")
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, http.StatusServiceUnavailable, "dependency timeout")
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
	default:
		logger.Error("request failed", "err", err, "method", r.Method, "path", r.URL.Path, "request_id", httpx.RequestIDFromContext(r.Context()))
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
