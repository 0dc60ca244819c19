package slots

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	otelx "github.com/mariuslungu97/calendar-booking-backend-sub000/libs/otel"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/cache"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/policy"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/scheduling"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

var (
	ErrOutsideHorizon   = errors.New("month outside booking horizon")
	ErrDurationMismatch = errors.New("slot length does not match event duration")
)

// BookedLookup returns bookings that block time (booked or awaiting payment).
type BookedLookup interface {
	BookedIntervals(ctx context.Context, ownerID string, from, to time.Time, excludeID string) ([]availability.BookedInterval, error)
}

// BusyLookup returns busy time imported from external calendars.
type BusyLookup interface {
	BusyIntervals(ctx context.Context, ownerID string, from, to time.Time) ([]availability.BookedInterval, error)
}

type Service struct {
	schedules scheduling.Provider
	bookings  BookedLookup
	busy      BusyLookup
	cache     cache.Store
	policy    policy.Policy
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires the lookups. store may be nil, in which case month results are not cached.
func NewService(schedules scheduling.Provider, bookings BookedLookup, busy BusyLookup, store cache.Store, p policy.Policy, logger *slog.Logger) *Service {
	return &Service{
		schedules: schedules,
		bookings:  bookings,
		busy:      busy,
		cache:     store,
		policy:    p,
		logger:    logger,
		now:       time.Now,
	}
}

type MonthResult struct {
	EventTypeID     string                         `json:"event_type_id"`
	Month           string                         `json:"month"`
	Timezone        string                         `json:"timezone"`
	DurationMinutes int                            `json:"duration_minutes"`
	Days            []availability.DayAvailability `json:"days"`
}

// MonthAvailability lists the free slots of an event type for every day of a month, in the
// visitor's timezone. Slots earlier than the minimum notice are left out.
func (s *Service) MonthAvailability(ctx context.Context, eventTypeID string, year int, month time.Month, visitorTZ string) (MonthResult, error) {
	ctx, span := otelx.Tracer("booking-service/slots").Start(ctx, "slots.MonthAvailability")
	defer span.End()
	span.SetAttributes(
		attribute.String("event_type_id", eventTypeID),
		attribute.String("month", fmt.Sprintf("%04d-%02d", year, int(month))),
	)

	res, err := s.monthAvailability(ctx, eventTypeID, year, month, visitorTZ)
	otelx.RecordError(span, err)
	return res, err
}

func (s *Service) monthAvailability(ctx context.Context, eventTypeID string, year int, month time.Month, visitorTZ string) (MonthResult, error) {
	loc, err := availability.LoadLocation(visitorTZ)
	if err != nil {
		return MonthResult{}, err
	}
	if month < time.January || month > time.December {
		return MonthResult{}, fmt.Errorf("%w: month %d", ErrOutsideHorizon, month)
	}
	now := s.now()
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	if !s.policy.WithinHorizon(now, first) {
		return MonthResult{}, fmt.Errorf("%w: %s", ErrOutsideHorizon, first.Format("2006-01"))
	}

	sched, err := s.schedules.ScheduleForEventType(ctx, eventTypeID)
	if err != nil {
		return MonthResult{}, err
	}
	tmpl, err := sched.Template()
	if err != nil {
		return MonthResult{}, err
	}

	res := MonthResult{
		EventTypeID:     eventTypeID,
		Month:           first.Format("2006-01"),
		Timezone:        loc.String(),
		DurationMinutes: int(sched.Duration / time.Minute),
	}

	key := ""
	if s.cache != nil {
		gen, err := s.cache.Generation(ctx, sched.OwnerID)
		if err != nil {
			s.logger.Warn("availability generation read failed", "err", err, "owner_id", sched.OwnerID)
		} else {
			key = fmt.Sprintf("month:%s:%d:%s:%s:%s", sched.OwnerID, gen, eventTypeID, res.Month, res.Timezone)
			var days []availability.DayAvailability
			hit, err := s.cache.GetJSON(ctx, key, &days)
			if err != nil {
				s.logger.Warn("availability cache read failed", "err", err, "key", key)
			}
			if hit {
				res.Days = notBefore(days, s.policy.EarliestStart(now), loc)
				return res, nil
			}
		}
	}

	from := first.AddDate(0, 0, -1)
	to := first.AddDate(0, 1, 1)
	booked, err := s.occupied(ctx, sched.OwnerID, from, to, "")
	if err != nil {
		return MonthResult{}, err
	}

	days, err := availability.ComputeMonthAvailability(availability.MonthQuery{
		Template: tmpl,
		Booked:   booked,
		Year:     year,
		Month:    month,
		Location: loc,
		Duration: sched.Duration,
		Step:     s.policy.Step(),
	})
	if err != nil {
		return MonthResult{}, err
	}
	if key != "" {
		if err := s.cache.SetJSON(ctx, key, days, s.policy.CacheTTL()); err != nil {
			s.logger.Warn("availability cache write failed", "err", err, "key", key)
		}
	}

	res.Days = notBefore(days, s.policy.EarliestStart(now), loc)
	return res, nil
}

// Bookable reports whether [start, end) can be booked for the event type right now. The slot
// must match the event duration and respect the minimum notice. excludeBookingID ignores one
// existing booking, which lets a booking be moved onto time it partly occupies.
func (s *Service) Bookable(ctx context.Context, eventTypeID string, start, end time.Time, visitorTZ, excludeBookingID string) (bool, error) {
	ctx, span := otelx.Tracer("booking-service/slots").Start(ctx, "slots.Bookable")
	defer span.End()
	span.SetAttributes(attribute.String("event_type_id", eventTypeID))

	ok, err := s.bookable(ctx, eventTypeID, start, end, visitorTZ, excludeBookingID)
	otelx.RecordError(span, err)
	span.SetAttributes(attribute.Bool("bookable", ok))
	return ok, err
}

func (s *Service) bookable(ctx context.Context, eventTypeID string, start, end time.Time, visitorTZ, excludeBookingID string) (bool, error) {
	loc, err := availability.LoadLocation(visitorTZ)
	if err != nil {
		return false, err
	}
	candidate, err := availability.NewTimeSlot(start, end)
	if err != nil {
		return false, err
	}

	sched, err := s.schedules.ScheduleForEventType(ctx, eventTypeID)
	if err != nil {
		return false, err
	}
	if candidate.Duration() != sched.Duration {
		return false, fmt.Errorf("%w: got %s, want %s", ErrDurationMismatch, candidate.Duration(), sched.Duration)
	}
	if candidate.From().Before(s.policy.EarliestStart(s.now())) {
		return false, nil
	}
	tmpl, err := sched.Template()
	if err != nil {
		return false, err
	}

	booked, err := s.occupied(ctx, sched.OwnerID, candidate.From(), candidate.To(), excludeBookingID)
	if err != nil {
		return false, err
	}
	return availability.IsSlotBookable(tmpl, booked, candidate, loc)
}

// Invalidate drops every cached month of the owner.
func (s *Service) Invalidate(ctx context.Context, ownerID string) {
	if s.cache == nil || ownerID == "" {
		return
	}
	if err := s.cache.BumpGeneration(ctx, ownerID); err != nil {
		s.logger.Warn("availability cache invalidation failed", "err", err, "owner_id", ownerID)
	}
}

func (s *Service) occupied(ctx context.Context, ownerID string, from, to time.Time, excludeBookingID string) ([]availability.BookedInterval, error) {
	var booked, busy []availability.BookedInterval
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		booked, err = s.bookings.BookedIntervals(gctx, ownerID, from, to, excludeBookingID)
		if err != nil {
			return fmt.Errorf("booked intervals: %w", err)
		}
		return nil
	})
	if s.busy != nil {
		g.Go(func() error {
			var err error
			busy, err = s.busy.BusyIntervals(gctx, ownerID, from, to)
			if err != nil {
				return fmt.Errorf("busy intervals: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return append(booked, busy...), nil
}

func notBefore(days []availability.DayAvailability, earliest time.Time, loc *time.Location) []availability.DayAvailability {
	out := make([]availability.DayAvailability, 0, len(days))
	for _, d := range days {
		free := make([]availability.TimeSlot, 0, len(d.Slots))
		for _, slot := range d.Slots {
			if slot.From().Before(earliest) {
				continue
			}
			free = append(free, slot.In(loc))
		}
		out = append(out, availability.DayAvailability{Date: d.Date, Slots: free})
	}
	return out
}
