package ics

import (
	"fmt"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
	"github.com/teambition/rrule-go"
)

const (
	productName = "calendar-booking"
	localLayout = "20060102T150405"
)

type FeedOptions struct {
	Name     string
	Schedule *model.Schedule
	Now      time.Time
}

// BookingFeed renders an owner's bookings as an iCalendar feed. When a schedule is given its
// weekly periods are added as transparent recurring "Available" events in the owner's zone.
func BookingFeed(opts FeedOptions, bookings []model.Booking) (string, error) {
	cal := ical.NewCalendarFor(productName)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	if opts.Schedule != nil && len(opts.Schedule.Periods) > 0 {
		loc, err := availability.LoadLocation(opts.Schedule.Timezone)
		if err != nil {
			return "", err
		}
		cal.SetXWRTimezone(loc.String())
		for i, p := range opts.Schedule.Periods {
			addWorkingHours(cal, opts.Schedule.OwnerID, i, p, loc, opts.Now)
		}
	}

	for _, b := range bookings {
		ev := cal.AddEvent(b.ID + "@" + productName)
		ev.SetDtStampTime(opts.Now)
		if !b.CreatedAt.IsZero() {
			ev.SetCreatedTime(b.CreatedAt)
		}
		ev.SetStartAt(b.StartTime)
		ev.SetEndAt(b.EndTime)
		ev.SetSummary(fmt.Sprintf("Booking with %s", b.InviteeName))
		if b.Notes != "" {
			ev.SetDescription(b.Notes)
		}
		ev.AddAttendee("mailto:"+b.InviteeEmail, ical.WithCN(b.InviteeName))
		ev.SetStatus(eventStatus(b.Status))
	}
	return cal.Serialize(), nil
}

func addWorkingHours(cal *ical.Calendar, ownerID string, i int, p availability.WeeklyPeriod, loc *time.Location, now time.Time) {
	day := nextWeekday(now.In(loc), p.Day)
	ev := cal.AddEvent(fmt.Sprintf("hours-%s-%d@%s", ownerID, i, productName))
	ev.SetDtStampTime(now)
	ev.SetProperty(ical.ComponentPropertyDtStart, p.Start.On(day).Format(localLayout), ical.WithTZID(loc.String()))
	ev.SetProperty(ical.ComponentPropertyDtEnd, p.End.On(day).Format(localLayout), ical.WithTZID(loc.String()))
	ev.AddRrule(WeeklyRule(p.Day))
	ev.SetSummary("Available")
	ev.SetTimeTransparency(ical.TransparencyTransparent)
}

// WeeklyRule returns the RRULE value repeating every week on day.
func WeeklyRule(day time.Weekday) string {
	opt := rrule.ROption{Freq: rrule.WEEKLY, Byweekday: []rrule.Weekday{rruleWeekday(day)}}
	return opt.RRuleString()
}

func rruleWeekday(d time.Weekday) rrule.Weekday {
	return [...]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}[d]
}

func nextWeekday(t time.Time, d time.Weekday) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, (int(d)-int(day.Weekday())+7)%7)
}

func eventStatus(status string) ical.ObjectStatus {
	switch status {
	case model.StatusBooked:
		return ical.ObjectStatusConfirmed
	case model.StatusPendingPayment:
		return ical.ObjectStatusTentative
	default:
		return ical.ObjectStatusCancelled
	}
}
