package policy

import (
	"fmt"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/config"
	"github.com/robfig/cron/v3"
)

// Policy holds the booking rules an operator can tune without a deploy.
type Policy struct {
	SlotStepMinutes          int    `yaml:"slot_step_minutes" validate:"gte=0,lte=1440"`
	MinNoticeMinutes         int    `yaml:"min_notice_minutes" validate:"gte=0"`
	MaxMonthsAhead           int    `yaml:"max_months_ahead" validate:"gte=1,lte=36"`
	PendingPaymentTTLMinutes int    `yaml:"pending_payment_ttl_minutes" validate:"gte=30,lte=1440"`
	ExpireCron               string `yaml:"expire_cron" validate:"required"`
	CacheTTLSeconds          int    `yaml:"cache_ttl_seconds" validate:"gte=0,lte=86400"`
}

func Default() Policy {
	return Policy{
		SlotStepMinutes:          0,
		MinNoticeMinutes:         60,
		MaxMonthsAhead:           6,
		PendingPaymentTTLMinutes: 30,
		ExpireCron:               "@every 1m",
		CacheTTLSeconds:          120,
	}
}

// Load reads a policy file on top of the defaults. An empty path returns the defaults.
func Load(path string) (Policy, error) {
	p := Default()
	if path == "" {
		return p, nil
	}
	if err := config.LoadYAML(path, &p); err != nil {
		return Policy{}, err
	}
	if _, err := cron.ParseStandard(p.ExpireCron); err != nil {
		return Policy{}, fmt.Errorf("policy: expire_cron %q: %w", p.ExpireCron, err)
	}
	return p, nil
}

// Step is the distance between offered slot starts; zero means back-to-back slots.
func (p Policy) Step() time.Duration {
	return time.Duration(p.SlotStepMinutes) * time.Minute
}

func (p Policy) MinNotice() time.Duration {
	return time.Duration(p.MinNoticeMinutes) * time.Minute
}

func (p Policy) PendingPaymentTTL() time.Duration {
	return time.Duration(p.PendingPaymentTTLMinutes) * time.Minute
}

func (p Policy) CacheTTL() time.Duration {
	return time.Duration(p.CacheTTLSeconds) * time.Second
}

// EarliestStart is the first instant a visitor may book at.
func (p Policy) EarliestStart(now time.Time) time.Time {
	return now.Add(p.MinNotice())
}

// WithinHorizon reports whether the month starting at monthStart may be queried at now.
func (p Policy) WithinHorizon(now, monthStart time.Time) bool {
	last := time.Date(now.Year(), now.Month()+time.Month(p.MaxMonthsAhead), 1, 0, 0, 0, 0, time.UTC)
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	m := time.Date(monthStart.Year(), monthStart.Month(), 1, 0, 0, 0, 0, time.UTC)
	return !m.Before(first.AddDate(0, -1, 0)) && !m.After(last)
}
