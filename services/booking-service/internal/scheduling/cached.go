package scheduling

import (
	"context"
	"log/slog"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/cache"
)

// CachedProvider fronts another provider with Redis. Cache failures degrade to the inner
// provider.
type CachedProvider struct {
	inner  Provider
	cache  cache.Store
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedProvider(inner Provider, c cache.Store, ttl time.Duration, logger *slog.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedProvider{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func scheduleKey(eventTypeID string) string { return "schedule:" + eventTypeID }

func (p *CachedProvider) ScheduleForEventType(ctx context.Context, eventTypeID string) (Schedule, error) {
	var s Schedule
	hit, err := p.cache.GetJSON(ctx, scheduleKey(eventTypeID), &s)
	if err != nil {
		p.logger.Warn("schedule cache read failed", "err", err, "event_type_id", eventTypeID)
	}
	if hit {
		return s, nil
	}

	s, err = p.inner.ScheduleForEventType(ctx, eventTypeID)
	if err != nil {
		return Schedule{}, err
	}
	if err := p.cache.SetJSON(ctx, scheduleKey(eventTypeID), s, p.ttl); err != nil {
		p.logger.Warn("schedule cache write failed", "err", err, "event_type_id", eventTypeID)
	}
	return s, nil
}

// Invalidate drops cached schedules, e.g. after the owner edits their availability.
func (p *CachedProvider) Invalidate(ctx context.Context, eventTypeIDs ...string) error {
	keys := make([]string, 0, len(eventTypeIDs))
	for _, id := range eventTypeIDs {
		keys = append(keys, scheduleKey(id))
	}
	return p.cache.Delete(ctx, keys...)
}
