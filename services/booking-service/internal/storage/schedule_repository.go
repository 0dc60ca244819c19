package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/db"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
)

type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) GetByOwner(ctx context.Context, ownerID string) (model.Schedule, error) {
	var s model.Schedule
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, owner_id, timezone, updated_at
		FROM schedules
		WHERE owner_id = $1
	`, ownerID).Scan(&s.ID, &s.OwnerID, &s.Timezone, &s.UpdatedAt)
	if err != nil {
		return model.Schedule{}, notFound(err)
	}

	periods, err := r.listPeriods(ctx, s.ID)
	if err != nil {
		return model.Schedule{}, err
	}
	s.Periods = periods
	return s, nil
}

// GetForEventType loads an active event type together with its owner's schedule.
func (r *ScheduleRepository) GetForEventType(ctx context.Context, eventTypeID string) (model.Schedule, model.EventType, error) {
	var (
		s  model.Schedule
		et model.EventType
	)
	err := r.pool.QueryRow(ctx, `
		SELECT s.id::text, s.owner_id, s.timezone, s.updated_at,
			e.id::text, e.owner_id, e.slug, e.title, e.description, e.duration_minutes, e.price, e.currency, e.active, e.created_at
		FROM event_types e
		JOIN schedules s ON s.owner_id = e.owner_id
		WHERE e.id = $1 AND e.active
	`, eventTypeID).Scan(
		&s.ID, &s.OwnerID, &s.Timezone, &s.UpdatedAt,
		&et.ID, &et.OwnerID, &et.Slug, &et.Title, &et.Description, &et.DurationMinutes, &et.Price, &et.Currency, &et.Active, &et.CreatedAt,
	)
	if err != nil {
		return model.Schedule{}, model.EventType{}, notFound(err)
	}

	periods, err := r.listPeriods(ctx, s.ID)
	if err != nil {
		return model.Schedule{}, model.EventType{}, err
	}
	s.Periods = periods
	return s, et, nil
}

// Replace upserts the owner's schedule and swaps its periods in one transaction. It returns
// the ids of the owner's event types so callers can drop cached schedules.
func (r *ScheduleRepository) Replace(ctx context.Context, ownerID, timezone string, periods []availability.WeeklyPeriod) (model.Schedule, []string, error) {
	var (
		s            model.Schedule
		eventTypeIDs []string
	)
	err := r.pool.InTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO schedules (owner_id, timezone)
			VALUES ($1, $2)
			ON CONFLICT (owner_id) DO UPDATE
			SET timezone = EXCLUDED.timezone,
				updated_at = now()
			RETURNING id::text, owner_id, timezone, updated_at
		`, ownerID, timezone).Scan(&s.ID, &s.OwnerID, &s.Timezone, &s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert schedule: %w", err)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM schedule_periods WHERE schedule_id = $1`, s.ID); err != nil {
			return fmt.Errorf("clear periods: %w", err)
		}
		if len(periods) > 0 {
			rows := make([][]any, 0, len(periods))
			for _, p := range periods {
				rows = append(rows, []any{s.ID, int16(p.Day), int16(p.Start), int16(p.End)})
			}
			_, err := tx.CopyFrom(ctx,
				pgx.Identifier{"schedule_periods"},
				[]string{"schedule_id", "day_of_week", "start_minute", "end_minute"},
				pgx.CopyFromRows(rows),
			)
			if err != nil {
				return fmt.Errorf("insert periods: %w", err)
			}
		}

		eventTypeIDs, err = collectStrings(tx.Query(ctx, `SELECT id::text FROM event_types WHERE owner_id = $1`, ownerID))
		return err
	})
	if err != nil {
		return model.Schedule{}, nil, err
	}
	s.Periods = append([]availability.WeeklyPeriod(nil), periods...)
	availability.SortPeriods(s.Periods)
	return s, eventTypeIDs, nil
}

func (r *ScheduleRepository) listPeriods(ctx context.Context, scheduleID string) ([]availability.WeeklyPeriod, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day_of_week, start_minute, end_minute
		FROM schedule_periods
		WHERE schedule_id = $1
		ORDER BY day_of_week, start_minute
	`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.WeeklyPeriod
	for rows.Next() {
		var day, start, end int16
		if err := rows.Scan(&day, &start, &end); err != nil {
			return nil, err
		}
		out = append(out, availability.WeeklyPeriod{
			Day:   time.Weekday(day),
			Start: availability.Clock(start),
			End:   availability.Clock(end),
		})
	}
	return out, rows.Err()
}

func collectStrings(rows pgx.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
