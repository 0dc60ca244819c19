package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/db"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/availability"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/model"
)

// BusyRepository stores intervals blocked in owners' external calendars.
type BusyRepository struct {
	pool *db.Pool
}

func NewBusyRepository(pool *db.Pool) *BusyRepository {
	return &BusyRepository{pool: pool}
}

// Sync runs Replace in its own transaction.
func (r *BusyRepository) Sync(ctx context.Context, ownerID, source, externalID string, intervals []model.BusyInterval) error {
	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		return r.Replace(ctx, tx, ownerID, source, externalID, intervals)
	})
}

// Replace swaps every stored occurrence of one external event for intervals. An empty slice
// deletes the event.
func (r *BusyRepository) Replace(ctx context.Context, tx pgx.Tx, ownerID, source, externalID string, intervals []model.BusyInterval) error {
	if _, err := tx.Exec(ctx, `
		DELETE FROM external_busy_intervals
		WHERE owner_id = $1 AND source = $2 AND external_id = $3
	`, ownerID, source, externalID); err != nil {
		return err
	}
	if len(intervals) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(intervals))
	for _, iv := range intervals {
		rows = append(rows, []any{ownerID, source, externalID, iv.StartTime, iv.EndTime})
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"external_busy_intervals"},
		[]string{"owner_id", "source", "external_id", "start_time", "end_time"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (r *BusyRepository) BusyIntervals(ctx context.Context, ownerID string, from, to time.Time) ([]availability.BookedInterval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM external_busy_intervals
		WHERE owner_id = $1 AND start_time <= $3 AND end_time >= $2
		ORDER BY start_time
	`, ownerID, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (availability.BookedInterval, error) {
		var b availability.BookedInterval
		err := row.Scan(&b.Start, &b.End)
		return b, err
	})
}
