package inbox

import (
	"context"
	"time"

	"github.com/mariuslungu97/calendar-booking-backend-sub000/libs/db"
	"github.com/mariuslungu97/calendar-booking-backend-sub000/services/booking-service/internal/storage"
)

// Repository remembers consumed event ids so redelivered messages are applied once.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record returns false when eventID was seen before.
func (r *Repository) Record(ctx context.Context, eventID string, eventType string) (bool, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inbox_events (event_id, event_type)
		VALUES ($1, $2)
	`, eventID, eventType)
	if err == nil {
		return true, nil
	}
	if storage.IsUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// Forget removes eventID so a failed message can be retried on redelivery.
func (r *Repository) Forget(ctx context.Context, eventID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE event_id = $1`, eventID)
	return err
}

// Prune drops ids received before cutoff. Kafka redelivery beyond the retention window is not
// expected, so older ids no longer guard anything.
func (r *Repository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM inbox_events WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
