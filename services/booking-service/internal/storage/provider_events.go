package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type ProviderEvent struct {
	Provider        string
	ProviderEventID string
	EventType       string
	Payload         []byte
}

// InsertProviderEvent records a webhook delivery; replays return ErrDuplicateProviderEvent.
func (r *BookingRepository) InsertProviderEvent(ctx context.Context, tx pgx.Tx, evt ProviderEvent) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO provider_events (provider, provider_event_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider, provider_event_id) DO NOTHING
	`, evt.Provider, evt.ProviderEventID, evt.EventType, evt.Payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateProviderEvent
	}
	return nil
}
