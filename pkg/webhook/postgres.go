package webhook

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ideaforge/billingcore/pkg/pg"
)

// PostgresEventStore implements EventStore on pgx. The dedupe guarantee is
// the primary key on event_id plus ON CONFLICT DO NOTHING: the second
// insert of an event_id affects zero rows, which the ingestor reads as
// "already seen".
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

func (s *PostgresEventStore) Insert(ctx context.Context, evt *Event) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO webhook_events (event_id, event_type, payload, processed, retry_count, created_at)
		 VALUES ($1, $2, $3, FALSE, 0, NOW())
		 ON CONFLICT (event_id) DO NOTHING`,
		evt.EventID, evt.EventType, evt.Payload)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresEventStore) MarkProcessed(ctx context.Context, eventID string, errMsg *string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events
		 SET processed = TRUE, processed_at = NOW(), error_message = $2
		 WHERE event_id = $1`,
		eventID, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *PostgresEventStore) RecordFailure(ctx context.Context, eventID string, errMsg string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events
		 SET error_message = $2, retry_count = retry_count + 1
		 WHERE event_id = $1`,
		eventID, errMsg)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *PostgresEventStore) Get(ctx context.Context, eventID string) (*Event, error) {
	var evt Event
	err := s.pool.QueryRow(ctx,
		`SELECT event_id, event_type, payload, processed, processed_at, error_message, retry_count, created_at
		 FROM webhook_events WHERE event_id = $1`,
		eventID).Scan(&evt.EventID, &evt.EventType, &evt.Payload, &evt.Processed,
		&evt.ProcessedAt, &evt.ErrorMessage, &evt.RetryCount, &evt.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	return &evt, nil
}
