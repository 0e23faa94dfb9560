package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	txcontext "courier/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return txcontext.Run(ctx, s.db, fn)
}

func (s *PostgresStore) Pending(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, `
		SELECT id, event_id, aggregate_type, aggregate_id, event_type, payload, created_at, attempts
		FROM event_outbox
		WHERE published_at IS NULL
		ORDER BY id ASC
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending outbox entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt, &e.Attempts); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox entries: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) MarkPublished(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE event_outbox
		SET published_at = $2, attempts = attempts + 1, last_error = NULL
		WHERE id = ANY($1)
	`, pq.Array(ids), at)
	if err != nil {
		return fmt.Errorf("mark outbox entries published: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		UPDATE event_outbox SET attempts = attempts + 1, last_error = $2 WHERE id = $1
	`, id, reason)
	if err != nil {
		return fmt.Errorf("mark outbox entry %d failed: %w", id, err)
	}
	return nil
}
