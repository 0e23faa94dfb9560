package eventstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	txcontext "courier/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists events in the events table. Each append also writes
// an event_outbox row in the same transaction; the outbox relay ships those
// rows to Kafka.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed event store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Append takes a transaction-scoped advisory lock on the aggregate id, checks
// the stored count against event.Version and inserts. The
// UNIQUE(aggregate_id, version) constraint backs the check if the lock is ever
// bypassed by another writer.
func (s *PostgresStore) Append(ctx context.Context, event NewEvent) (Event, error) {
	if err := event.Validate(); err != nil {
		return Event{}, err
	}
	metadata, err := json.Marshal(nonNilMetadata(event.Metadata))
	if err != nil {
		return Event{}, fmt.Errorf("marshal event metadata: %w", err)
	}
	// timestamptz keeps microseconds; the returned event must match later reads.
	createdAt := event.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	stored := Event{
		ID:            uuid.NewString(),
		AggregateID:   event.AggregateID,
		AggregateType: event.AggregateType,
		Type:          event.Type,
		Version:       event.Version,
		Payload:       event.Payload,
		Metadata:      nonNilMetadata(event.Metadata),
		CreatedAt:     createdAt.UTC().Truncate(time.Microsecond),
	}

	err = txcontext.Run(ctx, s.db, func(ctx context.Context) error {
		exec := txcontext.Executor(ctx, s.db)

		if _, err := exec.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text || ':' || $2::text, 0))`, string(event.AggregateType), event.AggregateID); err != nil {
			return fmt.Errorf("lock aggregate stream: %w", err)
		}

		var count int64
		if err := exec.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM events WHERE aggregate_type = $1 AND aggregate_id = $2`,
			string(event.AggregateType), event.AggregateID,
		).Scan(&count); err != nil {
			return fmt.Errorf("count aggregate events: %w", err)
		}
		if count != event.Version {
			return &ConflictError{
				AggregateType: event.AggregateType,
				AggregateID:   event.AggregateID,
				Expected:      event.Version,
				Actual:        count,
			}
		}

		query := `
			INSERT INTO events (id, aggregate_id, aggregate_type, type, version, payload, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING position
		`
		if err := exec.QueryRowContext(ctx, query,
			stored.ID,
			stored.AggregateID,
			string(stored.AggregateType),
			string(stored.Type),
			stored.Version,
			[]byte(stored.Payload),
			metadata,
			stored.CreatedAt,
		).Scan(&stored.Position); err != nil {
			if isUniqueViolation(err) {
				return &ConflictError{
					AggregateType: event.AggregateType,
					AggregateID:   event.AggregateID,
					Expected:      event.Version,
					Actual:        event.Version + 1,
				}
			}
			return fmt.Errorf("insert event: %w", err)
		}

		envelope, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal outbox envelope: %w", err)
		}
		if _, err := exec.ExecContext(ctx, `
			INSERT INTO event_outbox (event_id, aggregate_type, aggregate_id, event_type, payload, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`,
			stored.ID,
			string(stored.AggregateType),
			stored.AggregateID,
			string(stored.Type),
			envelope,
			stored.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert outbox entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return Event{}, classify(err)
	}
	return stored, nil
}

const selectEvents = `
	SELECT id, aggregate_id, aggregate_type, type, version, payload, metadata, created_at, position
	FROM events
`

func (s *PostgresStore) EventsForAggregate(ctx context.Context, aggregateType AggregateType, aggregateID string) ([]Event, error) {
	return s.EventsForAggregateAfter(ctx, aggregateType, aggregateID, -1)
}

func (s *PostgresStore) EventsForAggregateAfter(ctx context.Context, aggregateType AggregateType, aggregateID string, afterVersion int64) ([]Event, error) {
	return s.query(ctx, selectEvents+`
		WHERE aggregate_type = $1 AND aggregate_id = $2 AND version > $3
		ORDER BY version ASC
	`, string(aggregateType), aggregateID, afterVersion)
}

func (s *PostgresStore) EventsByAggregateType(ctx context.Context, aggregateType AggregateType) ([]Event, error) {
	return s.query(ctx, selectEvents+`
		WHERE aggregate_type = $1
		ORDER BY position ASC
	`, string(aggregateType))
}

func (s *PostgresStore) EventsForAggregates(ctx context.Context, aggregateType AggregateType, aggregateIDs []string) ([]Event, error) {
	aggregateIDs = normalizeIDs(aggregateIDs)
	if len(aggregateIDs) == 0 {
		return []Event{}, nil
	}
	return s.query(ctx, selectEvents+`
		WHERE aggregate_type = $1 AND aggregate_id = ANY($2)
		ORDER BY position ASC
	`, string(aggregateType), pq.Array(aggregateIDs))
}

func (s *PostgresStore) LatestVersion(ctx context.Context, aggregateType AggregateType, aggregateID string) (int64, error) {
	var latest sql.NullInt64
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT MAX(version) FROM events WHERE aggregate_type = $1 AND aggregate_id = $2`,
		string(aggregateType), aggregateID,
	).Scan(&latest)
	if err != nil {
		return -1, classify(fmt.Errorf("latest version: %w", err))
	}
	if !latest.Valid {
		return -1, nil
	}
	return latest.Int64, nil
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var (
			evt           Event
			aggregateType string
			eventType     string
			payload       []byte
			metadata      []byte
		)
		if err := rows.Scan(
			&evt.ID,
			&evt.AggregateID,
			&aggregateType,
			&eventType,
			&evt.Version,
			&payload,
			&metadata,
			&evt.CreatedAt,
			&evt.Position,
		); err != nil {
			return nil, classify(fmt.Errorf("scan event: %w", err))
		}
		evt.AggregateType = AggregateType(aggregateType)
		evt.Type = EventType(eventType)
		evt.Payload = json.RawMessage(payload)
		evt.CreatedAt = evt.CreatedAt.UTC()
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &evt.Metadata); err != nil {
				return nil, &CorruptEventError{EventID: evt.ID, AggregateID: evt.AggregateID, Version: evt.Version, Err: err}
			}
		}
		evt.Metadata = nonNilMetadata(evt.Metadata)
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("iterate events: %w", err))
	}
	return events, nil
}

func nonNilMetadata(md map[string]string) map[string]string {
	if md == nil {
		return map[string]string{}
	}
	return md
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// classify tags connectivity failures with ErrStoreUnavailable so callers can
// tell "store down" apart from "bad query". Conflicts and corruption already
// carry their own sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrCorruptEvent) {
		return err
	}
	var (
		netErr     net.Error
		connectErr *pgconn.ConnectError
	)
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &connectErr) ||
		errors.As(err, &netErr) ||
		pgconn.SafeToRetry(err) {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return err
}
