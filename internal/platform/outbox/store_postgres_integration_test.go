//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"courier/internal/eventstore"
	"courier/internal/platform/outbox"
	"courier/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	pg     *containers.PostgresContainer
	events *eventstore.PostgresStore
	store  *outbox.PostgresStore
	ctx    context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.events = eventstore.NewPostgres(s.pg.DB)
	s.store = outbox.NewPostgresStore(s.pg.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.Reset(s.ctx))
}

func (s *PostgresStoreSuite) appendEvents(n int) string {
	id := uuid.NewString()
	for v := range int64(n) {
		_, err := s.events.Append(s.ctx, eventstore.NewEvent{
			AggregateID:   id,
			AggregateType: eventstore.AggregatePayment,
			Type:          "PaymentCreated",
			Version:       v,
			Payload:       json.RawMessage(`{}`),
		})
		s.Require().NoError(err)
	}
	return id
}

func (s *PostgresStoreSuite) pending(limit int) []outbox.Entry {
	var entries []outbox.Entry
	err := s.store.InTx(s.ctx, func(ctx context.Context) error {
		var err error
		entries, err = s.store.Pending(ctx, limit)
		return err
	})
	s.Require().NoError(err)
	return entries
}

func (s *PostgresStoreSuite) TestPendingInInsertionOrder() {
	id := s.appendEvents(3)

	entries := s.pending(10)
	s.Require().Len(entries, 3)
	for i, e := range entries {
		s.Equal(id, e.AggregateID)
		s.Equal("payment", e.AggregateType)
		if i > 0 {
			s.Less(entries[i-1].ID, e.ID)
		}
	}
	s.Len(s.pending(2), 2)
}

func (s *PostgresStoreSuite) TestMarkPublishedAndFailed() {
	s.appendEvents(2)
	entries := s.pending(10)

	s.Require().NoError(s.store.MarkFailed(s.ctx, entries[1].ID, "broker down"))
	s.Require().NoError(s.store.MarkPublished(s.ctx, []int64{entries[0].ID}, time.Now()))

	left := s.pending(10)
	s.Require().Len(left, 1)
	s.Equal(entries[1].ID, left[0].ID)
	s.Equal(1, left[0].Attempts)
}

func (s *PostgresStoreSuite) TestLockedRowsAreSkipped() {
	s.appendEvents(2)

	tx, err := s.pg.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	defer func() { _ = tx.Rollback() }()
	_, err = tx.ExecContext(s.ctx, `SELECT id FROM event_outbox ORDER BY id LIMIT 1 FOR UPDATE`)
	s.Require().NoError(err)

	s.Len(s.pending(10), 1, "a second relay only sees unlocked rows")
}
