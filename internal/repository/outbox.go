package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// UsageSettledTopic is the Kafka topic outbox events for settled usage are
// published to (consumed by the ClickHouse ingest worker).
const UsageSettledTopic = "usage.settled"

// OutboxRepository persists transactional-outbox events. Settlement writes its
// usage envelope here in the same tx as the counters, so the ClickHouse mirror
// can never see a record the OLTP store did not commit.
type OutboxRepository interface {
	// Insert writes a single outbox event inside the given tx.
	Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error
}

type outboxRepo struct{}

func NewOutboxRepository() OutboxRepository { return &outboxRepo{} }

// Insert adds an event row to outbox. Debezium Outbox SMT picks it up and
// publishes to Kafka based on the `topic` column.
func (r *outboxRepo) Insert(ctx context.Context, tx *sqlx.Tx, aggregate, aggregateID, topic string, payload []byte) error {
	const q = `
		INSERT INTO outbox (aggregate, aggregate_id, topic, payload, created_at)
		VALUES (?, ?, ?, ?, NOW())
	`
	_, err := tx.ExecContext(ctx, q, aggregate, aggregateID, topic, payload)
	return err
}
