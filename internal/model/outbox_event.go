package model

import "time"

// OutboxEvent is the transactional-outbox row written alongside a settlement;
// Debezium relays it to Kafka.
type OutboxEvent struct {
	ID          int64     `db:"id"`
	Aggregate   string    `db:"aggregate"`    // e.g. "usage_record"
	AggregateID string    `db:"aggregate_id"` // UsageRecord.ID
	Topic       string    `db:"topic"`
	Payload     []byte    `db:"payload"`
	CreatedAt   time.Time `db:"created_at"`
}
