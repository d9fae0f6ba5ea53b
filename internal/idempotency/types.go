package idempotency

import "time"

// StatusCommitted marks a key whose order was written in the same transaction.
const StatusCommitted = "COMMITTED"

// Record is the shape persisted in the idempotency table.
type Record struct {
	IdempotencyKey string    `dynamodbav:"idempotency_key"` // PK
	Status         string    `dynamodbav:"status"`
	OrderID        string    `dynamodbav:"order_id"`
	CreatedAt      time.Time `dynamodbav:"created_at"`
	ExpiresAt      int64     `dynamodbav:"expires_at,omitempty"` // TTL epoch seconds; absent keys never expire
}
