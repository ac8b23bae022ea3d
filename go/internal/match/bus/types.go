package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event is one lifecycle notification waiting to be published.
type Event struct {
	ID        uuid.UUID
	SessionID int64
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// EventPublisher delivers a single event. Implementations must be safe to retry with the
// same event; the event id is the dedup key.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
