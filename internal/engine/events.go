package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StatusChangedEvent is handed to the notification boundary after a ledger
// append commits. Delivery is best-effort; the ledger entry is the system of
// record either way.
type StatusChangedEvent struct {
	EntityType   string         `json:"entity_type"`
	EntityID     string         `json:"entity_id"`
	FromStatusID *uuid.UUID     `json:"from_status_id,omitempty"`
	ToStatusID   uuid.UUID      `json:"to_status_id"`
	Actor        string         `json:"actor"`
	Comment      string         `json:"comment,omitempty"`
	Metadata     datatypes.JSON `json:"metadata,omitempty"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// EventPublisher is the outbound edge to the notification dispatcher.
type EventPublisher interface {
	Publish(ctx context.Context, event StatusChangedEvent) error
}
