package history

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Entry is one immutable record of a status change for one entity instance.
// Entries are only ever appended; the latest entry defines the entity's
// current status.
type Entry struct {
	ID           uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Seq          int64          `json:"seq" gorm:"autoIncrement;uniqueIndex"`
	EntityType   string         `json:"entity_type" gorm:"not null;index:idx_status_history_entity"`
	EntityID     string         `json:"entity_id" gorm:"not null;index:idx_status_history_entity"`
	StatusID     uuid.UUID      `json:"status_id" gorm:"type:uuid;not null;index"`
	FromStatusID *uuid.UUID     `json:"from_status_id,omitempty" gorm:"type:uuid;index"`
	ChangedBy    string         `json:"changed_by" gorm:"not null"`
	Comment      string         `json:"comment" gorm:""`
	Metadata     datatypes.JSON `json:"metadata" gorm:"type:jsonb"`
	ChangedAt    time.Time      `json:"changed_at" gorm:"not null;index"`
}

func (Entry) TableName() string {
	return "status_history"
}

// QueryOptions narrows GetHistory results.
type QueryOptions struct {
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
}
