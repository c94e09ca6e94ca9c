package transitions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"freeflow/status-engine/status-engine-backend/internal/statuses"
)

// Transition is a directed edge between two statuses of the same entity type.
// At most one active transition exists per (from, to) pair.
type Transition struct {
	ID               uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	FromStatusID     uuid.UUID      `json:"from_status_id" gorm:"type:uuid;not null;index"`
	ToStatusID       uuid.UUID      `json:"to_status_id" gorm:"type:uuid;not null;index"`
	Name             string         `json:"name" gorm:"not null"`
	Conditions       datatypes.JSON `json:"conditions" gorm:"type:jsonb"`
	RequiresComment  bool           `json:"requires_comment" gorm:"default:false"`
	RequiresApproval bool           `json:"requires_approval" gorm:"default:false"`
	IsActive         bool           `json:"is_active" gorm:"default:true"`
	CreatedAt        time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt        time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// AvailableTransition pairs an edge with its destination status for display.
type AvailableTransition struct {
	Transition Transition      `json:"transition"`
	ToStatus   statuses.Status `json:"to_status"`
}

// CreateTransitionRequest is the payload for declaring a new edge.
type CreateTransitionRequest struct {
	FromStatusID     uuid.UUID      `json:"from_status_id" binding:"required"`
	ToStatusID       uuid.UUID      `json:"to_status_id" binding:"required"`
	Name             string         `json:"name" binding:"required"`
	Conditions       datatypes.JSON `json:"conditions"`
	RequiresComment  bool           `json:"requires_comment"`
	RequiresApproval bool           `json:"requires_approval"`
}

// UpdateTransitionRequest is a partial update; nil fields are left unchanged.
type UpdateTransitionRequest struct {
	Name             *string        `json:"name,omitempty"`
	Conditions       datatypes.JSON `json:"conditions,omitempty"`
	RequiresComment  *bool          `json:"requires_comment,omitempty"`
	RequiresApproval *bool          `json:"requires_approval,omitempty"`
	IsActive         *bool          `json:"is_active,omitempty"`
}
