package statuses

import (
	"time"

	"github.com/google/uuid"
)

// Status represents one lifecycle state for one entity type.
type Status struct {
	ID          uuid.UUID  `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	EntityType  string     `json:"entity_type" gorm:"not null;index;uniqueIndex:idx_statuses_entity_code"`
	Code        string     `json:"code" gorm:"not null;uniqueIndex:idx_statuses_entity_code"`
	Name        string     `json:"name" gorm:"not null"`
	Description string     `json:"description" gorm:""`
	Color       string     `json:"color" gorm:""`
	Icon        string     `json:"icon" gorm:""`
	OrderIndex  int        `json:"order_index" gorm:"default:0"`
	GroupID     *uuid.UUID `json:"group_id,omitempty" gorm:"type:uuid"`
	IsDefault   bool       `json:"is_default" gorm:"default:false"`
	IsFinal     bool       `json:"is_final" gorm:"default:false"`
	IsActive    bool       `json:"is_active" gorm:"default:true"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// StatusGroup is a named bucket of related statuses for one entity type.
// Purely organizational; carries no transition semantics.
type StatusGroup struct {
	ID         uuid.UUID `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	EntityType string    `json:"entity_type" gorm:"not null;index;uniqueIndex:idx_status_groups_entity_code"`
	Code       string    `json:"code" gorm:"not null;uniqueIndex:idx_status_groups_entity_code"`
	Name       string    `json:"name" gorm:"not null"`
	Color      string    `json:"color" gorm:""`
	IsActive   bool      `json:"is_active" gorm:"default:true"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// CreateStatusRequest is the payload for creating a catalog status.
type CreateStatusRequest struct {
	EntityType  string     `json:"entity_type" binding:"required"`
	Code        string     `json:"code" binding:"required"`
	Name        string     `json:"name" binding:"required"`
	Description string     `json:"description"`
	Color       string     `json:"color"`
	Icon        string     `json:"icon"`
	OrderIndex  int        `json:"order_index"`
	GroupID     *uuid.UUID `json:"group_id"`
	IsDefault   bool       `json:"is_default"`
	IsFinal     bool       `json:"is_final"`
}

// UpdateStatusRequest is a partial update; nil fields are left unchanged.
type UpdateStatusRequest struct {
	Name        *string    `json:"name,omitempty"`
	Description *string    `json:"description,omitempty"`
	Color       *string    `json:"color,omitempty"`
	Icon        *string    `json:"icon,omitempty"`
	OrderIndex  *int       `json:"order_index,omitempty"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
	IsDefault   *bool      `json:"is_default,omitempty"`
	IsFinal     *bool      `json:"is_final,omitempty"`
	IsActive    *bool      `json:"is_active,omitempty"`
}

// ListFilters narrows ListStatuses results.
type ListFilters struct {
	GroupID    *uuid.UUID
	IsActive   *bool
	SearchText string
}

// CreateGroupRequest is the payload for creating a status group.
type CreateGroupRequest struct {
	EntityType string `json:"entity_type" binding:"required"`
	Code       string `json:"code" binding:"required"`
	Name       string `json:"name" binding:"required"`
	Color      string `json:"color"`
}
