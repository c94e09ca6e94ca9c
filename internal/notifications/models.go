package notifications

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// StatusNotificationRule fires when an entity of the given type reaches the
// given status. What to send and to whom is rule configuration; how it is
// delivered belongs to the channel providers.
type StatusNotificationRule struct {
	ID            uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	EntityType    string         `json:"entity_type" gorm:"not null;index:idx_notification_rules_target"`
	StatusID      uuid.UUID      `json:"status_id" gorm:"type:uuid;not null;index:idx_notification_rules_target"`
	Name          string         `json:"name" gorm:"not null"`
	Description   string         `json:"description" gorm:""`
	Channels      datatypes.JSON `json:"channels" gorm:"type:jsonb"`   // ["EMAIL", "WEBSOCKET", "IN_APP"]
	Recipients    datatypes.JSON `json:"recipients" gorm:"type:jsonb"` // actor ids / addresses
	IsActive      bool           `json:"is_active" gorm:"default:true"`
	LastTriggered *time.Time     `json:"last_triggered" gorm:""`
	TriggerCount  int            `json:"trigger_count" gorm:"default:0"`
	CreatedAt     time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// DeliveryLog tracks one delivery attempt per channel and recipient. Failed
// rows are picked up by the retry worker until the attempt cap is reached.
type DeliveryLog struct {
	ID         uuid.UUID      `json:"id" gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	RuleID     uuid.UUID      `json:"rule_id" gorm:"type:uuid;not null;index"`
	EntityType string         `json:"entity_type" gorm:"not null"`
	EntityID   string         `json:"entity_id" gorm:"not null"`
	StatusID   uuid.UUID      `json:"status_id" gorm:"type:uuid;not null"`
	Channel    string         `json:"channel" gorm:"not null"`
	Recipient  string         `json:"recipient" gorm:""`
	Payload    datatypes.JSON `json:"payload" gorm:"type:jsonb"`
	Status     string         `json:"status" gorm:"not null;index"`
	Attempts   int            `json:"attempts" gorm:"default:0"`
	LastError  string         `json:"last_error" gorm:""`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// CreateRuleRequest is the payload for configuring a notification rule.
type CreateRuleRequest struct {
	EntityType  string         `json:"entity_type" binding:"required"`
	StatusID    uuid.UUID      `json:"status_id" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Channels    datatypes.JSON `json:"channels"`
	Recipients  datatypes.JSON `json:"recipients"`
}

// Constants
const (
	// Delivery channels
	ChannelEmail     = "EMAIL"
	ChannelWebSocket = "WEBSOCKET"
	ChannelInApp     = "IN_APP"

	// Delivery statuses
	StatusPending = "PENDING"
	StatusSent    = "SENT"
	StatusFailed  = "FAILED"
)
