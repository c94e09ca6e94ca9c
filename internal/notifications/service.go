package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"freeflow/status-engine/status-engine-backend/internal/engine"
	"freeflow/status-engine/status-engine-backend/internal/notifications/websocket"
)

// EmailSender delivers one email. The real provider (SES, SMTP) lives outside
// this module; the default implementation only logs.
type EmailSender interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// Broadcaster pushes one frame to connected websocket clients.
type Broadcaster interface {
	Broadcast(msg websocket.Message)
}

// LogEmailSender is the stand-in provider used until a real one is wired.
type LogEmailSender struct{}

func (LogEmailSender) Send(_ context.Context, recipient, subject, _ string) error {
	log.Printf("email to %s: %s", recipient, subject)
	return nil
}

// Service resolves status-changed events against configured rules and fans
// them out per channel. It implements the engine's EventPublisher boundary.
type Service struct {
	repo        Repository
	email       EmailSender
	broadcaster Broadcaster
	maxAttempts int
}

func NewService(repo Repository, email EmailSender, broadcaster Broadcaster, maxAttempts int) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Service{
		repo:        repo,
		email:       email,
		broadcaster: broadcaster,
		maxAttempts: maxAttempts,
	}
}

// Publish consumes one status-changed event. Channel failures are recorded in
// the delivery log for the retry worker; they are never returned to the
// engine, which has already committed the ledger entry.
func (s *Service) Publish(ctx context.Context, event engine.StatusChangedEvent) error {
	rules, err := s.repo.FindActiveRules(ctx, event.EntityType, event.ToStatusID)
	if err != nil {
		return fmt.Errorf("failed to resolve notification rules: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	for i := range rules {
		rule := &rules[i]
		channels := decodeStrings(rule.Channels)
		recipients := decodeStrings(rule.Recipients)
		if len(recipients) == 0 {
			recipients = []string{""}
		}

		for _, channel := range channels {
			for _, recipient := range recipients {
				entry := &DeliveryLog{
					ID:         uuid.New(),
					RuleID:     rule.ID,
					EntityType: event.EntityType,
					EntityID:   event.EntityID,
					StatusID:   event.ToStatusID,
					Channel:    channel,
					Recipient:  recipient,
					Payload:    payload,
					Status:     StatusPending,
					Attempts:   1,
				}

				if err := s.deliver(ctx, channel, recipient, event); err != nil {
					entry.Status = StatusFailed
					entry.LastError = err.Error()
					log.Printf("delivery via %s for rule %q failed: %v", channel, rule.Name, err)
				} else {
					entry.Status = StatusSent
				}

				if err := s.repo.CreateDeliveryLog(ctx, entry); err != nil {
					log.Printf("failed to record delivery log: %v", err)
				}
			}
		}

		now := time.Now()
		rule.LastTriggered = &now
		rule.TriggerCount++
		if err := s.repo.UpdateRule(ctx, rule); err != nil {
			log.Printf("failed to update rule trigger stats: %v", err)
		}
	}

	return nil
}

func (s *Service) deliver(ctx context.Context, channel, recipient string, event engine.StatusChangedEvent) error {
	switch channel {
	case ChannelEmail:
		subject := fmt.Sprintf("%s %s changed status", event.EntityType, event.EntityID)
		body := fmt.Sprintf("Status changed by %s at %s.", event.Actor, event.OccurredAt.Format(time.RFC3339))
		if event.Comment != "" {
			body += " Comment: " + event.Comment
		}
		return s.email.Send(ctx, recipient, subject, body)

	case ChannelWebSocket:
		s.broadcaster.Broadcast(websocket.Message{
			Type:       websocket.MessageTypeStatusChanged,
			EntityType: event.EntityType,
			EntityID:   event.EntityID,
			Data: map[string]interface{}{
				"to_status_id": event.ToStatusID.String(),
				"actor":        event.Actor,
			},
			Timestamp: event.OccurredAt,
		})
		return nil

	case ChannelInApp:
		// The delivery log row itself is the in-app notification; clients
		// read it back through the API.
		return nil

	default:
		return fmt.Errorf("unknown channel %q", channel)
	}
}

// RetryFailedDeliveries re-attempts failed rows. Invoked by the cron worker.
func (s *Service) RetryFailedDeliveries(ctx context.Context) (int, error) {
	failed, err := s.repo.ListFailedDeliveries(ctx, s.maxAttempts, 100)
	if err != nil {
		return 0, err
	}

	retried := 0
	for i := range failed {
		entry := &failed[i]

		var event engine.StatusChangedEvent
		if err := json.Unmarshal(entry.Payload, &event); err != nil {
			entry.Attempts = s.maxAttempts
			entry.LastError = "unreadable payload: " + err.Error()
			_ = s.repo.UpdateDeliveryLog(ctx, entry)
			continue
		}

		entry.Attempts++
		if err := s.deliver(ctx, entry.Channel, entry.Recipient, event); err != nil {
			entry.LastError = err.Error()
		} else {
			entry.Status = StatusSent
			entry.LastError = ""
			retried++
		}

		if err := s.repo.UpdateDeliveryLog(ctx, entry); err != nil {
			log.Printf("failed to update delivery log %s: %v", entry.ID, err)
		}
	}

	return retried, nil
}

// CreateRule configures a new per-status notification rule.
func (s *Service) CreateRule(ctx context.Context, req CreateRuleRequest) (*StatusNotificationRule, error) {
	rule := &StatusNotificationRule{
		ID:          uuid.New(),
		EntityType:  req.EntityType,
		StatusID:    req.StatusID,
		Name:        req.Name,
		Description: req.Description,
		Channels:    req.Channels,
		Recipients:  req.Recipients,
		IsActive:    true,
	}
	if err := s.repo.CreateRule(ctx, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (s *Service) ListRules(ctx context.Context, entityType string) ([]StatusNotificationRule, error) {
	return s.repo.ListRules(ctx, entityType)
}

func (s *Service) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return s.repo.DeleteRule(ctx, id)
}

func decodeStrings(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return nil
	}
	return values
}
