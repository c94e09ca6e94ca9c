package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"freeflow/status-engine/status-engine-backend/internal/engine"
	"freeflow/status-engine/status-engine-backend/internal/notifications/websocket"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateRule(ctx context.Context, rule *StatusNotificationRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRepository) GetRuleByID(ctx context.Context, id uuid.UUID) (*StatusNotificationRule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*StatusNotificationRule), args.Error(1)
}

func (m *MockRepository) FindActiveRules(ctx context.Context, entityType string, statusID uuid.UUID) ([]StatusNotificationRule, error) {
	args := m.Called(ctx, entityType, statusID)
	return args.Get(0).([]StatusNotificationRule), args.Error(1)
}

func (m *MockRepository) ListRules(ctx context.Context, entityType string) ([]StatusNotificationRule, error) {
	args := m.Called(ctx, entityType)
	return args.Get(0).([]StatusNotificationRule), args.Error(1)
}

func (m *MockRepository) UpdateRule(ctx context.Context, rule *StatusNotificationRule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CreateDeliveryLog(ctx context.Context, entry *DeliveryLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) UpdateDeliveryLog(ctx context.Context, entry *DeliveryLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) ListFailedDeliveries(ctx context.Context, maxAttempts int, limit int) ([]DeliveryLog, error) {
	args := m.Called(ctx, maxAttempts, limit)
	return args.Get(0).([]DeliveryLog), args.Error(1)
}

type fakeEmailSender struct {
	sent []string
	fail bool
}

func (s *fakeEmailSender) Send(_ context.Context, recipient, _, _ string) error {
	if s.fail {
		return errors.New("smtp unreachable")
	}
	s.sent = append(s.sent, recipient)
	return nil
}

type fakeBroadcaster struct {
	frames []websocket.Message
}

func (b *fakeBroadcaster) Broadcast(msg websocket.Message) {
	b.frames = append(b.frames, msg)
}

func testEvent(statusID uuid.UUID) engine.StatusChangedEvent {
	return engine.StatusChangedEvent{
		EntityType: "ticket",
		EntityID:   "T1",
		ToStatusID: statusID,
		Actor:      "alice",
		OccurredAt: time.Now().UTC(),
	}
}

func TestPublishDeliversPerChannel(t *testing.T) {
	mockRepo := new(MockRepository)
	email := &fakeEmailSender{}
	broadcaster := &fakeBroadcaster{}
	service := NewService(mockRepo, email, broadcaster, 3)

	ctx := context.Background()
	statusID := uuid.New()
	rule := StatusNotificationRule{
		ID:         uuid.New(),
		EntityType: "ticket",
		StatusID:   statusID,
		Name:       "Ticket resolved",
		Channels:   datatypes.JSON(`["EMAIL","WEBSOCKET"]`),
		Recipients: datatypes.JSON(`["ops@example.com"]`),
		IsActive:   true,
	}

	mockRepo.On("FindActiveRules", ctx, "ticket", statusID).Return([]StatusNotificationRule{rule}, nil)
	mockRepo.On("CreateDeliveryLog", ctx, mock.AnythingOfType("*notifications.DeliveryLog")).Return(nil)
	mockRepo.On("UpdateRule", ctx, mock.AnythingOfType("*notifications.StatusNotificationRule")).Return(nil)

	err := service.Publish(ctx, testEvent(statusID))

	require.NoError(t, err)
	assert.Equal(t, []string{"ops@example.com"}, email.sent)
	require.Len(t, broadcaster.frames, 1)
	assert.Equal(t, websocket.MessageTypeStatusChanged, broadcaster.frames[0].Type)
	mockRepo.AssertNumberOfCalls(t, "CreateDeliveryLog", 2)
	mockRepo.AssertExpectations(t)
}

func TestPublishRecordsFailureWithoutPropagating(t *testing.T) {
	mockRepo := new(MockRepository)
	email := &fakeEmailSender{fail: true}
	service := NewService(mockRepo, email, &fakeBroadcaster{}, 3)

	ctx := context.Background()
	statusID := uuid.New()
	rule := StatusNotificationRule{
		ID:         uuid.New(),
		EntityType: "ticket",
		StatusID:   statusID,
		Name:       "Ticket resolved",
		Channels:   datatypes.JSON(`["EMAIL"]`),
		Recipients: datatypes.JSON(`["ops@example.com"]`),
		IsActive:   true,
	}

	var logged *DeliveryLog
	mockRepo.On("FindActiveRules", ctx, "ticket", statusID).Return([]StatusNotificationRule{rule}, nil)
	mockRepo.On("CreateDeliveryLog", ctx, mock.AnythingOfType("*notifications.DeliveryLog")).
		Run(func(args mock.Arguments) { logged = args.Get(1).(*DeliveryLog) }).
		Return(nil)
	mockRepo.On("UpdateRule", ctx, mock.AnythingOfType("*notifications.StatusNotificationRule")).Return(nil)

	err := service.Publish(ctx, testEvent(statusID))

	// Channel failure is queued for retry, never surfaced to the engine.
	require.NoError(t, err)
	require.NotNil(t, logged)
	assert.Equal(t, StatusFailed, logged.Status)
	assert.Contains(t, logged.LastError, "smtp unreachable")
}

func TestPublishNoMatchingRules(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, &fakeEmailSender{}, &fakeBroadcaster{}, 3)

	ctx := context.Background()
	statusID := uuid.New()
	mockRepo.On("FindActiveRules", ctx, "ticket", statusID).Return([]StatusNotificationRule{}, nil)

	err := service.Publish(ctx, testEvent(statusID))

	require.NoError(t, err)
	mockRepo.AssertNotCalled(t, "CreateDeliveryLog", mock.Anything, mock.Anything)
}

func TestRetryFailedDeliveries(t *testing.T) {
	mockRepo := new(MockRepository)
	email := &fakeEmailSender{}
	service := NewService(mockRepo, email, &fakeBroadcaster{}, 3)

	ctx := context.Background()
	statusID := uuid.New()
	payload, err := json.Marshal(testEvent(statusID))
	require.NoError(t, err)

	failed := DeliveryLog{
		ID:        uuid.New(),
		RuleID:    uuid.New(),
		Channel:   ChannelEmail,
		Recipient: "ops@example.com",
		Payload:   payload,
		Status:    StatusFailed,
		Attempts:  1,
	}

	var updated *DeliveryLog
	mockRepo.On("ListFailedDeliveries", ctx, 3, 100).Return([]DeliveryLog{failed}, nil)
	mockRepo.On("UpdateDeliveryLog", ctx, mock.AnythingOfType("*notifications.DeliveryLog")).
		Run(func(args mock.Arguments) { updated = args.Get(1).(*DeliveryLog) }).
		Return(nil)

	retried, err := service.RetryFailedDeliveries(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, retried)
	require.NotNil(t, updated)
	assert.Equal(t, StatusSent, updated.Status)
	assert.Equal(t, 2, updated.Attempts)
	assert.Equal(t, []string{"ops@example.com"}, email.sent)
}

func TestRetryGivesUpOnUnreadablePayload(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, &fakeEmailSender{}, &fakeBroadcaster{}, 3)

	ctx := context.Background()
	broken := DeliveryLog{
		ID:       uuid.New(),
		Channel:  ChannelEmail,
		Payload:  datatypes.JSON(`{broken`),
		Status:   StatusFailed,
		Attempts: 1,
	}

	var updated *DeliveryLog
	mockRepo.On("ListFailedDeliveries", ctx, 3, 100).Return([]DeliveryLog{broken}, nil)
	mockRepo.On("UpdateDeliveryLog", ctx, mock.AnythingOfType("*notifications.DeliveryLog")).
		Run(func(args mock.Arguments) { updated = args.Get(1).(*DeliveryLog) }).
		Return(nil)

	retried, err := service.RetryFailedDeliveries(ctx)

	require.NoError(t, err)
	assert.Equal(t, 0, retried)
	require.NotNil(t, updated)
	assert.Equal(t, 3, updated.Attempts, "unreadable payloads are capped out immediately")
}

func TestCreateRule(t *testing.T) {
	mockRepo := new(MockRepository)
	service := NewService(mockRepo, &fakeEmailSender{}, &fakeBroadcaster{}, 3)

	ctx := context.Background()
	mockRepo.On("CreateRule", ctx, mock.AnythingOfType("*notifications.StatusNotificationRule")).Return(nil)

	rule, err := service.CreateRule(ctx, CreateRuleRequest{
		EntityType: "ticket",
		StatusID:   uuid.New(),
		Name:       "Escalation",
		Channels:   datatypes.JSON(`["IN_APP"]`),
	})

	require.NoError(t, err)
	assert.True(t, rule.IsActive)
	mockRepo.AssertExpectations(t)
}
