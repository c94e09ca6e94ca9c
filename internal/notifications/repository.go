package notifications

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateRule(ctx context.Context, rule *StatusNotificationRule) error
	GetRuleByID(ctx context.Context, id uuid.UUID) (*StatusNotificationRule, error)
	FindActiveRules(ctx context.Context, entityType string, statusID uuid.UUID) ([]StatusNotificationRule, error)
	ListRules(ctx context.Context, entityType string) ([]StatusNotificationRule, error)
	UpdateRule(ctx context.Context, rule *StatusNotificationRule) error
	DeleteRule(ctx context.Context, id uuid.UUID) error

	CreateDeliveryLog(ctx context.Context, entry *DeliveryLog) error
	UpdateDeliveryLog(ctx context.Context, entry *DeliveryLog) error
	ListFailedDeliveries(ctx context.Context, maxAttempts int, limit int) ([]DeliveryLog, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateRule(ctx context.Context, rule *StatusNotificationRule) error {
	return r.db.WithContext(ctx).Create(rule).Error
}

func (r *gormRepository) GetRuleByID(ctx context.Context, id uuid.UUID) (*StatusNotificationRule, error) {
	var rule StatusNotificationRule
	err := r.db.WithContext(ctx).First(&rule, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *gormRepository) FindActiveRules(ctx context.Context, entityType string, statusID uuid.UUID) ([]StatusNotificationRule, error) {
	var rules []StatusNotificationRule
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND status_id = ? AND is_active = true", entityType, statusID).
		Find(&rules).Error
	return rules, err
}

func (r *gormRepository) ListRules(ctx context.Context, entityType string) ([]StatusNotificationRule, error) {
	var rules []StatusNotificationRule
	query := r.db.WithContext(ctx)
	if entityType != "" {
		query = query.Where("entity_type = ?", entityType)
	}
	err := query.Order("created_at DESC").Find(&rules).Error
	return rules, err
}

func (r *gormRepository) UpdateRule(ctx context.Context, rule *StatusNotificationRule) error {
	return r.db.WithContext(ctx).Save(rule).Error
}

func (r *gormRepository) DeleteRule(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&StatusNotificationRule{}, "id = ?", id).Error
}

func (r *gormRepository) CreateDeliveryLog(ctx context.Context, entry *DeliveryLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *gormRepository) UpdateDeliveryLog(ctx context.Context, entry *DeliveryLog) error {
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *gormRepository) ListFailedDeliveries(ctx context.Context, maxAttempts int, limit int) ([]DeliveryLog, error) {
	var entries []DeliveryLog
	query := r.db.WithContext(ctx).
		Where("status = ? AND attempts < ?", StatusFailed, maxAttempts).
		Order("updated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&entries).Error
	return entries, err
}
