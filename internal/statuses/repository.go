package statuses

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	// WithTx runs fn against a repository bound to one transaction; the
	// service uses it to keep the default swap atomic.
	WithTx(ctx context.Context, fn func(Repository) error) error

	CreateStatus(ctx context.Context, status *Status) error
	GetStatusByID(ctx context.Context, id uuid.UUID) (*Status, error)
	GetStatusByCode(ctx context.Context, entityType, code string) (*Status, error)
	ListStatuses(ctx context.Context, entityType string, filters ListFilters) ([]Status, error)
	GetDefaultStatus(ctx context.Context, entityType string) (*Status, error)
	UpdateStatus(ctx context.Context, status *Status) error
	// ClearDefault un-defaults every status of the entity type except the
	// given one.
	ClearDefault(ctx context.Context, entityType string, exceptID uuid.UUID) error
	DeleteStatus(ctx context.Context, id uuid.UUID) error
	CountTransitionRefs(ctx context.Context, statusID uuid.UUID) (int64, error)
	CountHistoryRefs(ctx context.Context, statusID uuid.UUID) (int64, error)

	CreateGroup(ctx context.Context, group *StatusGroup) error
	GetGroupByID(ctx context.Context, id uuid.UUID) (*StatusGroup, error)
	ListGroups(ctx context.Context, entityType string) ([]StatusGroup, error)
	UpdateGroup(ctx context.Context, group *StatusGroup) error
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	CountGroupMembers(ctx context.Context, groupID uuid.UUID) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) CreateStatus(ctx context.Context, status *Status) error {
	return r.db.WithContext(ctx).Create(status).Error
}

func (r *gormRepository) GetStatusByID(ctx context.Context, id uuid.UUID) (*Status, error) {
	var status Status
	err := r.db.WithContext(ctx).First(&status, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *gormRepository) GetStatusByCode(ctx context.Context, entityType, code string) (*Status, error) {
	var status Status
	err := r.db.WithContext(ctx).
		First(&status, "entity_type = ? AND code = ?", entityType, code).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *gormRepository) ListStatuses(ctx context.Context, entityType string, filters ListFilters) ([]Status, error) {
	query := r.db.WithContext(ctx).Where("entity_type = ?", entityType)

	if filters.GroupID != nil {
		query = query.Where("group_id = ?", *filters.GroupID)
	}
	if filters.IsActive != nil {
		query = query.Where("is_active = ?", *filters.IsActive)
	}
	if filters.SearchText != "" {
		pattern := "%" + filters.SearchText + "%"
		query = query.Where("name ILIKE ? OR code ILIKE ?", pattern, pattern)
	}

	var result []Status
	err := query.Order("order_index ASC, code ASC").Find(&result).Error
	return result, err
}

func (r *gormRepository) GetDefaultStatus(ctx context.Context, entityType string) (*Status, error) {
	var status Status
	err := r.db.WithContext(ctx).
		First(&status, "entity_type = ? AND is_default = true AND is_active = true", entityType).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &status, nil
}

func (r *gormRepository) UpdateStatus(ctx context.Context, status *Status) error {
	return r.db.WithContext(ctx).Save(status).Error
}

func (r *gormRepository) ClearDefault(ctx context.Context, entityType string, exceptID uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&Status{}).
		Where("entity_type = ? AND is_default = true AND id <> ?", entityType, exceptID).
		Update("is_default", false).Error
}

func (r *gormRepository) DeleteStatus(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&Status{}, "id = ?", id).Error
}

func (r *gormRepository) CountTransitionRefs(ctx context.Context, statusID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Table("transitions").
		Where("from_status_id = ? OR to_status_id = ?", statusID, statusID).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CountHistoryRefs(ctx context.Context, statusID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Table("status_history").
		Where("status_id = ? OR from_status_id = ?", statusID, statusID).
		Count(&count).Error
	return count, err
}

func (r *gormRepository) CreateGroup(ctx context.Context, group *StatusGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *gormRepository) GetGroupByID(ctx context.Context, id uuid.UUID) (*StatusGroup, error) {
	var group StatusGroup
	err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *gormRepository) ListGroups(ctx context.Context, entityType string) ([]StatusGroup, error) {
	var groups []StatusGroup
	err := r.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		Order("code ASC").
		Find(&groups).Error
	return groups, err
}

func (r *gormRepository) UpdateGroup(ctx context.Context, group *StatusGroup) error {
	return r.db.WithContext(ctx).Save(group).Error
}

func (r *gormRepository) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&StatusGroup{}, "id = ?", id).Error
}

func (r *gormRepository) CountGroupMembers(ctx context.Context, groupID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Status{}).
		Where("group_id = ?", groupID).
		Count(&count).Error
	return count, err
}
