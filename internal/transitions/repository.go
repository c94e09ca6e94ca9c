package transitions

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	CreateTransition(ctx context.Context, transition *Transition) error
	GetTransitionByID(ctx context.Context, id uuid.UUID) (*Transition, error)
	ListFromStatus(ctx context.Context, fromStatusID uuid.UUID) ([]Transition, error)
	FindActive(ctx context.Context, fromStatusID, toStatusID uuid.UUID) (*Transition, error)
	UpdateTransition(ctx context.Context, transition *Transition) error
	DeleteTransition(ctx context.Context, id uuid.UUID) error
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateTransition(ctx context.Context, transition *Transition) error {
	return r.db.WithContext(ctx).Create(transition).Error
}

func (r *gormRepository) GetTransitionByID(ctx context.Context, id uuid.UUID) (*Transition, error) {
	var transition Transition
	err := r.db.WithContext(ctx).First(&transition, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transition, nil
}

func (r *gormRepository) ListFromStatus(ctx context.Context, fromStatusID uuid.UUID) ([]Transition, error) {
	var result []Transition
	err := r.db.WithContext(ctx).
		Where("from_status_id = ? AND is_active = true", fromStatusID).
		Order("name ASC").
		Find(&result).Error
	return result, err
}

func (r *gormRepository) FindActive(ctx context.Context, fromStatusID, toStatusID uuid.UUID) (*Transition, error) {
	var transition Transition
	err := r.db.WithContext(ctx).
		First(&transition, "from_status_id = ? AND to_status_id = ? AND is_active = true", fromStatusID, toStatusID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &transition, nil
}

func (r *gormRepository) UpdateTransition(ctx context.Context, transition *Transition) error {
	return r.db.WithContext(ctx).Save(transition).Error
}

func (r *gormRepository) DeleteTransition(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&Transition{}, "id = ?", id).Error
}
