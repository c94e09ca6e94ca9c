package history

import (
	"context"
	"errors"
	"hash/fnv"

	"gorm.io/gorm"

	"github.com/google/uuid"

	"freeflow/status-engine/status-engine-backend/pkg/apperrors"
)

type Repository interface {
	// Append persists one ledger entry. expectedFromStatusID is the status
	// the caller validated the transition against (nil for a first
	// assignment); the append fails with ConcurrentModificationError when
	// the latest entry no longer matches it.
	Append(ctx context.Context, entry *Entry, expectedFromStatusID *uuid.UUID) error
	GetLatest(ctx context.Context, entityType, entityID string) (*Entry, error)
	GetHistory(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]Entry, error)
	CountForEntity(ctx context.Context, entityType, entityID string) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// lockKey derives the advisory lock id that serializes one entity's appends.
// The NUL separator keeps ("ab","c") and ("a","bc") on different locks.
func lockKey(entityType, entityID string) int64 {
	h := fnv.New64a()
	h.Write([]byte(entityType))
	h.Write([]byte{0})
	h.Write([]byte(entityID))
	return int64(h.Sum64())
}

// checkPredecessor compares the latest persisted entry (nil when the entity
// has no history) against the status the caller validated the transition
// from. A mismatch means a competing writer got there first.
func checkPredecessor(latest *Entry, expectedFromStatusID *uuid.UUID, entityType, entityID string) error {
	if latest == nil {
		if expectedFromStatusID != nil {
			return apperrors.ConcurrentModification(
				"entity %s/%s has no history but a current status was expected", entityType, entityID)
		}
		return nil
	}
	if expectedFromStatusID == nil || latest.StatusID != *expectedFromStatusID {
		return apperrors.ConcurrentModification(
			"entity %s/%s changed status concurrently", entityType, entityID)
	}
	return nil
}

// Append serializes writers per entity with a transaction-scoped advisory
// lock before re-reading the latest entry. Row locks cannot do this: a
// competitor's INSERT stays invisible to a statement that blocked on FOR
// UPDATE, and a first assignment has no row to lock at all.
func (r *gormRepository) Append(ctx context.Context, entry *Entry, expectedFromStatusID *uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)",
			lockKey(entry.EntityType, entry.EntityID)).Error; err != nil {
			return err
		}

		var latest *Entry
		var found Entry
		err := tx.Where("entity_type = ? AND entity_id = ?", entry.EntityType, entry.EntityID).
			Order("changed_at DESC, seq DESC").
			First(&found).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return err
		default:
			latest = &found
		}

		if err := checkPredecessor(latest, expectedFromStatusID, entry.EntityType, entry.EntityID); err != nil {
			return err
		}

		return tx.Create(entry).Error
	})
}

func (r *gormRepository) GetLatest(ctx context.Context, entityType, entityID string) (*Entry, error) {
	var entry Entry
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("changed_at DESC, seq DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *gormRepository) GetHistory(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]Entry, error) {
	query := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID)

	if opts.FromDate != nil {
		query = query.Where("changed_at >= ?", *opts.FromDate)
	}
	if opts.ToDate != nil {
		query = query.Where("changed_at <= ?", *opts.ToDate)
	}
	if opts.Limit > 0 {
		query = query.Limit(opts.Limit)
	}

	var result []Entry
	err := query.Order("changed_at DESC, seq DESC").Find(&result).Error
	return result, err
}

func (r *gormRepository) CountForEntity(ctx context.Context, entityType, entityID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Entry{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Count(&count).Error
	return count, err
}
