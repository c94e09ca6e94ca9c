package engine

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"freeflow/status-engine/status-engine-backend/internal/history"
	"freeflow/status-engine/status-engine-backend/internal/statuses"
	"freeflow/status-engine/status-engine-backend/internal/transitions"
	"freeflow/status-engine/status-engine-backend/pkg/apperrors"
	"freeflow/status-engine/status-engine-backend/pkg/predicate"
)

// StatusCatalog is the slice of the catalog the engine reads.
type StatusCatalog interface {
	GetStatusByID(ctx context.Context, id uuid.UUID) (*statuses.Status, error)
}

// TransitionTable is the slice of the transition table the engine reads.
type TransitionTable interface {
	FindTransition(ctx context.Context, fromStatusID, toStatusID uuid.UUID) (*transitions.Transition, error)
	GetAvailableTransitions(ctx context.Context, fromStatusID uuid.UUID) ([]transitions.AvailableTransition, error)
}

// ChangeOptions carries the optional side data of a status change.
type ChangeOptions struct {
	Comment  string
	Metadata datatypes.JSON
	// Snapshot of the entity's business fields, handed to the condition
	// evaluator. The engine never interprets it.
	EntitySnapshot map[string]interface{}
}

// Service is the transition engine: the only writer of the history ledger.
type Service interface {
	ChangeStatus(ctx context.Context, entityType, entityID string, targetStatusID uuid.UUID, actor string, opts ChangeOptions) (*history.Entry, error)
	GetCurrentStatus(ctx context.Context, entityType, entityID string) (*statuses.Status, error)
	GetAvailableTransitions(ctx context.Context, entityType, entityID string) ([]transitions.AvailableTransition, error)
	GetHistory(ctx context.Context, entityType, entityID string, opts history.QueryOptions) ([]history.Entry, error)
}

type engineService struct {
	catalog   StatusCatalog
	table     TransitionTable
	ledger    history.Repository
	evaluator predicate.Evaluator
	events    EventPublisher
}

func NewService(
	catalog StatusCatalog,
	table TransitionTable,
	ledger history.Repository,
	evaluator predicate.Evaluator,
	events EventPublisher,
) Service {
	return &engineService{
		catalog:   catalog,
		table:     table,
		ledger:    ledger,
		evaluator: evaluator,
		events:    events,
	}
}

// ChangeStatus validates and applies one status change. The first assignment
// of an entity skips transition validation: there is no prior state to
// validate against. Every later change must follow an active edge and satisfy
// its guards.
func (s *engineService) ChangeStatus(ctx context.Context, entityType, entityID string, targetStatusID uuid.UUID, actor string, opts ChangeOptions) (*history.Entry, error) {
	target, err := s.catalog.GetStatusByID(ctx, targetStatusID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apperrors.NotFound("status %s not found", targetStatusID)
	}
	if target.EntityType != entityType {
		return nil, apperrors.Validation("status %q belongs to entity type %q, not %q", target.Code, target.EntityType, entityType)
	}
	if !target.IsActive {
		return nil, apperrors.Validation("status %q is inactive", target.Code)
	}

	current, err := s.ledger.GetLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}

	var expectedFrom *uuid.UUID
	if current != nil {
		if err := s.validateTransition(ctx, current.StatusID, target, opts); err != nil {
			return nil, err
		}
		fromID := current.StatusID
		expectedFrom = &fromID
	}

	entry := &history.Entry{
		ID:           uuid.New(),
		EntityType:   entityType,
		EntityID:     entityID,
		StatusID:     target.ID,
		FromStatusID: expectedFrom,
		ChangedBy:    actor,
		Comment:      opts.Comment,
		Metadata:     opts.Metadata,
		ChangedAt:    time.Now().UTC(),
	}

	if err := s.ledger.Append(ctx, entry, expectedFrom); err != nil {
		return nil, err
	}

	event := StatusChangedEvent{
		EntityType:   entityType,
		EntityID:     entityID,
		FromStatusID: expectedFrom,
		ToStatusID:   target.ID,
		Actor:        actor,
		Comment:      opts.Comment,
		Metadata:     opts.Metadata,
		OccurredAt:   entry.ChangedAt,
	}
	// The ledger entry is committed; a dispatch failure must not undo it.
	if err := s.events.Publish(ctx, event); err != nil {
		log.Printf("status-changed event for %s/%s not dispatched: %v", entityType, entityID, err)
	}

	return entry, nil
}

func (s *engineService) validateTransition(ctx context.Context, fromStatusID uuid.UUID, target *statuses.Status, opts ChangeOptions) error {
	transition, err := s.table.FindTransition(ctx, fromStatusID, target.ID)
	if err != nil {
		return err
	}
	if transition == nil {
		from, err := s.catalog.GetStatusByID(ctx, fromStatusID)
		if err != nil {
			return err
		}
		fromCode := fromStatusID.String()
		if from != nil {
			fromCode = from.Code
		}
		return apperrors.TransitionNotAllowed("no transition from %q to %q", fromCode, target.Code)
	}

	if transition.RequiresComment && opts.Comment == "" {
		return apperrors.CommentRequired("transition %q requires a comment", transition.Name)
	}

	// requires_approval is recorded guidance for the calling layer; the
	// engine has no approval records to check it against.

	if len(transition.Conditions) > 0 {
		ok, err := s.evaluator.Evaluate(transition.Conditions, opts.EntitySnapshot)
		if err != nil {
			return apperrors.Wrap(err, apperrors.KindValidation, "conditions of transition %q could not be evaluated", transition.Name)
		}
		if !ok {
			return apperrors.ConditionNotMet("conditions of transition %q not met", transition.Name)
		}
	}

	return nil
}

// GetCurrentStatus resolves the status of the most recent ledger entry.
// Returns nil when the entity has never been assigned a status.
func (s *engineService) GetCurrentStatus(ctx context.Context, entityType, entityID string) (*statuses.Status, error) {
	latest, err := s.ledger.GetLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}
	return s.catalog.GetStatusByID(ctx, latest.StatusID)
}

// GetAvailableTransitions lists the outgoing edges of the entity's current
// status. An entity without a status, or a status without edges, yields an
// empty slice rather than an error.
func (s *engineService) GetAvailableTransitions(ctx context.Context, entityType, entityID string) ([]transitions.AvailableTransition, error) {
	latest, err := s.ledger.GetLatest(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return []transitions.AvailableTransition{}, nil
	}
	return s.table.GetAvailableTransitions(ctx, latest.StatusID)
}

func (s *engineService) GetHistory(ctx context.Context, entityType, entityID string, opts history.QueryOptions) ([]history.Entry, error) {
	return s.ledger.GetHistory(ctx, entityType, entityID, opts)
}
