package transitions

import (
	"context"

	"github.com/google/uuid"

	"freeflow/status-engine/status-engine-backend/internal/statuses"
	"freeflow/status-engine/status-engine-backend/pkg/apperrors"
)

// Service administers the transition table: the directed edges a status graph
// is made of. The engine only reads it through FindTransition and
// GetAvailableTransitions.
type Service interface {
	CreateTransition(ctx context.Context, req CreateTransitionRequest) (*Transition, error)
	GetTransition(ctx context.Context, id uuid.UUID) (*Transition, error)
	GetAvailableTransitions(ctx context.Context, fromStatusID uuid.UUID) ([]AvailableTransition, error)
	FindTransition(ctx context.Context, fromStatusID, toStatusID uuid.UUID) (*Transition, error)
	UpdateTransition(ctx context.Context, id uuid.UUID, req UpdateTransitionRequest) (*Transition, error)
	DeleteTransition(ctx context.Context, id uuid.UUID) error
}

type tableService struct {
	repo    Repository
	catalog statuses.Repository
}

func NewService(repo Repository, catalog statuses.Repository) Service {
	return &tableService{repo: repo, catalog: catalog}
}

func (s *tableService) CreateTransition(ctx context.Context, req CreateTransitionRequest) (*Transition, error) {
	if req.FromStatusID == req.ToStatusID {
		return nil, apperrors.Validation("transition cannot point a status at itself")
	}

	from, err := s.catalog.GetStatusByID(ctx, req.FromStatusID)
	if err != nil {
		return nil, err
	}
	to, err := s.catalog.GetStatusByID(ctx, req.ToStatusID)
	if err != nil {
		return nil, err
	}
	if from == nil || !from.IsActive {
		return nil, apperrors.Validation("from status %s is missing or inactive", req.FromStatusID)
	}
	if to == nil || !to.IsActive {
		return nil, apperrors.Validation("to status %s is missing or inactive", req.ToStatusID)
	}
	if from.EntityType != to.EntityType {
		return nil, apperrors.Validation("statuses belong to different entity types (%q vs %q)", from.EntityType, to.EntityType)
	}

	existing, err := s.repo.FindActive(ctx, req.FromStatusID, req.ToStatusID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Validation("an active transition %s -> %s already exists", from.Code, to.Code)
	}

	transition := &Transition{
		ID:               uuid.New(),
		FromStatusID:     req.FromStatusID,
		ToStatusID:       req.ToStatusID,
		Name:             req.Name,
		Conditions:       req.Conditions,
		RequiresComment:  req.RequiresComment,
		RequiresApproval: req.RequiresApproval,
		IsActive:         true,
	}

	if err := s.repo.CreateTransition(ctx, transition); err != nil {
		return nil, err
	}
	return transition, nil
}

func (s *tableService) GetTransition(ctx context.Context, id uuid.UUID) (*Transition, error) {
	transition, err := s.repo.GetTransitionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if transition == nil {
		return nil, apperrors.NotFound("transition %s not found", id)
	}
	return transition, nil
}

// GetAvailableTransitions returns every active outgoing edge of a status,
// each paired with its destination status for display.
func (s *tableService) GetAvailableTransitions(ctx context.Context, fromStatusID uuid.UUID) ([]AvailableTransition, error) {
	edges, err := s.repo.ListFromStatus(ctx, fromStatusID)
	if err != nil {
		return nil, err
	}

	result := make([]AvailableTransition, 0, len(edges))
	for _, edge := range edges {
		to, err := s.catalog.GetStatusByID(ctx, edge.ToStatusID)
		if err != nil {
			return nil, err
		}
		if to == nil || !to.IsActive {
			continue
		}
		result = append(result, AvailableTransition{Transition: edge, ToStatus: *to})
	}
	return result, nil
}

// FindTransition is the exact (from, to) lookup the engine validates against.
// Absence is reported as nil, not as an error; only the engine turns a missing
// edge into TransitionNotAllowedError.
func (s *tableService) FindTransition(ctx context.Context, fromStatusID, toStatusID uuid.UUID) (*Transition, error) {
	return s.repo.FindActive(ctx, fromStatusID, toStatusID)
}

func (s *tableService) UpdateTransition(ctx context.Context, id uuid.UUID, req UpdateTransitionRequest) (*Transition, error) {
	transition, err := s.GetTransition(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		transition.Name = *req.Name
	}
	if req.Conditions != nil {
		transition.Conditions = req.Conditions
	}
	if req.RequiresComment != nil {
		transition.RequiresComment = *req.RequiresComment
	}
	if req.RequiresApproval != nil {
		transition.RequiresApproval = *req.RequiresApproval
	}
	if req.IsActive != nil && *req.IsActive != transition.IsActive {
		if *req.IsActive {
			// Re-activation must not produce a second active edge for the pair.
			existing, err := s.repo.FindActive(ctx, transition.FromStatusID, transition.ToStatusID)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != transition.ID {
				return nil, apperrors.Validation("another active transition already covers this status pair")
			}
		}
		transition.IsActive = *req.IsActive
	}

	if err := s.repo.UpdateTransition(ctx, transition); err != nil {
		return nil, err
	}
	return transition, nil
}

// DeleteTransition removes an edge outright. History references statuses, not
// transitions, so deletion is always safe.
func (s *tableService) DeleteTransition(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetTransition(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteTransition(ctx, id)
}
