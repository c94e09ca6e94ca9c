package statuses

import (
	"context"

	"github.com/google/uuid"

	"freeflow/status-engine/status-engine-backend/pkg/apperrors"
)

// Service provides status catalog administration. The catalog is read-mostly:
// the transition engine only ever reads it, all writes come through here.
type Service interface {
	CreateStatus(ctx context.Context, req CreateStatusRequest) (*Status, error)
	GetStatus(ctx context.Context, id uuid.UUID) (*Status, error)
	ListStatuses(ctx context.Context, entityType string, filters ListFilters) ([]Status, error)
	GetDefaultStatus(ctx context.Context, entityType string) (*Status, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*Status, error)
	DeleteStatus(ctx context.Context, id uuid.UUID) error

	CreateGroup(ctx context.Context, req CreateGroupRequest) (*StatusGroup, error)
	ListGroups(ctx context.Context, entityType string) ([]StatusGroup, error)
	UpdateGroup(ctx context.Context, id uuid.UUID, name, color string, isActive *bool) (*StatusGroup, error)
	DeleteGroup(ctx context.Context, id uuid.UUID) error
}

type catalogService struct {
	repo Repository
}

func NewService(repo Repository) Service {
	return &catalogService{repo: repo}
}

func (s *catalogService) CreateStatus(ctx context.Context, req CreateStatusRequest) (*Status, error) {
	existing, err := s.repo.GetStatusByCode(ctx, req.EntityType, req.Code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperrors.Validation("status code %q already exists for entity type %q", req.Code, req.EntityType)
	}

	if req.GroupID != nil {
		group, err := s.repo.GetGroupByID(ctx, *req.GroupID)
		if err != nil {
			return nil, err
		}
		if group == nil {
			return nil, apperrors.Validation("status group %s does not exist", *req.GroupID)
		}
		if group.EntityType != req.EntityType {
			return nil, apperrors.Validation("status group %q belongs to entity type %q", group.Code, group.EntityType)
		}
	}

	status := &Status{
		ID:          uuid.New(),
		EntityType:  req.EntityType,
		Code:        req.Code,
		Name:        req.Name,
		Description: req.Description,
		Color:       req.Color,
		Icon:        req.Icon,
		OrderIndex:  req.OrderIndex,
		GroupID:     req.GroupID,
		IsDefault:   req.IsDefault,
		IsFinal:     req.IsFinal,
		IsActive:    true,
	}

	if err := s.saveWithDefaultSwap(ctx, status, uuid.Nil, Repository.CreateStatus); err != nil {
		return nil, err
	}
	return status, nil
}

// saveWithDefaultSwap persists a status. A default status is written in one
// transaction that first un-defaults the rest of its entity type, so at most
// one active default exists per entity type at any point.
func (s *catalogService) saveWithDefaultSwap(ctx context.Context, status *Status, exceptID uuid.UUID, save func(Repository, context.Context, *Status) error) error {
	if !status.IsDefault {
		return save(s.repo, ctx, status)
	}
	return s.repo.WithTx(ctx, func(tx Repository) error {
		if err := tx.ClearDefault(ctx, status.EntityType, exceptID); err != nil {
			return err
		}
		return save(tx, ctx, status)
	})
}

func (s *catalogService) GetStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	status, err := s.repo.GetStatusByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, apperrors.NotFound("status %s not found", id)
	}
	return status, nil
}

func (s *catalogService) ListStatuses(ctx context.Context, entityType string, filters ListFilters) ([]Status, error) {
	return s.repo.ListStatuses(ctx, entityType, filters)
}

func (s *catalogService) GetDefaultStatus(ctx context.Context, entityType string) (*Status, error) {
	status, err := s.repo.GetDefaultStatus(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, apperrors.NotFound("no active default status configured for entity type %q", entityType)
	}
	return status, nil
}

func (s *catalogService) UpdateStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*Status, error) {
	status, err := s.GetStatus(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		status.Name = *req.Name
	}
	if req.Description != nil {
		status.Description = *req.Description
	}
	if req.Color != nil {
		status.Color = *req.Color
	}
	if req.Icon != nil {
		status.Icon = *req.Icon
	}
	if req.OrderIndex != nil {
		status.OrderIndex = *req.OrderIndex
	}
	if req.GroupID != nil {
		group, err := s.repo.GetGroupByID(ctx, *req.GroupID)
		if err != nil {
			return nil, err
		}
		if group == nil || group.EntityType != status.EntityType {
			return nil, apperrors.Validation("invalid status group for entity type %q", status.EntityType)
		}
		status.GroupID = req.GroupID
	}
	if req.IsDefault != nil {
		status.IsDefault = *req.IsDefault
	}
	if req.IsFinal != nil {
		status.IsFinal = *req.IsFinal
	}
	if req.IsActive != nil {
		status.IsActive = *req.IsActive
	}

	if err := s.saveWithDefaultSwap(ctx, status, status.ID, Repository.UpdateStatus); err != nil {
		return nil, err
	}
	return status, nil
}

// DeleteStatus physically removes a status. Blocked while any transition or
// history row references it; deactivate instead of deleting in that case.
func (s *catalogService) DeleteStatus(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetStatus(ctx, id); err != nil {
		return err
	}

	transitionRefs, err := s.repo.CountTransitionRefs(ctx, id)
	if err != nil {
		return err
	}
	if transitionRefs > 0 {
		return apperrors.Conflict("status %s is referenced by %d transition(s)", id, transitionRefs)
	}

	historyRefs, err := s.repo.CountHistoryRefs(ctx, id)
	if err != nil {
		return err
	}
	if historyRefs > 0 {
		return apperrors.Conflict("status %s is referenced by %d history entry(s)", id, historyRefs)
	}

	return s.repo.DeleteStatus(ctx, id)
}

func (s *catalogService) CreateGroup(ctx context.Context, req CreateGroupRequest) (*StatusGroup, error) {
	group := &StatusGroup{
		ID:         uuid.New(),
		EntityType: req.EntityType,
		Code:       req.Code,
		Name:       req.Name,
		Color:      req.Color,
		IsActive:   true,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *catalogService) ListGroups(ctx context.Context, entityType string) ([]StatusGroup, error) {
	return s.repo.ListGroups(ctx, entityType)
}

func (s *catalogService) UpdateGroup(ctx context.Context, id uuid.UUID, name, color string, isActive *bool) (*StatusGroup, error) {
	group, err := s.repo.GetGroupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, apperrors.NotFound("status group %s not found", id)
	}

	if name != "" {
		group.Name = name
	}
	if color != "" {
		group.Color = color
	}
	if isActive != nil {
		group.IsActive = *isActive
	}

	if err := s.repo.UpdateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *catalogService) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	group, err := s.repo.GetGroupByID(ctx, id)
	if err != nil {
		return err
	}
	if group == nil {
		return apperrors.NotFound("status group %s not found", id)
	}

	members, err := s.repo.CountGroupMembers(ctx, id)
	if err != nil {
		return err
	}
	if members > 0 {
		return apperrors.Conflict("status group %s still has %d member status(es)", id, members)
	}

	return s.repo.DeleteGroup(ctx, id)
}
