package service

import (
	"context"
	"errors"
	"sync"

	resourceerrors "labreserve/internal/resources/errors"
	"labreserve/internal/resources/repository"
	"labreserve/internal/resources/validator"
	"labreserve/pkg/config"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/model"
)

type ResourceService interface {
	Create(ctx context.Context, res *model.Resource) error
	GetByID(ctx context.Context, id string) (*model.Resource, error)
	GetAll(ctx context.Context, kind string, limit int, offset int64) ([]*model.Resource, int64, error)
	Update(ctx context.Context, id string, updates *model.ResourceUpdate) error
	Retire(ctx context.Context, id string) error
}

type resourceService struct {
	repo      repository.ResourceRepository
	validator *validator.ResourceValidator
	cfg       *config.Config
}

func NewResourceService(
	repo repository.ResourceRepository,
	validator *validator.ResourceValidator,
	cfg *config.Config,
) ResourceService {
	return &resourceService{
		repo:      repo,
		validator: validator,
		cfg:       cfg,
	}
}

func (s *resourceService) Create(ctx context.Context, res *model.Resource) error {
	if res.Status == "" {
		res.Status = model.ResourceInService
	}

	if err := s.validator.Validate(res); err != nil {
		s.cfg.Log.Warn("Resource validation failed", "name", res.Name, "error", err)
		return apperrors.Validation("Resource validation failed", map[string]any{"error": err.Error()})
	}

	if res.Kind == model.KindWorkstation {
		parent, err := s.GetByID(ctx, res.ParentRoomID)
		if err != nil {
			return err
		}
		if parent.Kind != model.KindRoom {
			return apperrors.Validation("parent_room_id must reference a room", map[string]any{
				"parent_room_id": res.ParentRoomID,
				"parent_kind":    parent.Kind,
			})
		}
	}

	if err := s.repo.Create(ctx, res); err != nil {
		s.cfg.Log.Error("Failed to create resource", "name", res.Name, "error", err)
		return apperrors.Internal("Failed to create resource", err)
	}

	s.cfg.Log.Info("Resource created successfully",
		"id", res.ID,
		"kind", res.Kind,
		"name", res.Name,
	)
	return nil
}

func (s *resourceService) GetByID(ctx context.Context, id string) (*model.Resource, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Resource ID cannot be empty")
	}

	res, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, resourceerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Resource", id)
		}
		if errors.Is(err, resourceerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid resource ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve resource", err)
	}
	return res, nil
}

func (s *resourceService) GetAll(ctx context.Context, kind string, limit int, offset int64) ([]*model.Resource, int64, error) {
	if kind != "" && kind != model.KindRoom && kind != model.KindWorkstation {
		return nil, 0, apperrors.InvalidInput("kind must be 'room' or 'workstation'")
	}

	var count int64
	var resources []*model.Resource
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, kind)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count resources", "error", errCount)
			errCount = apperrors.Internal("Failed to count resources", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		resources, errFind = s.repo.FindAll(ctx, kind, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list resources", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve resources", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return resources, count, nil
}

func (s *resourceService) Update(ctx context.Context, id string, updates *model.ResourceUpdate) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.validator.ValidateUpdate(updates); err != nil {
		s.cfg.Log.Warn("Resource update validation failed", "id", id, "error", err)
		return apperrors.Validation("Invalid update input", map[string]any{"error": err.Error()})
	}

	merged := *existing
	if updates.Name != "" {
		merged.Name = updates.Name
	}
	if updates.Capacity != nil {
		merged.Capacity = *updates.Capacity
	}
	if updates.Status != "" {
		merged.Status = updates.Status
	}

	if err := s.repo.Update(ctx, id, &merged); err != nil {
		s.cfg.Log.Error("Failed to update resource", "id", id, "error", err)
		return apperrors.Internal("Failed to update resource", err)
	}

	s.cfg.Log.Info("Resource updated successfully", "id", id)
	return nil
}

// Retire flips the status flag; resources are never physically removed so
// historical reservations keep resolving.
func (s *resourceService) Retire(ctx context.Context, id string) error {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == model.ResourceRetired {
		return nil
	}

	existing.Status = model.ResourceRetired
	if err := s.repo.Update(ctx, id, existing); err != nil {
		s.cfg.Log.Error("Failed to retire resource", "id", id, "error", err)
		return apperrors.Internal("Failed to retire resource", err)
	}

	s.cfg.Log.Info("Resource retired", "id", id, "name", existing.Name)
	return nil
}
