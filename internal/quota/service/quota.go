package service

import (
	"context"
	"errors"
	"sync"
	"time"

	quotaerrors "labreserve/internal/quota/errors"
	"labreserve/internal/quota/repository"
	"labreserve/pkg/config"
	apperrors "labreserve/pkg/errors"
	"labreserve/pkg/kafka"
	"labreserve/pkg/model"

	"github.com/go-playground/validator/v10"
)

type QuotaService interface {
	CreateHolder(ctx context.Context, holder *model.QuotaHolder) error
	GetHolder(ctx context.Context, id string) (*model.QuotaHolder, error)
	GetAllHolders(ctx context.Context, role string, limit int, offset int64) ([]*model.QuotaHolder, int64, error)
	// Debit subtracts minutes from a holder's balance, floored at zero.
	// Overtime (a debit past zero) is reported, not treated as an error.
	Debit(ctx context.Context, holderID string, minutes int) (newBalance time.Duration, overtime bool, err error)
	// ResetAll bulk-sets every student balance for a term. applied is false
	// when the term's marker already exists and nothing was changed.
	ResetAll(ctx context.Context, term string, defaultMin int) (reset *model.SemesterReset, applied bool, err error)
}

type quotaService struct {
	repo      repository.QuotaRepository
	validate  *validator.Validate
	publisher kafka.Publisher
	cfg       *config.Config
}

func NewQuotaService(repo repository.QuotaRepository, publisher kafka.Publisher, cfg *config.Config) QuotaService {
	return &quotaService{
		repo:      repo,
		validate:  validator.New(),
		publisher: publisher,
		cfg:       cfg,
	}
}

func (s *quotaService) CreateHolder(ctx context.Context, holder *model.QuotaHolder) error {
	if holder.Remaining == 0 {
		holder.Remaining = time.Duration(s.cfg.SemesterQuotaMin) * time.Minute
	}
	if err := s.validate.Struct(holder); err != nil {
		s.cfg.Log.Warn("Quota holder validation failed", "name", holder.Name, "error", err)
		return apperrors.Validation("Quota holder validation failed", map[string]any{"error": err.Error()})
	}

	if err := s.repo.Create(ctx, holder); err != nil {
		s.cfg.Log.Error("Failed to create quota holder", "name", holder.Name, "error", err)
		return apperrors.Internal("Failed to create quota holder", err)
	}

	s.cfg.Log.Info("Quota holder created", "id", holder.ID, "role", holder.Role, "balance", holder.RemainingHMS())
	return nil
}

func (s *quotaService) GetHolder(ctx context.Context, id string) (*model.QuotaHolder, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Quota holder ID cannot be empty")
	}

	holder, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, quotaerrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Quota holder", id)
		}
		if errors.Is(err, quotaerrors.ErrInvalidID) {
			return nil, apperrors.InvalidInput("Invalid quota holder ID format")
		}
		return nil, apperrors.Internal("Failed to retrieve quota holder", err)
	}
	return holder, nil
}

func (s *quotaService) GetAllHolders(ctx context.Context, role string, limit int, offset int64) ([]*model.QuotaHolder, int64, error) {
	var count int64
	var holders []*model.QuotaHolder
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx, role)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count quota holders", "error", errCount)
			errCount = apperrors.Internal("Failed to count quota holders", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		holders, errFind = s.repo.FindAll(ctx, role, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list quota holders", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve quota holders", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}
	return holders, count, nil
}

func (s *quotaService) Debit(ctx context.Context, holderID string, minutes int) (time.Duration, bool, error) {
	if holderID == "" {
		return 0, false, apperrors.InvalidInput("Quota holder ID cannot be empty")
	}
	if minutes < 0 {
		return 0, false, apperrors.InvalidInput("Debit minutes must not be negative")
	}

	amount := time.Duration(minutes) * time.Minute
	before, err := s.repo.DebitFloored(ctx, holderID, amount)
	if err != nil {
		if errors.Is(err, quotaerrors.ErrNotFound) {
			return 0, false, apperrors.NotFoundWithID("Quota holder", holderID)
		}
		if errors.Is(err, quotaerrors.ErrInvalidID) {
			return 0, false, apperrors.InvalidInput("Invalid quota holder ID format")
		}
		return 0, false, apperrors.Internal("Failed to debit quota", err)
	}

	newBalance := before - amount
	overtime := newBalance < 0
	if overtime {
		newBalance = 0
		s.cfg.Log.Warn("Quota debit exceeded remaining balance",
			"holder_id", holderID,
			"debited_minutes", minutes,
			"balance_before", model.FormatHMS(before),
		)
	}

	s.cfg.Log.Info("Quota debited",
		"holder_id", holderID,
		"minutes", minutes,
		"new_balance", model.FormatHMS(newBalance),
	)
	s.publishEvent(ctx, "quota.debited", holderID, map[string]any{
		"holder_id":   holderID,
		"minutes":     minutes,
		"new_balance": model.FormatHMS(newBalance),
		"overtime":    overtime,
	})
	return newBalance, overtime, nil
}

func (s *quotaService) ResetAll(ctx context.Context, term string, defaultMin int) (*model.SemesterReset, bool, error) {
	if term == "" {
		return nil, false, apperrors.InvalidInput("Term cannot be empty")
	}
	if defaultMin <= 0 {
		defaultMin = s.cfg.SemesterQuotaMin
	}

	existing, err := s.repo.FindResetMarker(ctx, term)
	if err == nil {
		s.cfg.Log.Info("Semester reset already applied", "term", term, "applied_at", existing.AppliedAt)
		return existing, false, nil
	}
	if !errors.Is(err, quotaerrors.ErrNotFound) {
		return nil, false, apperrors.Internal("Failed to check semester reset marker", err)
	}

	touched, err := s.repo.ResetByRole(ctx, model.RoleStudent, time.Duration(defaultMin)*time.Minute)
	if err != nil {
		s.cfg.Log.Error("Failed to reset quota balances", "term", term, "error", err)
		return nil, false, apperrors.Internal("Failed to reset quota balances", err)
	}

	marker := &model.SemesterReset{
		Term:       term,
		DefaultMin: defaultMin,
		Holders:    touched,
	}
	if err := s.repo.InsertResetMarker(ctx, marker); err != nil {
		// A concurrent trigger won the marker insert after both ran the
		// bulk set; both wrote the same default, so report not-applied.
		if errors.Is(err, quotaerrors.ErrResetApplied) {
			if existing, findErr := s.repo.FindResetMarker(ctx, term); findErr == nil {
				return existing, false, nil
			}
			return nil, false, nil
		}
		return nil, false, apperrors.Internal("Failed to record semester reset", err)
	}

	s.cfg.Log.Info("Semester reset applied", "term", term, "default_min", defaultMin, "holders", touched)
	s.publishEvent(ctx, "quota.reset", term, map[string]any{
		"term":        term,
		"default_min": defaultMin,
		"holders":     touched,
	})
	return marker, true, nil
}

func (s *quotaService) publishEvent(ctx context.Context, eventType, key string, payload map[string]any) {
	msg := kafka.NewMessage().
		WithKey(key).
		WithEventType(eventType).
		WithSource("quota").
		WithValue(payload).
		Build()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.cfg.Log.Warn("Failed to publish quota event", "event_type", eventType, "key", key, "error", err)
	}
}
