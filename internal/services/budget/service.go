package budget

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vaihtoaktivaattori/portal/internal/infrastructure/redis"
	"github.com/vaihtoaktivaattori/portal/pkg/budget"
)

const maxCategoryName = 64

// ValidationError is returned by Put for snapshots that cannot be stored.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid budget: " + e.Reason
}

type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

// NewService uses Redis when it is available and falls back to memory.
func NewService(ctx context.Context, redisService *redis.Service) *Service {
	var store Store
	if redisService != nil {
		if err := redisService.Ping(ctx); err != nil {
			log.Warn().Err(err).Msg("Redis unreachable - budgets are kept in memory")
			store = NewMemoryStore()
		} else {
			store = NewRedisStore(redisService)
		}
	} else {
		store = NewMemoryStore()
	}

	return NewServiceWithStore(store)
}

func NewServiceWithStore(store Store) *Service {
	log.Info().Str("store", store.Name()).Msg("Budget service initialised")
	return &Service{
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// StoreName reports which backend is in use.
func (s *Service) StoreName() string {
	return s.store.Name()
}

// Get returns the stored budget of userID, or an empty one.
func (s *Service) Get(ctx context.Context, userID string) (budget.Snapshot, error) {
	snap, err := s.store.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return budget.New(""), nil
	}
	if err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to load budget: %w", err)
	}
	snap.Recalculate()
	return snap, nil
}

// Put replaces the budget of userID. The total is recomputed here; whatever
// the client sent is ignored.
func (s *Service) Put(ctx context.Context, userID string, snap budget.Snapshot) (budget.Snapshot, error) {
	snap = snap.Clone()
	if err := s.Validate(snap); err != nil {
		return budget.Snapshot{}, err
	}

	if snap.ID == "" {
		if existing, err := s.store.Get(ctx, userID); err == nil && existing.ID != "" {
			snap.ID = existing.ID
		} else {
			snap.ID = uuid.NewString()
		}
	}
	snap.Recalculate()
	snap.UpdatedAt = s.now().UTC()

	if err := s.store.Put(ctx, userID, snap); err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to save budget: %w", err)
	}

	log.Debug().
		Str("user_id", userID).
		Int("categories", len(snap.Categories)).
		Float64("total", snap.Total).
		Msg("Budget saved")
	return snap, nil
}

// Validate checks category names and values.
func (s *Service) Validate(snap budget.Snapshot) error {
	if err := s.validate.Struct(snap); err != nil {
		return &ValidationError{Reason: err.Error()}
	}
	for name := range snap.Categories {
		if strings.TrimSpace(name) == "" || len(name) > maxCategoryName {
			return &ValidationError{Reason: fmt.Sprintf("category name %q must be 1-%d characters", name, maxCategoryName)}
		}
	}
	return nil
}
