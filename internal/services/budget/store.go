package budget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vaihtoaktivaattori/portal/internal/infrastructure/redis"
	"github.com/vaihtoaktivaattori/portal/pkg/budget"
)

const keyPrefix = "Budget:"

var ErrNotFound = errors.New("budget not found")

// Store persists one budget snapshot per user.
type Store interface {
	Get(ctx context.Context, userID string) (budget.Snapshot, error)
	Put(ctx context.Context, userID string, s budget.Snapshot) error
	Name() string
}

type RedisStore struct {
	redisService *redis.Service
}

type MemoryStore struct {
	mu      sync.RWMutex
	budgets map[string]budget.Snapshot
}

func NewRedisStore(redisService *redis.Service) *RedisStore {
	return &RedisStore{redisService: redisService}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{budgets: make(map[string]budget.Snapshot)}
}

// Redis Store implementation
func (rs *RedisStore) Get(ctx context.Context, userID string) (budget.Snapshot, error) {
	data, err := rs.redisService.Get(ctx, keyPrefix+userID)
	if errors.Is(err, redis.Nil) {
		return budget.Snapshot{}, ErrNotFound
	}
	if err != nil {
		return budget.Snapshot{}, err
	}

	var s budget.Snapshot
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return budget.Snapshot{}, fmt.Errorf("failed to decode stored budget: %w", err)
	}
	return s, nil
}

func (rs *RedisStore) Put(ctx context.Context, userID string, s budget.Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return rs.redisService.Set(ctx, keyPrefix+userID, string(data), 0)
}

func (rs *RedisStore) Name() string { return "redis" }

// Memory Store implementation
func (ms *MemoryStore) Get(ctx context.Context, userID string) (budget.Snapshot, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	s, exists := ms.budgets[userID]
	if !exists {
		return budget.Snapshot{}, ErrNotFound
	}
	return s.Clone(), nil
}

func (ms *MemoryStore) Put(ctx context.Context, userID string, s budget.Snapshot) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.budgets[userID] = s.Clone()
	return nil
}

func (ms *MemoryStore) Name() string { return "memory" }
