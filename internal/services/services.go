package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/vaihtoaktivaattori/portal/internal/connections"
	"github.com/vaihtoaktivaattori/portal/internal/i18n"
	"github.com/vaihtoaktivaattori/portal/internal/infrastructure/openai"
	"github.com/vaihtoaktivaattori/portal/internal/infrastructure/redis"
	"github.com/vaihtoaktivaattori/portal/internal/services/budget"
	"github.com/vaihtoaktivaattori/portal/internal/services/chat"
	"github.com/vaihtoaktivaattori/portal/internal/services/tools"
)

var (
	// Mutex for thread-safe initialization
	servicesMu sync.RWMutex
)

type Services struct {
	budgetService *budget.Service
	catalog       *i18n.Catalog
	chatService   chat.Service
	connManager   *connections.Manager
	openAIService *openai.Service
	redisService  *redis.Service
	toolService   *tools.Service
}

// InitializeServices initializes all required services
func InitializeServices(ctx context.Context) (*Services, error) {
	servicesMu.Lock()
	defer servicesMu.Unlock()

	log.Info().Msg("Initializing core services")

	// Redis is optional, budgets fall back to memory
	redisService := redis.NewService(ctx)
	budgetService := budget.NewService(ctx, redisService)

	toolService := tools.NewService(budgetService)
	toolExecutor := tools.NewToolExecutor(budgetService)

	openAIService := openai.NewService()
	if openAIService == nil {
		return nil, fmt.Errorf("OpenAI service is required - set OPENAI_KEY")
	}

	chatService, err := chat.NewService(openAIService, toolService, toolExecutor)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize chat service - required for message processing")
		return nil, fmt.Errorf("failed to initialize chat service: %w", err)
	}

	log.Info().Str("budget_store", budgetService.StoreName()).Msg("All services initialized successfully")

	return &Services{
		budgetService: budgetService,
		catalog:       i18n.Default(),
		chatService:   chatService,
		connManager:   connections.NewManager(connections.DefaultTimeouts),
		openAIService: openAIService,
		redisService:  redisService,
		toolService:   toolService,
	}, nil
}

// New assembles a container from already built parts.
func New(chatService chat.Service, budgetService *budget.Service, catalog *i18n.Catalog) *Services {
	if catalog == nil {
		catalog = i18n.Default()
	}
	return &Services{
		budgetService: budgetService,
		catalog:       catalog,
		chatService:   chatService,
		connManager:   connections.NewManager(connections.DefaultTimeouts),
	}
}

// GetChatService returns the chat service
func (s *Services) GetChatService() chat.Service {
	return s.chatService
}

// GetBudgetService returns the budget service
func (s *Services) GetBudgetService() *budget.Service {
	return s.budgetService
}

// GetConnectionManager returns the live budget session registry
func (s *Services) GetConnectionManager() *connections.Manager {
	return s.connManager
}

// GetCatalog returns the message catalog
func (s *Services) GetCatalog() *i18n.Catalog {
	return s.catalog
}

// RedisAvailable reports whether budgets are persisted in Redis
func (s *Services) RedisAvailable() bool {
	return s.redisService != nil && s.budgetService != nil && s.budgetService.StoreName() == "redis"
}

// Close releases external connections
func (s *Services) Close() error {
	if s.redisService != nil {
		return s.redisService.Close()
	}
	return nil
}
