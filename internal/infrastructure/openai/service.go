package openai

import (
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"github.com/vaihtoaktivaattori/portal/internal/config"
)

type Service struct {
	client *openai.Client
	model  string
}

// NewService returns nil when no API key is configured.
func NewService() *Service {
	key := config.GetOpenAIKey()
	if key == "" {
		log.Warn().Msg("OpenAI service not configured - OPENAI_KEY missing")
		return nil
	}
	return NewServiceWithBaseURL(key, config.GetOpenAIBaseURL(), config.GetOpenAIModel())
}

// NewServiceWithBaseURL targets an OpenAI compatible API at baseURL. An empty
// baseURL uses the public API.
func NewServiceWithBaseURL(key, baseURL, model string) *Service {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}

	log.Info().Str("model", model).Bool("custom_base_url", baseURL != "").Msg("OpenAI service initialised")
	return &Service{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *Service) GetClient() *openai.Client {
	return s.client
}

func (s *Service) Model() string {
	return s.model
}
