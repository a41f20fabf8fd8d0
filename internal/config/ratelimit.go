package config

import (
	"time"

	"github.com/rs/zerolog/log"
)

type RateLimitConfig struct {
	Enabled bool
	MaxHits int
	Window  time.Duration
}

var rateLimitDefaults = map[string]int{
	"global":    1000,
	"chat_turn": 20,
	"budget":    240,
}

func GetRateLimitConfig(key string) RateLimitConfig {
	fallback, exists := rateLimitDefaults[key]
	if !exists {
		log.Warn().Str("key", key).Msg("No rate limit config found")
		return RateLimitConfig{Enabled: false}
	}

	window := getDuration("ratelimit.window")
	if window <= 0 {
		window = time.Minute
	}

	return RateLimitConfig{
		Enabled: getBool("ratelimit.enabled"),
		MaxHits: getInt("ratelimit."+key, fallback),
		Window:  window,
	}
}
