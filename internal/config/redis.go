package config

import (
	"github.com/rs/zerolog/log"
)

// GetRedisURL returns the address of the Redis server backing the budget
// store. Empty means the in-memory store is used.
func GetRedisURL() string {
	value := getString("redis.url")
	if value == "" {
		log.Debug().Msg("Redis URL not set")
	}
	return value
}

func GetRedisPassword() string {
	return getString("redis.password")
}
