package config

import (
	"time"
)

// GetJWTSecret returns the HMAC secret bearer tokens are signed with
func GetJWTSecret() []byte {
	return []byte(getString("auth.jwt_secret"))
}

// SetJWTSecret temporarily changes the JWT secret and returns a function to restore it
func SetJWTSecret(secret []byte) func() {
	return Override("auth.jwt_secret", string(secret))
}

// GetTokenTTL is the lifetime of tokens minted by the CLI
func GetTokenTTL() time.Duration {
	if ttl := getDuration("auth.token_ttl"); ttl > 0 {
		return ttl
	}
	return time.Hour
}

// GetAuthAPIBase is the base URL the budget client talks to
func GetAuthAPIBase() string {
	return getString("auth.api_base")
}

// GetClientToken is the bearer token the CLI clients send
func GetClientToken() string {
	return getString("auth.token")
}
