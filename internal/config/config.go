package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var configMu sync.RWMutex

func init() {
	setDefaults()
}

func setDefaults() {
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.shutdown_timeout", 15*time.Second)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.console", false)

	viper.SetDefault("openai.model", "gpt-4o-mini")

	viper.SetDefault("chat.api_base", "http://localhost:8080/v1/chat")
	viper.SetDefault("chat.timeout", 2*time.Minute)
	viper.SetDefault("chat.language", "fi")

	viper.SetDefault("auth.api_base", "http://localhost:8080/v1")
	viper.SetDefault("auth.token_ttl", time.Hour)
	_ = viper.BindEnv("auth.jwt_secret", "JWT_SECRET", "AUTH_JWT_SECRET")
	_ = viper.BindEnv("auth.token", "PORTAL_TOKEN", "AUTH_TOKEN")

	viper.SetDefault("budget.quiet_period", time.Second)
	viper.SetDefault("budget.grace_window", 500*time.Millisecond)
	viper.SetDefault("budget.max_deferral", 10*time.Second)
	viper.SetDefault("budget.flush_timeout", 10*time.Second)

	viper.SetDefault("ratelimit.enabled", false)
	viper.SetDefault("ratelimit.window", time.Minute)
	viper.SetDefault("ratelimit.global", 1000)
	viper.SetDefault("ratelimit.chat_turn", 20)
	viper.SetDefault("ratelimit.budget", 240)
}

// Load reads an optional YAML config file. Without a path it looks for
// portal.yaml in the working directory and /etc/portal; a missing file is
// not an error.
func Load(path string) error {
	configMu.Lock()
	defer configMu.Unlock()

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("portal")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/portal")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			log.Debug().Msg("No config file found, using defaults and environment")
			return nil
		}
		return fmt.Errorf("failed to read config: %w", err)
	}

	log.Info().Str("file", viper.ConfigFileUsed()).Msg("Configuration loaded")
	return nil
}

// Override sets key for the lifetime of a test and returns a function that
// restores the previous value.
func Override(key string, value any) func() {
	configMu.Lock()
	previous, had := viper.Get(key), viper.IsSet(key)
	viper.Set(key, value)
	configMu.Unlock()

	return func() {
		configMu.Lock()
		defer configMu.Unlock()
		if had {
			viper.Set(key, previous)
		} else {
			viper.Set(key, nil)
		}
	}
}

func getString(key string) string {
	configMu.RLock()
	defer configMu.RUnlock()
	return viper.GetString(key)
}

func getBool(key string) bool {
	configMu.RLock()
	defer configMu.RUnlock()
	return viper.GetBool(key)
}

func getInt(key string, fallback int) int {
	configMu.RLock()
	defer configMu.RUnlock()
	if v := viper.GetInt(key); v > 0 {
		return v
	}
	log.Warn().Str("key", key).Int("default", fallback).Msg("Invalid or empty value, using default")
	return fallback
}

func getDuration(key string) time.Duration {
	configMu.RLock()
	defer configMu.RUnlock()
	return viper.GetDuration(key)
}

func GetServerAddr() string {
	return getString("server.addr")
}

func GetShutdownTimeout() time.Duration {
	return getDuration("server.shutdown_timeout")
}

func GetLogLevel() string {
	return getString("log.level")
}

func GetLogConsole() bool {
	return getBool("log.console")
}

// BindFlag lets a command line flag override key when it is set.
func BindFlag(key string, flag *pflag.Flag) error {
	configMu.Lock()
	defer configMu.Unlock()
	return viper.BindPFlag(key, flag)
}
