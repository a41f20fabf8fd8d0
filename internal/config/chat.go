package config

import "time"

// GetChatAPIBase is the base URL of the streaming chat endpoint
func GetChatAPIBase() string {
	return getString("chat.api_base")
}

// GetChatTimeout bounds a single streamed turn. Zero disables the bound.
func GetChatTimeout() time.Duration {
	return getDuration("chat.timeout")
}

// GetChatLanguage is the default catalog language for user facing texts
func GetChatLanguage() string {
	return getString("chat.language")
}
