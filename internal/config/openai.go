package config

// GetOpenAIKey returns the key for the upstream chat completions API
func GetOpenAIKey() string {
	return getString("openai.key")
}

// GetOpenAIBaseURL returns an override for OpenAI compatible gateways.
// Empty uses the public API.
func GetOpenAIBaseURL() string {
	return getString("openai.base_url")
}

func GetOpenAIModel() string {
	return getString("openai.model")
}
