package openai

import "time"

// Config holds the settings for the OpenAI chat-completions client.
type Config struct {
	// APIKey authenticates against the API.
	APIKey string
	// BaseURL overrides the API endpoint (a proxy, Azure-compatible gateway,
	// or a local test server). Empty means the public OpenAI API.
	BaseURL string
	// Timeout bounds a single completion request, including reading the body.
	Timeout time.Duration
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout: 30 * time.Second,
	}
}
