// config.go defines the assistant configuration structures and validation.
package assistant

import (
	"fmt"
	"time"
)

// Config holds all assistant configuration.
type Config struct {
	// Name is the assistant name shown in the CLI.
	Name string `yaml:"name"`

	// Client configures the LLM gateway client.
	Client ClientConfig `yaml:"client"`

	// History configures conversation persistence.
	History HistoryConfig `yaml:"history"`

	// Logging configures log output.
	Logging LoggingConfig `yaml:"logging"`
}

// ClientConfig configures the gateway client. It is supplied wholesale via
// Configure and swapped atomically — in-flight requests keep the config they
// were admitted under.
type ClientConfig struct {
	// APIKey is the bearer credential. Resolved from the OS keyring or
	// environment when empty in the file; see ResolveAPIKey.
	APIKey string `yaml:"api_key"`

	// BaseURL is the provider endpoint, e.g. "https://api.openai.com/v1".
	BaseURL string `yaml:"base_url"`

	// Models is the fallback chain in priority order. Must be non-empty;
	// the retry loop never advances past the last entry.
	Models []string `yaml:"models"`

	// SystemPrompt is prepended when a conversation has no leading system
	// message.
	SystemPrompt string `yaml:"system_prompt"`

	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature is the sampling temperature, in [0, 2].
	Temperature float64 `yaml:"temperature"`

	// TimeoutMs is the per-attempt deadline in milliseconds.
	TimeoutMs int `yaml:"timeout_ms"`

	// MaxConcurrentRequests bounds simultaneously in-flight attempts across
	// the whole client. Requests beyond the bound are rejected, not queued.
	MaxConcurrentRequests int `yaml:"max_concurrent_requests"`

	// MaxRetries bounds retry transitions for one logical request.
	MaxRetries int `yaml:"max_retries"`

	// RetryDelayMs is the pause between fallback attempts.
	RetryDelayMs int `yaml:"retry_delay_ms"`

	// MaxWindow bounds the conversation history sent per request.
	MaxWindow int `yaml:"max_window"`

	// RequestsPerMinute paces outbound attempts (token bucket). Zero
	// disables pacing.
	RequestsPerMinute float64 `yaml:"requests_per_minute"`

	// Burst is the pacing burst size. Ignored when pacing is disabled.
	Burst int `yaml:"burst"`
}

// HistoryConfig configures the SQLite conversation store.
type HistoryConfig struct {
	// Path is the database file path.
	Path string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	// Level is the log level ("debug", "info", "warn", "error").
	Level string `yaml:"level"`

	// Format is the log format ("json", "text").
	Format string `yaml:"format"`
}

// DefaultConfig returns the default assistant configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:   "ArchiFlow Assistant",
		Client: DefaultClientConfig(),
		History: HistoryConfig{
			Path: "./data/history.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultClientConfig returns the default gateway client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL: "https://api.openai.com/v1",
		Models:  []string{"gpt-4o-mini", "gpt-4o", "gpt-3.5-turbo"},
		SystemPrompt: "You are the ArchiFlow assistant. You help manage " +
			"construction materials, invoices and clients. Be concise and " +
			"practical.",
		MaxTokens:             1024,
		Temperature:           0.7,
		TimeoutMs:             30000,
		MaxConcurrentRequests: 3,
		MaxRetries:            3,
		RetryDelayMs:          500,
		MaxWindow:             DefaultMaxWindow,
		RequestsPerMinute:     60,
		Burst:                 10,
	}
}

// Validate checks the client configuration invariants.
func (c ClientConfig) Validate() error {
	if len(c.Models) == 0 {
		return &GatewayError{Kind: KindConfig, Message: "models list must not be empty"}
	}
	for i, m := range c.Models {
		if m == "" {
			return &GatewayError{Kind: KindConfig, Message: fmt.Sprintf("models[%d] is empty", i)}
		}
	}
	if c.BaseURL == "" {
		return &GatewayError{Kind: KindConfig, Message: "base_url must not be empty"}
	}
	if c.MaxTokens <= 0 {
		return &GatewayError{Kind: KindConfig, Message: "max_tokens must be > 0"}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return &GatewayError{Kind: KindConfig, Message: "temperature must be in [0, 2]"}
	}
	if c.TimeoutMs <= 0 {
		return &GatewayError{Kind: KindConfig, Message: "timeout_ms must be > 0"}
	}
	if c.MaxConcurrentRequests < 1 {
		return &GatewayError{Kind: KindConfig, Message: "max_concurrent_requests must be >= 1"}
	}
	if c.MaxRetries < 0 {
		return &GatewayError{Kind: KindConfig, Message: "max_retries must be >= 0"}
	}
	if c.RetryDelayMs < 0 {
		return &GatewayError{Kind: KindConfig, Message: "retry_delay_ms must be >= 0"}
	}
	return nil
}

// Timeout returns the per-attempt deadline as a duration.
func (c ClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RetryDelay returns the inter-attempt pause as a duration.
func (c ClientConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMs) * time.Millisecond
}
