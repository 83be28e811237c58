package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for human-readable config values ("30s", "5m").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that should be redacted in logs and serialization.
type Secret string

// String implements fmt.Stringer. Always returns redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "Secret([REDACTED])"
}

// Value returns the actual secret value. Use sparingly.
func (s Secret) Value() string {
	return string(s)
}

// IsSet returns true if the secret has a non-empty value.
func (s Secret) IsSet() bool {
	return s != ""
}

// MarshalJSON implements json.Marshaler. Always returns redacted value.
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("[REDACTED]")
}

// Config is the root configuration for the agent engine.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Agent      AgentConfig      `koanf:"agent"`
	Memory     MemoryConfig     `koanf:"memory"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	LLM        LLMConfig        `koanf:"llm"`
	Permission PermissionConfig `koanf:"permission"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is json or console.
	Format string `koanf:"format"`
}

// AgentConfig bounds the conversation loop and tool dispatch.
type AgentConfig struct {
	// MaxRounds caps think/act/observe/judge iterations per turn.
	MaxRounds int `koanf:"max_rounds"`

	// MaxRetries is the total handler attempts per tool call.
	MaxRetries int `koanf:"max_retries"`

	// Parallelism limits concurrent tool calls within a round.
	Parallelism int `koanf:"parallelism"`

	// TurnTimeout bounds a whole turn including all rounds.
	TurnTimeout Duration `koanf:"turn_timeout"`

	// ToolTimeout bounds a single handler invocation.
	ToolTimeout Duration `koanf:"tool_timeout"`

	// RetryBackoff is the base backoff, doubled per attempt.
	RetryBackoff Duration `koanf:"retry_backoff"`
}

// MemoryConfig controls the six-dimension memory manager.
type MemoryConfig struct {
	// Capacity is the maximum records per (owner, dimension) bucket.
	Capacity int `koanf:"capacity"`

	// DefaultTTL applies to expirable dimensions when the writer passes none.
	DefaultTTL Duration `koanf:"default_ttl"`

	// Path is the chromem persistence directory. Empty means in-memory.
	Path string `koanf:"path"`

	// Compress enables gzip compression of persisted vectors.
	Compress bool `koanf:"compress"`
}

// EmbeddingsConfig selects and configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "hash"
	// (deterministic local provider, used in tests and offline mode).
	Provider string `koanf:"provider"`

	// BaseURL is the OpenAI-compatible embeddings endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the embedding model name.
	Model string `koanf:"model"`

	// APIKey authenticates against the endpoint.
	APIKey Secret `koanf:"api_key"`

	// VectorSize is the embedding dimensionality.
	VectorSize int `koanf:"vector_size"`

	// RequestsPerSecond rate-limits provider calls. Zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// LLMConfig configures the chat model behind the bridge.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible chat completions endpoint.
	BaseURL string `koanf:"base_url"`

	// Model is the chat model name.
	Model string `koanf:"model"`

	// APIKey authenticates against the endpoint.
	APIKey Secret `koanf:"api_key"`

	// Temperature for generation.
	Temperature float64 `koanf:"temperature"`
}

// PermissionConfig points at an optional policy override file.
type PermissionConfig struct {
	// PolicyPath is a YAML policy file. Empty uses the built-in policy.
	PolicyPath string `koanf:"policy_path"`
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: logging.level %q", ErrInvalidConfig, c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, c.Logging.Format)
	}

	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("%w: agent.max_rounds must be >= 1", ErrInvalidConfig)
	}
	if c.Agent.MaxRetries < 1 {
		return fmt.Errorf("%w: agent.max_retries must be >= 1", ErrInvalidConfig)
	}
	if c.Agent.Parallelism < 1 {
		return fmt.Errorf("%w: agent.parallelism must be >= 1", ErrInvalidConfig)
	}

	if c.Memory.Capacity < 1 {
		return fmt.Errorf("%w: memory.capacity must be >= 1", ErrInvalidConfig)
	}

	switch c.Embeddings.Provider {
	case "openai", "hash":
	default:
		return fmt.Errorf("%w: embeddings.provider %q", ErrInvalidConfig, c.Embeddings.Provider)
	}
	if c.Embeddings.Provider == "openai" && c.Embeddings.BaseURL == "" {
		return fmt.Errorf("%w: embeddings.base_url required for openai provider", ErrInvalidConfig)
	}
	if c.Embeddings.VectorSize < 1 {
		return fmt.Errorf("%w: embeddings.vector_size must be >= 1", ErrInvalidConfig)
	}

	return nil
}
