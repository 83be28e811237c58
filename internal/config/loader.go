// Package config provides configuration loading for agentd.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// ErrInvalidConfig indicates a configuration value that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Load loads configuration from an optional YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (AGENT_MAX_ROUNDS, EMBEDDINGS_BASE_URL, ...)
//  2. YAML config file
//  3. Hardcoded defaults
//
// If configPath is empty, or points at a file that does not exist, only
// environment variables and defaults apply.
//
// Environment variables use underscore separator and are uppercased. The
// transformer splits on the first underscore only (section.field_name):
//
//	AGENT_MAX_ROUNDS    -> agent.max_rounds
//	MEMORY_CAPACITY     -> memory.capacity
//	EMBEDDINGS_BASE_URL -> embeddings.base_url
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			f, err := os.Open(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open config file: %w", err)
			}
			defer f.Close()

			info, err := f.Stat()
			if err != nil {
				return nil, fmt.Errorf("failed to stat config file: %w", err)
			}
			if info.Size() > maxConfigFileSize {
				return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
			}

			content, err := io.ReadAll(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
			}
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadBytes loads configuration from raw YAML bytes plus defaults. Used by
// tests and embedding hosts that manage files themselves.
func LoadBytes(content []byte) (*Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envTransform maps environment variable names to config keys.
// Splits on the first underscore only: section, then field_name.
func envTransform(s string) string {
	lower := strings.ToLower(s)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Agent loop defaults
	if cfg.Agent.MaxRounds == 0 {
		cfg.Agent.MaxRounds = 12
	}
	if cfg.Agent.MaxRetries == 0 {
		cfg.Agent.MaxRetries = 3
	}
	if cfg.Agent.Parallelism == 0 {
		cfg.Agent.Parallelism = 4
	}
	if cfg.Agent.TurnTimeout == 0 {
		cfg.Agent.TurnTimeout = Duration(2 * time.Minute)
	}
	if cfg.Agent.ToolTimeout == 0 {
		cfg.Agent.ToolTimeout = Duration(30 * time.Second)
	}
	if cfg.Agent.RetryBackoff == 0 {
		cfg.Agent.RetryBackoff = Duration(500 * time.Millisecond)
	}

	// Memory defaults
	if cfg.Memory.Capacity == 0 {
		cfg.Memory.Capacity = 512
	}
	if cfg.Memory.DefaultTTL == 0 {
		cfg.Memory.DefaultTTL = Duration(30 * 24 * time.Hour)
	}

	// Embeddings defaults (hash provider works offline, no external deps)
	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "hash"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
	if cfg.Embeddings.VectorSize == 0 {
		cfg.Embeddings.VectorSize = 384
	}

	// LLM defaults
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
	if cfg.LLM.Temperature == 0 {
		cfg.LLM.Temperature = 0.2
	}
}
