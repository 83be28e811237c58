// Package embeddings generates vector embeddings for memory content.
//
// Two providers are available: an OpenAI-compatible remote provider built
// on langchaingo (works with OpenAI, TEI, Doubao, and any compatible
// endpoint) and a deterministic local hash provider for tests and
// offline operation.
package embeddings

import (
	"context"
	"errors"
	"fmt"

	"github.com/yyup/agentd/internal/config"
)

var (
	// ErrEmptyInput indicates empty or nil input texts.
	ErrEmptyInput = errors.New("empty or nil input texts")

	// ErrInvalidConfig indicates invalid provider configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnavailable indicates the provider could not produce embeddings.
	// Callers treat this as a soft failure and fall back to lexical search.
	ErrUnavailable = errors.New("embeddings unavailable")
)

// Provider generates vector embeddings from text.
type Provider interface {
	// EmbedDocuments generates embeddings for multiple texts.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery generates an embedding for a single query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int
}

// NewProvider builds the provider selected by config.
func NewProvider(cfg config.EmbeddingsConfig) (Provider, error) {
	switch cfg.Provider {
	case "hash":
		return NewHashProvider(cfg.VectorSize), nil
	case "openai":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}
