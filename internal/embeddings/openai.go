package embeddings

import (
	"context"
	"fmt"
	"time"

	lcembeddings "github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/yyup/agentd/internal/config"
)

// OpenAIProvider generates embeddings through any OpenAI-compatible
// endpoint via langchaingo. Calls are rate limited when configured.
type OpenAIProvider struct {
	embedder   *lcembeddings.EmbedderImpl
	limiter    *rate.Limiter
	metrics    *Metrics
	dimensions int
	model      string
}

// NewOpenAIProvider creates a provider for the configured endpoint.
func NewOpenAIProvider(cfg config.EmbeddingsConfig) (*OpenAIProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}

	// langchaingo requires a token; TEI-style servers ignore it.
	apiKey := cfg.APIKey.Value()
	if apiKey == "" {
		apiKey = "placeholder"
	}

	llm, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithEmbeddingModel(cfg.Model),
		openai.WithToken(apiKey),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI client: %w", err)
	}

	embedder, err := lcembeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAIProvider{
		embedder:   embedder,
		limiter:    limiter,
		metrics:    NewMetrics(nil),
		dimensions: cfg.VectorSize,
		model:      cfg.Model,
	}, nil
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *OpenAIProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vectors, err := p.embedder.EmbedDocuments(ctx, texts)
	p.metrics.RecordGeneration(ctx, "openai", "batch_embed", time.Since(start), len(texts), err)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding documents: %v", ErrUnavailable, err)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *OpenAIProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := p.wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	vector, err := p.embedder.EmbedQuery(ctx, text)
	p.metrics.RecordGeneration(ctx, "openai", "embed", time.Since(start), 1, err)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %v", ErrUnavailable, err)
	}
	return vector, nil
}

// Dimensions returns the configured embedding dimensionality.
func (p *OpenAIProvider) Dimensions() int {
	return p.dimensions
}

func (p *OpenAIProvider) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}
	return nil
}
