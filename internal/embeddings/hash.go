package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashProvider produces deterministic pseudo-embeddings without a model.
//
// Each token is hashed to a fixed pseudo-random unit vector and the text
// embedding is the normalized sum of its token vectors. Texts sharing
// tokens therefore have positive cosine similarity while unrelated texts
// sit near zero. It has no semantic understanding and exists for tests
// and offline operation.
type HashProvider struct {
	dimensions int
}

// NewHashProvider creates a hash provider with the given dimensionality.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashProvider{dimensions: dimensions}
}

// EmbedDocuments generates embeddings for multiple texts.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		vectors[i] = p.embed(text)
	}
	return vectors, nil
}

// EmbedQuery generates an embedding for a single query.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return p.embed(text), nil
}

// Dimensions returns the embedding dimensionality.
func (p *HashProvider) Dimensions() int {
	return p.dimensions
}

func (p *HashProvider) embed(text string) []float32 {
	vector := make([]float32, p.dimensions)

	tokens := tokenize(text)
	if len(tokens) == 0 {
		tokens = []string{text}
	}
	for _, token := range tokens {
		p.addTokenVector(vector, token)
	}

	normalize(vector)
	return vector
}

// addTokenVector accumulates the token's pseudo-random vector, seeding a
// linear congruential generator from the FNV-1a hash of the token.
func (p *HashProvider) addTokenVector(vector []float32, token string) {
	h := fnv.New64a()
	h.Write([]byte(token))
	seed := h.Sum64()

	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Map the top bits to [-1, 1) so token vectors are zero mean
		// and disjoint token sets land near zero cosine.
		vector[i] += float32(float64(int64(seed>>11))/float64(1<<52) - 1)
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func normalize(vector []float32) {
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
}
