// Package vectorstore defines the vector index behind memory retrieval.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrInvalidVector indicates a missing or wrongly sized embedding.
	ErrInvalidVector = errors.New("invalid embedding vector")
)

// Document is one embedded record in a collection.
type Document struct {
	// ID is the unique identifier, shared with the owning memory record.
	ID string

	// Content is the raw text the embedding was computed from.
	Content string

	// Embedding is the precomputed vector. Required.
	Embedding []float32

	// Metadata carries string filters (dimension, owner).
	Metadata map[string]string
}

// SearchResult is one similarity hit.
type SearchResult struct {
	// ID of the matched document.
	ID string

	// Similarity is cosine similarity in [-1, 1], higher is closer.
	Similarity float32
}

// Store indexes embedded documents per collection and answers
// nearest-neighbor queries. Implementations must be safe for concurrent
// use.
type Store interface {
	// Add upserts documents into the collection, creating it on demand.
	Add(ctx context.Context, collection string, docs []Document) error

	// Search returns up to k documents closest to the query vector,
	// ordered by similarity descending. A nil where matches everything;
	// otherwise all metadata pairs must match. Returns an empty slice
	// when the collection does not exist or holds no documents.
	Search(ctx context.Context, collection string, query []float32, k int, where map[string]string) ([]SearchResult, error)

	// Delete removes documents by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, collection string, ids ...string) error

	// Count returns the number of documents in the collection, zero if
	// the collection does not exist.
	Count(ctx context.Context, collection string) (int, error)

	// Close releases resources.
	Close() error
}
