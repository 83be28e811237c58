package vectorstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// ChromemConfig configures the embedded chromem-go store.
type ChromemConfig struct {
	// Path is the persistence directory. Empty runs fully in-memory.
	Path string

	// Compress enables gzip compression of persisted vectors.
	Compress bool
}

// ApplyDefaults fills zero values. In-memory operation needs nothing.
func (c *ChromemConfig) ApplyDefaults() {}

// Validate checks the configuration.
func (c *ChromemConfig) Validate() error {
	if c.Path != "" && strings.ContainsRune(c.Path, '\x00') {
		return fmt.Errorf("%w: path contains NUL", ErrInvalidConfig)
	}
	return nil
}

// ChromemStore is an embedded vector store backed by chromem-go.
//
// Collections are created lazily on first Add. All embeddings are
// precomputed by the caller; chromem's own embedding hook is never
// exercised and exists only because the API requires one.
type ChromemStore struct {
	db          *chromem.DB
	logger      *zap.Logger
	mu          sync.Mutex
	collections map[string]*chromem.Collection
}

// NewChromemStore creates a store, persistent when config.Path is set.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path := expandPath(config.Path)
		if err := os.MkdirAll(path, 0700); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("opening persistent store: %w", err)
		}
	}

	return &ChromemStore{
		db:          db,
		logger:      logger,
		collections: make(map[string]*chromem.Collection),
	}, nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// rejectEmbedding is installed as the collection embedding hook. Every
// document and query carries a precomputed vector, so a call into this
// hook means a caller broke that contract.
func rejectEmbedding(ctx context.Context, text string) ([]float32, error) {
	return nil, fmt.Errorf("%w: no embedding provided", ErrInvalidVector)
}

func (s *ChromemStore) collection(name string) (*chromem.Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		return c, nil
	}
	c, err := s.db.GetOrCreateCollection(name, nil, rejectEmbedding)
	if err != nil {
		return nil, fmt.Errorf("creating collection %s: %w", name, err)
	}
	s.collections[name] = c
	return c, nil
}

// existingCollection returns the collection or nil when absent.
func (s *ChromemStore) existingCollection(name string) *chromem.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[name]; ok {
		return c
	}
	if c := s.db.GetCollection(name, rejectEmbedding); c != nil {
		s.collections[name] = c
		return c
	}
	return nil
}

// Add upserts documents into the collection.
func (s *ChromemStore) Add(ctx context.Context, collection string, docs []Document) error {
	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	for _, doc := range docs {
		if doc.ID == "" {
			return fmt.Errorf("%w: document without ID", ErrEmptyDocuments)
		}
		if len(doc.Embedding) == 0 {
			return fmt.Errorf("%w: document %s has no embedding", ErrInvalidVector, doc.ID)
		}
	}

	c, err := s.collection(collection)
	if err != nil {
		return err
	}

	chromemDocs := make([]chromem.Document, len(docs))
	for i, doc := range docs {
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Embedding: doc.Embedding,
			Metadata:  doc.Metadata,
		}
	}

	if err := c.AddDocuments(ctx, chromemDocs, 1); err != nil {
		return fmt.Errorf("adding documents: %w", err)
	}

	s.logger.Debug("documents added",
		zap.String("collection", collection),
		zap.Int("count", len(docs)))
	return nil
}

// Search returns up to k nearest documents by cosine similarity.
func (s *ChromemStore) Search(ctx context.Context, collection string, query []float32, k int, where map[string]string) ([]SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", ErrInvalidVector)
	}
	if k <= 0 {
		return []SearchResult{}, nil
	}

	c := s.existingCollection(collection)
	if c == nil {
		return []SearchResult{}, nil
	}

	// chromem rejects nResults beyond the collection size, and with a
	// metadata filter beyond the filtered size, which is unknowable up
	// front. Clamp to the collection count, then walk k down on the
	// too-few-documents error.
	count := c.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	var results []chromem.Result
	for ; k >= 1; k-- {
		var err error
		results, err = c.QueryEmbedding(ctx, query, k, where, nil)
		if err == nil {
			break
		}
		if isTooFewDocsError(err) {
			if k == 1 {
				return []SearchResult{}, nil
			}
			continue
		}
		return nil, fmt.Errorf("querying collection %s: %w", collection, err)
	}

	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{ID: r.ID, Similarity: r.Similarity}
	}
	return out, nil
}

// isTooFewDocsError matches chromem's nResults-exceeds-documents error.
func isTooFewDocsError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}

// Delete removes documents by ID.
func (s *ChromemStore) Delete(ctx context.Context, collection string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	c := s.existingCollection(collection)
	if c == nil {
		return nil
	}

	if err := c.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("deleting from collection %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of documents in the collection.
func (s *ChromemStore) Count(ctx context.Context, collection string) (int, error) {
	c := s.existingCollection(collection)
	if c == nil {
		return 0, nil
	}
	return c.Count(), nil
}

// Close releases resources. chromem has no open handles beyond the
// in-process maps, so this only drops the collection cache.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*chromem.Collection)
	return nil
}
