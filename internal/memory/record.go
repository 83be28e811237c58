// Package memory implements the six-dimension agent memory manager.
//
// Records live in per-(owner, dimension) buckets with a capacity cap and
// TTL-based expiry. Retrieval is vector similarity over a chromem-backed
// index, with a lexical fallback when no embedding provider is
// reachable. Retrieved records gain importance, so memories that keep
// proving useful survive eviction longest.
package memory

import (
	"errors"
	"fmt"
	"time"
)

// Dimension classifies what kind of memory a record is.
type Dimension string

const (
	// DimensionCore holds identity-level facts about the owner. Never expires.
	DimensionCore Dimension = "core"

	// DimensionEpisodic holds dated events and observations.
	DimensionEpisodic Dimension = "episodic"

	// DimensionSemantic holds general facts and relationships.
	DimensionSemantic Dimension = "semantic"

	// DimensionProcedural holds how-to knowledge and step sequences.
	DimensionProcedural Dimension = "procedural"

	// DimensionResource holds references to documents and artifacts.
	DimensionResource Dimension = "resource"

	// DimensionKnowledgeVault holds sensitive long-term facts. Never expires.
	DimensionKnowledgeVault Dimension = "knowledge_vault"
)

// Dimensions lists all dimensions in canonical order.
var Dimensions = []Dimension{
	DimensionCore,
	DimensionEpisodic,
	DimensionSemantic,
	DimensionProcedural,
	DimensionResource,
	DimensionKnowledgeVault,
}

// Errors for memory operations.
var (
	ErrInvalidDimension = errors.New("invalid memory dimension")
	ErrEmptyOwner       = errors.New("owner ID cannot be empty")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrEmptyQuery       = errors.New("query cannot be empty")
	ErrNotFound         = errors.New("memory record not found")
)

// ParseDimension validates a dimension string.
func ParseDimension(s string) (Dimension, error) {
	d := Dimension(s)
	for _, known := range Dimensions {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDimension, s)
}

// Expirable reports whether records in this dimension may carry a TTL.
// Core and knowledge vault memories are permanent.
func (d Dimension) Expirable() bool {
	return d != DimensionCore && d != DimensionKnowledgeVault
}

// Record is one memory entry.
type Record struct {
	// ID is the unique record identifier.
	ID string `json:"id"`

	// OwnerID scopes the record to one user or agent.
	OwnerID string `json:"owner_id"`

	// ConversationID ties the record to the conversation that produced
	// it. Empty for conversation-independent memories.
	ConversationID string `json:"conversation_id,omitempty"`

	// Dimension is the memory class.
	Dimension Dimension `json:"dimension"`

	// Content is the memory text.
	Content string `json:"content"`

	// Importance in [0, 1] orders eviction and breaks retrieval ties.
	Importance float64 `json:"importance"`

	// Metadata carries small string attributes (actor, source, ...).
	Metadata map[string]string `json:"metadata,omitempty"`

	// Embedding is the content vector. Empty when the provider was
	// unavailable at write time; re-embedding is attempted on retrieval.
	Embedding []float32 `json:"-"`

	// CreatedAt is the write time.
	CreatedAt time.Time `json:"created_at"`

	// LastAccessedAt updates on every retrieval hit.
	LastAccessedAt time.Time `json:"last_accessed_at"`

	// ExpiresAt is nil for permanent records.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the record is past its TTL at now.
func (r *Record) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// clone returns a deep copy so callers cannot mutate manager state.
func (r *Record) clone() Record {
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	if r.Embedding != nil {
		out.Embedding = append([]float32(nil), r.Embedding...)
	}
	if r.ExpiresAt != nil {
		t := *r.ExpiresAt
		out.ExpiresAt = &t
	}
	return out
}

// clampImportance bounds importance to [0, 1].
func clampImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
