package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Convenience writers for the common dimension shapes.

// WriteEpisodicEvent records a dated event with its actor. Importance is
// assessed from the outcome flags.
func (m *Manager) WriteEpisodicEvent(ctx context.Context, ownerID, conversationID, actor, content string, failed, confirmed bool) (Record, error) {
	return m.Write(ctx, WriteInput{
		OwnerID:        ownerID,
		ConversationID: conversationID,
		Dimension:      DimensionEpisodic,
		Content:        content,
		Importance:     AssessEpisodicImportance(content, failed, confirmed),
		Metadata:       map[string]string{"actor": actor},
	})
}

// WriteProcedure records a named step sequence.
func (m *Manager) WriteProcedure(ctx context.Context, ownerID, name string, steps []string) (Record, error) {
	if len(steps) == 0 {
		return Record{}, fmt.Errorf("%w: procedure needs steps", ErrEmptyContent)
	}
	return m.Write(ctx, WriteInput{
		OwnerID:    ownerID,
		Dimension:  DimensionProcedural,
		Content:    name + ": " + strings.Join(steps, " -> "),
		Importance: DefaultImportance,
		Metadata: map[string]string{
			"procedure": name,
			"steps":     fmt.Sprintf("%d", len(steps)),
		},
	})
}

// WriteResource records a pointer to an external document or artifact.
func (m *Manager) WriteResource(ctx context.Context, ownerID, description, uri string, ttl time.Duration) (Record, error) {
	return m.Write(ctx, WriteInput{
		OwnerID:    ownerID,
		Dimension:  DimensionResource,
		Content:    description,
		Importance: DefaultImportance,
		TTL:        ttl,
		Metadata:   map[string]string{"uri": uri},
	})
}
