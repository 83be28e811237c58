package memory

const (
	// DefaultImportance is the neutral score for unassessed writes.
	DefaultImportance = 0.5

	// RetrievalBoost is added to a record's importance on every
	// retrieval hit, capped at 1.0.
	RetrievalBoost = 0.05

	longContentThreshold = 500
)

// AssessEpisodicImportance scores an episodic event.
//
// Failures matter most: they are what the agent must not repeat.
// Confirmed outcomes beat unconfirmed ones, and long observations carry
// more context than one-liners.
func AssessEpisodicImportance(content string, failed, confirmed bool) float64 {
	score := DefaultImportance
	if failed {
		score += 0.3
	} else if confirmed {
		score += 0.2
	}
	if len(content) > longContentThreshold {
		score += 0.1
	}
	return clampImportance(score)
}
