package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yyup/agentd/internal/memory"
)

func TestBuildSystemPrompt_Personas(t *testing.T) {
	tests := []struct {
		role string
		want string
	}{
		{"admin", "administration assistant"},
		{"principal", "principal's assistant"},
		{"teacher", "teaching assistant"},
		{"parent", "family assistant"},
		{"intruder", "no data access"},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			got := BuildSystemPrompt(tt.role, nil)
			assert.Contains(t, got, tt.want)
			assert.Contains(t, got, "never invent")
			assert.NotContains(t, got, "What you remember")
		})
	}
}

func TestBuildSystemPrompt_TeacherDisclaimsPayments(t *testing.T) {
	got := BuildSystemPrompt("teacher", nil)
	assert.Contains(t, got, "cannot access payment data")
}

func TestBuildSystemPrompt_MemoryBlock(t *testing.T) {
	memories := []memory.Record{
		{Dimension: memory.DimensionSemantic, Content: "Xiaoming is allergic to peanuts"},
		{Dimension: memory.DimensionEpisodic, Content: "asked about pickup times yesterday"},
	}

	got := BuildSystemPrompt("parent", memories)
	assert.Contains(t, got, "What you remember about this user:")
	assert.Contains(t, got, "- [semantic] Xiaoming is allergic to peanuts")
	assert.Contains(t, got, "- [episodic] asked about pickup times yesterday")
}
