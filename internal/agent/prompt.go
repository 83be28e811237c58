package agent

import (
	"strings"

	"github.com/yyup/agentd/internal/memory"
)

// Role personas for the kindergarten platform. Unknown roles get the
// generic assistant persona with no data-access promises.
var rolePersonas = map[string]string{
	"admin": "You are the administration assistant for a kindergarten management platform. " +
		"You have full access to enrollment, staffing, scheduling, attendance and payment data.",
	"principal": "You are the principal's assistant for a kindergarten management platform. " +
		"You can review enrollment, classes, staffing, schedules, attendance and payment records.",
	"teacher": "You are a teaching assistant for a kindergarten management platform. " +
		"You can look up your students, classes and parents, and manage activities, " +
		"schedules, todos, notifications and attendance records. You cannot access payment data.",
	"parent": "You are a family assistant for a kindergarten management platform. " +
		"You can see your own children's basic profile, activities, schedules and notifications.",
}

const genericPersona = "You are an assistant for a kindergarten management platform. " +
	"You have no data access beyond what your tools permit."

const toolGuidance = "Use the provided tools to look up real data before answering; " +
	"never invent names, counts or dates. When a tool call fails, say what you could " +
	"not do instead of guessing. Answer in the language of the question, briefly and concretely."

// BuildSystemPrompt assembles the persona, tool guidance and recalled
// memories into one system message.
func BuildSystemPrompt(role string, memories []memory.Record) string {
	persona, ok := rolePersonas[role]
	if !ok {
		persona = genericPersona
	}

	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	b.WriteString(toolGuidance)

	if block := formatMemories(memories); block != "" {
		b.WriteString("\n\nWhat you remember about this user:\n")
		b.WriteString(block)
	}

	return b.String()
}

// formatMemories renders recalled records as a bullet list, most
// relevant first.
func formatMemories(memories []memory.Record) string {
	if len(memories) == 0 {
		return ""
	}
	var b strings.Builder
	for _, rec := range memories {
		b.WriteString("- [")
		b.WriteString(string(rec.Dimension))
		b.WriteString("] ")
		b.WriteString(rec.Content)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
