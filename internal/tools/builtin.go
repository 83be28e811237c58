package tools

import (
	"fmt"

	"github.com/yyup/agentd/internal/permission"
)

// BuiltinHandlers supplies the host-side implementations behind the
// builtin tool surface. The engine owns the definitions and gating; the
// embedding application owns the data access.
type BuiltinHandlers struct {
	// Query runs a validated read-only SQL statement.
	Query Handler

	// RenderComponent asks the client UI to render a named component.
	RenderComponent Handler

	// GenerateDocument produces a document artifact from a template.
	GenerateDocument Handler

	// AnalyzeEnrollment computes enrollment funnel statistics.
	AnalyzeEnrollment Handler

	// ManageSchedule creates or updates schedule entries.
	ManageSchedule Handler
}

// RegisterBuiltins registers the builtin tool surface. Handlers left nil
// are skipped so hosts can enable a subset.
func RegisterBuiltins(r *Registry, h BuiltinHandlers) error {
	defs := builtinDefinitions(h)
	for _, def := range defs {
		if def.Handler == nil {
			continue
		}
		if err := r.Register(def); err != nil {
			return fmt.Errorf("registering builtin %s: %w", def.Name, err)
		}
	}
	return nil
}

func builtinDefinitions(h BuiltinHandlers) []Definition {
	return []Definition{
		{
			Name:        "any_query",
			Category:    CategoryQuery,
			Description: "Run a read-only SQL SELECT against the school database. Every referenced table must be visible to the current role.",
			Parameters: ObjectSchema(map[string]*Schema{
				"sql":    StringProperty("A single SELECT statement. No mutations, comments, or multiple statements."),
				"reason": StringProperty("Short explanation of why this data is needed."),
			}, "sql"),
			SQLArgument: "sql",
			Retryable:   true,
			Handler:     h.Query,
		},
		{
			Name:        "render_component",
			Category:    CategoryAction,
			Description: "Render a UI component in the client with the given props.",
			Parameters: ObjectSchema(map[string]*Schema{
				"component": EnumProperty("Component to render.", "student_card", "class_roster", "schedule_board", "enrollment_chart", "notification_banner"),
				"props":     {Type: "object", Description: "Component props as a JSON object."},
			}, "component"),
			Resource:  "notifications",
			Op:        permission.OpWrite,
			Retryable: false,
			Handler:   h.RenderComponent,
		},
		{
			Name:        "generate_document",
			Category:    CategoryGeneration,
			Description: "Generate a document (report, letter, plan) from a template and context data.",
			Parameters: ObjectSchema(map[string]*Schema{
				"template": EnumProperty("Document template.", "weekly_report", "parent_letter", "activity_plan", "enrollment_summary"),
				"title":    StringProperty("Document title."),
				"context":  StringProperty("Free-form context the template is filled from."),
			}, "template", "title"),
			Retryable: true,
			Handler:   h.GenerateDocument,
		},
		{
			Name:        "analyze_enrollment",
			Category:    CategoryAnalysis,
			Description: "Analyze enrollment applications: counts by status, conversion, and trend over a date range.",
			Parameters: ObjectSchema(map[string]*Schema{
				"from":     StringProperty("Start date, YYYY-MM-DD."),
				"to":       StringProperty("End date, YYYY-MM-DD."),
				"group_by": EnumProperty("Aggregation bucket.", "day", "week", "month"),
			}, "from", "to"),
			Retryable: true,
			Handler:   h.AnalyzeEnrollment,
		},
		{
			Name:        "manage_schedule",
			Category:    CategoryManagement,
			Description: "Create, update, or cancel a schedule entry for a class.",
			Parameters: ObjectSchema(map[string]*Schema{
				"action":   EnumProperty("What to do with the entry.", "create", "update", "cancel"),
				"class_id": StringProperty("Class identifier."),
				"entry_id": StringProperty("Existing entry identifier, required for update and cancel."),
				"starts":   StringProperty("Start time, RFC 3339."),
				"ends":     StringProperty("End time, RFC 3339."),
				"title":    StringProperty("Entry title."),
			}, "action", "class_id"),
			Resource:  "schedules",
			Op:        permission.OpWrite,
			Retryable: false,
			Handler:   h.ManageSchedule,
		},
	}
}
