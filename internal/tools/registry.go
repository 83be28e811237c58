// Package tools manages the tool registry the agent dispatches against.
//
// A tool is a named, schema-validated capability with a Go handler.
// Registration is idempotent: re-registering a name replaces the previous
// definition, which lets embedding hosts override builtins.
package tools

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/yyup/agentd/internal/permission"
	"go.uber.org/zap"
)

// Errors for registry operations.
var (
	ErrUnknownTool       = errors.New("unknown tool")
	ErrInvalidDefinition = errors.New("invalid tool definition")
)

// namePattern validates tool names (snake_case identifiers).
var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Category classifies what a tool does, which decides how it is gated.
type Category string

const (
	// CategoryQuery reads data. Gated for read access.
	CategoryQuery Category = "query"

	// CategoryAction mutates data or drives the UI. Gated for write access.
	CategoryAction Category = "action"

	// CategoryGeneration produces artifacts (documents, summaries).
	CategoryGeneration Category = "generation"

	// CategoryAnalysis computes derived insights over readable data.
	CategoryAnalysis Category = "analysis"

	// CategoryManagement administers schedules, todos, notifications.
	CategoryManagement Category = "management"
)

var categories = map[Category]struct{}{
	CategoryQuery:      {},
	CategoryAction:     {},
	CategoryGeneration: {},
	CategoryAnalysis:   {},
	CategoryManagement: {},
}

// Gated reports whether calls in this category must pass the permission
// gate before the handler runs.
func (c Category) Gated() bool {
	switch c {
	case CategoryQuery, CategoryAction, CategoryManagement:
		return true
	}
	return false
}

// Handler executes a tool call with schema-validated arguments.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Definition describes one registered tool.
type Definition struct {
	// Name is the unique snake_case identifier the model calls.
	Name string

	// Category decides gating and retry treatment.
	Category Category

	// Description is surfaced to the model verbatim.
	Description string

	// Parameters is the argument schema. Required.
	Parameters *Schema

	// Resource names the table this tool touches. Required for gated
	// categories unless SQLArgument is set.
	Resource string

	// Op is the operation class checked against Resource.
	Op permission.Op

	// SQLArgument names the string argument carrying a free-form SQL
	// statement. When set, the statement validator gates the call
	// instead of a static Resource check.
	SQLArgument string

	// Retryable marks handlers safe to re-invoke after failure.
	Retryable bool

	// Handler runs the tool. Required.
	Handler Handler
}

// Validate checks the definition is registrable.
func (d *Definition) Validate() error {
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("%w: name %q must be snake_case", ErrInvalidDefinition, d.Name)
	}
	if _, ok := categories[d.Category]; !ok {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidDefinition, d.Category)
	}
	if d.Description == "" {
		return fmt.Errorf("%w: description required", ErrInvalidDefinition)
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: handler required", ErrInvalidDefinition)
	}
	if err := d.Parameters.Validate(); err != nil {
		return err
	}
	if d.Parameters.Type != "object" {
		return fmt.Errorf("%w: parameters must be an object schema", ErrInvalidDefinition)
	}
	if d.Category.Gated() && d.Resource == "" && d.SQLArgument == "" {
		return fmt.Errorf("%w: gated category %q requires resource or sql_argument", ErrInvalidDefinition, d.Category)
	}
	if d.SQLArgument != "" {
		prop, ok := d.Parameters.Properties[d.SQLArgument]
		if !ok || prop.Type != "string" {
			return fmt.Errorf("%w: sql_argument %q must be a string parameter", ErrInvalidDefinition, d.SQLArgument)
		}
	}
	if d.Resource != "" && d.Op == "" {
		return fmt.Errorf("%w: resource %q requires op", ErrInvalidDefinition, d.Resource)
	}
	return nil
}

// Registry holds tool definitions. Safe for concurrent use; reads take a
// shared lock, registration takes an exclusive one.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]Definition
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tools:  make(map[string]Definition),
		logger: logger,
	}
}

// Register validates and stores a definition. Registering an existing
// name replaces it (last write wins).
func (r *Registry) Register(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[def.Name]; exists {
		r.logger.Debug("replacing tool definition", zap.String("tool", def.Name))
	}
	r.tools[def.Name] = def
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.tools[name]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return def, nil
}

// List returns a snapshot of definitions sorted by name. An empty
// category returns everything.
func (r *Registry) List(category Category) []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, def := range r.tools {
		if category != "" && def.Category != category {
			continue
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}
