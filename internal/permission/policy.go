// Package permission enforces role-based access to data resources.
//
// A Gate is built once from a static Policy and is immutable afterwards.
// Every decision fails closed: unknown roles, unknown tables, and
// statements that cannot be parsed are all denied.
package permission

import (
	"errors"
	"fmt"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Op is an operation class on a resource.
type Op string

const (
	// OpRead covers SELECT-style access.
	OpRead Op = "read"

	// OpWrite covers mutations performed through action tools.
	OpWrite Op = "write"
)

// ErrInvalidPolicy indicates a policy that fails validation.
var ErrInvalidPolicy = errors.New("invalid policy")

// Rule grants a role access to one table.
//
// An empty Ops slice grants read only. An empty Columns slice grants all
// columns; a non-empty slice restricts SELECTs to exactly those columns.
type Rule struct {
	Table   string   `koanf:"table"`
	Columns []string `koanf:"columns"`
	Ops     []Op     `koanf:"ops"`
}

// Policy maps role names to their resource rules.
//
// The table name "*" grants access to every table.
type Policy struct {
	Roles map[string][]Rule `koanf:"roles"`
}

// Validate checks policy invariants.
func (p *Policy) Validate() error {
	if len(p.Roles) == 0 {
		return fmt.Errorf("%w: no roles defined", ErrInvalidPolicy)
	}
	for role, rules := range p.Roles {
		if role == "" {
			return fmt.Errorf("%w: empty role name", ErrInvalidPolicy)
		}
		if len(rules) == 0 {
			return fmt.Errorf("%w: role %q has no rules", ErrInvalidPolicy, role)
		}
		for _, rule := range rules {
			if rule.Table == "" {
				return fmt.Errorf("%w: role %q has a rule without a table", ErrInvalidPolicy, role)
			}
			for _, op := range rule.Ops {
				if op != OpRead && op != OpWrite {
					return fmt.Errorf("%w: role %q table %q has unknown op %q", ErrInvalidPolicy, role, rule.Table, op)
				}
			}
		}
	}
	return nil
}

// LoadPolicy parses a YAML policy document.
func LoadPolicy(content []byte) (*Policy, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}

	var p Policy
	if err := k.Unmarshal("", &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// DefaultPolicy returns the built-in kindergarten role policy.
//
// Administrators see everything. Principals manage the full operational
// surface including payments. Teachers see the classroom surface only,
// deliberately excluding payment and user records. Parents get a narrow
// read view with student columns restricted to non-sensitive fields.
func DefaultPolicy() *Policy {
	readWrite := []Op{OpRead, OpWrite}

	return &Policy{
		Roles: map[string][]Rule{
			"admin": {
				{Table: "*", Ops: readWrite},
			},
			"principal": {
				{Table: "students", Ops: readWrite},
				{Table: "teachers", Ops: readWrite},
				{Table: "parents", Ops: readWrite},
				{Table: "classes", Ops: readWrite},
				{Table: "activities", Ops: readWrite},
				{Table: "schedules", Ops: readWrite},
				{Table: "attendance_records", Ops: readWrite},
				{Table: "enrollment_applications", Ops: readWrite},
				{Table: "payment_records", Ops: readWrite},
				{Table: "notifications", Ops: readWrite},
				{Table: "todos", Ops: readWrite},
				{Table: "reports"},
			},
			"teacher": {
				{Table: "students"},
				{Table: "classes"},
				{Table: "activities", Ops: readWrite},
				{Table: "schedules", Ops: readWrite},
				{Table: "todos", Ops: readWrite},
				{Table: "notifications", Ops: readWrite},
				{Table: "parents"},
				{Table: "attendance_records", Ops: readWrite},
			},
			"parent": {
				{Table: "students", Columns: []string{"id", "name", "class_id", "avatar_url"}},
				{Table: "activities"},
				{Table: "schedules"},
				{Table: "notifications"},
			},
		},
	}
}
