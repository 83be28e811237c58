package tools

import (
	"errors"
	"fmt"
)

// ErrInvalidSchema indicates a malformed parameter schema at registration.
var ErrInvalidSchema = errors.New("invalid schema")

// ErrInvalidArguments indicates arguments that fail schema validation.
var ErrInvalidArguments = errors.New("invalid arguments")

// Schema is the subset of JSON Schema used for tool parameters:
// an object with typed properties, enums, and required fields.
type Schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
	Enum        []string           `json:"enum,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

// Schema constructors keep tool definitions compact.

// ObjectSchema creates an object schema with the given properties.
func ObjectSchema(properties map[string]*Schema, required ...string) *Schema {
	return &Schema{Type: "object", Properties: properties, Required: required}
}

// StringProperty creates a string property schema.
func StringProperty(description string) *Schema {
	return &Schema{Type: "string", Description: description}
}

// EnumProperty creates a string property restricted to the given values.
func EnumProperty(description string, values ...string) *Schema {
	return &Schema{Type: "string", Description: description, Enum: values}
}

// NumberProperty creates a number property schema.
func NumberProperty(description string) *Schema {
	return &Schema{Type: "number", Description: description}
}

// IntegerProperty creates an integer property schema.
func IntegerProperty(description string) *Schema {
	return &Schema{Type: "integer", Description: description}
}

// BooleanProperty creates a boolean property schema.
func BooleanProperty(description string) *Schema {
	return &Schema{Type: "boolean", Description: description}
}

// ArrayProperty creates an array property schema with the given item type.
func ArrayProperty(description string, items *Schema) *Schema {
	return &Schema{Type: "array", Description: description, Items: items}
}

var schemaTypes = map[string]struct{}{
	"object":  {},
	"string":  {},
	"number":  {},
	"integer": {},
	"boolean": {},
	"array":   {},
}

// Validate checks the schema is well formed. Called at registration so
// malformed tools are rejected before they can be dispatched.
func (s *Schema) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil schema", ErrInvalidSchema)
	}
	if _, ok := schemaTypes[s.Type]; !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSchema, s.Type)
	}
	if s.Type == "array" {
		if s.Items == nil {
			return fmt.Errorf("%w: array without items", ErrInvalidSchema)
		}
		if err := s.Items.Validate(); err != nil {
			return err
		}
	}
	if len(s.Enum) > 0 && s.Type != "string" {
		return fmt.Errorf("%w: enum on non-string type %q", ErrInvalidSchema, s.Type)
	}
	for name, prop := range s.Properties {
		if name == "" {
			return fmt.Errorf("%w: empty property name", ErrInvalidSchema)
		}
		if err := prop.Validate(); err != nil {
			return fmt.Errorf("property %q: %w", name, err)
		}
	}
	for _, req := range s.Required {
		if _, ok := s.Properties[req]; !ok {
			return fmt.Errorf("%w: required field %q not in properties", ErrInvalidSchema, req)
		}
	}
	return nil
}

// ValidateArgs checks decoded arguments against the schema.
func (s *Schema) ValidateArgs(args map[string]any) error {
	if s.Type != "object" {
		return fmt.Errorf("%w: top-level schema must be an object", ErrInvalidSchema)
	}

	for _, req := range s.Required {
		if _, ok := args[req]; !ok {
			return fmt.Errorf("%w: missing required field %q", ErrInvalidArguments, req)
		}
	}

	// An object without declared properties is open: any fields pass.
	if len(s.Properties) == 0 {
		return nil
	}

	for name, value := range args {
		prop, ok := s.Properties[name]
		if !ok {
			return fmt.Errorf("%w: unexpected field %q", ErrInvalidArguments, name)
		}
		if err := prop.validateValue(name, value); err != nil {
			return err
		}
	}

	return nil
}

func (s *Schema) validateValue(name string, value any) error {
	switch s.Type {
	case "string":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: field %q must be a string", ErrInvalidArguments, name)
		}
		if len(s.Enum) > 0 {
			for _, allowed := range s.Enum {
				if str == allowed {
					return nil
				}
			}
			return fmt.Errorf("%w: field %q value %q not in enum", ErrInvalidArguments, name, str)
		}
	case "number":
		// encoding/json decodes all numbers to float64
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("%w: field %q must be a number", ErrInvalidArguments, name)
		}
	case "integer":
		f, ok := value.(float64)
		if !ok || f != float64(int64(f)) {
			return fmt.Errorf("%w: field %q must be an integer", ErrInvalidArguments, name)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: field %q must be a boolean", ErrInvalidArguments, name)
		}
	case "array":
		items, ok := value.([]any)
		if !ok {
			return fmt.Errorf("%w: field %q must be an array", ErrInvalidArguments, name)
		}
		for i, item := range items {
			if err := s.Items.validateValue(fmt.Sprintf("%s[%d]", name, i), item); err != nil {
				return err
			}
		}
	case "object":
		nested, ok := value.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: field %q must be an object", ErrInvalidArguments, name)
		}
		if err := s.ValidateArgs(nested); err != nil {
			return err
		}
	}
	return nil
}
