package utils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// JSONSchemaValidator validates documents against named, compiled JSON schemas
type JSONSchemaValidator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

// NewJSONSchemaValidator creates a new JSONSchemaValidator
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// LoadSchema compiles and registers a JSON schema under name
func (v *JSONSchemaValidator) LoadSchema(name, schema string) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	v.mu.Lock()
	v.schemas[name] = compiled
	v.mu.Unlock()
	return nil
}

// Validate checks a raw JSON document against a named schema
func (v *JSONSchemaValidator) Validate(name string, document []byte) error {
	v.mu.RLock()
	schema, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return fmt.Errorf("schema %s not found", name)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			messages = append(messages, fmt.Sprintf("%s: %s", resultErr.Field(), resultErr.Description()))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
	}

	return nil
}

// JSONSchemaBuilder helps build JSON schemas programmatically
type JSONSchemaBuilder struct {
	schema     map[string]interface{}
	properties map[string]interface{}
	required   []string
}

// NewJSONSchemaBuilder creates a builder for an object schema.
// Unknown properties are allowed since firmware revisions add fields.
func NewJSONSchemaBuilder() *JSONSchemaBuilder {
	return &JSONSchemaBuilder{
		schema: map[string]interface{}{
			"$schema": "http://json-schema.org/draft-07/schema#",
			"type":    "object",
		},
		properties: map[string]interface{}{},
	}
}

// SetTitle sets the schema title
func (b *JSONSchemaBuilder) SetTitle(title string) *JSONSchemaBuilder {
	b.schema["title"] = title
	return b
}

// AddProperty adds a property of the given JSON type
func (b *JSONSchemaBuilder) AddProperty(name, propertyType string, required bool) *JSONSchemaBuilder {
	b.properties[name] = map[string]interface{}{"type": propertyType}
	if required {
		b.required = append(b.required, name)
	}
	return b
}

// AddStringProperty adds a string property, optionally restricted to values
func (b *JSONSchemaBuilder) AddStringProperty(name string, required bool, values ...string) *JSONSchemaBuilder {
	prop := map[string]interface{}{"type": "string"}
	if len(values) > 0 {
		prop["enum"] = values
	}
	b.properties[name] = prop
	if required {
		b.required = append(b.required, name)
	}
	return b
}

// AddNumberProperty adds a number property with an optional lower bound
func (b *JSONSchemaBuilder) AddNumberProperty(name string, required bool, minimum *float64) *JSONSchemaBuilder {
	prop := map[string]interface{}{"type": "number"}
	if minimum != nil {
		prop["minimum"] = *minimum
	}
	b.properties[name] = prop
	if required {
		b.required = append(b.required, name)
	}
	return b
}

// AddBooleanProperty adds a boolean property to the schema
func (b *JSONSchemaBuilder) AddBooleanProperty(name string, required bool) *JSONSchemaBuilder {
	return b.AddProperty(name, "boolean", required)
}

// Build returns the JSON schema as a string
func (b *JSONSchemaBuilder) Build() (string, error) {
	b.schema["properties"] = b.properties
	if len(b.required) > 0 {
		b.schema["required"] = b.required
	}

	jsonBytes, err := json.MarshalIndent(b.schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}

	return string(jsonBytes), nil
}
