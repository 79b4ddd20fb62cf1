package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"

	"devspace/internal/domain"
)

// SchemaValidatingTool wraps a Tool with JSON Schema validation.
// On Execute, it validates params against the compiled schema before delegating.
type SchemaValidatingTool struct {
	inner  domain.Tool
	schema *jsonschema.Schema
}

// WithSchemaValidation wraps a tool so that Execute validates params against
// the tool's JSON Schema before forwarding to the inner tool. A tool without
// a schema is returned unchanged. Returns error if the schema fails to compile.
func WithSchemaValidation(t domain.Tool) (domain.Tool, error) {
	raw := t.Schema().Parameters
	if len(raw) == 0 || string(raw) == "null" {
		return t, nil
	}

	compiled, err := jsonschema.NewCompiler().Compile([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %q: %w", t.Name(), err)
	}
	return &SchemaValidatingTool{inner: t, schema: compiled}, nil
}

func (s *SchemaValidatingTool) Name() string              { return s.inner.Name() }
func (s *SchemaValidatingTool) Description() string       { return s.inner.Description() }
func (s *SchemaValidatingTool) Schema() domain.ToolSchema { return s.inner.Schema() }

// Execute rejects params that do not match the schema with ErrInvalidInput.
func (s *SchemaValidatingTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if len(bytes.TrimSpace(params)) == 0 {
		params = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(params, &v); err != nil {
		return nil, invalid("%s: invalid JSON: %v", s.Name(), err)
	}

	result := s.schema.Validate(v)
	if !result.IsValid() {
		return nil, invalid("%s: schema validation failed: %s", s.Name(), result.Error())
	}
	return s.inner.Execute(ctx, params)
}

// Unwrap returns the wrapped tool.
func (s *SchemaValidatingTool) Unwrap() domain.Tool { return s.inner }
