package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
)

const maxEchoLength = 16 * 1024

// EchoTool returns its input text, optionally transformed.
type EchoTool struct {
	logger *slog.Logger
}

// NewEchoTool creates an echo tool.
func NewEchoTool(logger *slog.Logger) *EchoTool { return &EchoTool{logger: logger} }

func (t *EchoTool) Name() string { return "echo" }

func (t *EchoTool) Description() string {
	return "Repeats the given text. Useful for testing tool wiring."
}

func (t *EchoTool) Schema() domain.ToolSchema {
	return schemaFor(t, objectSchema(map[string]any{
		"text":  map[string]any{"type": "string"},
		"upper": map[string]any{"type": "boolean"},
	}, "text"))
}

type echoParams struct {
	Text  string `json:"text"`
	Upper bool   `json:"upper"`
}

func (t *EchoTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.echo", t.logger, params, func(_ context.Context, _ trace.Span, p echoParams) (any, error) {
		if err := ValidateAll(RequireField("text", p.Text), ValidateMaxLength("text", p.Text, maxEchoLength)); err != nil {
			return nil, err
		}
		if p.Upper {
			return strings.ToUpper(p.Text), nil
		}
		return p.Text, nil
	})
}
