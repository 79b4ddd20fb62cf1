package tool

import (
	"context"
	"encoding/json"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
	"devspace/internal/infra/tracer"
)

// ActionHandler is a function that handles a single action for a tool.
type ActionHandler[P any] func(ctx context.Context, p P) (any, error)

// ActionMap maps action names to their handlers for an action-based tool.
type ActionMap[P any] map[string]ActionHandler[P]

// Dispatch creates a handler for Execute[P] that routes by action name.
// An empty action selects defaultAction.
//
//	func (t *ClockTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
//	    return Execute(ctx, "tool.clock", t.logger, params,
//	        Dispatch(func(p clockParams) string { return p.Action }, "now", ActionMap[clockParams]{
//	            "now":     t.handleNow,
//	            "convert": t.handleConvert,
//	        }),
//	    )
//	}
func Dispatch[P any](
	getAction func(P) string,
	defaultAction string,
	actions ActionMap[P],
) func(ctx context.Context, span trace.Span, p P) (any, error) {
	validActions := make([]string, 0, len(actions))
	for name := range actions {
		validActions = append(validActions, name)
	}
	sort.Strings(validActions)

	return func(ctx context.Context, span trace.Span, p P) (any, error) {
		action := getAction(p)
		if action == "" {
			action = defaultAction
		}
		span.SetAttributes(tracer.StringAttr("tool.action", action))

		handler, ok := actions[action]
		if !ok {
			return nil, BadAction(action, validActions...)
		}
		return handler(ctx, p)
	}
}

// objectSchema builds a JSON Schema object with the given properties.
func objectSchema(properties map[string]any, required ...string) json.RawMessage {
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	data, _ := json.Marshal(schema)
	return data
}

func schemaFor(t domain.Tool, params json.RawMessage) domain.ToolSchema {
	return domain.ToolSchema{Name: t.Name(), Description: t.Description(), Parameters: params}
}
