package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
	"devspace/internal/infra/tracer"
)

// Execute is the standard tool execution pipeline: parse params, start a
// span, run the handler, format the result.
//
// The handler returns one of:
//   - (*domain.ToolResult, nil): returned as-is
//   - (string, nil): wrapped in a plain-text ToolResult
//   - (any other value, nil): JSON-marshaled into Content and, when it is an
//     object, decoded into Data
//   - (nil, error): returned to the caller, which classifies it
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (res *domain.ToolResult, err error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer func() {
		spanErr := err
		if spanErr == nil && res != nil && res.IsError {
			spanErr = errors.New(res.Content)
		}
		tracer.End(span, spanErr)
	}()

	params, err := ParseParams[P](rawParams)
	if err != nil {
		return nil, err
	}
	out, err := handler(ctx, span, params)
	if err != nil {
		logger.Warn(spanName+" failed", "error", err)
		return nil, err
	}
	return toResult(out)
}

func toResult(out any) (*domain.ToolResult, error) {
	switch v := out.(type) {
	case *domain.ToolResult:
		return v, nil
	case string:
		return TextResult(v), nil
	default:
		return JSONResult(v)
	}
}

// ParseParams unmarshals rawParams into P. Empty input yields the zero P.
func ParseParams[P any](rawParams json.RawMessage) (P, error) {
	var p P
	if len(rawParams) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(rawParams, &p); err != nil {
		return p, invalid("invalid params: %v", err)
	}
	return p, nil
}

// JSONResult marshals v as indented JSON into a success ToolResult. Objects
// are also exposed as structured Data.
func JSONResult(v any) (*domain.ToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	res := &domain.ToolResult{Content: string(data)}
	if fields, err := domain.ValuesFromJSON(data); err == nil && len(fields) > 0 {
		res.Data = fields
	}
	return res, nil
}

// TextResult creates a plain text success ToolResult.
func TextResult(s string) *domain.ToolResult {
	return &domain.ToolResult{Content: s}
}

// BadAction returns an error for an unknown sub-action with a hint listing
// valid ones.
func BadAction(got string, valid ...string) error {
	return invalid("unknown action %q (want: %s)", got, strings.Join(valid, ", "))
}
