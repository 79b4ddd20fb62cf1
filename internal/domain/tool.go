package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool and its JSON Schema parameters.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	Content string           `json:"content"`
	Data    map[string]Value `json:"data,omitempty"`
	IsError bool             `json:"is_error"`
}

// Tool is the interface every tool must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup. Get returns ErrUnknownAction for a miss.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}
