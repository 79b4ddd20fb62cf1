package tool

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// countingTool counts calls and returns a fixed result.
type countingTool struct {
	name   string
	schema json.RawMessage
	calls  int
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "counts calls" }
func (c *countingTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: c.name, Parameters: c.schema}
}

func (c *countingTool) Execute(context.Context, json.RawMessage) (*domain.ToolResult, error) {
	c.calls++
	return TextResult("ok"), nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(discardLogger())
	require.NoError(t, reg.Register(&countingTool{name: "b"}))
	require.NoError(t, reg.Register(&countingTool{name: "a"}))
	assert.ErrorIs(t, reg.Register(&countingTool{name: "a"}), domain.ErrDuplicate)

	got, err := reg.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name())

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, domain.ErrUnknownAction)

	assert.Equal(t, []string{"a", "b"}, reg.Names())
	schemas := reg.Schemas()
	require.Len(t, schemas, 2)
	assert.Equal(t, "a", schemas[0].Name)
}

func TestSchemaValidation(t *testing.T) {
	inner := &countingTool{
		name:   "strict",
		schema: json.RawMessage(`{"type":"object","properties":{"n":{"type":"integer"}},"required":["n"]}`),
	}
	reg := NewRegistry(discardLogger(), WithValidation())
	require.NoError(t, reg.Register(inner))
	tool, err := reg.Get("strict")
	require.NoError(t, err)
	_, wrapped := tool.(*SchemaValidatingTool)
	assert.True(t, wrapped)

	ctx := context.Background()
	_, err = tool.Execute(ctx, json.RawMessage(`{"n":3}`))
	require.NoError(t, err)

	_, err = tool.Execute(ctx, json.RawMessage(`{"n":"three"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = tool.Execute(ctx, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = tool.Execute(ctx, json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	assert.Equal(t, 1, inner.calls)
}

func TestSchemaValidationSkipsSchemaless(t *testing.T) {
	inner := &countingTool{name: "loose"}
	got, err := WithSchemaValidation(inner)
	require.NoError(t, err)
	assert.Same(t, inner, got)
}

func TestRateLimit(t *testing.T) {
	inner := &countingTool{name: "busy"}
	limited := WithRateLimit(inner, 0.001, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := limited.Execute(ctx, nil)
		require.NoError(t, err)
	}
	_, err := limited.Execute(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	assert.Equal(t, 2, inner.calls)

	assert.Same(t, inner, WithRateLimit(inner, 0, 5), "non-positive rate disables limiting")
}

func TestClockTool(t *testing.T) {
	clock := NewClockTool("UTC", discardLogger())
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock.now = func() time.Time { return fixed }
	ctx := context.Background()

	res, err := clock.Execute(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, domain.String("2024-03-01T12:00:00Z"), res.Data["time"])
	assert.Equal(t, domain.String("UTC"), res.Data["timezone"])

	res, err = clock.Execute(ctx, json.RawMessage(`{"action":"convert","time":"2024-03-01T12:00:00Z","timezone":"Asia/Tokyo"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.String("2024-03-01T21:00:00+09:00"), res.Data["time"])

	_, err = clock.Execute(ctx, json.RawMessage(`{"timezone":"Nowhere/Land"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = clock.Execute(ctx, json.RawMessage(`{"action":"convert"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = clock.Execute(ctx, json.RawMessage(`{"action":"rewind"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestClockToolDefaultZoneFallback(t *testing.T) {
	assert.Equal(t, time.UTC, NewClockTool("", discardLogger()).location)
	assert.Equal(t, time.UTC, NewClockTool("Not/AZone", discardLogger()).location)
}

func TestEchoTool(t *testing.T) {
	echo := NewEchoTool(discardLogger())
	ctx := context.Background()

	res, err := echo.Execute(ctx, json.RawMessage(`{"text":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, "hi", res.Content)

	res, err = echo.Execute(ctx, json.RawMessage(`{"text":"hi","upper":true}`))
	require.NoError(t, err)
	assert.Equal(t, "HI", res.Content)

	_, err = echo.Execute(ctx, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSystemInfoTool(t *testing.T) {
	tool := NewSystemInfoTool(SystemInfo{Project: "DevSpace", Version: "0.1.0", Environment: "test"}, discardLogger())
	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, domain.String("DevSpace"), res.Data["project"])
	assert.Equal(t, domain.String("test"), res.Data["environment"])
	_, ok := res.Data["go_version"]
	assert.True(t, ok)
}

func TestBuiltinRegistry(t *testing.T) {
	cfg := config.Defaults()
	reg, err := NewBuiltinRegistry(cfg, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"clock", "echo", "system_info"}, reg.Names())

	echo, err := reg.Get("echo")
	require.NoError(t, err)
	_, err = echo.Execute(context.Background(), json.RawMessage(`{"text":"x","extra":1}`))
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "builtins reject unknown fields")
}
