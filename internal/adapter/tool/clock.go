package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
	_ "time/tzdata" // zone lookups without a system zoneinfo

	"devspace/internal/domain"
)

// ClockTool reports the current time and converts times between zones.
type ClockTool struct {
	location *time.Location
	now      func() time.Time
	logger   *slog.Logger
}

// NewClockTool creates a clock tool. defaultTZ is used when a call names no
// timezone; an empty or unknown zone falls back to UTC.
func NewClockTool(defaultTZ string, logger *slog.Logger) *ClockTool {
	loc, err := time.LoadLocation(defaultTZ)
	if err != nil || defaultTZ == "" {
		loc = time.UTC
	}
	return &ClockTool{location: loc, now: time.Now, logger: logger}
}

func (t *ClockTool) Name() string { return "clock" }
func (t *ClockTool) Description() string {
	return "Returns the current time, or converts an RFC 3339 time into another timezone."
}

func (t *ClockTool) Schema() domain.ToolSchema {
	return schemaFor(t, objectSchema(map[string]any{
		"action":   map[string]any{"type": "string", "enum": []string{"now", "convert"}},
		"timezone": map[string]any{"type": "string", "description": "IANA zone, e.g. Europe/Berlin"},
		"time":     map[string]any{"type": "string", "description": "RFC 3339 time for convert"},
		"format":   map[string]any{"type": "string", "description": "Go layout; defaults to RFC 3339"},
	}))
}

type clockParams struct {
	Action   string `json:"action"`
	Timezone string `json:"timezone"`
	Time     string `json:"time"`
	Format   string `json:"format"`
}

type clockResult struct {
	Time     string `json:"time"`
	Timezone string `json:"timezone"`
	Unix     int64  `json:"unix"`
}

func (t *ClockTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.clock", t.logger, params,
		Dispatch(func(p clockParams) string { return p.Action }, "now", ActionMap[clockParams]{
			"now":     t.handleNow,
			"convert": t.handleConvert,
		}),
	)
}

func (t *ClockTool) handleNow(_ context.Context, p clockParams) (any, error) {
	loc, err := t.resolve(p.Timezone)
	if err != nil {
		return nil, err
	}
	return t.render(t.now().In(loc), loc, p.Format), nil
}

func (t *ClockTool) handleConvert(_ context.Context, p clockParams) (any, error) {
	if err := RequireField("time", p.Time); err != nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, p.Time)
	if err != nil {
		return nil, invalid("time must be RFC 3339: %v", err)
	}
	loc, err := t.resolve(p.Timezone)
	if err != nil {
		return nil, err
	}
	return t.render(parsed.In(loc), loc, p.Format), nil
}

func (t *ClockTool) resolve(tz string) (*time.Location, error) {
	if tz == "" {
		return t.location, nil
	}
	if err := ValidateTimezone("timezone", tz); err != nil {
		return nil, err
	}
	return time.LoadLocation(tz)
}

func (t *ClockTool) render(ts time.Time, loc *time.Location, layout string) clockResult {
	if layout == "" {
		layout = time.RFC3339
	}
	return clockResult{Time: ts.Format(layout), Timezone: loc.String(), Unix: ts.Unix()}
}
