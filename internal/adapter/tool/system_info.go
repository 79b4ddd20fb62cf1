package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
)

// SystemInfo describes the running project.
type SystemInfo struct {
	Project     string
	Version     string
	Environment string
	StartedAt   time.Time
}

// SystemInfoTool reports project and Go runtime details.
type SystemInfoTool struct {
	info   SystemInfo
	logger *slog.Logger
}

// NewSystemInfoTool creates a system_info tool.
func NewSystemInfoTool(info SystemInfo, logger *slog.Logger) *SystemInfoTool {
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	return &SystemInfoTool{info: info, logger: logger}
}

func (t *SystemInfoTool) Name() string { return "system_info" }

func (t *SystemInfoTool) Description() string {
	return "Reports project, environment and Go runtime details."
}

func (t *SystemInfoTool) Schema() domain.ToolSchema {
	return schemaFor(t, objectSchema(map[string]any{}))
}

type systemInfoResult struct {
	Project     string  `json:"project"`
	Version     string  `json:"version"`
	Environment string  `json:"environment"`
	Hostname    string  `json:"hostname"`
	GoVersion   string  `json:"go_version"`
	OS          string  `json:"os"`
	Arch        string  `json:"arch"`
	CPUs        int     `json:"cpus"`
	Goroutines  int     `json:"goroutines"`
	UptimeSec   float64 `json:"uptime_seconds"`
}

func (t *SystemInfoTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.system_info", t.logger, params, func(_ context.Context, _ trace.Span, _ struct{}) (any, error) {
		host, _ := os.Hostname()
		return systemInfoResult{
			Project:     t.info.Project,
			Version:     t.info.Version,
			Environment: t.info.Environment,
			Hostname:    host,
			GoVersion:   runtime.Version(),
			OS:          runtime.GOOS,
			Arch:        runtime.GOARCH,
			CPUs:        runtime.NumCPU(),
			Goroutines:  runtime.NumGoroutine(),
			UptimeSec:   time.Since(t.info.StartedAt).Seconds(),
		}, nil
	})
}
