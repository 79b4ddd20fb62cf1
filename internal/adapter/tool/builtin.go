package tool

import (
	"log/slog"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

// NewBuiltinRegistry returns a validating, rate-limited registry holding
// clock, echo and system_info.
func NewBuiltinRegistry(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry(logger,
		WithValidation(),
		WithToolRateLimit(cfg.Tools.RateLimit, cfg.Tools.RateLimitBurst),
	)

	builtins := []domain.Tool{
		NewClockTool(cfg.Tools.Timezone, logger),
		NewEchoTool(logger),
		NewSystemInfoTool(SystemInfo{
			Project:     cfg.Project.Name,
			Version:     cfg.Project.Version,
			Environment: cfg.Project.Environment,
		}, logger),
	}
	for _, t := range builtins {
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
