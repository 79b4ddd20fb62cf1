package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"devspace/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// Unwrap lets callers match validation failures with errors.Is(err, domain.ErrInvalidConfig).
func (v *ValidationError) Unwrap() error { return domain.ErrInvalidConfig }

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

var (
	validEnvironments = []string{"development", "testing", "staging", "production"}
	validLogLevels    = []string{"debug", "info", "warn", "warning", "error"}
	validLogFormats   = []string{"text", "json"}
	validExporters    = []string{"noop", "stdout", "file"}
	validAlgorithms   = []string{"HS256", "HS384", "HS512"}
	validProviders    = []string{"openai"}
)

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateInto(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateInto(cfg *Config, ve *ValidationError) {
	validateProject(cfg, ve)
	validateAPI(cfg, ve)
	validateAgent(cfg, ve)
	validateLLM(cfg, ve)
	validateTools(cfg, ve)
	validateSecurity(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateScheduler(cfg, ve)
	validateAudit(cfg, ve)
	validateAgents(cfg, ve)
}

func validateProject(cfg *Config, ve *ValidationError) {
	if strings.TrimSpace(cfg.Project.Name) == "" {
		ve.Add("project.name must not be empty")
	}
	if !slices.Contains(validEnvironments, strings.ToLower(cfg.Project.Environment)) {
		ve.Add("project.environment %q must be one of %v", cfg.Project.Environment, validEnvironments)
	}
}

func validateAPI(cfg *Config, ve *ValidationError) {
	if cfg.API.Host == "" {
		ve.Add("api.host must not be empty")
	}
	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		ve.Add("api.port %d out of range [1,65535]", cfg.API.Port)
	}
	if cfg.API.Workers < 1 {
		ve.Add("api.workers must be >= 1")
	}
	if cfg.API.ReadTimeout < 0 || cfg.API.WriteTimeout < 0 || cfg.API.ShutdownTimeout < 0 {
		ve.Add("api timeouts must not be negative")
	}
	if rl := cfg.API.RateLimit; rl.Enabled {
		if rl.RequestsPerSecond <= 0 {
			ve.Add("api.rate_limit.requests_per_second must be > 0 when enabled")
		}
		if rl.Burst < 1 {
			ve.Add("api.rate_limit.burst must be >= 1 when enabled")
		}
	}
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if !domain.IsKnownAgentKind(cfg.Agent.DefaultKind) {
		ve.Add("agent.default_kind %q must be one of %v", cfg.Agent.DefaultKind, domain.AgentKinds())
	}
	if cfg.Agent.ModelName == "" {
		ve.Add("agent.model_name must not be empty")
	}
	if cfg.Agent.MaxTokens <= 0 {
		ve.Add("agent.max_tokens must be > 0")
	}
	if cfg.Agent.Temperature < 0 || cfg.Agent.Temperature > domain.MaxTemperature {
		ve.Add("agent.temperature %g out of range [0,%g]", cfg.Agent.Temperature, domain.MaxTemperature)
	}
	if cfg.Agent.CallTimeout < 0 {
		ve.Add("agent.call_timeout must not be negative")
	}
	if cfg.Agent.Provider != "" {
		if _, ok := cfg.Provider(cfg.Agent.Provider); !ok {
			ve.Add("agent.provider %q is not a configured llm provider", cfg.Agent.Provider)
		}
	}
}

func validateLLM(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool, len(cfg.LLM.Providers))
	for i, p := range cfg.LLM.Providers {
		if p.Name == "" {
			ve.Add("llm.providers[%d].name is required", i)
		} else if seen[p.Name] {
			ve.Add("llm.providers[%d].name %q is duplicated", i, p.Name)
		}
		seen[p.Name] = true
		if !slices.Contains(validProviders, p.Type) {
			ve.Add("llm.providers[%d].type %q must be one of %v", i, p.Type, validProviders)
		}
		if p.BaseURL != "" {
			if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				ve.Add("llm.providers[%d].base_url %q is not a valid URL", i, p.BaseURL)
			}
		}
		if p.Timeout < 0 {
			ve.Add("llm.providers[%d].timeout must not be negative", i)
		}
	}
	if len(cfg.LLM.Providers) > 0 && !seen[cfg.LLM.DefaultProvider] {
		ve.Add("llm.default_provider %q is not a configured provider", cfg.LLM.DefaultProvider)
	}
	if cb := cfg.LLM.CircuitBreaker; cb.Enabled {
		if cb.MaxFailures == 0 {
			ve.Add("llm.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if cb.Timeout <= 0 {
			ve.Add("llm.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

func validateTools(cfg *Config, ve *ValidationError) {
	if cfg.Tools.RateLimit < 0 {
		ve.Add("tools.rate_limit must not be negative")
	}
	if cfg.Tools.RateLimit > 0 && cfg.Tools.RateLimitBurst < 1 {
		ve.Add("tools.rate_limit_burst must be >= 1 when rate_limit is set")
	}
}

func validateSecurity(cfg *Config, ve *ValidationError) {
	s := cfg.Security
	if s.SecretKey == "" {
		ve.Add("security.secret_key must not be empty")
	}
	if cfg.IsProduction() && s.SecretKey == DefaultSecretKey {
		ve.Add("security.secret_key must be changed from the default in production")
	}
	if !slices.Contains(validAlgorithms, s.Algorithm) {
		ve.Add("security.algorithm %q must be one of %v", s.Algorithm, validAlgorithms)
	}
	if s.AccessTokenExpire <= 0 {
		ve.Add("security.access_token_expire must be > 0")
	}
	if s.AuthEnabled && len(s.Users) == 0 {
		ve.Add("security.users must not be empty when auth is enabled")
	}
	for i, u := range s.Users {
		if u.Username == "" {
			ve.Add("security.users[%d].username is required", i)
		}
		if !strings.HasPrefix(u.PasswordHash, "$2") {
			ve.Add("security.users[%d].password_hash must be a bcrypt hash", i)
		}
	}
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !slices.Contains(validLogLevels, strings.ToLower(cfg.Logger.Level)) {
		ve.Add("logger.level %q must be one of %v", cfg.Logger.Level, validLogLevels)
	}
	if !slices.Contains(validLogFormats, strings.ToLower(cfg.Logger.Format)) {
		ve.Add("logger.format %q must be one of %v", cfg.Logger.Format, validLogFormats)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if cfg.Tracer.Enabled && !slices.Contains(validExporters, cfg.Tracer.Exporter) {
		ve.Add("tracer.exporter %q must be one of %v", cfg.Tracer.Exporter, validExporters)
	}
}

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		}
		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		}
		if t.Agent == "" {
			ve.Add("scheduler.tasks[%d].agent is required", i)
		}
		if (t.Message == "") == (t.Action == "") {
			ve.Add("scheduler.tasks[%d] needs exactly one of message or action", i)
		}
	}
}

func validateAudit(cfg *Config, ve *ValidationError) {
	if cfg.Audit.MaxAge < 0 {
		ve.Add("audit.max_age must not be negative")
	}
}

func validateAgents(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool, len(cfg.Agents))
	for i, def := range cfg.Agents {
		if seen[def.Name] {
			ve.Add("agents[%d].name %q is duplicated", i, def.Name)
		}
		seen[def.Name] = true
		if !domain.IsKnownAgentKind(def.Kind) {
			ve.Add("agents[%d].kind %q must be one of %v", i, def.Kind, domain.AgentKinds())
		}
		if err := def.AgentConfig(cfg.Agent).Validate(); err != nil {
			ve.Add("agents[%d]: %v", i, err)
		}
	}
}
