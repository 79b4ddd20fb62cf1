package config

import (
	"strings"
	"testing"
	"time"
)

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("expected %q to contain %q", s, substr)
	}
}

func TestValidateDefaultsPass(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("Defaults should pass validation: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty project name", func(c *Config) { c.Project.Name = "" }, "project.name must not be empty"},
		{"bad environment", func(c *Config) { c.Project.Environment = "moon" }, "project.environment"},
		{"port out of range", func(c *Config) { c.API.Port = 0 }, "api.port 0 out of range"},
		{"no workers", func(c *Config) { c.API.Workers = 0 }, "api.workers must be >= 1"},
		{"rate limit zero", func(c *Config) { c.API.RateLimit.RequestsPerSecond = 0 }, "api.rate_limit.requests_per_second"},
		{"unknown default kind", func(c *Config) { c.Agent.DefaultKind = "robot" }, "agent.default_kind"},
		{"max tokens zero", func(c *Config) { c.Agent.MaxTokens = 0 }, "agent.max_tokens must be > 0"},
		{"temperature high", func(c *Config) { c.Agent.Temperature = 3 }, "agent.temperature 3 out of range"},
		{"unknown agent provider", func(c *Config) { c.Agent.Provider = "nope" }, `agent.provider "nope"`},
		{"provider type", func(c *Config) { c.LLM.Providers[0].Type = "bedrock" }, "llm.providers[0].type"},
		{"provider url", func(c *Config) { c.LLM.Providers[0].BaseURL = "not a url" }, "llm.providers[0].base_url"},
		{"missing default provider", func(c *Config) { c.LLM.DefaultProvider = "groq" }, `llm.default_provider "groq"`},
		{"breaker failures", func(c *Config) { c.LLM.CircuitBreaker.MaxFailures = 0 }, "llm.circuit_breaker.max_failures"},
		{"tool burst", func(c *Config) { c.Tools.RateLimitBurst = 0 }, "tools.rate_limit_burst"},
		{"empty secret", func(c *Config) { c.Security.SecretKey = "" }, "security.secret_key must not be empty"},
		{"bad algorithm", func(c *Config) { c.Security.Algorithm = "RS256" }, "security.algorithm"},
		{"zero expiry", func(c *Config) { c.Security.AccessTokenExpire = 0 }, "security.access_token_expire"},
		{"auth without users", func(c *Config) { c.Security.AuthEnabled = true }, "security.users must not be empty"},
		{"plain password", func(c *Config) {
			c.Security.Users = []UserConfig{{Username: "ana", PasswordHash: "hunter2"}}
		}, "must be a bcrypt hash"},
		{"log level", func(c *Config) { c.Logger.Level = "loud" }, "logger.level"},
		{"log format", func(c *Config) { c.Logger.Format = "xml" }, "logger.format"},
		{"exporter", func(c *Config) { c.Tracer.Enabled = true; c.Tracer.Exporter = "jaeger" }, "tracer.exporter"},
		{"scheduler task", func(c *Config) {
			c.Scheduler.Enabled = true
			c.Scheduler.Tasks = []ScheduledTaskConfig{{Name: "t", Schedule: "1m", Agent: "a", Message: "hi", Action: "x"}}
		}, "needs exactly one of message or action"},
		{"duplicate agents", func(c *Config) {
			c.Agents = []AgentDefinition{{Name: "a", Kind: "echo"}, {Name: "a", Kind: "echo"}}
		}, `agents[1].name "a" is duplicated`},
		{"agent kind", func(c *Config) { c.Agents = []AgentDefinition{{Name: "a", Kind: "robot"}} }, "agents[0].kind"},
		{"agent name", func(c *Config) { c.Agents = []AgentDefinition{{Name: "", Kind: "echo"}} }, "name must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			assertContains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateProductionRejectsDefaultSecret(t *testing.T) {
	cfg := Defaults()
	cfg.Project.Environment = "production"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation error")
	}
	assertContains(t, err.Error(), "must be changed from the default in production")

	cfg.Security.SecretKey = "a-real-secret"
	if err := Validate(cfg); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Defaults()
	cfg.API.Port = -1
	cfg.Agent.MaxTokens = -1
	cfg.Security.AccessTokenExpire = -time.Second
	err := Validate(cfg)
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}
