package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"devspace/internal/domain"
)

// Well-known locations and values.
const (
	DefaultPath      = "devspace.yaml"
	DefaultEnvFile   = ".env"
	DefaultSecretKey = "dev-secret-key-change-in-production"
	EnvPrefix        = "DEVSPACE_"
)

// Config is the top-level application configuration. It is built once at
// startup and passed down explicitly.
type Config struct {
	Project   ProjectConfig     `yaml:"project"`
	Paths     PathsConfig       `yaml:"paths"`
	API       APIConfig         `yaml:"api"`
	Agent     AgentConfig       `yaml:"agent"`
	LLM       LLMConfig         `yaml:"llm"`
	Tools     ToolsConfig       `yaml:"tools"`
	Security  SecurityConfig    `yaml:"security"`
	Logger    LoggerConfig      `yaml:"logger"`
	Tracer    TracerConfig      `yaml:"tracer"`
	Scheduler SchedulerConfig   `yaml:"scheduler"`
	Audit     AuditConfig       `yaml:"audit"`
	Agents    []AgentDefinition `yaml:"agents,omitempty"`
}

// ProjectConfig holds project identity settings.
type ProjectConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Debug       bool   `yaml:"debug"`
	Environment string `yaml:"environment"` // development, testing, staging, production
}

// PathsConfig holds the working directories created by EnsureDirs.
type PathsConfig struct {
	DataDir   string `yaml:"data_dir"`
	ModelsDir string `yaml:"models_dir"`
	LogsDir   string `yaml:"logs_dir"`
}

// APIConfig holds HTTP server settings.
type APIConfig struct {
	Host            string          `yaml:"host"`
	Port            int             `yaml:"port"`
	Workers         int             `yaml:"workers"`
	CORSOrigins     []string        `yaml:"cors_origins"`
	ReadTimeout     time.Duration   `yaml:"read_timeout"`
	WriteTimeout    time.Duration   `yaml:"write_timeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// Addr returns the host:port listen address.
func (a APIConfig) Addr() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// RateLimitConfig holds per-client token bucket settings.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// AgentConfig holds defaults applied to agents created without explicit values.
type AgentConfig struct {
	DefaultKind  string        `yaml:"default_kind"`
	ModelName    string        `yaml:"model_name"`
	MaxTokens    int           `yaml:"max_tokens"`
	Temperature  float64       `yaml:"temperature"`
	SystemPrompt string        `yaml:"system_prompt"`
	Provider     string        `yaml:"provider"`     // LLM provider used by chat agents; empty = llm.default_provider
	CallTimeout  time.Duration `yaml:"call_timeout"` // 0 = no deadline
}

// LLMConfig holds chat backend settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig defines one OpenAI-compatible backend.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	Type    string        `yaml:"type"` // "openai"
	BaseURL string        `yaml:"base_url,omitempty"`
	APIKey  string        `yaml:"api_key,omitempty"`
	Model   string        `yaml:"model,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// ToolsConfig holds built-in tool settings.
type ToolsConfig struct {
	Timezone       string  `yaml:"timezone"`
	RateLimit      float64 `yaml:"rate_limit"` // calls per second per tool; 0 = unlimited
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// SecurityConfig holds token signing and API auth settings.
type SecurityConfig struct {
	SecretKey         string        `yaml:"secret_key"`
	Algorithm         string        `yaml:"algorithm"`
	AccessTokenExpire time.Duration `yaml:"access_token_expire"`
	AuthEnabled       bool          `yaml:"auth_enabled"`
	Users             []UserConfig  `yaml:"users,omitempty"`
}

// UserConfig is an API user with a bcrypt password hash.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`       // noop, stdout or file
	Path     string `yaml:"path,omitempty"` // file exporter; default <logs_dir>/traces.jsonl
}

// AuditConfig controls the JSONL audit trail of agent events.
type AuditConfig struct {
	Enabled bool          `yaml:"enabled"`
	Path    string        `yaml:"path,omitempty"` // default <logs_dir>/audit.jsonl
	MaxAge  time.Duration `yaml:"max_age,omitempty"`
	MaxSize string        `yaml:"max_size,omitempty"` // e.g. "10MB"
}

// SchedulerConfig holds scheduled agent job settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig sends a message, or runs an action, on a named agent.
type ScheduledTaskConfig struct {
	Name     string         `yaml:"name"`
	Schedule string         `yaml:"schedule"` // cron expression or duration string
	Agent    string         `yaml:"agent"`    // agent name or id
	Message  string         `yaml:"message,omitempty"`
	Action   string         `yaml:"action,omitempty"`
	Params   map[string]any `yaml:"params,omitempty"`
	OneShot  bool           `yaml:"one_shot,omitempty"`
}

// AgentDefinition is an agent provisioned at startup.
type AgentDefinition struct {
	Name         string   `yaml:"name"`
	Kind         string   `yaml:"kind"`
	ModelName    string   `yaml:"model_name,omitempty"`
	MaxTokens    int      `yaml:"max_tokens,omitempty"`
	Temperature  *float64 `yaml:"temperature,omitempty"`
	SystemPrompt string   `yaml:"system_prompt,omitempty"`
	Tools        []string `yaml:"tools,omitempty"`
}

// AgentConfig converts the definition into a runtime config, filling unset
// fields from the agent defaults.
func (d AgentDefinition) AgentConfig(defaults AgentConfig) domain.AgentConfig {
	return defaults.Apply(domain.AgentConfig{
		Name:         d.Name,
		ModelName:    d.ModelName,
		MaxTokens:    d.MaxTokens,
		Temperature:  d.Temperature,
		SystemPrompt: d.SystemPrompt,
		Tools:        d.Tools,
	})
}

// Apply fills the zero fields of cfg from the configured agent defaults.
func (a AgentConfig) Apply(cfg domain.AgentConfig) domain.AgentConfig {
	out := cfg.Clone()
	if out.ModelName == "" {
		out.ModelName = a.ModelName
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = a.MaxTokens
	}
	if out.Temperature == nil {
		t := a.Temperature
		out.Temperature = &t
	}
	if out.SystemPrompt == "" {
		out.SystemPrompt = a.SystemPrompt
	}
	return out
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Project: ProjectConfig{
			Name:        "DevSpace",
			Version:     "0.1.0",
			Environment: "development",
		},
		Paths: PathsConfig{
			DataDir:   "data",
			ModelsDir: "models",
			LogsDir:   "logs",
		},
		API: APIConfig{
			Host:            "127.0.0.1",
			Port:            8000,
			Workers:         1,
			CORSOrigins:     []string{"*"},
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    120 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 20,
				Burst:             40,
			},
		},
		Agent: AgentConfig{
			DefaultKind: domain.AgentKindEcho,
			ModelName:   domain.DefaultModelName,
			MaxTokens:   domain.DefaultMaxTokens,
			Temperature: domain.DefaultTemperature,
		},
		LLM: LLMConfig{
			DefaultProvider: "openai",
			Providers: []ProviderConfig{
				{Name: "openai", Type: "openai", Model: domain.DefaultModelName},
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Tools: ToolsConfig{
			Timezone:       "UTC",
			RateLimit:      5,
			RateLimitBurst: 10,
		},
		Security: SecurityConfig{
			SecretKey:         DefaultSecretKey,
			Algorithm:         "HS256",
			AccessTokenExpire: 30 * time.Minute,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// TracePath returns where the file exporter writes spans.
func (c *Config) TracePath() string {
	if c.Tracer.Path != "" {
		return c.Tracer.Path
	}
	return filepath.Join(c.Paths.LogsDir, "traces.jsonl")
}

// AuditPath returns the audit trail location.
func (c *Config) AuditPath() string {
	if c.Audit.Path != "" {
		return c.Audit.Path
	}
	return filepath.Join(c.Paths.LogsDir, "audit.jsonl")
}

// IsProduction reports whether the project runs in the production environment.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Project.Environment, "production")
}

// IsDevelopment reports whether the project runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Project.Environment, "development")
}

// Provider returns the provider config with the given name.
func (c *Config) Provider(name string) (ProviderConfig, bool) {
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderConfig{}, false
}

// Load reads a YAML config file, applies .env and environment overrides, and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnvFile(path, DefaultEnvFile)
}

// LoadWithEnvFile is Load with an explicit .env path. Values from the .env
// file never override variables already present in the process environment.
func LoadWithEnvFile(path, envFile string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrConfigLoad, path, err)
	default:
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: parse %s: %w", domain.ErrConfigLoad, path, err)
		}
	}

	dotenv, err := readDotEnv(envFile)
	if err != nil {
		return nil, err
	}
	ve := &ValidationError{}
	applyEnv(cfg, envSource{dotenv: dotenv, ve: ve})
	validateInto(cfg, ve)
	if ve.HasErrors() {
		return nil, ve
	}
	return cfg, nil
}

// ApplyEnvOverrides maps environment variables onto cfg. Each setting is read
// from DEVSPACE_<NAME> first and then from the bare <NAME>. Values that do not
// parse are skipped and reported together as a *ValidationError.
func ApplyEnvOverrides(cfg *Config) error {
	ve := &ValidationError{}
	applyEnv(cfg, envSource{ve: ve})
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	vals, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", domain.ErrConfigLoad, path, err)
	}
	return vals, nil
}

// envSource resolves a setting name against the process environment and the
// parsed .env file. Prefixed names win over bare ones; the process wins over .env.
// Values that do not parse are recorded in ve and leave the setting unchanged.
type envSource struct {
	dotenv map[string]string
	ve     *ValidationError
}

func (e envSource) get(name string) (key, value string, ok bool) {
	for _, key := range []string{EnvPrefix + name, name} {
		if v := os.Getenv(key); v != "" {
			return key, v, true
		}
		if v := e.dotenv[key]; v != "" {
			return key, v, true
		}
	}
	return "", "", false
}

func (e envSource) invalid(key, value, want string) {
	if e.ve != nil {
		e.ve.Add("env %s=%q is not %s", key, value, want)
	}
}

func (e envSource) str(name string, dst *string) {
	if _, v, ok := e.get(name); ok {
		*dst = v
	}
}

func (e envSource) boolean(name string, dst *bool) {
	if key, v, ok := e.get(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.invalid(key, v, "a boolean")
			return
		}
		*dst = b
	}
}

func (e envSource) integer(name string, dst *int) {
	if key, v, ok := e.get(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.invalid(key, v, "an integer")
			return
		}
		*dst = n
	}
}

func (e envSource) float(name string, dst *float64) {
	if key, v, ok := e.get(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.invalid(key, v, "a number")
			return
		}
		*dst = f
	}
}

func (e envSource) duration(name string, dst *time.Duration) {
	if key, v, ok := e.get(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			e.invalid(key, v, "a non-negative duration")
			return
		}
		*dst = d
	}
}

func (e envSource) list(name string, dst *[]string) {
	if _, v, ok := e.get(name); ok {
		*dst = splitAndTrim(v, ",")
	}
}

func applyEnv(cfg *Config, env envSource) {
	env.str("PROJECT_NAME", &cfg.Project.Name)
	env.boolean("DEBUG", &cfg.Project.Debug)
	env.str("ENVIRONMENT", &cfg.Project.Environment)

	env.str("DATA_DIR", &cfg.Paths.DataDir)
	env.str("MODELS_DIR", &cfg.Paths.ModelsDir)
	env.str("LOGS_DIR", &cfg.Paths.LogsDir)

	env.str("API_HOST", &cfg.API.Host)
	env.integer("API_PORT", &cfg.API.Port)
	env.integer("API_WORKERS", &cfg.API.Workers)
	env.list("CORS_ORIGINS", &cfg.API.CORSOrigins)
	env.boolean("RATE_LIMIT_ENABLED", &cfg.API.RateLimit.Enabled)

	env.str("DEFAULT_AGENT_KIND", &cfg.Agent.DefaultKind)
	env.str("DEFAULT_MODEL_NAME", &cfg.Agent.ModelName)
	env.integer("MAX_TOKENS", &cfg.Agent.MaxTokens)
	env.float("TEMPERATURE", &cfg.Agent.Temperature)
	env.str("SYSTEM_PROMPT", &cfg.Agent.SystemPrompt)
	env.duration("AGENT_CALL_TIMEOUT", &cfg.Agent.CallTimeout)

	env.str("LLM_DEFAULT_PROVIDER", &cfg.LLM.DefaultProvider)
	if _, key, ok := env.get("OPENAI_API_KEY"); ok {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Type == "openai" && cfg.LLM.Providers[i].APIKey == "" {
				cfg.LLM.Providers[i].APIKey = key
			}
		}
	}
	if _, base, ok := env.get("OPENAI_BASE_URL"); ok {
		for i := range cfg.LLM.Providers {
			if cfg.LLM.Providers[i].Type == "openai" && cfg.LLM.Providers[i].BaseURL == "" {
				cfg.LLM.Providers[i].BaseURL = base
			}
		}
	}

	env.str("SECRET_KEY", &cfg.Security.SecretKey)
	env.str("ALGORITHM", &cfg.Security.Algorithm)
	var minutes int
	env.integer("ACCESS_TOKEN_EXPIRE_MINUTES", &minutes)
	if minutes > 0 {
		cfg.Security.AccessTokenExpire = time.Duration(minutes) * time.Minute
	}
	env.boolean("AUTH_ENABLED", &cfg.Security.AuthEnabled)

	env.str("LOG_LEVEL", &cfg.Logger.Level)
	env.str("LOG_FORMAT", &cfg.Logger.Format)
	env.str("LOG_OUTPUT", &cfg.Logger.Output)

	env.boolean("AUDIT_ENABLED", &cfg.Audit.Enabled)
	env.str("AUDIT_PATH", &cfg.Audit.Path)

	env.boolean("TRACER_ENABLED", &cfg.Tracer.Enabled)
	env.str("TRACER_EXPORTER", &cfg.Tracer.Exporter)
	env.str("TRACER_PATH", &cfg.Tracer.Path)
}

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureDirs creates the data, models and logs directories.
func EnsureDirs(cfg *Config) error {
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ModelsDir, cfg.Paths.LogsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Save writes cfg as YAML to path with owner-only permissions.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("%w: config file %s has insecure permissions %o (want 0600 or 0644)", domain.ErrConfigLoad, path, mode)
	}
	return nil
}
