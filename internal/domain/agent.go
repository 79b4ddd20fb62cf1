package domain

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Agent config defaults.
const (
	DefaultModelName   = "gpt-3.5-turbo"
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7

	MaxTemperature = 2.0
)

// Agent variant kinds.
const (
	AgentKindChat = "chat"
	AgentKindTool = "tool"
	AgentKindEcho = "echo"
)

// AgentKinds returns every shipped agent variant kind.
func AgentKinds() []string {
	return []string{AgentKindChat, AgentKindTool, AgentKindEcho}
}

// IsKnownAgentKind reports whether kind names a shipped variant.
func IsKnownAgentKind(kind string) bool {
	return slices.Contains(AgentKinds(), kind)
}

// AgentConfig is the immutable configuration of one agent instance.
type AgentConfig struct {
	Name         string   `json:"name"                    yaml:"name"`
	ModelName    string   `json:"model_name"              yaml:"model_name"`
	MaxTokens    int      `json:"max_tokens"              yaml:"max_tokens"`
	Temperature  *float64 `json:"temperature,omitempty"   yaml:"temperature,omitempty"`
	SystemPrompt string   `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	Tools        []string `json:"tools"                   yaml:"tools"`
}

// WithDefaults returns a copy of c with omitted fields filled in.
// Temperature is a pointer so that an explicit 0 survives.
func (c AgentConfig) WithDefaults() AgentConfig {
	out := c.Clone()
	if out.ModelName == "" {
		out.ModelName = DefaultModelName
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = DefaultMaxTokens
	}
	if out.Temperature == nil {
		t := DefaultTemperature
		out.Temperature = &t
	}
	if out.Tools == nil {
		out.Tools = []string{}
	}
	return out
}

// Clone returns a deep copy of c.
func (c AgentConfig) Clone() AgentConfig {
	out := c
	if c.Tools != nil {
		out.Tools = slices.Clone(c.Tools)
	}
	if c.Temperature != nil {
		t := *c.Temperature
		out.Temperature = &t
	}
	return out
}

// TemperatureValue returns the sampling temperature, or the default when unset.
func (c AgentConfig) TemperatureValue() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// HasTool reports whether name is listed in the agent's tools.
func (c AgentConfig) HasTool(name string) bool {
	return slices.Contains(c.Tools, name)
}

// Validate checks the config for malformed values. Construction itself never
// calls this; the HTTP and CLI layers do before creating an agent.
func (c AgentConfig) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Name) == "" {
		problems = append(problems, "name must not be empty")
	}
	if c.MaxTokens < 0 {
		problems = append(problems, fmt.Sprintf("max_tokens must be positive, got %d", c.MaxTokens))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > MaxTemperature) {
		problems = append(problems, fmt.Sprintf("temperature must be in [0,%g], got %g", MaxTemperature, *c.Temperature))
	}
	for i, t := range c.Tools {
		if strings.TrimSpace(t) == "" {
			problems = append(problems, fmt.Sprintf("tools[%d] must not be empty", i))
		}
	}
	if len(problems) > 0 {
		return NewDomainError("AgentConfig.Validate", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// AgentStatus is the lifecycle phase of an agent.
type AgentStatus string

const (
	StatusActive  AgentStatus = "active"
	StatusIdle    AgentStatus = "idle"
	StatusError   AgentStatus = "error"
	StatusStopped AgentStatus = "stopped"
)

// IsValid reports whether s is one of the four lifecycle phases.
func (s AgentStatus) IsValid() bool {
	switch s {
	case StatusActive, StatusIdle, StatusError, StatusStopped:
		return true
	default:
		return false
	}
}

func (s AgentStatus) String() string { return string(s) }

// AllStatuses returns every lifecycle phase.
func AllStatuses() []AgentStatus {
	return []AgentStatus{StatusActive, StatusIdle, StatusError, StatusStopped}
}

// ParseAgentStatus converts s into an AgentStatus. Matching is case-insensitive.
func ParseAgentStatus(s string) (AgentStatus, error) {
	st := AgentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", NewDomainError("ParseAgentStatus", ErrInvalidInput, fmt.Sprintf("unknown status %q", s))
	}
	return st, nil
}

// StatusSnapshot is the read-only view returned by an agent's status query.
type StatusSnapshot struct {
	AgentID     string      `json:"agent_id"`
	Name        string      `json:"name"`
	Status      AgentStatus `json:"status"`
	CurrentTask *string     `json:"current_task"`
	Model       string      `json:"model"`
}

// AgentSummary extends a status snapshot with the agent's variant kind.
type AgentSummary struct {
	StatusSnapshot
	Kind  string   `json:"kind"`
	Tools []string `json:"tools"`
}

// AgentRuntime is the contract every agent instance satisfies.
type AgentRuntime interface {
	ID() string
	Config() AgentConfig
	ProcessMessage(ctx context.Context, message string, msgCtx map[string]Value) (string, error)
	ExecuteAction(ctx context.Context, action string, params map[string]Value) (map[string]Value, error)
	GetStatus() StatusSnapshot
	UpdateStatus(status AgentStatus, task *string)
	AddToHistory(role, content string)
	History() []Message
	ClearHistory()
	GetContext(key string) (Value, bool)
	SetContext(key string, v Value)
	ClearContext()
}
