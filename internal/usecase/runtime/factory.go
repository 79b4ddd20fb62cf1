package runtime

import (
	"fmt"

	"devspace/internal/domain"
)

// ProviderSource resolves chat providers by name.
type ProviderSource interface {
	Get(name string) (domain.LLMProvider, error)
}

// FactoryDeps holds what behaviors may need. Nil members disable the
// variants that require them.
type FactoryDeps struct {
	Providers       ProviderSource
	DefaultProvider string
	Tools           domain.ToolExecutor
	TokenCounter    TokenCounter // nil = tiktoken for the agent's model
}

// Factory builds behaviors by kind name.
type Factory struct {
	deps FactoryDeps
}

// NewFactory creates a behavior factory.
func NewFactory(deps FactoryDeps) *Factory {
	return &Factory{deps: deps}
}

// Build returns a fresh behavior for kind. Unknown kinds and missing
// dependencies fail with ErrInvalidConfig.
func (f *Factory) Build(kind string) (Behavior, error) {
	switch kind {
	case domain.AgentKindEcho:
		return NewEchoBehavior(), nil

	case domain.AgentKindTool:
		if f.deps.Tools == nil {
			return nil, domain.NewDomainError("Factory.Build", domain.ErrInvalidConfig, "tool agents need a tool registry")
		}
		return NewToolBehavior(f.deps.Tools), nil

	case domain.AgentKindChat:
		if f.deps.Providers == nil {
			return nil, domain.NewDomainError("Factory.Build", domain.ErrInvalidConfig, "chat agents need an llm provider")
		}
		provider, err := f.deps.Providers.Get(f.deps.DefaultProvider)
		if err != nil {
			return nil, domain.NewDomainError("Factory.Build", domain.ErrInvalidConfig, err.Error())
		}
		opts := []ChatOption{WithChatTools(f.deps.Tools)}
		if f.deps.TokenCounter != nil {
			opts = append(opts, WithTokenCounter(f.deps.TokenCounter))
		}
		return NewChatBehavior(provider, opts...), nil
	}
	return nil, domain.NewDomainError("Factory.Build", domain.ErrUnknownKind, fmt.Sprintf("%q", kind))
}
