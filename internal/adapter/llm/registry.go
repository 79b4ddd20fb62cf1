package llm

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

// Provider types understood by BuildRegistry.
const (
	ProviderTypeOpenAI = "openai"
)

// Registry holds named LLM providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]domain.LLMProvider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]domain.LLMProvider),
	}
}

// Register adds a provider. Returns ErrDuplicate if the name is taken.
func (r *Registry) Register(provider domain.LLMProvider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := provider.Name()
	if _, exists := r.providers[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("provider %q", name))
	}
	r.providers[name] = provider
	return nil
}

// Get retrieves a provider by name.
func (r *Registry) Get(name string) (domain.LLMProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrNotFound, fmt.Sprintf("provider %q", name))
	}
	return p, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Health reports every provider sorted by name. Providers registered
// without a breaker show BreakerNone.
func (r *Registry) Health() []ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProviderHealth, 0, len(r.providers))
	for name, p := range r.providers {
		if cb, ok := p.(*CircuitBreakerProvider); ok {
			out = append(out, cb.Health())
			continue
		}
		out = append(out, ProviderHealth{Name: name, Breaker: BreakerNone})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuildRegistry creates a provider per configured backend, each wrapped in a
// circuit breaker when enabled.
func BuildRegistry(cfg config.LLMConfig, logger *slog.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, pc := range cfg.Providers {
		var p domain.LLMProvider
		switch pc.Type {
		case ProviderTypeOpenAI, "":
			p = NewOpenAIProvider(pc, logger)
		default:
			return nil, domain.NewDomainError("llm.BuildRegistry", domain.ErrInvalidConfig,
				fmt.Sprintf("provider %q: unknown type %q", pc.Name, pc.Type))
		}
		if cfg.CircuitBreaker.Enabled {
			p = NewCircuitBreakerProvider(p, cfg.CircuitBreaker, logger)
		}
		if err := reg.Register(p); err != nil {
			return nil, err
		}
		logger.Debug("llm provider registered", "name", pc.Name, "type", pc.Type, "base_url", pc.BaseURL)
	}
	return reg, nil
}
