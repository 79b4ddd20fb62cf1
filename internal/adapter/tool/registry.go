package tool

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"devspace/internal/domain"
)

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithValidation wraps every registered tool with schema validation.
func WithValidation() RegistryOption {
	return func(r *Registry) { r.validate = true }
}

// WithToolRateLimit wraps every registered tool with a per-tool token bucket.
func WithToolRateLimit(perSecond float64, burst int) RegistryOption {
	return func(r *Registry) {
		r.ratePerSecond = perSecond
		r.rateBurst = burst
	}
}

// Registry holds named tools.
type Registry struct {
	mu     sync.RWMutex
	tools  map[string]domain.Tool
	logger *slog.Logger

	validate      bool
	ratePerSecond float64
	rateBurst     int
}

var _ domain.ToolExecutor = (*Registry)(nil)

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:  make(map[string]domain.Tool),
		logger: logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Returns ErrDuplicate if the name is taken.
// If schema compilation fails, the tool is registered without validation
// and a warning is logged.
func (r *Registry) Register(t domain.Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrDuplicate, fmt.Sprintf("tool %q", name))
	}

	if r.validate {
		wrapped, err := WithSchemaValidation(t)
		if err != nil {
			r.logger.Warn("schema validation disabled for tool", "tool", name, "error", err)
		} else {
			t = wrapped
		}
	}
	t = WithRateLimit(t, r.ratePerSecond, r.rateBurst)

	r.tools[name] = t
	return nil
}

// Get retrieves a tool by name. A miss is ErrUnknownAction.
func (r *Registry) Get(name string) (domain.Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrUnknownAction, fmt.Sprintf("no tool named %q", name))
	}
	return t, nil
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []domain.Tool {
	names := r.Names()
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]domain.Tool, 0, len(names))
	for _, name := range names {
		if t, ok := r.tools[name]; ok {
			tools = append(tools, t)
		}
	}
	return tools
}

// Schemas returns all tool schemas sorted by name.
func (r *Registry) Schemas() []domain.ToolSchema {
	tools := r.List()
	schemas := make([]domain.ToolSchema, len(tools))
	for i, t := range tools {
		schemas[i] = t.Schema()
	}
	return schemas
}
