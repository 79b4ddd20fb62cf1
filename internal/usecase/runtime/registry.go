package runtime

import (
	"io"
	"log/slog"
	"sort"
	"sync"

	"devspace/internal/domain"
)

// Registry holds live agents keyed by ID.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Agent
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Registry{
		agents: make(map[string]*Agent),
		logger: logger,
	}
}

// Register adds an agent. Returns ErrAgentDuplicate if the ID is taken.
func (r *Registry) Register(a *Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := a.ID()
	if _, exists := r.agents[id]; exists {
		return domain.NewDomainError("Registry.Register", domain.ErrAgentDuplicate, id)
	}
	r.agents[id] = a
	r.logger.Info("agent registered", "agent_id", id, "kind", a.Kind())
	return nil
}

// Get returns the agent with the given ID, or ErrAgentNotFound.
func (r *Registry) Get(id string) (*Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]
	if !ok {
		return nil, domain.NewDomainError("Registry.Get", domain.ErrAgentNotFound, id)
	}
	return a, nil
}

// Lookup resolves ref as an agent ID first and then as a config name.
// Name matches prefer the lowest ID.
func (r *Registry) Lookup(ref string) (*Agent, error) {
	if a, err := r.Get(ref); err == nil {
		return a, nil
	}
	for _, a := range r.Agents() {
		if a.cfg.Name == ref {
			return a, nil
		}
	}
	return nil, domain.NewDomainError("Registry.Lookup", domain.ErrAgentNotFound, ref)
}

// Agents returns every registered agent sorted by ID.
func (r *Registry) Agents() []*Agent {
	r.mu.RLock()
	out := make([]*Agent, 0, len(r.agents))
	for _, a := range r.agents {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// List returns a summary for every registered agent, sorted by ID.
func (r *Registry) List() []domain.AgentSummary {
	agents := r.Agents()
	out := make([]domain.AgentSummary, len(agents))
	for i, a := range agents {
		out[i] = a.Summary()
	}
	return out
}

// Remove unregisters an agent and marks it stopped. Returns ErrAgentNotFound
// if not present.
func (r *Registry) Remove(id string) (*Agent, error) {
	r.mu.Lock()
	a, ok := r.agents[id]
	if ok {
		delete(r.agents, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil, domain.NewDomainError("Registry.Remove", domain.ErrAgentNotFound, id)
	}
	a.UpdateStatus(domain.StatusStopped, nil)
	r.logger.Info("agent removed", "agent_id", id)
	return a, nil
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountByStatus tallies registered agents per status.
func (r *Registry) CountByStatus() map[domain.AgentStatus]int {
	counts := make(map[domain.AgentStatus]int, 4)
	for _, a := range r.Agents() {
		counts[a.state.Status()]++
	}
	return counts
}
