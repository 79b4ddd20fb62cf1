package runtime

import (
	"context"
	"maps"
	"sync"

	"devspace/internal/domain"
)

// callGate fences the writes of one supervised call against its deadline.
// Whichever of commit and abandon runs first wins.
type callGate struct {
	mu        sync.Mutex
	started   bool
	committed bool
	abandoned bool
}

func (g *callGate) start() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.started = !g.abandoned
	return g.started
}

func (g *callGate) commit() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.abandoned {
		return false
	}
	g.committed = true
	return true
}

// abandon reports whether the call was dropped and whether it had already
// started running. A call that committed cannot be abandoned.
func (g *callGate) abandon() (dropped, started bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.committed {
		return false, g.started
	}
	g.abandoned = true
	return true, g.started
}

func (g *callGate) wasAbandoned() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.abandoned
}

// State is the mutable part of an agent. Every method takes the agent's lock
// for just the read or write it performs; behaviors use it to touch history
// and context without holding the lock across backend calls.
type State struct {
	mu          sync.RWMutex
	id          string
	cfg         domain.AgentConfig
	status      domain.AgentStatus
	currentTask *string
	context     map[string]domain.Value
	history     []domain.Message
	gate        *callGate // set while a supervised call runs
}

func newState(id string, cfg domain.AgentConfig) *State {
	return &State{
		id:      id,
		cfg:     cfg,
		status:  domain.StatusIdle,
		context: make(map[string]domain.Value),
	}
}

// ID returns the agent identifier.
func (s *State) ID() string { return s.id }

// Config returns a copy of the agent configuration.
func (s *State) Config() domain.AgentConfig { return s.cfg.Clone() }

// Snapshot returns the status view.
func (s *State) Snapshot() domain.StatusSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := domain.StatusSnapshot{
		AgentID: s.id,
		Name:    s.cfg.Name,
		Status:  s.status,
		Model:   s.cfg.ModelName,
	}
	if s.currentTask != nil {
		task := *s.currentTask
		snap.CurrentTask = &task
	}
	return snap
}

// Status returns the current lifecycle phase.
func (s *State) Status() domain.AgentStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// setStatus stores status and, when task is non-nil, the current task.
// clearTask resets the current task regardless of task. It returns the
// previous status and whether the guard allowed the change.
func (s *State) setStatus(status domain.AgentStatus, task *string, clearTask bool, guard TransitionGuard) (domain.AgentStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.status
	if guard != nil && !guard(prev, status) {
		return prev, false
	}
	s.status = status
	if clearTask {
		s.currentTask = nil
	} else if task != nil {
		t := *task
		s.currentTask = &t
	}
	return prev, true
}

func (s *State) setGate(g *callGate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = g
}

// Commit runs apply, the final writes of a call, unless the call is already
// over: ctx is done or the supervisor gave up on it at its deadline. In that
// case state is left untouched and an error is returned.
func (s *State) Commit(ctx context.Context, apply func()) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapOp("State.Commit", err)
	}
	s.mu.RLock()
	g := s.gate
	s.mu.RUnlock()
	if g != nil && !g.commit() {
		return domain.NewDomainError("State.Commit", domain.ErrTimeout, "call abandoned at its deadline")
	}
	apply()
	return nil
}

// AppendHistory adds one message to the end of the history.
func (s *State) AppendHistory(msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, msgs...)
}

// History returns a copy of the history in insertion order.
func (s *State) History() []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the number of history entries.
func (s *State) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// ClearHistory empties the history.
func (s *State) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// GetContext returns the value stored under key.
func (s *State) GetContext(key string) (domain.Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.context[key]
	return v, ok
}

// SetContext stores v under key, replacing any previous value.
func (s *State) SetContext(key string, v domain.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context[key] = v
}

// MergeContext stores every entry of values.
func (s *State) MergeContext(values map[string]domain.Value) {
	if len(values) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	maps.Copy(s.context, values)
}

// ClearContext removes every context entry.
func (s *State) ClearContext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.context)
}

// ContextSnapshot returns a copy of the context map.
func (s *State) ContextSnapshot() map[string]domain.Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.context)
}
