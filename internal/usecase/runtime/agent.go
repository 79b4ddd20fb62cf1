package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
	"devspace/internal/infra/tracer"
)

// Behavior is the variant-specific half of an agent. The runtime owns state
// and locking; a behavior reads and mutates state only through *State.
type Behavior interface {
	// Kind names the variant (e.g. "chat").
	Kind() string
	// ToolBacked reports whether action must be listed in the agent's tools.
	ToolBacked(action string) bool
	ProcessMessage(ctx context.Context, st *State, message string, msgCtx map[string]domain.Value) (string, error)
	ExecuteAction(ctx context.Context, st *State, action string, params map[string]domain.Value) (map[string]domain.Value, error)
}

// TransitionGuard decides whether a status change is allowed.
type TransitionGuard func(from, to domain.AgentStatus) bool

// StatusObserver is notified after every applied status change.
type StatusObserver func(agentID string, from, to domain.AgentStatus)

// Option configures an Agent at construction.
type Option func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithTransitionGuard restricts status transitions. Without it every
// transition is allowed.
func WithTransitionGuard(g TransitionGuard) Option {
	return func(a *Agent) { a.guard = g }
}

// WithStatusObserver registers a callback for status changes.
func WithStatusObserver(o StatusObserver) Option {
	return func(a *Agent) { a.observer = o }
}

// Agent is one running agent instance: immutable config, mutable state and
// the behavior selected at construction.
type Agent struct {
	cfg      domain.AgentConfig
	behavior Behavior
	state    *State
	callMu   sync.Mutex // serialises ProcessMessage/ExecuteAction on this instance
	inflight atomic.Int32 // supervised calls running or queued on callMu
	guard    TransitionGuard
	observer StatusObserver
	logger   *slog.Logger
	created  time.Time
}

var _ domain.AgentRuntime = (*Agent)(nil)

// New constructs an agent. Omitted config fields take their defaults, the
// status starts idle, and history and context start empty. It never fails.
func New(cfg domain.AgentConfig, behavior Behavior, opts ...Option) *Agent {
	cfg = cfg.WithDefaults()
	a := &Agent{
		cfg:      cfg,
		behavior: behavior,
		state:    newState(newAgentID(cfg.Name), cfg),
		created:  time.Now(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	a.logger = a.logger.With("agent_id", a.state.id)
	return a
}

// ID returns the agent identifier.
func (a *Agent) ID() string { return a.state.id }

// Kind returns the behavior variant name.
func (a *Agent) Kind() string { return a.behavior.Kind() }

// CreatedAt returns the construction time.
func (a *Agent) CreatedAt() time.Time { return a.created }

// Config returns a copy of the configuration.
func (a *Agent) Config() domain.AgentConfig { return a.cfg.Clone() }

// ProcessMessage hands message to the behavior and returns its reply.
// Status is not changed here; callers that track activity do that around the call.
func (a *Agent) ProcessMessage(ctx context.Context, message string, msgCtx map[string]domain.Value) (string, error) {
	return a.processMessage(ctx, nil, message, msgCtx)
}

func (a *Agent) processMessage(ctx context.Context, sc *supervisedCall, message string, msgCtx map[string]domain.Value) (string, error) {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanProcessMessage,
		trace.WithAttributes(
			tracer.StringAttr("agent.id", a.ID()),
			tracer.StringAttr("agent.kind", a.Kind()),
		),
	)

	var reply string
	err := a.run(sc, func() (err error) {
		reply, err = a.behavior.ProcessMessage(ctx, a.state, message, msgCtx)
		return err
	})

	tracer.End(span, err)
	if err != nil {
		a.logger.Debug("process message failed", "error", err)
		return "", domain.WrapOp("Agent.ProcessMessage", err)
	}
	return reply, nil
}

// ExecuteAction runs a named action. Tool-backed actions must be listed in
// the config's tools or the call fails with ErrUnknownAction before the
// behavior runs.
func (a *Agent) ExecuteAction(ctx context.Context, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	return a.executeAction(ctx, nil, action, params)
}

func (a *Agent) executeAction(ctx context.Context, sc *supervisedCall, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanExecuteAction,
		trace.WithAttributes(
			tracer.StringAttr("agent.id", a.ID()),
			tracer.StringAttr("action", action),
		),
	)

	if params == nil {
		params = map[string]domain.Value{}
	}

	var result map[string]domain.Value
	err := a.run(sc, func() (err error) {
		if a.behavior.ToolBacked(action) && !a.cfg.HasTool(action) {
			return domain.NewDomainError("Agent.ExecuteAction", domain.ErrUnknownAction,
				fmt.Sprintf("tool %q is not enabled for this agent", action))
		}
		result, err = a.behavior.ExecuteAction(ctx, a.state, action, params)
		return err
	})

	tracer.End(span, err)
	if err != nil {
		a.logger.Debug("execute action failed", "action", action, "error", err)
		return nil, domain.WrapOp("Agent.ExecuteAction", err)
	}
	if result == nil {
		result = map[string]domain.Value{}
	}
	return result, nil
}

// supervisedCall is a call whose activity is reflected in the agent status.
type supervisedCall struct {
	task string
	gate *callGate
}

// beginCall registers a supervised call before it queues on callMu.
func (a *Agent) beginCall(task string) *supervisedCall {
	a.inflight.Add(1)
	return &supervisedCall{task: task, gate: &callGate{}}
}

// run executes fn under callMu. A supervised call marks the agent active
// with its task once it holds the lock, and settles the status before
// releasing it. A call abandoned while queued never runs.
func (a *Agent) run(sc *supervisedCall, fn func() error) error {
	a.callMu.Lock()
	defer a.callMu.Unlock()
	if sc == nil {
		return fn()
	}

	if !sc.gate.start() {
		// Never ran, so the agent itself did not fail.
		a.callDone(nil)
		return domain.NewDomainError("Agent.run", domain.ErrTimeout, "call abandoned while queued")
	}
	a.UpdateStatus(domain.StatusActive, &sc.task)
	a.state.setGate(sc.gate)
	err := fn()
	a.state.setGate(nil)
	if err == nil && sc.gate.wasAbandoned() {
		err = domain.NewDomainError("Agent.run", domain.ErrTimeout, "result arrived after the deadline")
	}
	a.callDone(err)
	return err
}

// callDone settles the status after a supervised call: error on failure,
// idle once no other supervised call is pending, otherwise unchanged.
func (a *Agent) callDone(err error) {
	pending := a.inflight.Add(-1)
	switch {
	case err != nil:
		a.UpdateStatus(domain.StatusError, nil)
	case pending == 0:
		a.finishTask(domain.StatusIdle)
	}
}

// GetStatus returns a consistent status snapshot.
func (a *Agent) GetStatus() domain.StatusSnapshot { return a.state.Snapshot() }

// Summary returns the status snapshot plus kind and tools.
func (a *Agent) Summary() domain.AgentSummary {
	return domain.AgentSummary{
		StatusSnapshot: a.GetStatus(),
		Kind:           a.Kind(),
		Tools:          a.Config().Tools,
	}
}

// UpdateStatus sets the status. A nil task leaves the current task as it is.
// Unknown statuses and guard rejections are logged and ignored.
func (a *Agent) UpdateStatus(status domain.AgentStatus, task *string) {
	if err := a.Transition(status, task); err != nil {
		a.logger.Warn("status update ignored", "status", status, "error", err)
	}
}

// Transition is UpdateStatus with the rejection reported as ErrInvalidInput.
func (a *Agent) Transition(status domain.AgentStatus, task *string) error {
	return a.transition(status, task, false)
}

// finishTask moves to status and clears the current task.
func (a *Agent) finishTask(status domain.AgentStatus) {
	if err := a.transition(status, nil, true); err != nil {
		a.logger.Warn("status update ignored", "status", status, "error", err)
	}
}

func (a *Agent) transition(status domain.AgentStatus, task *string, clearTask bool) error {
	if !status.IsValid() {
		return domain.NewDomainError("Agent.Transition", domain.ErrInvalidInput, fmt.Sprintf("unknown status %q", status))
	}
	prev, ok := a.state.setStatus(status, task, clearTask, a.guard)
	if !ok {
		return domain.NewDomainError("Agent.Transition", domain.ErrInvalidInput,
			fmt.Sprintf("transition %s -> %s not allowed", prev, status))
	}
	if prev != status {
		a.logger.Debug("status changed", "from", prev, "status", status)
	}
	if a.observer != nil {
		a.observer(a.ID(), prev, status)
	}
	return nil
}

// AddToHistory appends a message. Any role string is accepted.
func (a *Agent) AddToHistory(role, content string) {
	a.state.AppendHistory(domain.Message{Role: role, Content: content})
}

// History returns a copy of the conversation history.
func (a *Agent) History() []domain.Message { return a.state.History() }

// ClearHistory empties the history.
func (a *Agent) ClearHistory() { a.state.ClearHistory() }

// GetContext returns the context value for key.
func (a *Agent) GetContext(key string) (domain.Value, bool) { return a.state.GetContext(key) }

// SetContext stores a context value, overwriting any previous one.
func (a *Agent) SetContext(key string, v domain.Value) { a.state.SetContext(key, v) }

// ClearContext removes all context entries.
func (a *Agent) ClearContext() { a.state.ClearContext() }

// ContextSnapshot returns a copy of the context map.
func (a *Agent) ContextSnapshot() map[string]domain.Value { return a.state.ContextSnapshot() }
