package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"devspace/internal/domain"
)

const maxTaskLen = 80

// SupervisorDeps holds the supervisor's collaborators.
type SupervisorDeps struct {
	Registry    *Registry
	Factory     *Factory
	Bus         domain.EventBus // optional
	Logger      *slog.Logger
	CallTimeout time.Duration // 0 = no deadline
	Guard       TransitionGuard
}

// Supervisor creates agents, routes calls to them and tracks their
// activity in the status field.
type Supervisor struct {
	registry    *Registry
	factory     *Factory
	bus         domain.EventBus
	logger      *slog.Logger
	callTimeout time.Duration
	guard       TransitionGuard
}

// NewSupervisor creates a supervisor.
func NewSupervisor(deps SupervisorDeps) *Supervisor {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Registry == nil {
		deps.Registry = NewRegistry(deps.Logger)
	}
	return &Supervisor{
		registry:    deps.Registry,
		factory:     deps.Factory,
		bus:         deps.Bus,
		logger:      deps.Logger,
		callTimeout: deps.CallTimeout,
		guard:       deps.Guard,
	}
}

// Registry returns the underlying agent registry.
func (s *Supervisor) Registry() *Registry { return s.registry }

// Create validates cfg, builds the behavior for kind and registers a new
// agent. An empty kind selects echo.
func (s *Supervisor) Create(ctx context.Context, cfg domain.AgentConfig, kind string) (*Agent, error) {
	if kind == "" {
		kind = domain.AgentKindEcho
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	behavior, err := s.factory.Build(kind)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithLogger(s.logger),
		WithStatusObserver(func(id string, from, to domain.AgentStatus) {
			if from != to {
				s.emit(ctx, domain.EventAgentStatusChanged, id, map[string]string{
					"from": string(from), "to": string(to),
				})
			}
		}),
	}
	if s.guard != nil {
		opts = append(opts, WithTransitionGuard(s.guard))
	}

	a := New(cfg, behavior, opts...)
	if err := s.registry.Register(a); err != nil {
		return nil, err
	}
	s.emit(ctx, domain.EventAgentCreated, a.ID(), a.Summary())
	return a, nil
}

// Get returns an agent by ID or name.
func (s *Supervisor) Get(ref string) (*Agent, error) {
	return s.registry.Lookup(ref)
}

// List returns summaries of all agents.
func (s *Supervisor) List() []domain.AgentSummary {
	return s.registry.List()
}

// Send delivers message to the agent and returns the reply. The agent is
// active for the duration of the call, then idle on success or error on
// failure.
func (s *Supervisor) Send(ctx context.Context, ref, message string, msgCtx map[string]domain.Value) (string, error) {
	a, err := s.registry.Lookup(ref)
	if err != nil {
		return "", err
	}

	reply, err := track(ctx, s, a, "Supervisor.Send", truncateTask(message), func(ctx context.Context, sc *supervisedCall) (string, error) {
		return a.processMessage(ctx, sc, message, msgCtx)
	})
	if err != nil {
		return "", err
	}
	s.emit(ctx, domain.EventAgentMessageProcessed, a.ID(), map[string]any{
		"message": message,
		"reply":   reply,
	})
	return reply, nil
}

// Act runs a named action on the agent with the same status tracking as Send.
func (s *Supervisor) Act(ctx context.Context, ref, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	a, err := s.registry.Lookup(ref)
	if err != nil {
		return nil, err
	}

	result, err := track(ctx, s, a, "Supervisor.Act", truncateTask(action), func(ctx context.Context, sc *supervisedCall) (map[string]domain.Value, error) {
		return a.executeAction(ctx, sc, action, params)
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, domain.EventAgentActionExecuted, a.ID(), map[string]any{
		"action": action,
		"result": result,
	})
	return result, nil
}

type callResult[T any] struct {
	val T
	err error
}

// track runs call as a supervised call under the configured deadline. The
// agent turns active when the call starts running, not while it queues
// behind another call, and returns to idle only when no supervised call is
// left. Failures keep the task as current_task. A call that overruns the
// deadline is abandoned: its writes to agent state are refused and the
// caller gets ErrTimeout.
func track[T any](ctx context.Context, s *Supervisor, a *Agent, op, task string, call func(context.Context, *supervisedCall) (T, error)) (T, error) {
	var zero T
	sc := a.beginCall(task)

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.callTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
	}
	defer cancel()

	done := make(chan callResult[T], 1)
	go func() {
		v, err := call(callCtx, sc)
		done <- callResult[T]{val: v, err: err}
	}()

	var res callResult[T]
	select {
	case res = <-done:
	case <-callCtx.Done():
		dropped, started := sc.gate.abandon()
		if !dropped {
			// Already committed: the result is on its way.
			res = <-done
			break
		}
		res = callResult[T]{err: callCtx.Err()}
		if started {
			a.UpdateStatus(domain.StatusError, nil)
		}
	}

	if res.err != nil {
		err := s.classify(op, a, callCtx, res.err)
		s.logger.Warn("agent call failed", "agent_id", a.ID(), "op", op, "error", err)
		s.emit(ctx, domain.EventAgentError, a.ID(), map[string]string{
			"op":    op,
			"task":  task,
			"error": err.Error(),
			"code":  string(domain.ErrorCodeOf(err)),
		})
		return zero, err
	}
	return res.val, nil
}

// classify maps deadline expiry to ErrTimeout and caller cancellation to
// ErrCanceled. Other errors pass through.
func (s *Supervisor) classify(op string, a *Agent, callCtx context.Context, err error) error {
	switch {
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		if s.callTimeout > 0 {
			return domain.NewDomainError(op, domain.ErrTimeout, fmt.Sprintf("agent %s did not answer within %s", a.ID(), s.callTimeout))
		}
		return domain.NewDomainError(op, domain.ErrTimeout, fmt.Sprintf("agent %s did not answer before the caller's deadline", a.ID()))
	case errors.Is(callCtx.Err(), context.Canceled), errors.Is(err, context.Canceled):
		return domain.NewDomainError(op, domain.ErrCanceled, fmt.Sprintf("call to agent %s canceled", a.ID()))
	}
	return err
}

// SetStatus applies an explicit status change, reporting guard rejections.
func (s *Supervisor) SetStatus(ref string, status domain.AgentStatus, task *string) (domain.StatusSnapshot, error) {
	a, err := s.registry.Lookup(ref)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	if err := a.Transition(status, task); err != nil {
		return domain.StatusSnapshot{}, err
	}
	return a.GetStatus(), nil
}

// Stop marks the agent stopped. It stays registered.
func (s *Supervisor) Stop(ref string) error {
	_, err := s.SetStatus(ref, domain.StatusStopped, nil)
	return err
}

// Remove stops and unregisters the agent.
func (s *Supervisor) Remove(ctx context.Context, ref string) error {
	a, err := s.registry.Lookup(ref)
	if err != nil {
		return err
	}
	if _, err := s.registry.Remove(a.ID()); err != nil {
		return err
	}
	s.emit(ctx, domain.EventAgentRemoved, a.ID(), nil)
	return nil
}

// ClearHistory empties the agent's history.
func (s *Supervisor) ClearHistory(ctx context.Context, ref string) error {
	a, err := s.registry.Lookup(ref)
	if err != nil {
		return err
	}
	n := len(a.History())
	a.ClearHistory()
	s.emit(ctx, domain.EventAgentHistoryCleared, a.ID(), map[string]int{"cleared": n})
	return nil
}

// ClearContext empties the agent's context.
func (s *Supervisor) ClearContext(ctx context.Context, ref string) error {
	a, err := s.registry.Lookup(ref)
	if err != nil {
		return err
	}
	a.ClearContext()
	s.emit(ctx, domain.EventAgentContextCleared, a.ID(), nil)
	return nil
}

// StopAll marks every agent stopped. Used on shutdown.
func (s *Supervisor) StopAll() {
	for _, a := range s.registry.Agents() {
		a.UpdateStatus(domain.StatusStopped, nil)
	}
}

func (s *Supervisor) emit(ctx context.Context, t domain.EventType, agentID string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.WithoutCancel(ctx), domain.NewEvent(t, agentID, payload))
}

func truncateTask(s string) string {
	r := []rune(s)
	if len(r) <= maxTaskLen {
		return s
	}
	return string(r[:maxTaskLen-3]) + "..."
}
