package chat

import (
	"context"

	"devspace/internal/domain"
	"devspace/internal/usecase/runtime"
)

// Session is the agent conversation a chat model drives.
type Session interface {
	Send(ctx context.Context, message string) (string, error)
	Act(ctx context.Context, action string, params map[string]domain.Value) (map[string]domain.Value, error)
	Status() (domain.StatusSnapshot, error)
	Context() (map[string]domain.Value, error)
	ClearHistory(ctx context.Context) error
}

// SupervisorSession binds a Session to one supervised agent.
type SupervisorSession struct {
	sup *runtime.Supervisor
	ref string
}

// NewSupervisorSession returns a session for the agent with the given ID or name.
func NewSupervisorSession(sup *runtime.Supervisor, ref string) *SupervisorSession {
	return &SupervisorSession{sup: sup, ref: ref}
}

func (s *SupervisorSession) Send(ctx context.Context, message string) (string, error) {
	return s.sup.Send(ctx, s.ref, message, nil)
}

func (s *SupervisorSession) Act(ctx context.Context, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	return s.sup.Act(ctx, s.ref, action, params)
}

func (s *SupervisorSession) Status() (domain.StatusSnapshot, error) {
	a, err := s.sup.Get(s.ref)
	if err != nil {
		return domain.StatusSnapshot{}, err
	}
	return a.GetStatus(), nil
}

func (s *SupervisorSession) Context() (map[string]domain.Value, error) {
	a, err := s.sup.Get(s.ref)
	if err != nil {
		return nil, err
	}
	return a.ContextSnapshot(), nil
}

func (s *SupervisorSession) ClearHistory(ctx context.Context) error {
	return s.sup.ClearHistory(ctx, s.ref)
}
