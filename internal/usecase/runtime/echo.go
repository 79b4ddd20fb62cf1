package runtime

import (
	"context"
	"fmt"
	"sort"

	"devspace/internal/domain"
)

// Actions understood by EchoBehavior.
const (
	ActionSetContext   = "set_context"
	ActionGetContext   = "get_context"
	ActionClearHistory = "clear_history"
	ActionContextKeys  = "context_keys"
)

// EchoBehavior is the offline variant: it needs no backend and repeats
// what it is told.
type EchoBehavior struct{}

// NewEchoBehavior creates an echo variant.
func NewEchoBehavior() *EchoBehavior { return &EchoBehavior{} }

func (*EchoBehavior) Kind() string { return domain.AgentKindEcho }

func (*EchoBehavior) ToolBacked(string) bool { return false }

// ProcessMessage echoes message, prefixed with the system prompt when set.
func (*EchoBehavior) ProcessMessage(ctx context.Context, st *State, message string, msgCtx map[string]domain.Value) (string, error) {
	st.MergeContext(msgCtx)

	reply := message
	if prompt := st.Config().SystemPrompt; prompt != "" {
		reply = prompt + ": " + message
	}
	err := st.Commit(ctx, func() {
		st.AppendHistory(
			domain.Message{Role: domain.RoleUser, Content: message},
			domain.Message{Role: domain.RoleAssistant, Content: reply},
		)
	})
	if err != nil {
		return "", err
	}
	return reply, nil
}

func (*EchoBehavior) ExecuteAction(ctx context.Context, st *State, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	switch action {
	case ActionSetContext:
		key, err := stringParam(params, "key")
		if err != nil {
			return nil, err
		}
		if err := st.Commit(ctx, func() { st.SetContext(key, params["value"]) }); err != nil {
			return nil, err
		}
		return map[string]domain.Value{"key": domain.String(key)}, nil

	case ActionGetContext:
		if _, ok := params["key"]; !ok {
			return map[string]domain.Value{"context": domain.Map(st.ContextSnapshot())}, nil
		}
		key, err := stringParam(params, "key")
		if err != nil {
			return nil, err
		}
		v, found := st.GetContext(key)
		return map[string]domain.Value{
			"key":   domain.String(key),
			"value": v,
			"found": domain.Bool(found),
		}, nil

	case ActionClearHistory:
		n := st.HistoryLen()
		if err := st.Commit(ctx, st.ClearHistory); err != nil {
			return nil, err
		}
		return map[string]domain.Value{"cleared": domain.Number(float64(n))}, nil

	case ActionContextKeys:
		snap := st.ContextSnapshot()
		keys := make([]string, 0, len(snap))
		for k := range snap {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		items := make([]domain.Value, len(keys))
		for i, k := range keys {
			items[i] = domain.String(k)
		}
		return map[string]domain.Value{"keys": domain.List(items...)}, nil
	}
	return nil, domain.NewDomainError("EchoBehavior.ExecuteAction", domain.ErrUnknownAction, action)
}

func stringParam(params map[string]domain.Value, name string) (string, error) {
	s, ok := params[name].AsString()
	if !ok || s == "" {
		return "", domain.NewDomainError("EchoBehavior.ExecuteAction", domain.ErrInvalidInput,
			fmt.Sprintf("parameter %q must be a non-empty string", name))
	}
	return s, nil
}
