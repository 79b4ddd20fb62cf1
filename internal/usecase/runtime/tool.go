package runtime

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
	"devspace/internal/infra/tracer"
)

// ToolBehavior turns messages and actions into tool invocations.
type ToolBehavior struct {
	tools domain.ToolExecutor
}

// NewToolBehavior creates a tool variant over tools.
func NewToolBehavior(tools domain.ToolExecutor) *ToolBehavior {
	return &ToolBehavior{tools: tools}
}

func (b *ToolBehavior) Kind() string { return domain.AgentKindTool }

// ToolBacked is true for every action.
func (b *ToolBehavior) ToolBacked(string) bool { return true }

// ProcessMessage parses "<tool> <json-args>" and returns the tool output.
// The exchange is recorded with the tool output under the "tool" role.
func (b *ToolBehavior) ProcessMessage(ctx context.Context, st *State, message string, msgCtx map[string]domain.Value) (string, error) {
	st.MergeContext(msgCtx)

	name, args, err := parseToolMessage(message)
	if err != nil {
		return "", err
	}
	if !st.Config().HasTool(name) {
		return "", domain.NewDomainError("ToolBehavior.ProcessMessage", domain.ErrUnknownAction,
			fmt.Sprintf("tool %q is not enabled for this agent", name))
	}

	result, err := runTool(ctx, b.tools, name, args)
	if err != nil {
		return "", err
	}
	content, _ := result["content"].AsString()
	err = st.Commit(ctx, func() {
		st.AppendHistory(
			domain.Message{Role: domain.RoleUser, Content: message},
			domain.Message{Role: domain.RoleTool, Content: content},
		)
		st.SetContext("last_tool", domain.String(name))
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

// ExecuteAction runs the tool named by action with params as arguments.
func (b *ToolBehavior) ExecuteAction(ctx context.Context, st *State, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	result, err := runTool(ctx, b.tools, action, params)
	if err != nil {
		return nil, err
	}
	if err := st.Commit(ctx, func() { st.SetContext("last_tool", domain.String(action)) }); err != nil {
		return nil, err
	}
	return result, nil
}

// parseToolMessage splits "<tool> <json-args>". Arguments are optional.
func parseToolMessage(message string) (string, map[string]domain.Value, error) {
	name, rest, _ := strings.Cut(strings.TrimSpace(message), " ")
	if name == "" {
		return "", nil, domain.NewDomainError("ToolBehavior.ProcessMessage", domain.ErrInvalidInput,
			`expected "<tool> <json-args>"`)
	}
	args, err := domain.ValuesFromJSON([]byte(rest))
	if err != nil {
		return "", nil, domain.WrapOp("ToolBehavior.ProcessMessage", err)
	}
	return name, args, nil
}

// runTool looks up and executes a tool. Lookup misses surface as
// ErrUnknownAction; unclassified execution failures as ErrBackendFailure.
func runTool(ctx context.Context, tools domain.ToolExecutor, name string, params map[string]domain.Value) (map[string]domain.Value, error) {
	ctx, span := tracer.StartSpan(ctx, tracer.SpanToolExecute,
		trace.WithAttributes(tracer.StringAttr("tool.name", name)),
	)
	var err error
	defer func() { tracer.End(span, err) }()

	if tools == nil {
		err = domain.NewDomainError("runTool", domain.ErrUnknownAction, name)
		return nil, err
	}
	tool, lookupErr := tools.Get(name)
	if lookupErr != nil {
		err = lookupErr
		if !errors.Is(err, domain.ErrUnknownAction) {
			err = domain.NewDomainError("runTool", domain.ErrUnknownAction, lookupErr.Error())
		}
		return nil, err
	}

	raw, err := domain.ValuesToJSON(params)
	if err != nil {
		err = domain.NewDomainError("runTool", domain.ErrInvalidInput, err.Error())
		return nil, err
	}
	res, execErr := tool.Execute(ctx, raw)
	if execErr != nil {
		err = classifyToolError(name, execErr)
		return nil, err
	}

	out := map[string]domain.Value{
		"tool":     domain.String(name),
		"content":  domain.String(res.Content),
		"is_error": domain.Bool(res.IsError),
	}
	if len(res.Data) > 0 {
		out["data"] = domain.Map(res.Data)
	}
	return out, nil
}

func classifyToolError(name string, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrUnknownAction),
		errors.Is(err, domain.ErrBackendFailure),
		errors.Is(err, domain.ErrTimeout):
		return domain.WrapOp("tool "+name, err)
	default:
		return domain.BackendError("tool "+name, err)
	}
}
