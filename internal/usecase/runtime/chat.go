package runtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"devspace/internal/domain"
)

// Non-tool actions understood by ChatBehavior.
const (
	ActionSummarizeHistory = "summarize_history"
	ActionTokenCount       = "token_count"
)

const summarizeInstruction = "Summarize the conversation so far in a few sentences. Keep names, decisions and open questions."

// ChatBehavior answers messages through an LLM provider and keeps the
// exchange in history.
type ChatBehavior struct {
	provider domain.LLMProvider
	tools    domain.ToolExecutor

	counterOnce sync.Once
	counter     TokenCounter
}

// ChatOption configures a ChatBehavior.
type ChatOption func(*ChatBehavior)

// WithTokenCounter overrides the tokenizer used for the history budget.
func WithTokenCounter(c TokenCounter) ChatOption {
	return func(b *ChatBehavior) { b.counter = c }
}

// WithChatTools lets the chat agent run tool actions.
func WithChatTools(t domain.ToolExecutor) ChatOption {
	return func(b *ChatBehavior) { b.tools = t }
}

// NewChatBehavior creates a chat variant backed by provider.
func NewChatBehavior(provider domain.LLMProvider, opts ...ChatOption) *ChatBehavior {
	b := &ChatBehavior{provider: provider}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *ChatBehavior) Kind() string { return domain.AgentKindChat }

// ToolBacked reports true for everything except the built-in chat actions.
func (b *ChatBehavior) ToolBacked(action string) bool {
	return action != ActionSummarizeHistory && action != ActionTokenCount
}

func (b *ChatBehavior) tokenCounter(model string) TokenCounter {
	b.counterOnce.Do(func() {
		if b.counter == nil {
			b.counter = NewTokenCounter(model)
		}
	})
	return b.counter
}

// ProcessMessage merges msgCtx into the agent context, sends the system
// prompt, context and budget-trimmed history to the provider, and records
// the user and assistant turns. History is untouched when the backend fails.
func (b *ChatBehavior) ProcessMessage(ctx context.Context, st *State, message string, msgCtx map[string]domain.Value) (string, error) {
	st.MergeContext(msgCtx)
	cfg := st.Config()

	turn := append(st.History(), domain.Message{Role: domain.RoleUser, Content: message})
	resp, err := b.chat(ctx, cfg, st.ContextSnapshot(), turn)
	if err != nil {
		return "", domain.BackendError("ChatBehavior.ProcessMessage", err)
	}

	reply := resp.Message.Content
	err = st.Commit(ctx, func() {
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

func (b *ChatBehavior) chat(ctx context.Context, cfg domain.AgentConfig, agentCtx map[string]domain.Value, conversation []domain.Message) (*domain.ChatResponse, error) {
	if b.provider == nil {
		return nil, fmt.Errorf("no chat provider configured")
	}
	counter := b.tokenCounter(cfg.ModelName)

	var preamble []domain.Message
	if cfg.SystemPrompt != "" {
		preamble = append(preamble, domain.Message{Role: domain.RoleSystem, Content: cfg.SystemPrompt})
	}
	if len(agentCtx) > 0 {
		preamble = append(preamble, domain.Message{Role: domain.RoleSystem, Content: "Known context: " + renderContext(agentCtx)})
	}
	budget := cfg.MaxTokens - countTokens(counter, preamble)
	msgs := append(preamble, trimToBudget(counter, conversation, budget)...)

	return b.provider.Chat(ctx, domain.ChatRequest{
		Model:       cfg.ModelName,
		Messages:    msgs,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.TemperatureValue(),
	})
}

func renderContext(m map[string]domain.Value) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + m[k].String()
	}
	return strings.Join(parts, ", ")
}

// ExecuteAction handles summarize_history and token_count itself and
// delegates anything else to the tool executor.
func (b *ChatBehavior) ExecuteAction(ctx context.Context, st *State, action string, params map[string]domain.Value) (map[string]domain.Value, error) {
	switch action {
	case ActionSummarizeHistory:
		return b.summarize(ctx, st, params)
	case ActionTokenCount:
		cfg := st.Config()
		history := st.History()
		return map[string]domain.Value{
			"messages": domain.Number(float64(len(history))),
			"tokens":   domain.Number(float64(countTokens(b.tokenCounter(cfg.ModelName), history))),
			"budget":   domain.Number(float64(cfg.MaxTokens)),
		}, nil
	}
	if b.tools == nil {
		return nil, domain.NewDomainError("ChatBehavior.ExecuteAction", domain.ErrUnknownAction, action)
	}
	return runTool(ctx, b.tools, action, params)
}

// summarize asks the provider for a summary of the history. With
// replace=true the history is swapped for a single system message.
func (b *ChatBehavior) summarize(ctx context.Context, st *State, params map[string]domain.Value) (map[string]domain.Value, error) {
	history := st.History()
	if len(history) == 0 {
		return map[string]domain.Value{"summary": domain.String(""), "messages": domain.Number(0)}, nil
	}

	cfg := st.Config()
	cfg.SystemPrompt = summarizeInstruction
	resp, err := b.chat(ctx, cfg, nil, history)
	if err != nil {
		return nil, domain.BackendError("ChatBehavior.summarize", err)
	}
	summary := resp.Message.Content

	replace, _ := params["replace"].AsBool()
	if replace {
		err = st.Commit(ctx, func() {
			st.ClearHistory()
			st.AppendHistory(domain.Message{Role: domain.RoleSystem, Content: "Summary of earlier conversation: " + summary})
		})
		if err != nil {
			return nil, err
		}
	}
	return map[string]domain.Value{
		"summary":  domain.String(summary),
		"messages": domain.Number(float64(len(history))),
		"replaced": domain.Bool(replace),
	}, nil
}
