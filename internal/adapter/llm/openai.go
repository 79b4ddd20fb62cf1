package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/trace"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
	"devspace/internal/infra/tracer"
)

// DefaultOpenAIBaseURL is used when a provider config leaves base_url empty.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1/"

// OpenAIProvider implements domain.LLMProvider for any OpenAI-compatible API.
type OpenAIProvider struct {
	name   string
	model  string
	client openai.Client
	logger *slog.Logger
}

// NewOpenAIProvider creates a provider. The SDK's own retries are disabled;
// the circuit breaker and callers decide what to retry.
func NewOpenAIProvider(cfg config.ProviderConfig, logger *slog.Logger) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []option.RequestOption{
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(newHTTPClient(cfg.Timeout)),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}

	return &OpenAIProvider{
		name:   cfg.Name,
		model:  cfg.Model,
		client: openai.NewClient(opts...),
		logger: logger,
	}
}

// Chat implements domain.LLMProvider.
func (p *OpenAIProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if req.Model == "" {
		req.Model = p.model
	}

	ctx, span := tracer.StartSpan(ctx, tracer.SpanLLMChat,
		trace.WithAttributes(
			tracer.StringAttr("llm.provider", p.name),
			tracer.StringAttr("llm.model", req.Model),
		),
	)
	defer span.End()

	completion, err := p.client.Chat.Completions.New(ctx, toOpenAIParams(req))
	if err != nil {
		err = p.mapError(err)
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(completion.Choices) == 0 {
		err := domain.NewDomainError("OpenAIProvider.Chat", domain.ErrBackendFailure, "no choices in response")
		tracer.RecordError(span, err)
		return nil, err
	}

	result := fromOpenAICompletion(completion)
	setUsageAttrs(span, result.Usage)
	tracer.SetOK(span)
	logChatCompleted(p.logger, p.name, result)

	return result, nil
}

// Name implements domain.LLMProvider.
func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = strings.TrimSpace(apiErr.RawJSON())
		}
		return fmt.Errorf("provider %q: %w", p.name, mapHTTPError(apiErr.StatusCode, msg))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("provider %q: %w: %w: %w", p.name, domain.ErrBackendFailure, domain.ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("provider %q: %w", p.name, err)
	}
	return domain.NewDomainError("OpenAIProvider.Chat", domain.ErrBackendFailure, err.Error())
}

// toOpenAIParams converts a domain request into SDK params. Roles the chat
// API does not accept without extra metadata are sent as user turns.
func toOpenAIParams(req domain.ChatRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case domain.RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		case domain.RoleUser:
			msgs = append(msgs, openai.UserMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(fmt.Sprintf("[%s] %s", m.Role, m.Content)))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(req.Model),
		Messages:    msgs,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	return params
}

func fromOpenAICompletion(c *openai.ChatCompletion) *domain.ChatResponse {
	choice := c.Choices[0]
	created := time.Now()
	if c.Created > 0 {
		created = time.Unix(c.Created, 0)
	}
	return &domain.ChatResponse{
		ID:    c.ID,
		Model: c.Model,
		Message: domain.Message{
			Role:    domain.RoleAssistant,
			Content: choice.Message.Content,
		},
		Usage: domain.Usage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
		CreatedAt: created,
	}
}
