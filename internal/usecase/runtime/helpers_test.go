package runtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"

	"devspace/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider records requests and answers with a fixed reply or error.
type fakeProvider struct {
	mu       sync.Mutex
	reply    string
	err      error
	block    chan struct{} // when non-nil, Chat waits on it or ctx
	started  chan struct{} // when non-nil, closed on the first call
	once     sync.Once
	requests []domain.ChatRequest
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.started != nil {
		p.once.Do(func() { close(p.started) })
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return &domain.ChatResponse{
		Model:   req.Model,
		Message: domain.Message{Role: domain.RoleAssistant, Content: p.reply},
	}, nil
}

func (p *fakeProvider) lastRequest() domain.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[len(p.requests)-1]
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

type fakeProviders map[string]domain.LLMProvider

func (f fakeProviders) Get(name string) (domain.LLMProvider, error) {
	p, ok := f[name]
	if !ok {
		return nil, domain.NewDomainError("fakeProviders.Get", domain.ErrNotFound, name)
	}
	return p, nil
}

// fakeTool echoes its params back as Data.
type fakeTool struct {
	name string
	err  error
	last json.RawMessage
}

func (t *fakeTool) Name() string        { return t.name }
func (t *fakeTool) Description() string { return "fake " + t.name }
func (t *fakeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Description: t.Description(), Parameters: json.RawMessage(`{"type":"object"}`)}
}

func (t *fakeTool) Execute(_ context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	t.last = params
	if t.err != nil {
		return nil, t.err
	}
	data, err := domain.ValuesFromJSON(params)
	if err != nil {
		return nil, err
	}
	return &domain.ToolResult{Content: t.name + " ok", Data: data}, nil
}

type fakeTools map[string]domain.Tool

func (f fakeTools) Get(name string) (domain.Tool, error) {
	t, ok := f[name]
	if !ok {
		return nil, domain.NewDomainError("fakeTools.Get", domain.ErrUnknownAction, name)
	}
	return t, nil
}

func (f fakeTools) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(f))
	for _, t := range f {
		out = append(out, t.Schema())
	}
	return out
}

func strPtr(s string) *string { return &s }
