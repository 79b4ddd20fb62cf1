package llm

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(&mockProvider{name: "b"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&mockProvider{name: "a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&mockProvider{name: "a"}); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("expected ErrDuplicate, got %v", err)
	}

	if p, err := r.Get("a"); err != nil || p.Name() != "a" {
		t.Errorf("Get(a) = %v, %v", p, err)
	}
	if _, err := r.Get("zzz"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	names := r.List()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("List() = %v", names)
	}
}

func TestBuildRegistry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.LLMConfig{
		DefaultProvider: "openai",
		Providers: []config.ProviderConfig{
			{Name: "openai", Type: "openai"},
			{Name: "local", Type: "openai", BaseURL: "http://localhost:11434/v1"},
		},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true},
	}

	reg, err := BuildRegistry(cfg, logger)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	p, err := reg.Get("local")
	if err != nil {
		t.Fatalf("Get(local): %v", err)
	}
	if _, ok := p.(*CircuitBreakerProvider); !ok {
		t.Errorf("provider type = %T, want circuit breaker wrapper", p)
	}

	cfg.CircuitBreaker.Enabled = false
	reg, err = BuildRegistry(cfg, logger)
	if err != nil {
		t.Fatalf("BuildRegistry: %v", err)
	}
	p, _ = reg.Get("openai")
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("provider type = %T, want *OpenAIProvider", p)
	}

	cfg.Providers = append(cfg.Providers, config.ProviderConfig{Name: "x", Type: "carrier-pigeon"})
	if _, err := BuildRegistry(cfg, logger); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Errorf("unknown type: expected ErrInvalidConfig, got %v", err)
	}

	cfg.Providers = []config.ProviderConfig{{Name: "dup"}, {Name: "dup"}}
	if _, err := BuildRegistry(cfg, logger); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate: expected ErrDuplicate, got %v", err)
	}
}
