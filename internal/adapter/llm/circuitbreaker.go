package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

// Breaker states as reported by Health. A provider without a breaker
// reports BreakerNone.
const (
	BreakerClosed   = "closed"
	BreakerHalfOpen = "half-open"
	BreakerOpen     = "open"
	BreakerNone     = "none"
)

// ProviderHealth is a point-in-time view of one backend.
type ProviderHealth struct {
	Name                string `json:"name"`
	Breaker             string `json:"breaker"`
	ConsecutiveFailures uint32 `json:"consecutive_failures"`
	Requests            uint32 `json:"requests"`
}

// Healthy is false only while the breaker is open.
func (h ProviderHealth) Healthy() bool { return h.Breaker != BreakerOpen }

// CircuitBreakerProvider fails fast once its backend has failed MaxFailures
// times in a row, and lets a single probe through after Timeout.
type CircuitBreakerProvider struct {
	inner   domain.LLMProvider
	breaker *gobreaker.CircuitBreaker[*domain.ChatResponse]
}

// NewCircuitBreakerProvider wraps inner. Zero settings fall back to 5
// failures, a 30s open period and a 60s counting window.
func NewCircuitBreakerProvider(inner domain.LLMProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker[*domain.ChatResponse](breakerSettings(inner.Name(), cfg, logger)),
	}
}

func breakerSettings(name string, cfg config.CircuitBreakerConfig, logger *slog.Logger) gobreaker.Settings {
	maxFailures := cmp(cfg.MaxFailures, 5)
	return gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    cmp(cfg.Interval, 60*time.Second),
		Timeout:     cmp(cfg.Timeout, 30*time.Second),
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= maxFailures },
		OnStateChange: func(breaker string, from, to gobreaker.State) {
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelWarn
			}
			logger.Log(context.Background(), level, "llm breaker state changed",
				"breaker", breaker, "from", stateName(from), "to", stateName(to))
		},
		// Cancelled calls, rejected keys and bad requests are the caller's
		// problem, not a sign the backend is down.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, domain.ErrAuthBackend) ||
				errors.Is(err, domain.ErrInvalidInput)
		},
	}
}

func cmp[T comparable](v, fallback T) T {
	var zero T
	if v == zero {
		return fallback
	}
	return v
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return BreakerOpen
	case gobreaker.StateHalfOpen:
		return BreakerHalfOpen
	default:
		return BreakerClosed
	}
}

// Chat forwards to the wrapped provider unless the circuit is open, in which
// case it fails with ErrBackendFailure without calling the backend.
func (p *CircuitBreakerProvider) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	resp, err := p.breaker.Execute(func() (*domain.ChatResponse, error) {
		return p.inner.Chat(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewDomainError("CircuitBreakerProvider.Chat", domain.ErrBackendFailure,
			fmt.Sprintf("%s unavailable (%s)", p.inner.Name(), err))
	}
	return resp, err
}

func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

// Health reports the breaker state and counters.
func (p *CircuitBreakerProvider) Health() ProviderHealth {
	counts := p.breaker.Counts()
	return ProviderHealth{
		Name:                p.inner.Name(),
		Breaker:             stateName(p.breaker.State()),
		ConsecutiveFailures: counts.ConsecutiveFailures,
		Requests:            counts.Requests,
	}
}

var _ domain.LLMProvider = (*CircuitBreakerProvider)(nil)
