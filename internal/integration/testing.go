// Package integration holds end-to-end tests against live model backends.
// They run only with the integration build tag and the matching API key.
package integration

import (
	"context"
	"os"
	"testing"
	"time"
)

// Config holds integration test settings read from the environment.
type Config struct {
	OpenAIKey     string
	OpenAIBaseURL string
	Model         string
	TestTimeout   time.Duration
}

// LoadConfig reads the integration settings from the environment.
func LoadConfig() *Config {
	model := os.Getenv("INTEGRATION_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Config{
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("OPENAI_BASE_URL"),
		Model:         model,
		TestTimeout:   60 * time.Second,
	}
}

// SkipIfNoAPIKey skips the test when key is empty.
func SkipIfNoAPIKey(t *testing.T, key, name string) {
	t.Helper()
	if key == "" {
		t.Skipf("skipping %s integration test: %s_API_KEY not set", name, name)
	}
}

// SkipIfShort skips integration tests in short mode.
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// NewTestContext returns a context cancelled after timeout or at test end.
func NewTestContext(t *testing.T, timeout time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}
