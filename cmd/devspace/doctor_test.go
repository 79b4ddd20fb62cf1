package main

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"devspace/internal/infra/config"
)

func TestCheckConfigFile(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(existing, []byte("project:\n  name: x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		cfgErr error
		want   CheckStatus
	}{
		{"load error", existing, errors.New("yaml: bad indent"), StatusFail},
		{"missing file", filepath.Join(dir, "nope.yaml"), nil, StatusWarn},
		{"loaded", existing, nil, StatusPass},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checkConfigFile(tt.path, tt.cfgErr)(nil)
			if got.Status != tt.want {
				t.Errorf("status = %s, want %s (%s)", got.Status, tt.want, got.Message)
			}
		})
	}
}

func TestCheckDirectories(t *testing.T) {
	cfg, _ := tempConfig(t)
	if got := checkDirectories(cfg); got.Status != StatusWarn {
		t.Errorf("before init: status = %s", got.Status)
	}
	if err := config.EnsureDirs(cfg); err != nil {
		t.Fatal(err)
	}
	if got := checkDirectories(cfg); got.Status != StatusPass {
		t.Errorf("after init: status = %s (%s)", got.Status, got.Message)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.DataDir, ".doctor")); !os.IsNotExist(err) {
		t.Error("probe file left behind")
	}
}

func TestCheckLLMAPIKey(t *testing.T) {
	if got := checkLLMAPIKey(nil); got.Status != StatusFail {
		t.Errorf("nil config: status = %s", got.Status)
	}

	cfg := config.Defaults()
	cfg.LLM.Providers = nil
	if got := checkLLMAPIKey(cfg); got.Status != StatusFail {
		t.Errorf("no providers: status = %s", got.Status)
	}

	cfg.LLM.Providers = []config.ProviderConfig{{Name: "openai"}, {Name: "local"}}
	if got := checkLLMAPIKey(cfg); got.Status != StatusWarn || !strings.Contains(got.Message, "openai, local") {
		t.Errorf("no keys: %+v", got)
	}

	cfg.LLM.Providers[0].APIKey = "sk-test"
	if got := checkLLMAPIKey(cfg); got.Status != StatusWarn || !strings.Contains(got.Message, "missing for [local]") {
		t.Errorf("partial keys: %+v", got)
	}

	cfg.LLM.Providers[1].APIKey = "sk-local"
	if got := checkLLMAPIKey(cfg); got.Status != StatusPass {
		t.Errorf("all keys: %+v", got)
	}
}

func TestCheckLLMConnectivity(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/v1/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if gotAuth != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	defer ts.Close()

	cfg := config.Defaults()
	cfg.LLM.DefaultProvider = "openai"
	cfg.LLM.Providers = []config.ProviderConfig{{Name: "openai", Type: "openai", BaseURL: ts.URL + "/v1/"}}

	if got := checkLLMConnectivity(cfg); got.Status != StatusWarn {
		t.Errorf("no key: status = %s", got.Status)
	}

	cfg.LLM.Providers[0].APIKey = "good"
	if got := checkLLMConnectivity(cfg); got.Status != StatusPass {
		t.Errorf("good key: %+v", got)
	}
	if gotAuth != "Bearer good" {
		t.Errorf("Authorization = %q", gotAuth)
	}

	cfg.LLM.Providers[0].APIKey = "bad"
	if got := checkLLMConnectivity(cfg); got.Status != StatusFail || !strings.Contains(got.Message, "HTTP 401") {
		t.Errorf("bad key: %+v", got)
	}

	cfg.LLM.DefaultProvider = "missing"
	if got := checkLLMConnectivity(cfg); got.Status != StatusFail {
		t.Errorf("unknown provider: status = %s", got.Status)
	}
}

func TestProviderEndpoint(t *testing.T) {
	if got := providerEndpoint(config.ProviderConfig{}); got != "https://api.openai.com/v1/models" {
		t.Errorf("default endpoint = %q", got)
	}
	if got := providerEndpoint(config.ProviderConfig{BaseURL: "http://localhost:11434/v1/"}); got != "http://localhost:11434/v1/models" {
		t.Errorf("custom endpoint = %q", got)
	}
}

func TestCheckSecurity(t *testing.T) {
	cfg := config.Defaults()
	cfg.Security.SecretKey = config.DefaultSecretKey
	if got := checkSecurity(cfg); got.Status != StatusWarn {
		t.Errorf("default key: status = %s", got.Status)
	}

	cfg.Security.SecretKey = "a-much-longer-custom-secret-value"
	cfg.Security.AuthEnabled = false
	if got := checkSecurity(cfg); got.Status != StatusPass || !strings.Contains(got.Message, "auth disabled") {
		t.Errorf("custom key: %+v", got)
	}
}

func TestCheckScheduler(t *testing.T) {
	cfg := config.Defaults()
	cfg.Scheduler.Enabled = false
	if got := checkScheduler(cfg); got.Status != StatusPass || got.Message != "disabled" {
		t.Errorf("disabled: %+v", got)
	}

	cfg.Scheduler.Enabled = true
	cfg.Agents = []config.AgentDefinition{{Name: "worker", Kind: "echo"}}
	cfg.Scheduler.Tasks = []config.ScheduledTaskConfig{
		{Name: "ping", Agent: "worker", Schedule: "@every 1m", Message: "ping"},
	}
	if got := checkScheduler(cfg); got.Status != StatusPass {
		t.Errorf("known agent: %+v", got)
	}

	cfg.Scheduler.Tasks = append(cfg.Scheduler.Tasks,
		config.ScheduledTaskConfig{Name: "report", Agent: "ghost", Schedule: "@daily", Message: "report"})
	got := checkScheduler(cfg)
	if got.Status != StatusWarn || !strings.Contains(got.Message, "report -> ghost") {
		t.Errorf("orphan task: %+v", got)
	}
}

func TestRunDoctor(t *testing.T) {
	pass := Check{Name: "ok", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusPass, Message: "fine"} }}
	warn := Check{Name: "meh", Fn: func(*config.Config) CheckResult {
		return CheckResult{Status: StatusWarn, Message: "hmm", Fix: "do a thing"}
	}}
	fail := Check{Name: "bad", Fn: func(*config.Config) CheckResult { return CheckResult{Status: StatusFail, Message: "broken"} }}

	var out bytes.Buffer
	if err := runDoctor(&out, nil, []Check{pass, warn}); err != nil {
		t.Fatalf("warnings only: %v", err)
	}
	text := out.String()
	for _, want := range []string{"[PASS] ok: fine", "[WARN] meh: hmm", "Fix: do a thing", "1 passed, 1 warnings, 0 failed"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	out.Reset()
	err := runDoctor(&out, nil, []Check{pass, fail, fail})
	if err == nil || !strings.Contains(err.Error(), "2 check(s) failed") {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(out.String(), "1 passed, 0 warnings, 2 failed") {
		t.Errorf("summary missing:\n%s", out.String())
	}
}
