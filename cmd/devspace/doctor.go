package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"devspace/internal/adapter/tui/theme"
	"devspace/internal/infra/config"
)

// CheckStatus is the outcome class of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string
}

// Check is a named health check.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

var errConfigNotLoaded = CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}

func doctorCmd(flags *globalFlags) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run health checks on your setup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cfgErr := loadConfig(flags)
			checks := []Check{
				{Name: "Config file", Fn: checkConfigFile(flags.configPath, cfgErr)},
				{Name: "Directories", Fn: checkDirectories},
				{Name: "LLM API key", Fn: checkLLMAPIKey},
				{Name: "API address", Fn: checkAPIAddress},
				{Name: "Security", Fn: checkSecurity},
				{Name: "Scheduler", Fn: checkScheduler},
			}
			if !offline {
				checks = append(checks, Check{Name: "LLM connectivity", Fn: checkLLMConnectivity})
			}
			return runDoctor(cmd.OutOrStdout(), cfg, checks)
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that need the network")
	return cmd
}

// runDoctor runs every check, prints the results and fails when any check failed.
func runDoctor(out io.Writer, cfg *config.Config, checks []Check) error {
	fmt.Fprintln(out, theme.TextAccent.Render("devspace doctor"))
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintln(out)

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(out, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(out, "      Fix: %s\n", result.Fix)
		}
		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 50))
	fmt.Fprintf(out, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	switch {
	case fail > 0:
		fmt.Fprintln(out, "\nFix the FAIL issues above before running 'devspace start'.")
		return fmt.Errorf("%d check(s) failed", fail)
	case warn > 0:
		fmt.Fprintln(out, "\nDevSpace should work, but consider addressing the warnings.")
	default:
		fmt.Fprintln(out, "\nAll checks passed! DevSpace is ready to run.")
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return theme.TextSuccess.Render("[PASS]")
	case StatusWarn:
		return theme.TextWarning.Render("[WARN]")
	case StatusFail:
		return theme.TextError.Render("[FAIL]")
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loaded. A missing
// file only warns since the defaults are usable.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check " + cfgPath + " syntax, or run 'devspace init --force' to regenerate it",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
				Fix:     "Run 'devspace init' to write one",
			}
		}
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("config loaded from %s", cfgPath)}
	}
}

func checkDirectories(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errConfigNotLoaded
	}
	var missing []string
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ModelsDir, cfg.Paths.LogsDir} {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			missing = append(missing, dir)
		}
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "missing: " + strings.Join(missing, ", "),
			Fix:     "Run 'devspace init'",
		}
	}

	probe := filepath.Join(cfg.Paths.DataDir, ".doctor")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("data directory %s is not writable: %v", cfg.Paths.DataDir, err),
		}
	}
	_ = os.Remove(probe)
	return CheckResult{Status: StatusPass, Message: "data, models and logs directories present"}
}

// checkLLMAPIKey verifies at least one provider has an API key. Without one
// only echo and tool agents work, so a missing key warns.
func checkLLMAPIKey(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errConfigNotLoaded
	}
	if len(cfg.LLM.Providers) == 0 {
		return CheckResult{
			Status:  StatusFail,
			Message: "no LLM providers configured",
			Fix:     "Add a provider under llm.providers in the config",
		}
	}

	var withKey, withoutKey []string
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			withKey = append(withKey, p.Name)
		} else {
			withoutKey = append(withoutKey, p.Name)
		}
	}
	switch {
	case len(withKey) == 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("no API keys for: %s (chat agents unavailable)", strings.Join(withoutKey, ", ")),
			Fix:     "Set OPENAI_API_KEY in the environment or in .env",
		}
	case len(withoutKey) > 0:
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("keys configured for [%s]; missing for [%s]", strings.Join(withKey, ", "), strings.Join(withoutKey, ", ")),
		}
	}
	return CheckResult{Status: StatusPass, Message: "API keys configured for: " + strings.Join(withKey, ", ")}
}

// checkLLMConnectivity tests whether the default provider endpoint answers.
func checkLLMConnectivity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errConfigNotLoaded
	}
	provider, ok := cfg.Provider(cfg.LLM.DefaultProvider)
	if !ok {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("default provider %q not found in config", cfg.LLM.DefaultProvider),
		}
	}
	if provider.APIKey == "" {
		return CheckResult{Status: StatusWarn, Message: "skipped, no API key for the default provider"}
	}

	endpoint := providerEndpoint(provider)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: fmt.Sprintf("failed to create request: %v", err)}
	}
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", endpoint, err),
			Fix:     "Check your network connection and llm base_url",
		}
	}
	resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s rejected the API key (HTTP %d)", provider.Name, resp.StatusCode),
			Fix:     "Verify OPENAI_API_KEY",
		}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%s reachable (latency: %dms)", provider.Name, latency.Milliseconds()),
	}
}

// providerEndpoint returns the models listing URL of an OpenAI-compatible backend.
func providerEndpoint(p config.ProviderConfig) string {
	if p.BaseURL != "" {
		return strings.TrimRight(p.BaseURL, "/") + "/models"
	}
	return "https://api.openai.com/v1/models"
}

func checkAPIAddress(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errConfigNotLoaded
	}
	addr := cfg.API.Addr()
	if running := runningServices(cfg); len(running) > 0 {
		return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%s (services already running)", addr)}
	}
	if err := checkPortFree(addr); err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: err.Error(),
			Fix:     "Pick another port with --port or api.port",
		}
	}
	return CheckResult{Status: StatusPass, Message: addr + " is free"}
}

func checkSecurity(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errConfigNotLoaded
	}
	sec := cfg.Security
	if sec.SecretKey == config.DefaultSecretKey {
		return CheckResult{
			Status:  StatusWarn,
			Message: "using the default secret key",
			Fix:     "Set SECRET_KEY in the environment before exposing the API",
		}
	}
	if !sec.AuthEnabled {
		return CheckResult{Status: StatusPass, Message: "custom secret key set (API auth disabled)"}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("API auth enabled for %d user(s)", len(sec.Users))}
}

// checkScheduler warns about tasks that target agents the config does not provision.
func checkScheduler(cfg *config.Config) CheckResult {
	if cfg == nil {
		return errConfigNotLoaded
	}
	if !cfg.Scheduler.Enabled {
		return CheckResult{Status: StatusPass, Message: "disabled"}
	}
	known := make(map[string]bool, len(cfg.Agents))
	for _, a := range cfg.Agents {
		known[a.Name] = true
	}
	var orphans []string
	for _, t := range cfg.Scheduler.Tasks {
		if !known[t.Agent] {
			orphans = append(orphans, fmt.Sprintf("%s -> %s", t.Name, t.Agent))
		}
	}
	if len(orphans) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "tasks target agents not listed under agents: " + strings.Join(orphans, ", "),
			Fix:     "Add the agents to the config or the tasks will fail with agent not found",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d task(s)", len(cfg.Scheduler.Tasks))}
}
