package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"devspace/internal/adapter/httpapi"
	"devspace/internal/adapter/tui/chat"
	"devspace/internal/adapter/tui/theme"
	"devspace/internal/domain"
	"devspace/internal/infra/config"
)

func initCmd(flags *globalFlags) *cobra.Command {
	var component string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize DevSpace components",
		Long:  "Create the project directories and write a default config file when none exists.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runInit(cmd.OutOrStdout(), cfg, flags.configPath, component, force)
		},
	}
	cmd.Flags().StringVar(&component, "component", "", "component to initialize: ai, data, hardware, or workflow")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func runInit(out io.Writer, cfg *config.Config, cfgPath, component string, force bool) error {
	if err := validateChoice("component", component, componentTypes); err != nil {
		return err
	}
	if component != "" {
		fmt.Fprintf(out, "Initializing %s%s\n", component, theme.SymbolEllipsis)
		dir := filepath.Join(cfg.Paths.DataDir, component)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		fmt.Fprintf(out, "  %s %s\n", theme.SymbolArrowR, dir)
		fmt.Fprintln(out, theme.TextSuccess.Render(theme.SymbolSuccess+" Initialization complete!"))
		return nil
	}

	fmt.Fprintf(out, "Initializing DevSpace project%s\n", theme.SymbolEllipsis)
	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ModelsDir, cfg.Paths.LogsDir} {
		fmt.Fprintf(out, "  %s %s/\n", theme.SymbolArrowR, dir)
	}

	_, statErr := os.Stat(cfgPath)
	switch {
	case statErr == nil && !force:
		fmt.Fprintf(out, "  %s %s already exists (use --force to overwrite)\n", theme.SymbolInfo, cfgPath)
	case statErr == nil || errors.Is(statErr, fs.ErrNotExist):
		if err := config.Save(config.Defaults(), cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s %s\n", theme.SymbolArrowR, cfgPath)
	default:
		return fmt.Errorf("stat %s: %w", cfgPath, statErr)
	}
	fmt.Fprintln(out, theme.TextSuccess.Render(theme.SymbolSuccess+" Initialization complete!"))
	return nil
}

func createCmd(flags *globalFlags) *cobra.Command {
	var componentType, kind, message string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an agent and show its status",
		Long: "Construct an agent in a local runtime and print its status. With --message the agent\n" +
			"processes one message first. Agents created here live only for this command; list them\n" +
			"under 'agents:' in the config to provision them with 'devspace start'.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateChoice("type", componentType, componentTypes); err != nil {
				return err
			}
			if err := validateChoice("kind", kind, domain.AgentKinds()); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, appOptions{quiet: true})
			if err != nil {
				return err
			}
			defer a.Close()
			return runCreate(cmd.Context(), cmd.OutOrStdout(), a, args[0], kind, componentType, message)
		},
	}
	cmd.Flags().StringVar(&componentType, "type", "", "component type: ai, data, hardware, or workflow")
	cmd.Flags().StringVar(&kind, "kind", "", "agent kind: "+strings.Join(domain.AgentKinds(), ", ")+" (default from config)")
	cmd.Flags().StringVar(&message, "message", "", "send one message to the new agent")
	return cmd
}

func runCreate(ctx context.Context, out io.Writer, a *app, name, kind, componentType, message string) error {
	if componentType != "" {
		fmt.Fprintf(out, "Creating %s component: %s\n", componentType, name)
	} else {
		fmt.Fprintf(out, "Creating component: %s\n", name)
	}
	ag, err := a.createAgent(ctx, name, kind, componentType)
	if err != nil {
		return err
	}

	var reply string
	if message != "" {
		if reply, err = a.supervisor.Send(ctx, ag.ID(), message, nil); err != nil {
			return err
		}
	}

	sum := ag.Summary()
	rows := [][2]string{
		{"ID", sum.AgentID},
		{"Name", sum.Name},
		{"Kind", sum.Kind},
		{"Model", sum.Model},
		{"Status", theme.StatusBadge(sum.Status)},
	}
	if componentType != "" {
		rows = append(rows, [2]string{"Type", componentType})
	}
	if len(sum.Tools) > 0 {
		rows = append(rows, [2]string{"Tools", strings.Join(sum.Tools, ", ")})
	}
	if message != "" {
		rows = append(rows, [2]string{"Reply", reply})
	}
	fmt.Fprintln(out, theme.Panel.Render(renderRows(rows)))
	fmt.Fprintln(out, theme.TextSuccess.Render(theme.SymbolSuccess+" Component created!"))
	return nil
}

func statusCmd(flags *globalFlags) *cobra.Command {
	var server bool
	var url, token string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show DevSpace project status",
		Long:  "Show the local project status, or with --server the status reported by a running API server.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if server {
				if url == "" {
					url = "http://" + cfg.API.Addr()
				}
				return runServerStatus(cmd.Context(), cmd.OutOrStdout(), url, token)
			}
			return runLocalStatus(cmd.OutOrStdout(), cfg, flags.configPath)
		},
	}
	cmd.Flags().BoolVar(&server, "server", false, "query the running API server")
	cmd.Flags().StringVar(&url, "url", "", "API server base URL (default from config)")
	cmd.Flags().StringVar(&token, "token", os.Getenv("DEVSPACE_TOKEN"), "bearer token for the API server")
	return cmd
}

func runLocalStatus(out io.Writer, cfg *config.Config, cfgPath string) error {
	check := func(ok bool, yes, no string) string {
		if ok {
			return theme.TextSuccess.Render(theme.SymbolSuccess) + " " + yes
		}
		return theme.TextMuted.Render(theme.SymbolStopped) + " " + no
	}
	_, cfgErr := os.Stat(cfgPath)

	dirsOK := true
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ModelsDir, cfg.Paths.LogsDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			dirsOK = false
		}
	}

	running := runningServices(cfg)
	names := make([]string, 0, len(running))
	for name, pid := range running {
		names = append(names, fmt.Sprintf("%s (pid %d)", name, pid))
	}
	sort.Strings(names)

	keyed := 0
	for _, p := range cfg.LLM.Providers {
		if p.APIKey != "" {
			keyed++
		}
	}

	rows := [][2]string{
		{"Project", fmt.Sprintf("%s %s (%s)", cfg.Project.Name, cfg.Project.Version, cfg.Project.Environment)},
		{"Project Structure", check(dirsOK, "Complete", "Missing directories (run 'devspace init')")},
		{"Configuration", check(cfgErr == nil, "Ready ("+cfgPath+")", "Using defaults (no "+cfgPath+")")},
		{"Services", check(len(names) > 0, "Running: "+strings.Join(names, ", "), "Not Running")},
		{"Agents", fmt.Sprintf("%d configured", len(cfg.Agents))},
		{"AI Models", check(keyed > 0,
			fmt.Sprintf("%d of %d provider(s) have an API key", keyed, len(cfg.LLM.Providers)),
			"No API key configured (chat agents unavailable)")},
		{"Scheduler", check(cfg.Scheduler.Enabled,
			fmt.Sprintf("Enabled, %d task(s)", len(cfg.Scheduler.Tasks)), "Disabled")},
	}
	fmt.Fprintln(out, theme.TextAccent.Render("DevSpace Project Status"))
	fmt.Fprintln(out, theme.Panel.Render(renderRows(rows)))
	return nil
}

func runServerStatus(ctx context.Context, out io.Writer, baseURL, token string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/v1/status", nil)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr httpapi.ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	var st httpapi.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	comps := make([]string, 0, len(st.Components))
	for name, state := range st.Components {
		comps = append(comps, name+"="+state)
	}
	sort.Strings(comps)

	byStatus := make([]string, 0, len(st.Agents.ByStatus))
	for status, n := range st.Agents.ByStatus {
		byStatus = append(byStatus, fmt.Sprintf("%s %d", status, n))
	}
	sort.Strings(byStatus)

	agents := fmt.Sprintf("%d", st.Agents.Total)
	if len(byStatus) > 0 {
		agents += " (" + strings.Join(byStatus, ", ") + ")"
	}
	overall := theme.TextSuccess.Render(st.OverallStatus)
	if st.OverallStatus != "operational" {
		overall = theme.TextWarning.Render(st.OverallStatus)
	}
	rows := [][2]string{
		{"System", fmt.Sprintf("%s %s (%s)", st.System, st.Version, st.Environment)},
		{"Overall", overall},
		{"Components", strings.Join(comps, ", ")},
		{"Agents", agents},
		{"Tools", strings.Join(st.Tools, ", ")},
		{"Uptime", (time.Duration(st.UptimeSeconds) * time.Second).String()},
	}
	if len(st.Providers) > 0 {
		llms := make([]string, 0, len(st.Providers))
		for _, p := range st.Providers {
			llms = append(llms, p.Name+"="+p.Breaker)
		}
		rows = append(rows, [2]string{"Providers", strings.Join(llms, ", ")})
	}
	fmt.Fprintln(out, theme.TextAccent.Render("DevSpace Server Status ")+theme.TextMuted.Render(baseURL))
	fmt.Fprintln(out, theme.Panel.Render(renderRows(rows)))
	return nil
}

var deployTargets = []string{"local", "remote", "cluster"}

func deployCmd(flags *globalFlags) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy DevSpace to a target environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateChoice("target", target, deployTargets); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return runDeploy(cmd.OutOrStdout(), cfg, flags.configPath, target)
		},
	}
	cmd.Flags().StringVar(&target, "target", "local", "target environment: local, remote, or cluster")
	return cmd
}

// runDeploy prepares the local machine to run the services. Remote and
// cluster targets need an orchestrator this build does not ship.
func runDeploy(out io.Writer, cfg *config.Config, cfgPath, target string) error {
	fmt.Fprintf(out, "Deploying to %s environment%s\n", target, theme.SymbolEllipsis)
	if target != "local" {
		return domain.NewDomainError("deploy", domain.ErrInvalidInput,
			fmt.Sprintf("target %q is not supported; run 'devspace start' on the target host instead", target))
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := config.EnsureDirs(cfg); err != nil {
		return err
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		if err := config.Save(config.Defaults(), cfgPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "  %s wrote %s\n", theme.SymbolArrowR, cfgPath)
	}
	if err := checkPortFree(cfg.API.Addr()); err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s %s is free\n", theme.SymbolArrowR, cfg.API.Addr())
	fmt.Fprintln(out, theme.TextSuccess.Render(theme.SymbolSuccess+" Deployment complete!")+
		" Run 'devspace start' to launch the services.")
	return nil
}

func checkPortFree(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is not available: %w", addr, err)
	}
	return ln.Close()
}

func chatCmd(flags *globalFlags) *cobra.Command {
	var kind, name string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with an agent in the terminal",
		Long: "Open an interactive chat with a local agent. --agent picks an agent listed in the\n" +
			"config; otherwise a new agent of --kind is created.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateChoice("kind", kind, domain.AgentKinds()); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, appOptions{discardLogs: true})
			if err != nil {
				return err
			}
			defer a.Close()

			ref, err := chatAgent(ctx, a, name, kind)
			if err != nil {
				return err
			}
			snap, err := chat.NewSupervisorSession(a.supervisor, ref).Status()
			if err != nil {
				return err
			}
			return exitOnCancel(ctx, chat.Run(ctx, chat.Config{
				Session:   chat.NewSupervisorSession(a.supervisor, ref),
				AgentName: snap.Name,
				Model:     snap.Model,
				Speed:     chat.StreamNormal,
				Logger:    a.log,
			}))
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "kind of the new agent: "+strings.Join(domain.AgentKinds(), ", "))
	cmd.Flags().StringVar(&name, "agent", "", "configured agent to chat with")
	return cmd
}

// chatAgent provisions the configured agents and returns the ID of the one
// to chat with.
func chatAgent(ctx context.Context, a *app, name, kind string) (string, error) {
	if name != "" {
		if err := a.provisionAgents(ctx); err != nil {
			return "", err
		}
		ag, err := a.supervisor.Get(name)
		if err != nil {
			return "", err
		}
		return ag.ID(), nil
	}
	ag, err := a.createAgent(ctx, "chat", kind, "")
	if err != nil {
		return "", err
	}
	return ag.ID(), nil
}

var rowLabel = lipgloss.NewStyle().Foreground(theme.ColorMuted).Width(18)

func renderRows(rows [][2]string) string {
	lines := make([]string, 0, len(rows))
	for _, r := range rows {
		lines = append(lines, rowLabel.Render(r[0])+r[1])
	}
	return strings.Join(lines, "\n")
}
