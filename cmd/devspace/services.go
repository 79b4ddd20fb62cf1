package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"devspace/internal/adapter/httpapi"
	"devspace/internal/adapter/tui/theme"
	"devspace/internal/infra/config"
	"devspace/internal/usecase/scheduling"
)

const (
	serviceAll       = "all"
	serviceAPI       = "api"
	serviceScheduler = "scheduler"
)

var services = []string{serviceAll, serviceAPI, serviceScheduler}

func startCmd(flags *globalFlags) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start DevSpace services",
		Long: "Start the HTTP API and the agent scheduler, provisioning the agents listed in the config.\n" +
			"Runs in the foreground until interrupted.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServices(cmd.Context(), cmd.OutOrStdout(), flags, service)
		},
	}
	cmd.Flags().StringVar(&service, "service", serviceAll, "service to start: all, api, or scheduler")
	return cmd
}

func stopCmd(flags *globalFlags) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop DevSpace services started with 'devspace start'",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateChoice("service", service, services); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			return stopServices(cmd.OutOrStdout(), cfg, service)
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "service to stop (default: every running service)")
	return cmd
}

// runServices runs the requested services until ctx ends or a signal arrives.
func runServices(ctx context.Context, out io.Writer, flags *globalFlags, service string) error {
	if err := validateChoice("service", service, services); err != nil {
		return err
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.provisionAgents(ctx); err != nil {
		return err
	}

	pidPath, err := writePIDFile(cfg, service)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	var sched *scheduling.Scheduler
	if service != serviceAPI && (cfg.Scheduler.Enabled || service == serviceScheduler) {
		sched = scheduling.NewScheduler(a.supervisor, a.bus, a.log.With("component", "scheduler"))
		if err := sched.LoadTasks(cfg.Scheduler.Tasks); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("scheduler: %w", err)
		}
		defer sched.Stop()
		fmt.Fprintf(out, "%s Scheduler running with %d task(s)\n", theme.SymbolSuccess, len(sched.Tasks()))
	}

	if service == serviceScheduler {
		fmt.Fprintln(out, "Press Ctrl+C to stop.")
		<-ctx.Done()
		return nil
	}

	deps := httpapi.Deps{
		Config:     cfg,
		Supervisor: a.supervisor,
		Tools:      a.tools,
		Events:     a.bus,
		Providers:  a.providers,
		Logger:     a.log.With("component", "api"),
	}
	if sched != nil {
		deps.Scheduler = sched
	}
	srv := httpapi.NewServer(deps)

	fmt.Fprintf(out, "Starting HTTP server on %s%s\n", cfg.API.Addr(), theme.SymbolEllipsis)
	a.log.Info("devspace starting",
		"version", cfg.Project.Version,
		"environment", cfg.Project.Environment,
		"addr", cfg.API.Addr(),
		"agents", len(a.supervisor.List()),
		"auth", cfg.Security.AuthEnabled)
	return exitOnCancel(ctx, srv.Start(ctx))
}

func runDir(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.DataDir, "run")
}

func pidFilePath(cfg *config.Config, service string) string {
	return filepath.Join(runDir(cfg), "devspace-"+service+".pid")
}

func writePIDFile(cfg *config.Config, service string) (string, error) {
	if err := os.MkdirAll(runDir(cfg), 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	path := pidFilePath(cfg, service)
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write pid file: %w", err)
	}
	return path, nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s", path)
	}
	return pid, nil
}

// runningServices maps each service with a pid file to its pid.
func runningServices(cfg *config.Config) map[string]int {
	matches, _ := filepath.Glob(filepath.Join(runDir(cfg), "devspace-*.pid"))
	out := make(map[string]int, len(matches))
	for _, m := range matches {
		pid, err := readPIDFile(m)
		if err != nil {
			continue
		}
		name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), "devspace-"), ".pid")
		out[name] = pid
	}
	return out
}

// stopServices signals every matching service and removes stale pid files.
func stopServices(out io.Writer, cfg *config.Config, service string) error {
	running := runningServices(cfg)
	stopped := 0
	for name, pid := range running {
		if service != "" && name != service {
			continue
		}
		proc, err := os.FindProcess(pid)
		if err == nil {
			err = proc.Signal(syscall.SIGTERM)
		}
		switch {
		case errors.Is(err, os.ErrProcessDone) || errors.Is(err, syscall.ESRCH):
			_ = os.Remove(pidFilePath(cfg, name))
			fmt.Fprintf(out, "%s %s was not running (removed stale pid file)\n", theme.SymbolWarning, name)
		case err != nil:
			return fmt.Errorf("stop %s (pid %d): %w", name, pid, err)
		default:
			stopped++
			fmt.Fprintf(out, "Stopping %s service (pid %d)%s\n", name, pid, theme.SymbolEllipsis)
		}
	}
	if stopped == 0 {
		if service != "" {
			fmt.Fprintf(out, "No running %s service found.\n", service)
		} else {
			fmt.Fprintln(out, "No running DevSpace services found.")
		}
		return nil
	}
	fmt.Fprintln(out, theme.TextSuccess.Render(theme.SymbolSuccess+" Services stopped!"))
	return nil
}
