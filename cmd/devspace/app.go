package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"devspace/internal/adapter/llm"
	"devspace/internal/adapter/tool"
	"devspace/internal/domain"
	"devspace/internal/infra/config"
	"devspace/internal/infra/logger"
	"devspace/internal/infra/tracer"
	"devspace/internal/security"
	"devspace/internal/usecase/eventbus"
	"devspace/internal/usecase/runtime"
)

// app holds the wired runtime shared by the commands.
type app struct {
	cfg        *config.Config
	log        *slog.Logger
	bus        *eventbus.Bus
	providers  *llm.Registry
	tools      *tool.Registry
	supervisor *runtime.Supervisor
	cleanups   []func()
}

type appOptions struct {
	// quiet raises the log level to warn unless debug is on.
	quiet bool
	// discardLogs drops log output unless it goes to a file.
	discardLogs bool
}

// newApp wires config, logging, tracing, backends, tools, the event bus and
// the supervisor. Close releases them in reverse order.
func newApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	a := &app{cfg: cfg}

	if opts.quiet && !cfg.Project.Debug {
		cfg.Logger.Level = "warn"
	}
	switch {
	case opts.discardLogs && !strings.EqualFold(cfg.Logger.Output, logger.FileOutput):
		a.log = logger.Discard()
	default:
		log, closeLog, err := logger.FromConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("logger: %w", err)
		}
		a.log = log
		a.cleanups = append(a.cleanups, func() { _ = closeLog() })
	}

	shutdownTracer, err := tracer.Setup(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tracer: %w", err)
	}
	a.cleanups = append(a.cleanups, func() { _ = shutdownTracer(context.WithoutCancel(ctx)) })

	a.providers, err = llm.BuildRegistry(cfg.LLM, a.log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("llm: %w", err)
	}

	a.tools, err = tool.NewBuiltinRegistry(cfg, a.log)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("tools: %w", err)
	}

	a.bus = eventbus.New(a.log)
	if cfg.Audit.Enabled {
		if err := a.openAudit(ctx); err != nil {
			a.bus.Close()
			a.Close()
			return nil, fmt.Errorf("audit: %w", err)
		}
	}
	a.cleanups = append(a.cleanups, a.bus.Close)

	for _, model := range configuredModels(cfg) {
		runtime.NewTokenCounter(model)
	}

	a.supervisor = runtime.NewSupervisor(runtime.SupervisorDeps{
		Factory: runtime.NewFactory(runtime.FactoryDeps{
			Providers:       a.providers,
			DefaultProvider: cfg.Agent.Provider,
			Tools:           a.tools,
		}),
		Bus:         a.bus,
		Logger:      a.log,
		CallTimeout: cfg.Agent.CallTimeout,
	})
	a.cleanups = append(a.cleanups, a.supervisor.StopAll)

	a.log.Debug("runtime wired",
		"providers", a.providers.List(),
		"tools", a.tools.Names(),
		"agents", len(cfg.Agents))
	return a, nil
}

// openAudit attaches the audit trail to the bus. Its cleanup is registered
// before the bus drain so in-flight events still reach the file.
func (a *app) openAudit(ctx context.Context) error {
	maxSize, err := security.ParseSize(a.cfg.Audit.MaxSize)
	if err != nil {
		return err
	}
	trail, err := security.OpenAuditTrail(a.cfg.AuditPath(), a.log.With("component", "audit"))
	if err != nil {
		return err
	}
	trail.SetRetention(security.RetentionPolicy{MaxAge: a.cfg.Audit.MaxAge, MaxSize: maxSize})
	if _, err := trail.EnforceRetention(ctx); err != nil {
		a.log.Warn("audit retention failed", "error", err)
	}
	unsub := trail.Attach(a.bus)
	a.cleanups = append(a.cleanups, func() {
		unsub()
		_ = trail.Close()
	})
	return nil
}

// provisionAgents creates every agent listed in the config.
func (a *app) provisionAgents(ctx context.Context) error {
	for _, def := range a.cfg.Agents {
		ag, err := a.supervisor.Create(ctx, def.AgentConfig(a.cfg.Agent), def.Kind)
		if err != nil {
			return fmt.Errorf("provision agent %q: %w", def.Name, err)
		}
		a.log.Info("agent provisioned", "id", ag.ID(), "name", def.Name, "kind", ag.Kind())
	}
	return nil
}

// createAgent builds one agent from a name, kind and optional component type.
func (a *app) createAgent(ctx context.Context, name, kind, componentType string) (*runtime.Agent, error) {
	if kind == "" {
		kind = a.cfg.Agent.DefaultKind
	}
	ag, err := a.supervisor.Create(ctx, a.cfg.Agent.Apply(domain.AgentConfig{Name: name}), kind)
	if err != nil {
		return nil, err
	}
	if componentType != "" {
		ag.SetContext(contextComponentType, domain.String(componentType))
	}
	return ag, nil
}

// Close runs the cleanups in reverse order.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

const contextComponentType = "component_type"

var componentTypes = []string{"ai", "data", "hardware", "workflow"}

func validateChoice(flag, value string, choices []string) error {
	if value == "" {
		return nil
	}
	for _, c := range choices {
		if value == c {
			return nil
		}
	}
	return domain.NewDomainError("cli", domain.ErrInvalidInput,
		fmt.Sprintf("invalid --%s %q (want one of %s)", flag, value, strings.Join(choices, ", ")))
}

// exitOnCancel turns a cancelled context into a clean exit.
func exitOnCancel(ctx context.Context, err error) error {
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// configuredModels lists the default model and each preset agent's model
// once, in config order.
func configuredModels(cfg *config.Config) []string {
	seen := map[string]bool{}
	var models []string
	add := func(m string) {
		if m != "" && !seen[m] {
			seen[m] = true
			models = append(models, m)
		}
	}
	add(cfg.Agent.ModelName)
	for _, def := range cfg.Agents {
		add(def.ModelName)
	}
	return models
}
