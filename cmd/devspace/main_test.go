package main

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"devspace/internal/adapter/httpapi"
	"devspace/internal/adapter/llm"
	"devspace/internal/domain"
	"devspace/internal/infra/config"
	"devspace/internal/infra/logger"
)

func tempConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Paths = config.PathsConfig{
		DataDir:   filepath.Join(dir, "data"),
		ModelsDir: filepath.Join(dir, "models"),
		LogsDir:   filepath.Join(dir, "logs"),
	}
	return cfg, filepath.Join(dir, "config.yaml")
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestRootInteractive(t *testing.T) {
	out, err := runRoot(t)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"Welcome to DevSpace!", "DevSpace is ready!", "devspace --mode=server"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRootVersion(t *testing.T) {
	out, err := runRoot(t, "--version")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out, "DevSpace 0.1.0") {
		t.Errorf("version output = %q", out)
	}
}

func TestRootInvalidMode(t *testing.T) {
	if _, err := runRoot(t, "--mode", "bogus"); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Errorf("err = %v, want invalid mode", err)
	}
}

func TestRootCLIModeShowsCommands(t *testing.T) {
	out, err := runRoot(t, "--mode", "cli")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, cmd := range []string{"init", "create", "status", "start", "stop", "deploy", "chat", "doctor"} {
		if !strings.Contains(out, cmd) {
			t.Errorf("help missing %q", cmd)
		}
	}
}

func TestLoadConfigFlagOverrides(t *testing.T) {
	flags := &globalFlags{
		configPath: filepath.Join(t.TempDir(), "missing.yaml"),
		debug:      true,
		host:       "0.0.0.0",
		port:       9001,
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !cfg.Project.Debug || cfg.API.Host != "0.0.0.0" || cfg.API.Port != 9001 {
		t.Errorf("overrides not applied: debug=%v api=%+v", cfg.Project.Debug, cfg.API)
	}
}

func TestRunInit(t *testing.T) {
	cfg, cfgPath := tempConfig(t)
	var out bytes.Buffer

	if err := runInit(&out, cfg, cfgPath, "", false); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.ModelsDir, cfg.Paths.LogsDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", dir)
		}
	}
	loaded, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if loaded.Project.Name != "DevSpace" {
		t.Errorf("project name = %q", loaded.Project.Name)
	}

	out.Reset()
	if err := runInit(&out, cfg, cfgPath, "", false); err != nil {
		t.Fatalf("second runInit: %v", err)
	}
	if !strings.Contains(out.String(), "already exists") {
		t.Errorf("second init should keep the config, got %q", out.String())
	}
}

func TestRunInitComponent(t *testing.T) {
	cfg, cfgPath := tempConfig(t)
	var out bytes.Buffer

	if err := runInit(&out, cfg, cfgPath, "hardware", false); err != nil {
		t.Fatalf("runInit: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.DataDir, "hardware")); err != nil {
		t.Errorf("component dir not created: %v", err)
	}
	if _, err := os.Stat(cfgPath); !os.IsNotExist(err) {
		t.Error("component init should not write the config")
	}

	err := runInit(&out, cfg, cfgPath, "robots", false)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("invalid component err = %v", err)
	}
}

func TestRunCreate(t *testing.T) {
	cfg, _ := tempConfig(t)
	ctx := context.Background()
	a, err := newApp(ctx, cfg, appOptions{quiet: true, discardLogs: true})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	if err := runCreate(ctx, &out, a, "sensor", domain.AgentKindEcho, "hardware", "hello"); err != nil {
		t.Fatalf("runCreate: %v", err)
	}
	text := out.String()
	for _, want := range []string{"Creating hardware component: sensor", "sensor", "echo", "hello", "Component created!"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	ag, err := a.supervisor.Get("sensor")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v, ok := ag.GetContext(contextComponentType); !ok || !v.Equal(domain.String("hardware")) {
		t.Errorf("component type context = %v, %v", v, ok)
	}
}

func TestRunCreateUnknownKind(t *testing.T) {
	cfg, _ := tempConfig(t)
	a, err := newApp(context.Background(), cfg, appOptions{discardLogs: true})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	err = runCreate(context.Background(), &bytes.Buffer{}, a, "x", "robot", "", "")
	if !errors.Is(err, domain.ErrUnknownKind) {
		t.Errorf("err = %v, want ErrUnknownKind", err)
	}
}

func TestProvisionAgents(t *testing.T) {
	cfg, _ := tempConfig(t)
	cfg.Agents = []config.AgentDefinition{
		{Name: "alpha", Kind: domain.AgentKindEcho},
		{Name: "beta", Kind: domain.AgentKindTool, Tools: []string{"clock"}},
	}
	a, err := newApp(context.Background(), cfg, appOptions{discardLogs: true})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	defer a.Close()

	if err := a.provisionAgents(context.Background()); err != nil {
		t.Fatalf("provisionAgents: %v", err)
	}
	if got := len(a.supervisor.List()); got != 2 {
		t.Errorf("agents = %d, want 2", got)
	}
	id, err := chatAgent(context.Background(), a, "", domain.AgentKindEcho)
	if err != nil || !strings.HasPrefix(id, "chat") {
		t.Errorf("chatAgent = %q, %v", id, err)
	}
}

func TestRunLocalStatus(t *testing.T) {
	cfg, cfgPath := tempConfig(t)
	var out bytes.Buffer
	if err := runLocalStatus(&out, cfg, cfgPath); err != nil {
		t.Fatalf("runLocalStatus: %v", err)
	}
	text := out.String()
	for _, want := range []string{"DevSpace Project Status", "Not Running", "Using defaults"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestRunServerStatus(t *testing.T) {
	cfg := config.Defaults()
	cfg.API.RateLimit.Enabled = false
	srv := httpapi.NewServer(httpapi.Deps{Config: cfg, Logger: logger.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts := httptest.NewServer(srv.Handler(ctx))
	defer ts.Close()

	var out bytes.Buffer
	if err := runServerStatus(ctx, &out, ts.URL, ""); err != nil {
		t.Fatalf("runServerStatus: %v", err)
	}
	text := out.String()
	for _, want := range []string{"DevSpace Server Status", "operational", "ai=ready"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}

	if err := runServerStatus(ctx, &out, ts.URL+"/nope", ""); err == nil {
		t.Error("expected an error for a bad base URL")
	}
}

type downProvider struct{}

func (downProvider) Name() string { return "primary" }

func (downProvider) Chat(context.Context, domain.ChatRequest) (*domain.ChatResponse, error) {
	return nil, domain.ErrBackendFailure
}

func TestRunServerStatusDegraded(t *testing.T) {
	cfg := config.Defaults()
	cfg.API.RateLimit.Enabled = false
	reg := llm.NewRegistry()
	cb := llm.NewCircuitBreakerProvider(downProvider{}, config.CircuitBreakerConfig{MaxFailures: 1}, logger.Discard())
	if err := reg.Register(cb); err != nil {
		t.Fatal(err)
	}
	cb.Chat(context.Background(), domain.ChatRequest{})

	srv := httpapi.NewServer(httpapi.Deps{Config: cfg, Providers: reg, Logger: logger.Discard()})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ts := httptest.NewServer(srv.Handler(ctx))
	defer ts.Close()

	var out bytes.Buffer
	if err := runServerStatus(ctx, &out, ts.URL, ""); err != nil {
		t.Fatalf("runServerStatus: %v", err)
	}
	for _, want := range []string{"degraded", "primary=open"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func freeAddr(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return "127.0.0.1", port
}

func TestRunDeploy(t *testing.T) {
	cfg, cfgPath := tempConfig(t)
	cfg.API.Host, cfg.API.Port = freeAddr(t)

	var out bytes.Buffer
	if err := runDeploy(&out, cfg, cfgPath, "local"); err != nil {
		t.Fatalf("runDeploy: %v", err)
	}
	if !strings.Contains(out.String(), "Deployment complete!") {
		t.Errorf("output = %q", out.String())
	}
	if _, err := os.Stat(cfgPath); err != nil {
		t.Errorf("config not written: %v", err)
	}

	if err := runDeploy(&out, cfg, cfgPath, "cluster"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("cluster err = %v", err)
	}
}

func TestDeployPortBusy(t *testing.T) {
	cfg, cfgPath := tempConfig(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	cfg.API.Host = "127.0.0.1"
	cfg.API.Port = ln.Addr().(*net.TCPAddr).Port

	if err := runDeploy(&bytes.Buffer{}, cfg, cfgPath, "local"); err == nil {
		t.Error("expected an error for a busy port")
	}
}

func TestPIDFiles(t *testing.T) {
	cfg, _ := tempConfig(t)

	path, err := writePIDFile(cfg, serviceAPI)
	if err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	pid, err := readPIDFile(path)
	if err != nil || pid != os.Getpid() {
		t.Errorf("readPIDFile = %d, %v", pid, err)
	}
	if running := runningServices(cfg); running[serviceAPI] != os.Getpid() {
		t.Errorf("runningServices = %v", running)
	}
}

func TestStopServicesStalePID(t *testing.T) {
	cfg, _ := tempConfig(t)
	if err := os.MkdirAll(runDir(cfg), 0o755); err != nil {
		t.Fatal(err)
	}
	stale := pidFilePath(cfg, serviceScheduler)
	if err := os.WriteFile(stale, []byte(strconv.Itoa(99999999)), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := stopServices(&out, cfg, ""); err != nil {
		t.Fatalf("stopServices: %v", err)
	}
	if !strings.Contains(out.String(), "stale pid file") {
		t.Errorf("output = %q", out.String())
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale pid file not removed")
	}

	out.Reset()
	if err := stopServices(&out, cfg, serviceAPI); err != nil {
		t.Fatalf("stopServices: %v", err)
	}
	if !strings.Contains(out.String(), "No running api service found.") {
		t.Errorf("output = %q", out.String())
	}
}

func TestValidateChoice(t *testing.T) {
	if err := validateChoice("target", "", deployTargets); err != nil {
		t.Errorf("empty value: %v", err)
	}
	if err := validateChoice("target", "remote", deployTargets); err != nil {
		t.Errorf("valid value: %v", err)
	}
	err := validateChoice("target", "moon", deployTargets)
	if !errors.Is(err, domain.ErrInvalidInput) || !strings.Contains(err.Error(), "local, remote, cluster") {
		t.Errorf("invalid value err = %v", err)
	}
}

func TestRunServicesRejectsUnknownService(t *testing.T) {
	flags := &globalFlags{configPath: filepath.Join(t.TempDir(), "missing.yaml")}
	err := runServices(context.Background(), &bytes.Buffer{}, flags, "gpu")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v", err)
	}
}

func TestAppAuditTrail(t *testing.T) {
	cfg, _ := tempConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.MaxSize = "1MB"
	ctx := context.Background()

	a, err := newApp(ctx, cfg, appOptions{discardLogs: true})
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	ag, err := a.createAgent(ctx, "audited", domain.AgentKindEcho, "")
	if err != nil {
		t.Fatalf("createAgent: %v", err)
	}
	if _, err := a.supervisor.Send(ctx, ag.ID(), "hi", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	a.Close()

	data, err := os.ReadFile(cfg.AuditPath())
	if err != nil {
		t.Fatalf("audit file: %v", err)
	}
	for _, want := range []string{`"type":"agent.created"`, `"type":"agent.message_processed"`, ag.ID()} {
		if !strings.Contains(string(data), want) {
			t.Errorf("audit trail missing %s:\n%s", want, data)
		}
	}
}

func TestAppAuditTrailBadSize(t *testing.T) {
	cfg, _ := tempConfig(t)
	cfg.Audit.Enabled = true
	cfg.Audit.MaxSize = "huge"
	if _, err := newApp(context.Background(), cfg, appOptions{discardLogs: true}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestConfiguredModels(t *testing.T) {
	cfg := config.Defaults()
	cfg.Agent.ModelName = "gpt-4o"
	cfg.Agents = []config.AgentDefinition{
		{Name: "a", Kind: "chat"},
		{Name: "b", Kind: "chat", ModelName: "gpt-4"},
		{Name: "c", Kind: "chat", ModelName: "gpt-4o"},
	}
	got := configuredModels(cfg)
	if strings.Join(got, ",") != "gpt-4o,gpt-4" {
		t.Errorf("models = %v", got)
	}
}
