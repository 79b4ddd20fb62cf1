// Package chat implements the interactive terminal chat with a single agent.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"devspace/internal/adapter/tui/theme"
	"devspace/internal/adapter/tui/uxerror"
	"devspace/internal/domain"
)

// header, divider, input and status bar rows.
const chromeHeight = 4

const helpText = `Commands:
  /help                   show this help
  /status                 show the agent's status
  /context                show the agent's context
  /act <action> [json]    run an action, e.g. /act set_context {"key":"k","value":1}
  /clear                  clear the conversation history
  /speed                  cycle reply speed (normal, fast, instant)
  /cancel                 cancel the pending request
  /quit                   exit`

type role int

const (
	roleUser role = iota
	roleAgent
	roleSystem
	roleError
)

type entry struct {
	role     role
	content  string
	at       time.Time
	rendered string // cached, reset when content or width changes
}

// Config configures a chat Model.
type Config struct {
	Session   Session
	AgentName string
	Model     string
	// MarkdownStyle names a glamour standard style. Empty detects the
	// terminal background.
	MarkdownStyle string
	// Speed is the initial reply speed. The zero value reveals replies at once.
	Speed  StreamSpeed
	Logger *slog.Logger
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	cfg      Config
	logger   *slog.Logger
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer

	entries []entry
	status  domain.StatusSnapshot
	speed   StreamSpeed
	tw      typewriter

	// gen identifies the in-flight request; replies with an older gen are dropped.
	gen     uint64
	cancel  context.CancelFunc
	waiting bool

	width, height int
	ready         bool
	quitting      bool
	now           func() time.Time
}

// NewModel creates a chat model for cfg.Session.
func NewModel(cfg Config) Model {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ti := textinput.New()
	ti.Placeholder = "Message the agent, or /help"
	ti.Prompt = theme.InputPrompt.Render(theme.SymbolArrowR) + " "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.TextInfo

	m := Model{
		cfg:     cfg,
		logger:  logger,
		input:   ti,
		spinner: sp,
		speed:   cfg.Speed,
		now:     time.Now,
	}
	m.refreshStatus()
	m.appendEntry(roleSystem, fmt.Sprintf("Chatting with %s. Type /help for commands.", m.agentName()))
	return m
}

// Run starts the chat program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, cfg Config) error {
	p := tea.NewProgram(NewModel(cfg), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	final, err := p.Run()
	if m, ok := final.(Model); ok && m.cancel != nil {
		m.cancel()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case ReplyMsg:
		return m.handleReply(msg)

	case ActionResultMsg:
		return m.handleActionResult(msg)

	case streamTickMsg:
		return m.handleStreamTick(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancelRequest()
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit

	case tea.KeyEsc:
		if m.waiting {
			m.cancelRequest()
		}
		return m, nil

	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		if value == "" {
			return m, nil
		}
		isCommand := strings.HasPrefix(value, "/")
		if m.waiting && !isCommand {
			return m, nil
		}
		m.input.Reset()
		if isCommand {
			return m.runCommand(value)
		}
		return m.submit(value)

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit(message string) (tea.Model, tea.Cmd) {
	m.flushStream()
	m.appendEntry(roleUser, message)
	ctx := m.beginRequest()
	return m, sendCmd(ctx, m.cfg.Session, message, m.gen)
}

func (m Model) handleReply(msg ReplyMsg) (tea.Model, tea.Cmd) {
	if msg.Gen != m.gen {
		return m, nil
	}
	m.endRequest()
	m.refreshStatus()
	if msg.Err != nil {
		m.appendError(msg.Err)
		return m, nil
	}
	return m.startStream(msg.Reply)
}

func (m Model) handleActionResult(msg ActionResultMsg) (tea.Model, tea.Cmd) {
	if msg.Gen != m.gen {
		return m, nil
	}
	m.endRequest()
	m.refreshStatus()
	if msg.Err != nil {
		m.appendError(msg.Err)
		return m, nil
	}
	if msg.Result == nil {
		msg.Result = map[string]domain.Value{}
	}
	body, err := json.MarshalIndent(msg.Result, "", "  ")
	if err != nil {
		m.appendError(err)
		return m, nil
	}
	m.appendEntry(roleAgent, fmt.Sprintf("**%s**\n\n```json\n%s\n```", msg.Action, body))
	return m, nil
}

func (m Model) startStream(reply string) (tea.Model, tea.Cmd) {
	n, tick := m.speed.chunk()
	if n == 0 || reply == "" {
		m.appendEntry(roleAgent, reply)
		return m, nil
	}
	m.appendEntry(roleAgent, "")
	m.tw.runes = []rune(reply)
	m.tw.pos = 0
	return m, streamTickCmd(tick, m.gen)
}

func (m Model) handleStreamTick(msg streamTickMsg) (tea.Model, tea.Cmd) {
	if msg.Gen != m.gen || !m.tw.active() {
		return m, nil
	}
	n, tick := m.speed.chunk()
	text, done := m.tw.advance(n)
	m.setLast(text)
	if done {
		m.tw.reset()
		return m, nil
	}
	return m, streamTickCmd(tick, m.gen)
}

// flushStream reveals the rest of a reply that is still streaming.
func (m *Model) flushStream() {
	if !m.tw.active() {
		return
	}
	text, _ := m.tw.advance(0)
	m.setLast(text)
	m.tw.reset()
}

func (m *Model) beginRequest() context.Context {
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.waiting = true
	return ctx
}

func (m *Model) endRequest() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.waiting = false
}

func (m *Model) cancelRequest() {
	m.endRequest()
	m.gen++
	m.appendEntry(roleSystem, "Request cancelled.")
}

func (m Model) runCommand(line string) (tea.Model, tea.Cmd) {
	name, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(name) {
	case "/help":
		m.appendEntry(roleSystem, helpText)

	case "/quit", "/exit":
		if m.waiting {
			m.endRequest()
		}
		m.quitting = true
		return m, tea.Quit

	case "/cancel":
		if !m.waiting {
			m.appendEntry(roleSystem, "Nothing to cancel.")
			break
		}
		m.cancelRequest()

	case "/clear":
		if m.waiting {
			m.appendEntry(roleSystem, "Wait for the current reply or /cancel it first.")
			break
		}
		if err := m.cfg.Session.ClearHistory(context.Background()); err != nil {
			m.appendError(err)
			break
		}
		m.flushStream()
		m.entries = nil
		m.appendEntry(roleSystem, "Conversation cleared.")

	case "/status":
		m.refreshStatus()
		m.appendEntry(roleSystem, m.statusText())

	case "/context":
		m.appendEntry(roleSystem, m.contextText())

	case "/act":
		return m.runAction(rest)

	case "/speed":
		m.speed = m.speed.Next()
		m.appendEntry(roleSystem, "Reply speed: "+m.speed.String())

	default:
		m.appendEntry(roleError, fmt.Sprintf("Unknown command %s. Type /help for the list.", name))
	}
	return m, nil
}

func (m Model) runAction(args string) (tea.Model, tea.Cmd) {
	if m.waiting {
		m.appendEntry(roleSystem, "Wait for the current reply or /cancel it first.")
		return m, nil
	}
	action, raw, _ := strings.Cut(args, " ")
	if action == "" {
		m.appendEntry(roleError, "Usage: /act <action> [json params]")
		return m, nil
	}
	var params map[string]domain.Value
	if raw = strings.TrimSpace(raw); raw != "" {
		var err error
		if params, err = domain.ValuesFromJSON([]byte(raw)); err != nil {
			m.appendError(domain.NewDomainError("chat.act", domain.ErrInvalidInput, "params must be a JSON object"))
			return m, nil
		}
	}
	m.flushStream()
	m.appendEntry(roleUser, "/act "+args)
	ctx := m.beginRequest()
	return m, actCmd(ctx, m.cfg.Session, action, params, m.gen)
}

func (m *Model) refreshStatus() {
	snap, err := m.cfg.Session.Status()
	if err != nil {
		m.logger.Debug("chat: status unavailable", "error", err)
		return
	}
	m.status = snap
}

func (m Model) statusText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent:  %s (%s)\n", m.status.Name, m.status.AgentID)
	fmt.Fprintf(&b, "Status: %s\n", theme.StatusBadge(m.status.Status))
	if m.status.CurrentTask != nil {
		fmt.Fprintf(&b, "Task:   %s\n", *m.status.CurrentTask)
	}
	fmt.Fprintf(&b, "Model:  %s", m.status.Model)
	return b.String()
}

func (m Model) contextText() string {
	snap, err := m.cfg.Session.Context()
	if err != nil {
		return uxerror.Humanize(err).Render()
	}
	if len(snap) == 0 {
		return "Context is empty."
	}
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys)+1)
	lines = append(lines, "Context:")
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("  %s %s = %s", theme.SymbolBullet, k, snap[k].String()))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) appendError(err error) {
	m.logger.Debug("chat: request failed", "error", err)
	m.appendEntry(roleError, uxerror.Humanize(err).Render())
}

func (m *Model) appendEntry(r role, content string) {
	m.entries = append(m.entries, entry{role: r, content: content, at: m.now()})
	m.refresh()
}

// setLast replaces the content of the newest entry.
func (m *Model) setLast(content string) {
	if len(m.entries) == 0 {
		return
	}
	last := &m.entries[len(m.entries)-1]
	last.content = content
	last.rendered = ""
	m.refresh()
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	vpHeight := max(height-chromeHeight, 1)
	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}
	m.input.Width = max(width-4, 10)
	m.renderer = newRenderer(m.cfg.MarkdownStyle, theme.Clamp(width-4, 20, theme.MaxContentWidth))
	for i := range m.entries {
		m.entries[i].rendered = ""
	}
	m.refresh()
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) agentName() string {
	if m.status.Name != "" {
		return m.status.Name
	}
	if m.cfg.AgentName != "" {
		return m.cfg.AgentName
	}
	return "agent"
}

func newRenderer(style string, width int) *glamour.TermRenderer {
	styleOpt := glamour.WithAutoStyle()
	if style != "" {
		styleOpt = glamour.WithStandardStyle(style)
	}
	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
	if err != nil {
		return nil
	}
	return r
}
