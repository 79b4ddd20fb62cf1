package chat

import (
	"strings"

	"devspace/internal/adapter/tui/theme"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Starting DevSpace chat" + theme.SymbolEllipsis
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteByte('\n')
	b.WriteString(m.viewport.View())
	b.WriteByte('\n')
	b.WriteString(theme.Divider.Render(strings.Repeat("─", max(m.width, 1))))
	b.WriteByte('\n')
	b.WriteString(m.inputView())
	b.WriteByte('\n')
	b.WriteString(m.statusBarView())
	return b.String()
}

func (m Model) headerView() string {
	title := theme.Header.Render("DevSpace " + theme.SymbolArrowR + " " + m.agentName())
	if m.status.Status == "" {
		return title
	}
	return title + " " + theme.StatusBadge(m.status.Status)
}

func (m Model) inputView() string {
	if m.waiting {
		return m.spinner.View() + " " +
			theme.TextMuted.Render("Waiting for "+m.agentName()+theme.SymbolEllipsis+" (esc to cancel)")
	}
	return m.input.View()
}

func (m Model) statusBarView() string {
	keys := []string{
		theme.StatusKey.Render("enter") + " send",
		theme.StatusKey.Render("/help") + " commands",
		theme.StatusKey.Render("pgup/pgdn") + " scroll",
		theme.StatusKey.Render("ctrl+c") + " quit",
	}
	info := "speed: " + m.speed.String()
	if model := m.status.Model; model != "" {
		info = "model: " + model + " " + theme.SymbolBullet + " " + info
	} else if m.cfg.Model != "" {
		info = "model: " + m.cfg.Model + " " + theme.SymbolBullet + " " + info
	}
	return theme.StatusBar.Width(m.width).Render(strings.Join(keys, "  ") + "  │  " + info)
}

// transcript renders every entry, caching each rendering on the entry.
func (m *Model) transcript() string {
	if len(m.entries) == 0 {
		return theme.TextMuted.Render("No messages yet.")
	}
	parts := make([]string, 0, len(m.entries))
	for i := range m.entries {
		e := &m.entries[i]
		if e.rendered == "" {
			e.rendered = m.renderEntry(*e)
		}
		parts = append(parts, e.rendered)
	}
	return strings.Join(parts, "\n")
}

func (m *Model) renderEntry(e entry) string {
	var label, body string
	switch e.role {
	case roleUser:
		label = theme.UserLabel.Render(theme.SymbolUser)
		body = e.content
	case roleAgent:
		label = theme.AgentLabel.Render(m.agentName())
		body = m.renderMarkdown(e.content)
	case roleError:
		label = theme.ErrorLabel.Render(theme.SymbolError + " Error")
		body = theme.TextError.Render(e.content)
	default:
		label = theme.SystemLabel.Render(theme.SymbolInfo + " DevSpace")
		body = theme.TextMuted.Render(e.content)
	}
	return label + " " + theme.Timestamp.Render(e.at.Format("15:04")) + "\n" + body + "\n"
}

func (m *Model) renderMarkdown(content string) string {
	if m.renderer == nil || content == "" {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}
