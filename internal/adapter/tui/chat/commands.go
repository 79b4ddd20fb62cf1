package chat

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"devspace/internal/domain"
)

func sendCmd(ctx context.Context, s Session, message string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		reply, err := s.Send(ctx, message)
		return ReplyMsg{Reply: reply, Err: err, Gen: gen}
	}
}

func actCmd(ctx context.Context, s Session, action string, params map[string]domain.Value, gen uint64) tea.Cmd {
	return func() tea.Msg {
		result, err := s.Act(ctx, action, params)
		return ActionResultMsg{Action: action, Result: result, Err: err, Gen: gen}
	}
}

func streamTickCmd(d time.Duration, gen uint64) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return streamTickMsg{Gen: gen}
	})
}
