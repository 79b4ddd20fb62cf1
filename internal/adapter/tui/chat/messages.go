package chat

import "devspace/internal/domain"

// ReplyMsg carries an agent's reply to a chat message.
type ReplyMsg struct {
	Reply string
	Err   error
	Gen   uint64
}

// ActionResultMsg carries the result of a /act command.
type ActionResultMsg struct {
	Action string
	Result map[string]domain.Value
	Err    error
	Gen    uint64
}

// streamTickMsg reveals the next chunk of a reply.
type streamTickMsg struct {
	Gen uint64
}
