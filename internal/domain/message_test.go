package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestMessageJSONRoundTrip(t *testing.T) {
	msg := Message{Role: RoleUser, Content: "hello"}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"role":"user","content":"hello"}` {
		t.Errorf("json = %s", data)
	}

	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != msg {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestChatResponseJSONRoundTrip(t *testing.T) {
	resp := ChatResponse{
		ID:    "resp-1",
		Model: "gpt-3.5-turbo",
		Message: Message{
			Role:    RoleAssistant,
			Content: "hi there",
		},
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 5,
			TotalTokens:      15,
		},
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got ChatResponse
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Message != resp.Message {
		t.Errorf("Message = %+v, want %+v", got.Message, resp.Message)
	}
	if got.Usage.TotalTokens != 15 {
		t.Errorf("TotalTokens = %d, want 15", got.Usage.TotalTokens)
	}
}

func TestIsKnownRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleSystem, true},
		{RoleUser, true},
		{RoleAssistant, true},
		{RoleTool, true},
		{"narrator", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsKnownRole(tt.role); got != tt.want {
			t.Errorf("IsKnownRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestNewEvent(t *testing.T) {
	ev := NewEvent(EventAgentCreated, "bot_1", map[string]string{"kind": "echo"})
	if ev.Type != EventAgentCreated || ev.AgentID != "bot_1" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
	if string(ev.Payload) != `{"kind":"echo"}` {
		t.Errorf("payload = %s", ev.Payload)
	}

	empty := NewEvent(EventAgentRemoved, "bot_1", nil)
	if empty.Payload != nil {
		t.Errorf("payload = %s, want nil", empty.Payload)
	}
}
