package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

const (
	EventAgentCreated          EventType = "agent.created"
	EventAgentRemoved          EventType = "agent.removed"
	EventAgentStatusChanged    EventType = "agent.status_changed"
	EventAgentMessageProcessed EventType = "agent.message_processed"
	EventAgentActionExecuted   EventType = "agent.action_executed"
	EventAgentError            EventType = "agent.error"
	EventAgentHistoryCleared   EventType = "agent.history_cleared"
	EventAgentContextCleared   EventType = "agent.context_cleared"

	EventSchedulerJobFired EventType = "scheduler.job_fired"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	AgentID   string          `json:"agent_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event stamped with the current time. Payload marshal
// failures leave the payload empty.
func NewEvent(t EventType, agentID string, payload any) Event {
	ev := Event{Type: t, Timestamp: time.Now(), AgentID: agentID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
