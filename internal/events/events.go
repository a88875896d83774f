package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the chat lifecycle.
const (
	TypeChatCreated             = "chat.created"
	TypeChatClaimed             = "chat.claimed"
	TypeAssignmentInconsistency = "assignment.inconsistency"
)

// Event is a lifecycle notification for external consumers.
type Event struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	ChatID  string          `json:"chat_id"`
	AgentID string          `json:"agent_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Time    time.Time       `json:"time"`
}

// New creates an event with a fresh ID and the current timestamp.
func New(eventType, chatID, agentID string) *Event {
	return &Event{
		ID:      uuid.NewString(),
		Type:    eventType,
		ChatID:  chatID,
		AgentID: agentID,
		Time:    time.Now().UTC(),
	}
}

// ChatPayload is the chat state carried by chat.created and chat.claimed.
type ChatPayload struct {
	Assigned  bool      `json:"assigned"`
	IsUrgent  bool      `json:"is_urgent"`
	CreatedAt time.Time `json:"created_at"`
}

// InconsistencyPayload carries the store failure behind assignment.inconsistency.
type InconsistencyPayload struct {
	Error string `json:"error"`
}

// WithPayload attaches a JSON payload to the event.
func (e *Event) WithPayload(v any) (*Event, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	e.Payload = data
	return e, nil
}

// Publisher emits lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event *Event) error
	Close() error
}

// Nop discards every event. Used when no event sink is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *Event) error { return nil }

func (Nop) Close() error { return nil }
