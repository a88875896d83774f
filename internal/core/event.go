package core

import "github.com/vovakirdan/wiredesk/internal/store"

// EventKind is a notification the core emits to sessions.
type EventKind int

const (
	// EventNewMessage notifies sessions about a persisted message in their chat room.
	EventNewMessage EventKind = iota
	// EventError notifies a session about a domain error.
	EventError
	// EventSubscribed confirms the session now receives ChatID's messages.
	EventSubscribed
	// EventUnsubscribed confirms the session left every room.
	EventUnsubscribed
)

// Event is sent to sessions to describe what happened in the system.
type Event struct {
	Kind    EventKind
	ChatID  string
	Message *store.Message
	Error   *CoreError
}
