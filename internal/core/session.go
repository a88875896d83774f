package core

import (
	"sync"

	"github.com/vovakirdan/wiredesk/internal/store"
)

// DefaultSessionBuffer is the outbox size used when none is configured.
const DefaultSessionBuffer = 64

// Session is one live connection as seen by the core layer.
// Kind and Identity come from the auth collaborator and are trusted as is.
type Session struct {
	ID       string
	Kind     store.SenderType
	Identity string

	events    chan *Event
	closeOnce sync.Once
}

// NewSession constructs a session with an outbox of the given size.
func NewSession(id string, kind store.SenderType, identity string, buffer int) *Session {
	if buffer <= 0 {
		buffer = DefaultSessionBuffer
	}
	return &Session{
		ID:       id,
		Kind:     kind,
		Identity: identity,
		events:   make(chan *Event, buffer),
	}
}

// Events returns the outbox. It is closed once the session is unregistered or evicted.
func (s *Session) Events() <-chan *Event {
	return s.events
}

func (s *Session) deliver(event *Event) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

// close is called by the registry under its write lock, so no delivery can race with it.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}
