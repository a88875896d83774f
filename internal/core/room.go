package core

// Room groups sessions subscribed to the same chat.
type Room struct {
	ChatID   string
	sessions map[string]*Session
}

// NewRoom constructs a room with no sessions.
func NewRoom(chatID string) *Room {
	return &Room{
		ChatID:   chatID,
		sessions: make(map[string]*Session),
	}
}

// Add inserts a session into the room. Returns true if newly added.
func (r *Room) Add(s *Session) bool {
	if _, exists := r.sessions[s.ID]; exists {
		return false
	}
	r.sessions[s.ID] = s
	return true
}

// Remove deletes a session from the room. Returns true if removed.
func (r *Room) Remove(sessionID string) bool {
	if _, exists := r.sessions[sessionID]; !exists {
		return false
	}
	delete(r.sessions, sessionID)
	return true
}

// Broadcast sends an event to all sessions in the room without blocking.
// Returns the number of sessions reached and the IDs of sessions whose outbox was full.
func (r *Room) Broadcast(event *Event) (int, []string) {
	delivered := 0
	var lagging []string
	for id, s := range r.sessions {
		if s.deliver(event) {
			delivered++
			continue
		}
		lagging = append(lagging, id)
	}
	return delivered, lagging
}

// Empty returns true if no sessions are in the room.
func (r *Room) Empty() bool {
	return len(r.sessions) == 0
}

// Len returns the number of sessions in the room.
func (r *Room) Len() int {
	return len(r.sessions)
}
