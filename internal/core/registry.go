package core

import (
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Registry is the session manager: it owns room membership for every live session.
// Membership is mutated only under mu and never across I/O, so a session is in at most
// one room whenever the lock is released.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	rooms    map[string]*Room
	memberOf map[string]map[string]struct{} // sessionID -> chatIDs
	closed   bool
	log      *zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		rooms:    make(map[string]*Room),
		memberOf: make(map[string]map[string]struct{}),
		log:      loggerOrNop(logger),
	}
}

// Register adds a session in the Unjoined state.
func (r *Registry) Register(s *Session) error {
	if s == nil || s.ID == "" {
		return validationError("session id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return coreError(ErrCodeSessionNotFound, ErrSessionNotFound, "registry is closed")
	}
	if _, exists := r.sessions[s.ID]; exists {
		return validationError("session already registered")
	}
	r.sessions[s.ID] = s
	r.memberOf[s.ID] = make(map[string]struct{})

	r.log.Debug().Str("session_id", s.ID).Str("identity", s.Identity).Msg("session registered")
	return nil
}

// Unregister removes the session from every room and closes its outbox. Idempotent.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dropLocked(sessionID)
}

// Join adds the session to chatID's room and queues an EventSubscribed for it before any
// room message can reach the outbox. A session already in a room must use SwitchRoom.
func (r *Registry) Join(sessionID, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return validationError("chat id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return coreError(ErrCodeSessionNotFound, ErrSessionNotFound, "session not found")
	}
	if len(r.memberOf[sessionID]) > 0 {
		return coreError(ErrCodeAlreadyJoined, ErrAlreadyJoined, "session already joined a chat; switch instead")
	}

	r.addLocked(s, chatID)
	if err := r.ackLocked(s, chatID); err != nil {
		return err
	}
	r.log.Debug().Str("session_id", sessionID).Str("chat_id", chatID).Msg("session joined chat")
	return nil
}

// SwitchRoom removes the session from every room it belongs to, then adds it to chatID's room,
// in one critical section, and acknowledges like Join. Switching an unjoined session is the same as joining.
func (r *Registry) SwitchRoom(sessionID, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return validationError("chat id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return coreError(ErrCodeSessionNotFound, ErrSessionNotFound, "session not found")
	}

	r.leaveLocked(sessionID)
	r.addLocked(s, chatID)
	if err := r.ackLocked(s, chatID); err != nil {
		return err
	}
	r.log.Debug().Str("session_id", sessionID).Str("chat_id", chatID).Msg("session switched chat")
	return nil
}

// LeaveAll removes the session from whatever rooms it belongs to. Unknown sessions are a no-op.
func (r *Registry) LeaveAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.leaveLocked(sessionID)
}

// RoomOf returns the chat the session is currently subscribed to.
func (r *Registry) RoomOf(sessionID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for chatID := range r.memberOf[sessionID] {
		return chatID, true
	}
	return "", false
}

// Members returns the IDs of sessions currently in chatID's room.
func (r *Registry) Members(chatID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[chatID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, room.Len())
	for id := range room.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Notify queues an event for a single session. Returns false if the session is gone
// or its outbox is full; a full session is evicted, the same as in room fan-out.
func (r *Registry) Notify(sessionID string, event *Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return false
	}
	if s.deliver(event) {
		return true
	}
	r.log.Warn().Str("session_id", sessionID).Msg("evicting slow session")
	r.dropLocked(sessionID)
	return false
}

// Close evicts every session. Further registrations fail.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id := range r.sessions {
		r.dropLocked(id)
	}
	r.closed = true
}

// fanout delivers event to chatID's room under the read lock, so a concurrent
// SwitchRoom either completes before the snapshot or after every delivery.
func (r *Registry) fanout(chatID string, event *Event) (int, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[chatID]
	if !ok {
		return 0, nil
	}
	return room.Broadcast(event)
}

// evict drops sessions that could not keep up with their room.
func (r *Registry) evict(sessionIDs []string) {
	if len(sessionIDs) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range sessionIDs {
		if _, ok := r.sessions[id]; ok {
			r.log.Warn().Str("session_id", id).Msg("evicting slow session")
		}
		r.dropLocked(id)
	}
}

func (r *Registry) addLocked(s *Session, chatID string) {
	room, ok := r.rooms[chatID]
	if !ok {
		room = NewRoom(chatID)
		r.rooms[chatID] = room
	}
	room.Add(s)
	r.memberOf[s.ID][chatID] = struct{}{}
}

func (r *Registry) ackLocked(s *Session, chatID string) error {
	if s.deliver(&Event{Kind: EventSubscribed, ChatID: chatID}) {
		return nil
	}
	r.log.Warn().Str("session_id", s.ID).Msg("evicting slow session")
	r.dropLocked(s.ID)
	return coreError(ErrCodeSessionNotFound, ErrSessionNotFound, "session evicted: outbox full")
}

func (r *Registry) leaveLocked(sessionID string) {
	for chatID := range r.memberOf[sessionID] {
		if room, ok := r.rooms[chatID]; ok {
			room.Remove(sessionID)
			if room.Empty() {
				delete(r.rooms, chatID)
			}
		}
		delete(r.memberOf[sessionID], chatID)
	}
}

func (r *Registry) dropLocked(sessionID string) {
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	r.leaveLocked(sessionID)
	delete(r.memberOf, sessionID)
	delete(r.sessions, sessionID)
	s.close()
	r.log.Debug().Str("session_id", sessionID).Msg("session unregistered")
}
