package core

import (
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/store"
)

// MessagePublisher fans persisted messages out to live sessions.
type MessagePublisher interface {
	// Publish sends msg to every session in chatID's room and returns how many were reached.
	Publish(chatID string, msg *store.Message) int
}

// Broadcaster delivers persisted messages to the sessions the registry placed in a chat's room.
// Publishes to the same chat are serialized; different chats proceed independently.
type Broadcaster struct {
	registry *Registry
	locks    *keyedMutex
	log      *zerolog.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *Registry, logger *zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		registry: registry,
		locks:    newKeyedMutex(),
		log:      loggerOrNop(logger),
	}
}

// Publish sends msg to the current subscribers of chatID. No subscribers is not an error.
// A subscriber whose outbox is full is evicted instead of silently missing the message.
func (b *Broadcaster) Publish(chatID string, msg *store.Message) int {
	unlock := b.locks.Lock(chatID)
	defer unlock()

	delivered, lagging := b.registry.fanout(chatID, &Event{
		Kind:    EventNewMessage,
		ChatID:  chatID,
		Message: msg,
	})
	b.registry.evict(lagging)

	b.log.Debug().
		Str("chat_id", chatID).
		Int64("message_id", msg.ID).
		Int("delivered", delivered).
		Int("evicted", len(lagging)).
		Msg("message published")
	return delivered
}
