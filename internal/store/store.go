package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when an insert violates a unique identity.
	ErrDuplicate = errors.New("duplicate record")
)

// SenderType identifies who authored a message.
type SenderType string

const (
	SenderAgent SenderType = "agent"
	SenderUser  SenderType = "user"
)

// Valid reports whether t is a known sender type.
func (t SenderType) Valid() bool {
	return t == SenderAgent || t == SenderUser
}

// Chat is a support conversation between one end user and, once claimed, one agent.
type Chat struct {
	ID        string
	Assigned  bool
	IsUrgent  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message represents a persisted chat message.
// ID is the insertion sequence and breaks ties between equal CreatedAt values.
type Message struct {
	ID         int64
	SenderType SenderType
	SenderID   string
	ChatID     string
	Body       string
	IsUrgent   bool
	CreatedAt  time.Time
}

// Agent is a support agent together with the chats it has claimed.
type Agent struct {
	ID            string
	Email         string
	AssignedChats []string
	CreatedAt     time.Time
}

// CannedMessage is a reusable message template.
type CannedMessage struct {
	ID      int64
	Title   string
	Content string
}

// ChatStore handles chat persistence.
type ChatStore interface {
	// CreateChat inserts a new chat. Returns ErrDuplicate if the ID is taken.
	CreateChat(ctx context.Context, chat *Chat) error

	// GetChat retrieves a chat by ID.
	GetChat(ctx context.Context, id string) (*Chat, error)

	// ClaimChat flips assigned from false to true in a single conditional update.
	// Returns false when the chat does not exist or is already assigned.
	ClaimChat(ctx context.Context, id string) (bool, error)

	// MarkChatUrgent sets the urgency flag on a chat.
	MarkChatUrgent(ctx context.Context, id string) (*Chat, error)
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and assigns its ID.
	SaveMessage(ctx context.Context, msg *Message) error

	// GetMessage retrieves a message by ID.
	GetMessage(ctx context.Context, id int64) (*Message, error)

	// ListMessages retrieves messages of a chat in chronological order.
	// If beforeID is provided, returns messages older than that ID.
	ListMessages(ctx context.Context, chatID string, limit int, beforeID *int64) ([]*Message, error)

	// SearchMessages returns messages whose body contains query, case-insensitively.
	SearchMessages(ctx context.Context, query string, limit int) ([]*Message, error)

	// ListUrgentMessages returns messages flagged as urgent, newest first.
	ListUrgentMessages(ctx context.Context, limit int) ([]*Message, error)

	// MarkMessageUrgent sets the urgency flag on a message.
	MarkMessageUrgent(ctx context.Context, id int64) (*Message, error)
}

// AgentStore handles agent persistence.
type AgentStore interface {
	// CreateAgent inserts a new agent. Returns ErrDuplicate if the ID or email is taken.
	CreateAgent(ctx context.Context, agent *Agent) error

	// GetAgent retrieves an agent and its assigned chats.
	GetAgent(ctx context.Context, id string) (*Agent, error)

	// AddAssignedChat records chatID in the agent's assigned set.
	// Returns ErrNotFound if the agent does not exist.
	AddAssignedChat(ctx context.Context, agentID, chatID string) error

	// ListAgentChats returns the chats assigned to an agent.
	ListAgentChats(ctx context.Context, agentID string) ([]*Chat, error)
}

// CannedStore provides read access to canned message templates.
type CannedStore interface {
	// CreateCannedMessage inserts a new template.
	CreateCannedMessage(ctx context.Context, title, content string) (*CannedMessage, error)

	// GetCannedMessage retrieves a template by ID.
	GetCannedMessage(ctx context.Context, id int64) (*CannedMessage, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	ChatStore
	MessageStore
	AgentStore
	CannedStore

	// Close closes the underlying database connection.
	Close() error
}
