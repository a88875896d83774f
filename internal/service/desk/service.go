package desk

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/store"
)

const (
	// DefaultLimit applies when a listing asks for no explicit size.
	DefaultLimit = 50
	// MaxLimit caps every listing.
	MaxLimit = 200
)

// Store is the persistence the desk service reads and administers.
type Store interface {
	store.ChatStore
	store.MessageStore
	store.AgentStore
	store.CannedStore
}

// Service provides read-side lookups and back-office administration.
// It never writes messages or claims chats; those go through the core pipeline and assignment service.
type Service struct {
	store Store
}

// New creates a new desk service.
func New(st Store) *Service {
	return &Service{store: st}
}

// GetChat returns a chat by ID.
func (s *Service) GetChat(ctx context.Context, chatID string) (*store.Chat, error) {
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, translate("get chat", err, core.ErrChatNotFound)
	}
	return chat, nil
}

// ListMessages returns a chat's messages oldest first. beforeID pages backwards when set.
func (s *Service) ListMessages(ctx context.Context, chatID string, limit int, beforeID *int64) ([]*store.Message, error) {
	if _, err := s.GetChat(ctx, chatID); err != nil {
		return nil, err
	}
	msgs, err := s.store.ListMessages(ctx, chatID, clampLimit(limit), beforeID)
	if err != nil {
		return nil, translate("list messages", err, nil)
	}
	return msgs, nil
}

// SearchMessages finds messages whose body contains query, ignoring case.
func (s *Service) SearchMessages(ctx context.Context, query string, limit int) ([]*store.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required: %w", core.ErrValidation)
	}
	msgs, err := s.store.SearchMessages(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, translate("search messages", err, nil)
	}
	return msgs, nil
}

// ListUrgentMessages returns messages flagged urgent, newest first.
func (s *Service) ListUrgentMessages(ctx context.Context, limit int) ([]*store.Message, error) {
	msgs, err := s.store.ListUrgentMessages(ctx, clampLimit(limit))
	if err != nil {
		return nil, translate("list urgent messages", err, nil)
	}
	return msgs, nil
}

// MarkMessageUrgent flags a single message. The owning chat's flag is left alone.
func (s *Service) MarkMessageUrgent(ctx context.Context, messageID int64) (*store.Message, error) {
	msg, err := s.store.MarkMessageUrgent(ctx, messageID)
	if err != nil {
		return nil, translate("mark message urgent", err, core.ErrMessageNotFound)
	}
	return msg, nil
}

// ListAgentChats returns the chats an agent has claimed.
func (s *Service) ListAgentChats(ctx context.Context, agentID string) ([]*store.Chat, error) {
	if _, err := s.store.GetAgent(ctx, agentID); err != nil {
		return nil, translate("get agent", err, core.ErrAgentNotFound)
	}
	chats, err := s.store.ListAgentChats(ctx, agentID)
	if err != nil {
		return nil, translate("list agent chats", err, nil)
	}
	return chats, nil
}

// CreateAgent registers a support agent. An empty id gets a generated one.
func (s *Service) CreateAgent(ctx context.Context, id, email string) (*store.Agent, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid agent email %q: %w", email, core.ErrValidation)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	agent := &store.Agent{ID: id, Email: email}
	if err := s.store.CreateAgent(ctx, agent); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("agent %s or email %s already exists: %w", id, email, core.ErrValidation)
		}
		return nil, translate("create agent", err, nil)
	}
	return agent, nil
}

// CreateCannedMessage stores a reusable reply template.
func (s *Service) CreateCannedMessage(ctx context.Context, title, content string) (*store.CannedMessage, error) {
	title = strings.TrimSpace(title)
	if title == "" || strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("canned message title and content are required: %w", core.ErrValidation)
	}
	canned, err := s.store.CreateCannedMessage(ctx, title, content)
	if err != nil {
		return nil, translate("create canned message", err, nil)
	}
	return canned, nil
}

func translate(op string, err, notFound error) error {
	if notFound != nil && errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return fmt.Errorf("%s: %w: %w", op, core.ErrStoreUnavailable, err)
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
