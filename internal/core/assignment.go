package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/events"
	"github.com/vovakirdan/wiredesk/internal/store"
)

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	Chat  *store.Chat
	Agent *store.Agent
}

// AssignmentService owns chat creation and the exactly-once claim protocol.
// It is the only writer of a chat's assigned flag.
type AssignmentService struct {
	chats   store.ChatStore
	agents  store.AgentStore
	events  events.Publisher
	timeout time.Duration
	log     *zerolog.Logger
}

// NewAssignmentService creates an assignment service.
// timeout bounds each claim once it is detached from the caller; zero means unbounded.
func NewAssignmentService(
	chats store.ChatStore,
	agents store.AgentStore,
	publisher events.Publisher,
	timeout time.Duration,
	logger *zerolog.Logger,
) *AssignmentService {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &AssignmentService{
		chats:   chats,
		agents:  agents,
		events:  publisher,
		timeout: timeout,
		log:     loggerOrNop(logger),
	}
}

// EnsureChatExists returns the chat, creating it unassigned and not urgent if absent.
// Concurrent callers with the same ID converge on a single record.
func (s *AssignmentService) EnsureChatExists(ctx context.Context, chatID string) (*store.Chat, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, validationError("chat id is required")
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, storeUnavailable("get chat", err)
	}

	chat = &store.Chat{ID: chatID}
	err = s.chats.CreateChat(ctx, chat)
	switch {
	case err == nil:
		s.log.Info().Str("chat_id", chatID).Msg("chat created")
		s.emit(ctx, events.New(events.TypeChatCreated, chatID, ""), chatPayload(chat))
		return chat, nil
	case errors.Is(err, store.ErrDuplicate):
		// A concurrent caller created it first.
		chat, err = s.chats.GetChat(ctx, chatID)
		if err != nil {
			return nil, storeUnavailable("get chat after duplicate insert", err)
		}
		return chat, nil
	default:
		return nil, storeUnavailable("create chat", err)
	}
}

// Claim assigns an unassigned chat to agentID. Exactly one of any set of concurrent
// claims on the same chat succeeds; the others fail with ErrChatUnavailable.
func (s *AssignmentService) Claim(ctx context.Context, chatID, agentID string) (*ClaimResult, error) {
	chatID = strings.TrimSpace(chatID)
	agentID = strings.TrimSpace(agentID)
	if chatID == "" {
		return nil, validationError("chat id is required")
	}
	if agentID == "" {
		return nil, validationError("agent id is required")
	}

	ctx, cancel := detach(ctx, s.timeout)
	defer cancel()

	agent, err := s.agents.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coreError(ErrCodeAgentNotFound, ErrAgentNotFound, "agent not found")
		}
		return nil, storeUnavailable("get agent", err)
	}

	claimed, err := s.chats.ClaimChat(ctx, chatID)
	if err != nil {
		return nil, storeUnavailable("claim chat", err)
	}
	if !claimed {
		return nil, coreError(ErrCodeChatUnavailable, ErrChatUnavailable, "chat not available for assignment")
	}

	if err := s.agents.AddAssignedChat(ctx, agentID, chatID); err != nil {
		// The chat stays assigned with no owner on record. Undoing the claim could race a
		// third claimant, so this is surfaced for manual repair and never retried.
		s.log.Error().
			Err(err).
			Str("chat_id", chatID).
			Str("agent_id", agentID).
			Msg("chat claimed but agent assignment not recorded; manual reconciliation required")
		s.emit(ctx, events.New(events.TypeAssignmentInconsistency, chatID, agentID),
			events.InconsistencyPayload{Error: err.Error()})
		return nil, &CoreError{
			Code:    ErrCodeAssignmentInconsistency,
			Message: "chat assigned without owning agent",
			Kind:    ErrAssignmentInconsistency,
			Err:     err,
		}
	}

	if !slices.Contains(agent.AssignedChats, chatID) {
		agent.AssignedChats = append(agent.AssignedChats, chatID)
	}

	chat, err := s.chats.GetChat(ctx, chatID)
	if err != nil {
		// The claim already took effect; report it rather than a failure.
		s.log.Warn().Err(err).Str("chat_id", chatID).Msg("re-read claimed chat")
		chat = &store.Chat{ID: chatID, Assigned: true}
	}

	s.log.Info().Str("chat_id", chatID).Str("agent_id", agentID).Msg("chat claimed")
	s.emit(ctx, events.New(events.TypeChatClaimed, chatID, agentID), chatPayload(chat))

	return &ClaimResult{Chat: chat, Agent: agent}, nil
}

// MarkChatUrgent flags a chat as urgent. Message urgency is tracked independently.
func (s *AssignmentService) MarkChatUrgent(ctx context.Context, chatID string) (*store.Chat, error) {
	chat, err := s.chats.MarkChatUrgent(ctx, chatID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coreError(ErrCodeChatNotFound, ErrChatNotFound, "chat not found")
		}
		return nil, storeUnavailable("mark chat urgent", err)
	}
	return chat, nil
}

func (s *AssignmentService) emit(ctx context.Context, ev *events.Event, payload any) {
	if withPayload, err := ev.WithPayload(payload); err != nil {
		s.log.Warn().Err(err).Str("event_type", ev.Type).Msg("encode lifecycle event payload")
	} else {
		ev = withPayload
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Str("event_type", ev.Type).Str("chat_id", ev.ChatID).Msg("failed to publish lifecycle event")
	}
}

func chatPayload(chat *store.Chat) events.ChatPayload {
	return events.ChatPayload{
		Assigned:  chat.Assigned,
		IsUrgent:  chat.IsUrgent,
		CreatedAt: chat.CreatedAt,
	}
}
