package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/store"
)

// Submission is an inbound message before persistence.
// An empty ChatID asks the pipeline to start a new chat.
type Submission struct {
	SenderType store.SenderType
	SenderID   string
	ChatID     string
	Body       string
	Urgent     bool
}

// CannedSubmission sends the content of a canned template as a message.
type CannedSubmission struct {
	SenderType store.SenderType
	SenderID   string
	ChatID     string
	CannedID   int64
}

// PipelineStore is the persistence the pipeline needs.
type PipelineStore interface {
	store.ChatStore
	store.MessageStore
	store.CannedStore
}

// Pipeline validates, persists and orders inbound messages, then hands them to the publisher.
// It is the only writer of message records.
type Pipeline struct {
	store      PipelineStore
	assignment *AssignmentService
	publisher  MessagePublisher
	clock      *Clock
	locks      *keyedMutex
	newChatID  func() string
	timeout    time.Duration
	log        *zerolog.Logger
}

// NewPipeline creates a message pipeline.
func NewPipeline(
	st PipelineStore,
	assignment *AssignmentService,
	publisher MessagePublisher,
	timeout time.Duration,
	logger *zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		store:      st,
		assignment: assignment,
		publisher:  publisher,
		clock:      NewClock(),
		locks:      newKeyedMutex(),
		newChatID:  uuid.NewString,
		timeout:    timeout,
		log:        loggerOrNop(logger),
	}
}

// Submit persists a message and publishes it to the chat's room.
// User messages create their chat when missing; agent messages require an existing chat.
// Persistence is authoritative: delivery is best-effort and never rolls it back.
func (p *Pipeline) Submit(ctx context.Context, sub Submission) (*store.Message, error) {
	if !sub.SenderType.Valid() {
		return nil, validationError("sender type must be agent or user")
	}
	if strings.TrimSpace(sub.SenderID) == "" {
		return nil, validationError("sender id is required")
	}
	if strings.TrimSpace(sub.Body) == "" {
		return nil, validationError("message content is required")
	}

	ctx, cancel := detach(ctx, p.timeout)
	defer cancel()

	chatID := strings.TrimSpace(sub.ChatID)
	if chatID == "" {
		chatID = p.newChatID()
	}

	if err := p.resolveChat(ctx, sub.SenderType, chatID); err != nil {
		return nil, err
	}

	// Timestamp, insert and publish happen under one per-chat lock so that
	// publish order matches persistence order.
	unlock := p.locks.Lock(chatID)
	defer unlock()

	msg := &store.Message{
		SenderType: sub.SenderType,
		SenderID:   sub.SenderID,
		ChatID:     chatID,
		Body:       sub.Body,
		IsUrgent:   sub.Urgent,
		CreatedAt:  p.clock.Now(),
	}
	if err := p.store.SaveMessage(ctx, msg); err != nil {
		return nil, storeUnavailable("save message", err)
	}

	delivered := p.publisher.Publish(chatID, msg)

	p.log.Debug().
		Str("chat_id", chatID).
		Int64("message_id", msg.ID).
		Str("sender_type", string(msg.SenderType)).
		Int("delivered", delivered).
		Msg("message submitted")

	return msg, nil
}

// SubmitCanned resolves a canned template and submits its content.
func (p *Pipeline) SubmitCanned(ctx context.Context, sub CannedSubmission) (*store.Message, error) {
	if sub.CannedID <= 0 {
		return nil, validationError("canned message id is required")
	}
	if strings.TrimSpace(sub.ChatID) == "" {
		return nil, validationError("chat id is required")
	}

	canned, err := p.store.GetCannedMessage(ctx, sub.CannedID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, coreError(ErrCodeCannedNotFound, ErrCannedNotFound, "canned message not found")
		}
		return nil, storeUnavailable("get canned message", err)
	}

	return p.Submit(ctx, Submission{
		SenderType: sub.SenderType,
		SenderID:   sub.SenderID,
		ChatID:     sub.ChatID,
		Body:       canned.Content,
	})
}

func (p *Pipeline) resolveChat(ctx context.Context, sender store.SenderType, chatID string) error {
	if sender == store.SenderUser {
		_, err := p.assignment.EnsureChatExists(ctx, chatID)
		return err
	}

	// Agents never open chats implicitly: nobody would be on the other end.
	_, err := p.store.GetChat(ctx, chatID)
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return coreError(ErrCodeChatNotFound, ErrChatNotFound, "chat not found")
	}
	return storeUnavailable("get chat", err)
}
