package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/service/desk"
	"github.com/vovakirdan/wiredesk/internal/store"
)

// ChatHandlers provides HTTP handlers for chat and message endpoints.
type ChatHandlers struct {
	pipeline   *core.Pipeline
	assignment *core.AssignmentService
	desk       *desk.Service
	log        *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(
	pipeline *core.Pipeline,
	assignment *core.AssignmentService,
	deskService *desk.Service,
	logger *zerolog.Logger,
) *ChatHandlers {
	return &ChatHandlers{
		pipeline:   pipeline,
		assignment: assignment,
		desk:       deskService,
		log:        logger,
	}
}

// SubmitMessageRequest represents the request body for sending a message.
type SubmitMessageRequest struct {
	ChatID   string `json:"chat_id"`
	Message  string `json:"message"`
	IsUrgent bool   `json:"is_urgent"`
}

// SubmitCannedRequest represents the request body for sending a canned message.
type SubmitCannedRequest struct {
	ChatID   string `json:"chat_id"`
	CannedID int64  `json:"canned_id"`
}

// ClaimRequest optionally names the agent to assign. Defaults to the caller.
type ClaimRequest struct {
	AgentID string `json:"agent_id"`
}

// SubmitUserMessage handles a customer message. A missing chat_id starts a new chat.
// POST /api/chats/messages/user
func (h *ChatHandlers) SubmitUserMessage(c *gin.Context) {
	h.submit(c, store.SenderUser)
}

// SubmitAgentMessage handles an agent reply to an existing chat.
// POST /api/chats/messages/agent
func (h *ChatHandlers) SubmitAgentMessage(c *gin.Context) {
	h.submit(c, store.SenderAgent)
}

func (h *ChatHandlers) submit(c *gin.Context, sender store.SenderType) {
	var req SubmitMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	_, subject := identity(c)
	msg, err := h.pipeline.Submit(c.Request.Context(), core.Submission{
		SenderType: sender,
		SenderID:   subject,
		ChatID:     req.ChatID,
		Body:       req.Message,
		Urgent:     req.IsUrgent,
	})
	if err != nil {
		h.fail(c, err, "submit message")
		return
	}

	c.JSON(http.StatusCreated, messageToResponse(msg))
}

// SubmitCannedMessage sends a canned template into a chat as the caller.
// POST /api/chats/messages/canned
func (h *ChatHandlers) SubmitCannedMessage(c *gin.Context) {
	var req SubmitCannedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	kind, subject := identity(c)
	msg, err := h.pipeline.SubmitCanned(c.Request.Context(), core.CannedSubmission{
		SenderType: kind,
		SenderID:   subject,
		ChatID:     req.ChatID,
		CannedID:   req.CannedID,
	})
	if err != nil {
		h.fail(c, err, "submit canned message")
		return
	}

	c.JSON(http.StatusCreated, messageToResponse(msg))
}

// ClaimChat assigns an unassigned chat to an agent.
// POST /api/chats/:id/claim
func (h *ChatHandlers) ClaimChat(c *gin.Context) {
	var req ClaimRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}

	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		_, agentID = identity(c)
	}

	res, err := h.assignment.Claim(c.Request.Context(), c.Param("id"), agentID)
	if err != nil {
		h.fail(c, err, "claim chat")
		return
	}

	c.JSON(http.StatusOK, ClaimResponse{
		Chat:          chatToResponse(res.Chat),
		AgentID:       res.Agent.ID,
		AssignedChats: res.Agent.AssignedChats,
	})
}

// GetChat returns a single chat.
// GET /api/chats/:id
func (h *ChatHandlers) GetChat(c *gin.Context) {
	chat, err := h.desk.GetChat(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "get chat")
		return
	}
	c.JSON(http.StatusOK, chatToResponse(chat))
}

// ListMessages returns a chat's history, oldest first.
// GET /api/chats/:id/messages?limit=50&before=123
func (h *ChatHandlers) ListMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.badRequest(c, err)
		return
	}

	var beforeID *int64
	if raw := c.Query("before"); raw != "" {
		id, parseErr := strconv.ParseInt(raw, 10, 64)
		if parseErr != nil {
			h.badRequest(c, parseErr)
			return
		}
		beforeID = &id
	}

	msgs, err := h.desk.ListMessages(c.Request.Context(), c.Param("id"), limit, beforeID)
	if err != nil {
		h.fail(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, messagesToResponse(msgs))
}

// MarkChatUrgent flags a chat as urgent.
// PATCH /api/chats/:id/urgent
func (h *ChatHandlers) MarkChatUrgent(c *gin.Context) {
	chat, err := h.assignment.MarkChatUrgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "mark chat urgent")
		return
	}
	c.JSON(http.StatusOK, chatToResponse(chat))
}

// SearchMessages finds messages containing the query.
// GET /api/messages/search?q=query
func (h *ChatHandlers) SearchMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.badRequest(c, err)
		return
	}

	msgs, err := h.desk.SearchMessages(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		h.fail(c, err, "search messages")
		return
	}
	c.JSON(http.StatusOK, messagesToResponse(msgs))
}

// ListUrgentMessages returns urgent messages, newest first.
// GET /api/messages/urgent
func (h *ChatHandlers) ListUrgentMessages(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		h.badRequest(c, err)
		return
	}

	msgs, err := h.desk.ListUrgentMessages(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err, "list urgent messages")
		return
	}
	c.JSON(http.StatusOK, messagesToResponse(msgs))
}

// MarkMessageUrgent flags a single message as urgent.
// PATCH /api/messages/:id/urgent
func (h *ChatHandlers) MarkMessageUrgent(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	msg, err := h.desk.MarkMessageUrgent(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "mark message urgent")
		return
	}
	c.JSON(http.StatusOK, messageToResponse(msg))
}

// ListAgentChats returns the chats an agent has claimed.
// GET /api/agents/:id/chats
func (h *ChatHandlers) ListAgentChats(c *gin.Context) {
	chats, err := h.desk.ListAgentChats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err, "list agent chats")
		return
	}
	c.JSON(http.StatusOK, chatsToResponse(chats))
}

func (h *ChatHandlers) badRequest(c *gin.Context, err error) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		status, resp := errorToResponse(err)
		c.JSON(status, resp)
		return
	}
	h.log.Debug().Err(err).Str("path", c.FullPath()).Msg("invalid request")
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: core.ErrCodeBadRequest, Error: "invalid request"})
}

func (h *ChatHandlers) fail(c *gin.Context, err error, op string) {
	status, resp := errorToResponse(err)
	event := h.log.Debug()
	if status >= http.StatusInternalServerError {
		event = h.log.Error()
	}
	event.Err(err).Str("op", op).Str("chat_id", c.Param("id")).Int("status", status).Msg("request failed")
	c.JSON(status, resp)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
