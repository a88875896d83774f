package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vovakirdan/wiredesk/internal/core"
	"github.com/vovakirdan/wiredesk/internal/proto"
	"github.com/vovakirdan/wiredesk/internal/store"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

// MessageResponse represents a chat message in API responses.
type MessageResponse struct {
	ID         int64  `json:"id"`
	ChatID     string `json:"chat_id"`
	SenderType string `json:"sender_type"`
	SenderID   string `json:"sender_id"`
	Message    string `json:"message"`
	IsUrgent   bool   `json:"is_urgent"`
	CreatedAt  string `json:"created_at"`
}

// ChatResponse represents a chat in API responses.
type ChatResponse struct {
	ID        string `json:"id"`
	Assigned  bool   `json:"assigned"`
	IsUrgent  bool   `json:"is_urgent"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// ClaimResponse is returned after a successful claim.
type ClaimResponse struct {
	Chat          ChatResponse `json:"chat"`
	AgentID       string       `json:"agent_id"`
	AssignedChats []string     `json:"assigned_chats"`
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func messageToResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderType: string(m.SenderType),
		SenderID:   m.SenderID,
		Message:    m.Body,
		IsUrgent:   m.IsUrgent,
		CreatedAt:  m.CreatedAt.Format(timeLayout),
	}
}

func messagesToResponse(msgs []*store.Message) []MessageResponse {
	out := make([]MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageToResponse(m))
	}
	return out
}

func chatToResponse(c *store.Chat) ChatResponse {
	return ChatResponse{
		ID:        c.ID,
		Assigned:  c.Assigned,
		IsUrgent:  c.IsUrgent,
		CreatedAt: c.CreatedAt.Format(timeLayout),
		UpdatedAt: c.UpdatedAt.Format(timeLayout),
	}
}

func chatsToResponse(chats []*store.Chat) []ChatResponse {
	out := make([]ChatResponse, 0, len(chats))
	for _, c := range chats {
		out = append(out, chatToResponse(c))
	}
	return out
}

type errorMapping struct {
	kind    error
	status  int
	code    string
	generic string
}

// errorMappings is checked in order. Store and assignment failures never leak details.
var errorMappings = []errorMapping{
	{kind: core.ErrValidation, status: http.StatusBadRequest, code: core.ErrCodeValidation},
	{kind: core.ErrChatUnavailable, status: http.StatusConflict, code: core.ErrCodeChatUnavailable},
	{kind: core.ErrChatNotFound, status: http.StatusNotFound, code: core.ErrCodeChatNotFound},
	{kind: core.ErrAgentNotFound, status: http.StatusNotFound, code: core.ErrCodeAgentNotFound},
	{kind: core.ErrCannedNotFound, status: http.StatusNotFound, code: core.ErrCodeCannedNotFound},
	{kind: core.ErrMessageNotFound, status: http.StatusNotFound, code: core.ErrCodeMessageNotFound},
	{kind: core.ErrSessionNotFound, status: http.StatusNotFound, code: core.ErrCodeSessionNotFound},
	{kind: core.ErrAlreadyJoined, status: http.StatusConflict, code: core.ErrCodeAlreadyJoined},
	{kind: core.ErrStoreUnavailable, status: http.StatusServiceUnavailable, code: core.ErrCodeStoreUnavailable, generic: "service temporarily unavailable"},
	{kind: core.ErrAssignmentInconsistency, status: http.StatusInternalServerError, code: "internal_error", generic: "internal server error"},
}

// errorToResponse maps a domain error to an HTTP status and body.
func errorToResponse(err error) (int, ErrorResponse) {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge, ErrorResponse{Code: core.ErrCodeBadRequest, Error: "request body too large"}
	}

	for _, m := range errorMappings {
		if !errors.Is(err, m.kind) {
			continue
		}
		msg := m.generic
		if msg == "" {
			msg = m.kind.Error()
			if ce, ok := core.AsCoreError(err); ok {
				msg = ce.Message
			} else if m.kind == core.ErrValidation {
				msg = err.Error()
			}
		}
		return m.status, ErrorResponse{Code: m.code, Error: msg}
	}
	return http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Error: "internal server error"}
}

func errorToProto(err error) *proto.Error {
	_, resp := errorToResponse(err)
	return &proto.Error{Code: resp.Code, Msg: resp.Error}
}

// inboundToAction decodes a client frame into a registry action.
// Returns a protocol error for frames the client should be told about.
func inboundToAction(inbound proto.Inbound) (action wsAction, protoErr *proto.Error) {
	switch inbound.Type {
	case proto.InboundTypeHello:
		var hello proto.HelloData
		if len(inbound.Data) > 0 {
			if err := json.Unmarshal(inbound.Data, &hello); err != nil {
				return wsAction{}, badFrame("invalid hello payload")
			}
		}
		if hello.Protocol != 0 && hello.Protocol != proto.ProtocolVersion {
			return wsAction{}, &proto.Error{Code: "unsupported_version", Msg: "unsupported protocol version"}
		}
		return wsAction{kind: actionHello}, nil
	case proto.InboundTypeJoinChat, proto.InboundTypeChangeChat:
		var data proto.ChatData
		if err := json.Unmarshal(inbound.Data, &data); err != nil {
			return wsAction{}, badFrame("invalid chat payload")
		}
		if data.ChatID == "" {
			return wsAction{}, badFrame("chat_id is required")
		}
		kind := actionJoin
		if inbound.Type == proto.InboundTypeChangeChat {
			kind = actionSwitch
		}
		return wsAction{kind: kind, chatID: data.ChatID}, nil
	case proto.InboundTypeLeave:
		return wsAction{kind: actionLeave}, nil
	default:
		return wsAction{}, &proto.Error{Code: "invalid_message", Msg: "unknown message type"}
	}
}

func badFrame(msg string) *proto.Error {
	return &proto.Error{Code: core.ErrCodeBadRequest, Msg: msg}
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	switch event.Kind {
	case core.EventNewMessage:
		m := event.Message
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventNewMessage,
			Data: proto.EventMessage{
				ID:         m.ID,
				ChatID:     m.ChatID,
				SenderType: string(m.SenderType),
				SenderID:   m.SenderID,
				Body:       m.Body,
				IsUrgent:   m.IsUrgent,
				CreatedAt:  m.CreatedAt,
			},
		}
	case core.EventSubscribed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventSubscribed,
			Data:  proto.EventSubscription{ChatID: event.ChatID},
		}
	case core.EventUnsubscribed:
		return proto.Outbound{
			Type:  proto.OutboundTypeEvent,
			Event: proto.EventUnsubscribed,
			Data:  proto.EventSubscription{},
		}
	case core.EventError:
		if event.Error == nil {
			return proto.Outbound{Type: proto.OutboundTypeError, Error: &proto.Error{Code: "unknown", Msg: "unknown error"}}
		}
		return proto.Outbound{Type: proto.OutboundTypeError, Error: errorToProto(event.Error)}
	default:
		return proto.Outbound{Type: proto.OutboundTypeEvent}
	}
}
