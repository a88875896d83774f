package proto

import (
	"encoding/json"
	"time"
)

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello      = "hello"
	InboundTypeJoinChat   = "join_chat"
	InboundTypeChangeChat = "change_chat"
	InboundTypeLeave      = "leave"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"

	EventNewMessage   = "new_message"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventHello        = "hello"
)

// HelloData is optionally sent by the client to negotiate the protocol version.
type HelloData struct {
	Protocol int `json:"protocol,omitempty"`
}

// ChatData names the chat room to join or switch to.
type ChatData struct {
	ChatID string `json:"chat_id"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// EventMessage is a persisted chat message pushed to the chat's room.
type EventMessage struct {
	ID         int64     `json:"id"`
	ChatID     string    `json:"chat_id"`
	SenderType string    `json:"sender_type"`
	SenderID   string    `json:"sender_id"`
	Body       string    `json:"message"`
	IsUrgent   bool      `json:"is_urgent"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventSubscription acknowledges a room change for the connection.
type EventSubscription struct {
	ChatID string `json:"chat_id,omitempty"`
}

// EventHelloData acknowledges the handshake with the identity the server trusts.
type EventHelloData struct {
	Protocol int    `json:"protocol"`
	Kind     string `json:"kind"`
	Identity string `json:"identity"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
