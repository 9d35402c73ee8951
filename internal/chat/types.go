// ABOUTME: Core domain types for the chat client: messages, sessions, wire frames.
// ABOUTME: JSON tags match the server's REST and websocket payload shapes.

package chat

import "time"

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is a single entry in a session's conversation log.
// IDs are opaque and unique within a session.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// Session is a conversation with its ordered message log.
type Session struct {
	SessionID string    `json:"session_id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Messages  []Message `json:"messages"`
}

// PushFrame is an inbound frame on the push channel. A frame carrying only
// Error is an application-level error and does not affect the connection.
type PushFrame struct {
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// OutboundFrame is the payload sent to the server over the push channel.
// SessionID is null for the first message of a new conversation.
type OutboundFrame struct {
	Message   string  `json:"message"`
	SessionID *string `json:"session_id"`
}
