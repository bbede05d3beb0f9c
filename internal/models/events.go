package models

import "time"

// Names of events flowing over the websocket. Inbound events come from
// clients, outbound events are broadcast by the server.
const (
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventMarkAsRead  = "mark_as_read"

	EventMessage          = "message"
	EventUserTyping       = "user_typing"
	EventConversationRead = "conversation_read"
	EventUserStatusChange = "user_status_change"
	EventGroupDeleted     = "group_deleted"
	EventError            = "err"
)

// TypingEvent is broadcast to the other participants of a conversation.
// It is never persisted.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// ReadEvent tells other participants that a user caught up with a
// conversation.
type ReadEvent struct {
	ConversationID string    `json:"conversationId"`
	UserID         string    `json:"userId"`
	ReadAt         time.Time `json:"readAt"`
}

// StatusEvent announces an online/offline transition.
type StatusEvent struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ErrorEvent is sent only to the connection that caused the error. Data
// echoes the offending input so the client can correlate retries.
type ErrorEvent struct {
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ConversationGoneEvent is the out-of-band notice sent to members of a
// deleted group; the conversation rows are already gone when it fires.
type ConversationGoneEvent struct {
	ConversationID string `json:"conversationId"`
	GroupID        string `json:"groupId"`
}
