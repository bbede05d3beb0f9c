package models

import (
	"encoding/json"
	"time"
)

// Message actions. The action column always reflects the last applied
// operation on the row.
const (
	ActionInsert = "INSERT"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"
)

// Message content types.
const (
	ContentTypeText     = "TEXT"
	ContentTypeMedia    = "MEDIA"
	ContentTypeLocation = "LOCATION"
	ContentTypeContact  = "CONTACT"
	ContentTypeReaction = "REACTION"
	ContentTypeSystem   = "SYSTEM"
	ContentTypeCall     = "CALL"
	ContentTypeUnknown  = "UNKNOWN"
)

// Message represents a stored chat message. The id is supplied by the
// client and doubles as the idempotency key for retried sends. Deletes
// are soft: DeletedAt is set and the content is kept for audit.
type Message struct {
	ID             string          `db:"id" json:"id"`
	ConversationID string          `db:"conversation_id" json:"conversationId"`
	SenderID       string          `db:"sender_id" json:"senderId"`
	SentAt         time.Time       `db:"sent_at" json:"timestamp"`
	ContentType    string          `db:"content_type" json:"contentType"`
	Content        json.RawMessage `db:"content" json:"content"`
	Text           *string         `db:"message" json:"message,omitempty"`
	ReplyToID      *string         `db:"reply_to_id" json:"replyToId,omitempty"`
	Metadata       json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	Action         string          `db:"action" json:"action"`
	DeletedAt      *time.Time      `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
}
