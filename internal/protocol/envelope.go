package protocol

import (
	"encoding/json"
	"strings"
	"time"

	"chat-sync-service/internal/models"
)

// MessageEnvelope is the send_message payload. The same envelope, as
// validated, is broadcast to participants; the server never rebuilds it.
type MessageEnvelope struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	SenderID       string          `json:"senderId"`
	Timestamp      time.Time       `json:"timestamp"`
	ContentType    string          `json:"contentType"`
	Content        json.RawMessage `json:"content,omitempty"`
	Message        string          `json:"message,omitempty"`
	ReplyToID      string          `json:"replyToId,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	Action         string          `json:"action"`
}

// requiredContentFields lists the content keys each content type must
// carry on INSERT.
var requiredContentFields = map[string][]string{
	models.ContentTypeMedia:    {"url"},
	models.ContentTypeLocation: {"latitude", "longitude"},
	models.ContentTypeContact:  {"name", "phone"},
	models.ContentTypeReaction: {"emoji", "messageId"},
	models.ContentTypeCall:     {"callType"},
}

var knownContentTypes = map[string]bool{
	models.ContentTypeText:     true,
	models.ContentTypeMedia:    true,
	models.ContentTypeLocation: true,
	models.ContentTypeContact:  true,
	models.ContentTypeReaction: true,
	models.ContentTypeSystem:   true,
	models.ContentTypeCall:     true,
	models.ContentTypeUnknown:  true,
}

// Validate checks the envelope against the action-specific shape and
// returns a validation Error describing the first problem found.
func (e *MessageEnvelope) Validate() *Error {
	if strings.TrimSpace(e.ID) == "" {
		return Validation(MsgInvalidPayload, map[string]string{"field": "id"})
	}
	if strings.TrimSpace(e.ConversationID) == "" {
		return Validation(MsgInvalidPayload, map[string]string{"field": "conversationId"})
	}
	if strings.TrimSpace(e.SenderID) == "" {
		return Validation(MsgInvalidPayload, map[string]string{"field": "senderId"})
	}

	switch e.Action {
	case models.ActionDelete:
		// A delete only needs to identify the message.
		return nil
	case models.ActionInsert, models.ActionUpdate:
	default:
		return Validation(MsgInvalidPayload, map[string]string{"field": "action"})
	}

	if !knownContentTypes[e.ContentType] {
		return Validation(MsgInvalidPayload, map[string]string{"field": "contentType"})
	}
	return e.validateContent()
}

func (e *MessageEnvelope) validateContent() *Error {
	switch e.ContentType {
	case models.ContentTypeText, models.ContentTypeSystem:
		if strings.TrimSpace(e.Message) == "" && !contentHasField(e.Content, "text") {
			return Validation(MsgInvalidPayload, map[string]string{"field": "message"})
		}
		return nil
	case models.ContentTypeUnknown:
		return nil
	}

	for _, field := range requiredContentFields[e.ContentType] {
		if !contentHasField(e.Content, field) {
			return Validation(MsgInvalidPayload, map[string]string{"field": "content." + field})
		}
	}
	return nil
}

func contentHasField(content json.RawMessage, field string) bool {
	if len(content) == 0 {
		return false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(content, &fields); err != nil {
		return false
	}
	raw, ok := fields[field]
	return ok && string(raw) != "null" && string(raw) != `""`
}

// ToMessage converts a validated envelope into the row to persist.
func (e *MessageEnvelope) ToMessage() models.Message {
	msg := models.Message{
		ID:             e.ID,
		ConversationID: e.ConversationID,
		SenderID:       e.SenderID,
		SentAt:         e.Timestamp,
		ContentType:    e.ContentType,
		Content:        e.Content,
		Metadata:       e.Metadata,
		Action:         e.Action,
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	if e.Message != "" {
		text := e.Message
		msg.Text = &text
	}
	if e.ReplyToID != "" {
		replyTo := e.ReplyToID
		msg.ReplyToID = &replyTo
	}
	return msg
}

// EnvelopeFromMessage rebuilds the wire shape for server-synthesized
// messages (system messages take the same path as user messages).
func EnvelopeFromMessage(msg models.Message) MessageEnvelope {
	env := MessageEnvelope{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Timestamp:      msg.SentAt,
		ContentType:    msg.ContentType,
		Content:        msg.Content,
		Metadata:       msg.Metadata,
		Action:         msg.Action,
	}
	if msg.Text != nil {
		env.Message = *msg.Text
	}
	if msg.ReplyToID != nil {
		env.ReplyToID = *msg.ReplyToID
	}
	return env
}
