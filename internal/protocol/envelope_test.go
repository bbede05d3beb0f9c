package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chat-sync-service/internal/models"
)

func textEnvelope() MessageEnvelope {
	return MessageEnvelope{
		ID:             "m1",
		ConversationID: "alice_bob",
		SenderID:       "alice",
		ContentType:    models.ContentTypeText,
		Message:        "hello",
		Action:         models.ActionInsert,
	}
}

func TestValidateTextEnvelope(t *testing.T) {
	env := textEnvelope()
	require.Nil(t, env.Validate())
}

func TestValidateMissingIdentityFields(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MessageEnvelope)
		field  string
	}{
		{"missing id", func(e *MessageEnvelope) { e.ID = "" }, "id"},
		{"missing conversation", func(e *MessageEnvelope) { e.ConversationID = " " }, "conversationId"},
		{"missing sender", func(e *MessageEnvelope) { e.SenderID = "" }, "senderId"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := textEnvelope()
			tc.mutate(&env)
			perr := env.Validate()
			require.NotNil(t, perr)
			require.Equal(t, KindValidation, perr.Kind)
			require.Equal(t, map[string]string{"field": tc.field}, perr.Data)
		})
	}
}

func TestValidateUnknownAction(t *testing.T) {
	env := textEnvelope()
	env.Action = "UPSERT"
	perr := env.Validate()
	require.NotNil(t, perr)
	require.Equal(t, map[string]string{"field": "action"}, perr.Data)
}

func TestValidateUnknownContentType(t *testing.T) {
	env := textEnvelope()
	env.ContentType = "HOLOGRAM"
	perr := env.Validate()
	require.NotNil(t, perr)
	require.Equal(t, map[string]string{"field": "contentType"}, perr.Data)
}

func TestValidateDeleteNeedsNoContent(t *testing.T) {
	env := MessageEnvelope{
		ID:             "m1",
		ConversationID: "alice_bob",
		SenderID:       "alice",
		Action:         models.ActionDelete,
	}
	require.Nil(t, env.Validate())
}

func TestValidateTextFromContentField(t *testing.T) {
	env := textEnvelope()
	env.Message = ""
	env.Content = json.RawMessage(`{"text":"hi"}`)
	require.Nil(t, env.Validate())

	env.Content = json.RawMessage(`{"text":""}`)
	perr := env.Validate()
	require.NotNil(t, perr)
	require.Equal(t, map[string]string{"field": "message"}, perr.Data)
}

func TestValidateTypedContentFields(t *testing.T) {
	cases := []struct {
		contentType string
		content     string
		wantField   string
	}{
		{models.ContentTypeMedia, `{"url":"https://x/img.png"}`, ""},
		{models.ContentTypeMedia, `{}`, "content.url"},
		{models.ContentTypeLocation, `{"latitude":1.5,"longitude":2.5}`, ""},
		{models.ContentTypeLocation, `{"latitude":1.5}`, "content.longitude"},
		{models.ContentTypeContact, `{"name":"Bob","phone":"+123"}`, ""},
		{models.ContentTypeContact, `{"name":"Bob"}`, "content.phone"},
		{models.ContentTypeReaction, `{"emoji":"x","messageId":"m0"}`, ""},
		{models.ContentTypeReaction, `{"emoji":"x"}`, "content.messageId"},
		{models.ContentTypeCall, `{"callType":"video"}`, ""},
		{models.ContentTypeCall, `{}`, "content.callType"},
	}
	for _, tc := range cases {
		env := textEnvelope()
		env.ContentType = tc.contentType
		env.Message = ""
		env.Content = json.RawMessage(tc.content)
		perr := env.Validate()
		if tc.wantField == "" {
			require.Nil(t, perr, "content type %s with %s", tc.contentType, tc.content)
			continue
		}
		require.NotNil(t, perr, "content type %s with %s", tc.contentType, tc.content)
		require.Equal(t, map[string]string{"field": tc.wantField}, perr.Data)
	}
}

func TestValidateUnknownTypePassesThrough(t *testing.T) {
	env := textEnvelope()
	env.ContentType = models.ContentTypeUnknown
	env.Message = ""
	env.Content = nil
	require.Nil(t, env.Validate())
}

func TestToMessageDefaultsTimestamp(t *testing.T) {
	env := textEnvelope()
	msg := env.ToMessage()
	require.False(t, msg.SentAt.IsZero())
	require.NotNil(t, msg.Text)
	require.Equal(t, "hello", *msg.Text)

	at := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	env.Timestamp = at
	require.Equal(t, at, env.ToMessage().SentAt)
}

func TestEnvelopeFromMessageRoundTrip(t *testing.T) {
	text := "system notice"
	replyTo := "m0"
	msg := models.Message{
		ID:             "m1",
		ConversationID: "group-42",
		SenderID:       "alice",
		SentAt:         time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC),
		ContentType:    models.ContentTypeSystem,
		Content:        json.RawMessage(`{"text":"system notice"}`),
		Text:           &text,
		ReplyToID:      &replyTo,
		Action:         models.ActionInsert,
	}
	env := EnvelopeFromMessage(msg)
	require.Equal(t, msg.ID, env.ID)
	require.Equal(t, msg.SentAt, env.Timestamp)
	require.Equal(t, text, env.Message)
	require.Equal(t, replyTo, env.ReplyToID)
	require.Nil(t, env.Validate())
}
