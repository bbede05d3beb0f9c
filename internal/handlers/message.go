package handlers

import (
	"context"
	"errors"
	"log"
	"time"

	"chat-sync-service/internal/models"
	"chat-sync-service/internal/notify"
	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/presence"
	"chat-sync-service/internal/protocol"
	"chat-sync-service/internal/repositories"
	"chat-sync-service/internal/resolver"
	"chat-sync-service/internal/telemetry"
)

// Broadcaster fans events out to the live sessions of the listed users.
// Implemented by ws.Hub.
type Broadcaster interface {
	Broadcast(userIDs []string, excludeUserID, event string, payload any)
	BroadcastAll(event string, payload any)
}

// notificationBodies maps a content type to the placeholder body used
// when the message carries no plain text.
var notificationBodies = map[string]string{
	models.ContentTypeMedia:    "Sent an attachment",
	models.ContentTypeLocation: "Shared a location",
	models.ContentTypeContact:  "Shared a contact",
	models.ContentTypeReaction: "Reacted to a message",
	models.ContentTypeCall:     "Started a call",
}

// MessageHandler validates send_message envelopes, applies the
// INSERT/UPDATE/DELETE state machine against persistence and triggers
// broadcast and notification.
type MessageHandler struct {
	resolver      *resolver.Resolver
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	users         repositories.UserRepository
	presence      presence.Store
	notifier      notify.Sink
	hub           Broadcaster
	audit         *telemetry.AuditEmitter
}

// NewMessageHandler builds a MessageHandler.
func NewMessageHandler(
	res *resolver.Resolver,
	messages repositories.MessageRepository,
	conversations repositories.ConversationRepository,
	users repositories.UserRepository,
	store presence.Store,
	notifier notify.Sink,
	hub Broadcaster,
	audit *telemetry.AuditEmitter,
) *MessageHandler {
	return &MessageHandler{
		resolver:      res,
		messages:      messages,
		conversations: conversations,
		users:         users,
		presence:      store,
		notifier:      notifier,
		hub:           hub,
		audit:         audit,
	}
}

// Handle runs the full pipeline for one send_message envelope. The
// returned error, if any, is surfaced only to the sender's connection.
func (h *MessageHandler) Handle(ctx context.Context, authUserID string, env protocol.MessageEnvelope) error {
	if perr := env.Validate(); perr != nil {
		return perr
	}
	if env.SenderID != authUserID {
		return protocol.Forbidden(protocol.MsgImpersonation, env)
	}

	conv, err := h.resolver.Resolve(ctx, env.ConversationID, env.SenderID)
	if err != nil {
		return err
	}

	participants, err := h.conversations.ParticipantIDs(ctx, conv.ID)
	if err != nil {
		return protocol.Persistence(protocol.MsgStoreFailure, env)
	}
	// Defensive re-check against the fetched list; the resolver already
	// authorized the sender on the hot path.
	if !contains(participants, env.SenderID) {
		return protocol.Forbidden(protocol.MsgConversationNotFound, env)
	}

	if perr := h.persist(ctx, env); perr != nil {
		// Broadcast-after-commit: a failed persist aborts the fan-out so
		// no participant ever sees an unpersisted message.
		return perr
	}
	h.emitAudit(ctx, env)

	// Participants receive the original validated envelope, not a
	// server-reconstructed one.
	h.hub.Broadcast(participants, "", models.EventMessage, env)

	if env.Action == models.ActionInsert || env.Action == models.ActionDelete {
		h.notifyOffline(ctx, env, participants)
	}
	return nil
}

func (h *MessageHandler) persist(ctx context.Context, env protocol.MessageEnvelope) *protocol.Error {
	switch env.Action {
	case models.ActionInsert:
		// Upsert by client id: a retransmit is a no-op success and never
		// overwrites the stored row.
		if _, err := h.messages.Insert(ctx, env.ToMessage()); err != nil {
			log.Printf("message insert failed id=%s: %v", env.ID, err)
			return protocol.Persistence(protocol.MsgStoreFailure, env)
		}
	case models.ActionUpdate:
		if err := h.messages.Update(ctx, env.ToMessage()); err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return protocol.NotFound(protocol.MsgMessageNotFound, env)
			}
			log.Printf("message update failed id=%s: %v", env.ID, err)
			return protocol.Persistence(protocol.MsgStoreFailure, env)
		}
	case models.ActionDelete:
		if err := h.messages.SoftDelete(ctx, env.ID, time.Now().UTC()); err != nil {
			if errors.Is(err, repositories.ErrMessageNotFound) {
				return protocol.NotFound(protocol.MsgMessageNotFound, env)
			}
			log.Printf("message delete failed id=%s: %v", env.ID, err)
			return protocol.Persistence(protocol.MsgStoreFailure, env)
		}
	}
	return nil
}

// notifyOffline pushes to recipients without a live session. Failures
// here never fail the message: persistence and broadcast already
// succeeded.
func (h *MessageHandler) notifyOffline(ctx context.Context, env protocol.MessageEnvelope, participants []string) {
	recipients := make([]string, 0, len(participants))
	for _, userID := range participants {
		if userID != env.SenderID {
			recipients = append(recipients, userID)
		}
	}
	if len(recipients) == 0 {
		return
	}

	statuses, err := h.presence.BulkStatus(ctx, recipients)
	if err != nil {
		// Presence unavailable degrades to assume-offline.
		log.Printf("presence bulk status failed: %v", err)
		observability.IncPresenceError()
	}
	offline := make([]string, 0, len(recipients))
	for _, userID := range recipients {
		if statuses[userID] != presence.StatusOnline {
			offline = append(offline, userID)
		}
	}
	if len(offline) == 0 {
		return
	}

	tokens, err := h.users.DeviceTokens(ctx, offline)
	if err != nil {
		log.Printf("device token lookup failed: %v", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	data := map[string]string{
		"conversationId": env.ConversationID,
		"messageId":      env.ID,
	}

	if env.Action == models.ActionDelete {
		data["type"] = "message_deleted"
		_ = h.notifier.SendSilent(ctx, tokens, data)
		return
	}

	names, err := h.users.DisplayNames(ctx, []string{env.SenderID})
	if err != nil {
		log.Printf("display name lookup failed: %v", err)
	}
	title := names[env.SenderID]
	if title == "" {
		title = env.SenderID
	}
	_ = h.notifier.Send(ctx, tokens, notify.Notification{Title: title, Body: notificationBody(env)}, data)
}

func notificationBody(env protocol.MessageEnvelope) string {
	if env.Message != "" {
		return env.Message
	}
	if body, ok := notificationBodies[env.ContentType]; ok {
		return body
	}
	return "Sent a message"
}

func (h *MessageHandler) emitAudit(ctx context.Context, env protocol.MessageEnvelope) {
	if h.audit == nil {
		return
	}
	sender := env.SenderID
	h.audit.Emit(ctx, "INFO", "message "+env.Action+" applied", env.ID, &sender)
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
