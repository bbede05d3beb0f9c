package handlers

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"chat-sync-service/internal/cache"
	"chat-sync-service/internal/models"
	"chat-sync-service/internal/protocol"
	"chat-sync-service/internal/repositories"
)

// SignalHandler broadcasts typing indicators and read receipts. Both
// are transient: nothing is persisted except the reader's last_read_at
// watermark.
type SignalHandler struct {
	conversations repositories.ConversationRepository
	members       cache.Membership
	hub           Broadcaster
}

// NewSignalHandler builds a SignalHandler.
func NewSignalHandler(conversations repositories.ConversationRepository, members cache.Membership, hub Broadcaster) *SignalHandler {
	return &SignalHandler{conversations: conversations, members: members, hub: hub}
}

// Typing broadcasts a typing indicator to every other participant's
// live sessions. No history, no delivery guarantee.
func (h *SignalHandler) Typing(ctx context.Context, userID, conversationID string, isTyping bool) error {
	participants, err := h.authorize(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	h.hub.Broadcast(participants, userID, models.EventUserTyping, models.TypingEvent{
		ConversationID: conversationID,
		UserID:         userID,
		IsTyping:       isTyping,
	})
	return nil
}

// MarkRead advances the sender's read watermark with a targeted write
// and tells the other participants.
func (h *SignalHandler) MarkRead(ctx context.Context, userID, conversationID string) error {
	participants, err := h.authorize(ctx, userID, conversationID)
	if err != nil {
		return err
	}

	readAt := time.Now().UTC()
	// Targeted update rather than a read-modify-write of the cached
	// object: the cache may not carry the row's primary key.
	if err := h.conversations.UpdateLastRead(ctx, conversationID, userID, readAt); err != nil {
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return protocol.NotFound(protocol.MsgConversationNotFound, conversationID)
		}
		return protocol.Persistence(protocol.MsgProcessingFailure, conversationID)
	}

	h.hub.Broadcast(participants, userID, models.EventConversationRead, models.ReadEvent{
		ConversationID: conversationID,
		UserID:         userID,
		ReadAt:         readAt,
	})
	return nil
}

// authorize resolves the participant set, preferring the membership
// cache and falling back to the authoritative store on a miss, then
// requires the sender to be in it. Both paths normalize to the same
// []string so everything downstream is branch-free.
func (h *SignalHandler) authorize(ctx context.Context, userID, conversationID string) ([]string, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, protocol.Validation(protocol.MsgInvalidPayload, map[string]string{"field": "conversationId"})
	}

	participants, err := h.members.Participants(ctx, conversationID)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			// Cache trouble is a speed problem, not a correctness one.
			log.Printf("membership cache read failed conversation=%s: %v", conversationID, err)
		}
		participants, err = h.conversations.ParticipantIDs(ctx, conversationID)
		if err != nil {
			return nil, protocol.Persistence(protocol.MsgProcessingFailure, conversationID)
		}
	}

	if len(participants) == 0 {
		return nil, protocol.NotFound(protocol.MsgConversationNotFound, conversationID)
	}
	if !contains(participants, userID) {
		// Same rendering as not-found; membership is not disclosed.
		return nil, protocol.Forbidden(protocol.MsgConversationNotFound, conversationID)
	}
	return participants, nil
}
