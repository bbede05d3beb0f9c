package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"chat-sync-service/internal/cache"
	"chat-sync-service/internal/handlers"
	"chat-sync-service/internal/models"
	"chat-sync-service/internal/observability"
	"chat-sync-service/internal/protocol"
	"chat-sync-service/internal/repositories"
)

// Bridge turns group lifecycle events into system messages and pushes
// them through the same persistence and fan-out path as user messages.
// Delivery is best-effort: a failed event is logged and dropped, never
// retried into a different order.
type Bridge struct {
	messages      repositories.MessageRepository
	conversations repositories.ConversationRepository
	users         repositories.UserRepository
	members       cache.Membership
	hub           handlers.Broadcaster
}

// NewBridge constructs a Bridge.
func NewBridge(
	messages repositories.MessageRepository,
	conversations repositories.ConversationRepository,
	users repositories.UserRepository,
	members cache.Membership,
	hub handlers.Broadcaster,
) *Bridge {
	return &Bridge{
		messages:      messages,
		conversations: conversations,
		users:         users,
		members:       members,
		hub:           hub,
	}
}

// HandleEvent processes one lifecycle event.
func (b *Bridge) HandleEvent(ctx context.Context, ev models.LifecycleEvent) {
	switch ev.Type {
	case models.LifecycleDeleted:
		b.handleDeleted(ev)
	case models.LifecycleCreated, models.LifecycleUserJoined, models.LifecycleUserLeft, models.LifecycleRoleChanged:
		b.handleSystemMessage(ctx, ev)
	default:
		log.Printf("unknown lifecycle event type=%q group=%s", ev.Type, ev.GroupID)
		observability.IncLifecycleEvent(ev.Type, "unknown")
	}
}

// handleDeleted broadcasts the out-of-band notice to the member list
// captured in the event payload. The conversation rows are already gone
// by cascade, so membership must never be re-fetched here.
func (b *Bridge) handleDeleted(ev models.LifecycleEvent) {
	if len(ev.MemberIDs) == 0 {
		log.Printf("deleted event without captured members group=%s, dropping", ev.GroupID)
		observability.IncLifecycleEvent(ev.Type, "no_members")
		return
	}

	b.hub.Broadcast(ev.MemberIDs, "", models.EventGroupDeleted, models.ConversationGoneEvent{
		ConversationID: ev.ConversationID,
		GroupID:        ev.GroupID,
	})
	observability.IncLifecycleEvent(ev.Type, "ok")
}

func (b *Bridge) handleSystemMessage(ctx context.Context, ev models.LifecycleEvent) {
	// Membership just changed for join/leave; drop the cached list so
	// signal handlers fall back to the authoritative store.
	if ev.Type == models.LifecycleUserJoined || ev.Type == models.LifecycleUserLeft {
		if err := b.members.Invalidate(ctx, ev.ConversationID); err != nil {
			log.Printf("membership cache invalidate failed conversation=%s: %v", ev.ConversationID, err)
		}
	}

	text := b.renderText(ctx, ev)
	msg := b.systemMessage(ev, text)

	if _, err := b.messages.Insert(ctx, msg); err != nil {
		log.Printf("system message insert failed group=%s: %v", ev.GroupID, err)
		observability.IncLifecycleEvent(ev.Type, "persist_error")
		return
	}

	participants, err := b.conversations.ParticipantIDs(ctx, ev.ConversationID)
	if err != nil {
		log.Printf("participant lookup failed conversation=%s: %v", ev.ConversationID, err)
		observability.IncLifecycleEvent(ev.Type, "broadcast_error")
		return
	}

	b.hub.Broadcast(participants, "", models.EventMessage, protocol.EnvelopeFromMessage(msg))
	observability.IncLifecycleEvent(ev.Type, "ok")
}

// renderText resolves display names at render time; names can change
// after the event was raised, so the payload carries ids only.
func (b *Bridge) renderText(ctx context.Context, ev models.LifecycleEvent) string {
	ids := []string{ev.ActorID}
	if ev.SubjectID != "" && ev.SubjectID != ev.ActorID {
		ids = append(ids, ev.SubjectID)
	}
	names, err := b.users.DisplayNames(ctx, ids)
	if err != nil {
		log.Printf("display name lookup failed: %v", err)
		names = map[string]string{}
	}
	actor := nameOrID(names, ev.ActorID)
	subject := nameOrID(names, ev.SubjectID)

	switch ev.Type {
	case models.LifecycleCreated:
		return fmt.Sprintf("%s created the group", actor)
	case models.LifecycleUserJoined:
		if ev.SubjectID == "" || ev.SubjectID == ev.ActorID {
			return fmt.Sprintf("%s joined the group", actor)
		}
		return fmt.Sprintf("%s added %s", actor, subject)
	case models.LifecycleUserLeft:
		if ev.SubjectID == "" || ev.SubjectID == ev.ActorID {
			return fmt.Sprintf("%s left the group", actor)
		}
		return fmt.Sprintf("%s removed %s", actor, subject)
	case models.LifecycleRoleChanged:
		return fmt.Sprintf("%s made %s %s", actor, subject, strings.ToLower(ev.NewRole))
	}
	return ""
}

// systemMessage builds a first-class message row: system messages are
// regular messages with contentType SYSTEM, not a separate channel.
func (b *Bridge) systemMessage(ev models.LifecycleEvent, text string) models.Message {
	content, _ := json.Marshal(map[string]string{"text": text})
	return models.Message{
		ID:             uuid.NewString(),
		ConversationID: ev.ConversationID,
		SenderID:       ev.ActorID,
		SentAt:         time.Now().UTC(),
		ContentType:    models.ContentTypeSystem,
		Content:        content,
		Text:           &text,
		Action:         models.ActionInsert,
	}
}

func nameOrID(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}
