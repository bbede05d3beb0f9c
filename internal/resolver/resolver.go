package resolver

import (
	"context"
	"errors"
	"strings"

	"chat-sync-service/internal/models"
	"chat-sync-service/internal/protocol"
	"chat-sync-service/internal/repositories"
)

// Separator for direct conversation ids. User ids must not contain it.
const directKeySeparator = "_"

// DirectKey derives the deterministic direct conversation id for a user
// pair: both ids sorted lexicographically and joined by "_". The same
// pair always yields the same id regardless of argument order.
func DirectKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return userA + directKeySeparator + userB
}

// splitDirectKey decomposes a DM-shaped id into its two user ids. An id
// qualifies only when it has exactly two non-empty components in
// ascending order; anything else is treated as a group id.
func splitDirectKey(conversationID string) (string, string, bool) {
	parts := strings.Split(conversationID, directKeySeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || parts[0] >= parts[1] {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// Resolver derives conversation identity and authorizes participation.
type Resolver struct {
	conversations repositories.ConversationRepository
	users         repositories.UserRepository
}

// New constructs a Resolver.
func New(conversations repositories.ConversationRepository, users repositories.UserRepository) *Resolver {
	return &Resolver{conversations: conversations, users: users}
}

// Resolve returns the conversation after verifying the sender may act in
// it. Direct conversations are created lazily on first use. A missing
// conversation and a forbidden one render with the same error string so
// non-members cannot probe for existence.
func (r *Resolver) Resolve(ctx context.Context, conversationID, senderID string) (models.Conversation, error) {
	userA, userB, isDirect := splitDirectKey(conversationID)

	var conv models.Conversation
	var err error

	if isDirect {
		// The id itself is proof of eligibility: the sender must be one
		// of the two encoded participants.
		if senderID != userA && senderID != userB {
			return models.Conversation{}, protocol.Forbidden(protocol.MsgInvalidParticipant, conversationID)
		}
		conv, err = r.conversations.Get(ctx, conversationID)
		if errors.Is(err, repositories.ErrConversationNotFound) {
			conv, err = r.createDirect(ctx, conversationID, userA, userB)
		}
	} else {
		conv, err = r.conversations.Get(ctx, conversationID)
		if errors.Is(err, repositories.ErrConversationNotFound) {
			return models.Conversation{}, protocol.NotFound(protocol.MsgConversationNotFound, conversationID)
		}
	}
	if err != nil {
		var perr *protocol.Error
		if errors.As(err, &perr) {
			return models.Conversation{}, perr
		}
		return models.Conversation{}, protocol.Persistence(protocol.MsgConversationNotFound, conversationID)
	}

	member, err := r.conversations.IsParticipant(ctx, conv.ID, senderID)
	if err != nil {
		return models.Conversation{}, protocol.Persistence(protocol.MsgConversationNotFound, conversationID)
	}
	if !member {
		// Deliberately indistinguishable from a missing conversation.
		return models.Conversation{}, protocol.Forbidden(protocol.MsgConversationNotFound, conversationID)
	}
	return conv, nil
}

func (r *Resolver) createDirect(ctx context.Context, conversationID, userA, userB string) (models.Conversation, error) {
	exist, err := r.users.Exist(ctx, []string{userA, userB})
	if err != nil {
		return models.Conversation{}, err
	}
	if !exist {
		return models.Conversation{}, protocol.NotFound(protocol.MsgUsersNotFound, conversationID)
	}
	return r.conversations.CreateDirect(ctx, conversationID, userA, userB)
}
