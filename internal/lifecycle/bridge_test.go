package lifecycle

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chat-sync-service/internal/mocks"
	"chat-sync-service/internal/models"
	"chat-sync-service/internal/protocol"
)

type bridgeFixture struct {
	msgRepo  *mocks.MessageRepositoryMock
	convRepo *mocks.ConversationRepositoryMock
	userRepo *mocks.UserRepositoryMock
	members  *mocks.MembershipCacheMock
	hub      *mocks.BroadcasterMock
	bridge   *Bridge
}

func newBridgeFixture() *bridgeFixture {
	f := &bridgeFixture{
		msgRepo:  new(mocks.MessageRepositoryMock),
		convRepo: new(mocks.ConversationRepositoryMock),
		userRepo: new(mocks.UserRepositoryMock),
		members:  new(mocks.MembershipCacheMock),
		hub:      new(mocks.BroadcasterMock),
	}
	f.bridge = NewBridge(f.msgRepo, f.convRepo, f.userRepo, f.members, f.hub)
	return f
}

func TestUserJoinedProducesSystemMessage(t *testing.T) {
	f := newBridgeFixture()

	f.members.On("Invalidate", mock.Anything, "conv-42").Return(nil).Once()
	f.userRepo.On("DisplayNames", mock.Anything, []string{"u1", "u2"}).
		Return(map[string]string{"u1": "Alice", "u2": "Bob"}, nil).Once()
	f.msgRepo.On("Insert", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.ConversationID == "conv-42" &&
			msg.ContentType == models.ContentTypeSystem &&
			msg.Text != nil && *msg.Text == "Alice added Bob" &&
			msg.Action == models.ActionInsert
	})).Return(true, nil).Once()
	f.convRepo.On("ParticipantIDs", mock.Anything, "conv-42").Return([]string{"u1", "u2", "u3"}, nil).Once()
	f.hub.On("Broadcast", []string{"u1", "u2", "u3"}, "", models.EventMessage,
		mock.MatchedBy(func(env protocol.MessageEnvelope) bool {
			return env.ConversationID == "conv-42" && env.Message == "Alice added Bob"
		})).Once()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleUserJoined,
		GroupID:        "g42",
		ConversationID: "conv-42",
		ActorID:        "u1",
		SubjectID:      "u2",
	})

	f.members.AssertExpectations(t)
	f.msgRepo.AssertExpectations(t)
	f.hub.AssertExpectations(t)
}

func TestUserLeftOnOwnAccord(t *testing.T) {
	f := newBridgeFixture()

	f.members.On("Invalidate", mock.Anything, "conv-42").Return(nil).Once()
	f.userRepo.On("DisplayNames", mock.Anything, []string{"u1"}).
		Return(map[string]string{"u1": "Alice"}, nil).Once()
	f.msgRepo.On("Insert", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.Text != nil && *msg.Text == "Alice left the group"
	})).Return(true, nil).Once()
	f.convRepo.On("ParticipantIDs", mock.Anything, "conv-42").Return([]string{"u2", "u3"}, nil).Once()
	f.hub.On("Broadcast", []string{"u2", "u3"}, "", models.EventMessage, mock.Anything).Once()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleUserLeft,
		GroupID:        "g42",
		ConversationID: "conv-42",
		ActorID:        "u1",
		SubjectID:      "u1",
	})
	f.msgRepo.AssertExpectations(t)
}

func TestCreatedDoesNotInvalidateCache(t *testing.T) {
	f := newBridgeFixture()

	f.userRepo.On("DisplayNames", mock.Anything, []string{"u1"}).
		Return(map[string]string{"u1": "Alice"}, nil).Once()
	f.msgRepo.On("Insert", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.Text != nil && *msg.Text == "Alice created the group"
	})).Return(true, nil).Once()
	f.convRepo.On("ParticipantIDs", mock.Anything, "conv-42").Return([]string{"u1"}, nil).Once()
	f.hub.On("Broadcast", []string{"u1"}, "", models.EventMessage, mock.Anything).Once()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleCreated,
		GroupID:        "g42",
		ConversationID: "conv-42",
		ActorID:        "u1",
	})
	f.members.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

func TestRoleChangedMessage(t *testing.T) {
	f := newBridgeFixture()

	f.userRepo.On("DisplayNames", mock.Anything, []string{"u1", "u2"}).
		Return(map[string]string{"u1": "Alice", "u2": "Bob"}, nil).Once()
	f.msgRepo.On("Insert", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.Text != nil && *msg.Text == "Alice made Bob admin"
	})).Return(true, nil).Once()
	f.convRepo.On("ParticipantIDs", mock.Anything, "conv-42").Return([]string{"u1", "u2"}, nil).Once()
	f.hub.On("Broadcast", []string{"u1", "u2"}, "", models.EventMessage, mock.Anything).Once()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleRoleChanged,
		GroupID:        "g42",
		ConversationID: "conv-42",
		ActorID:        "u1",
		SubjectID:      "u2",
		NewRole:        "ADMIN",
	})
	f.msgRepo.AssertExpectations(t)
}

func TestDeletedBroadcastsToCapturedMembers(t *testing.T) {
	f := newBridgeFixture()

	f.hub.On("Broadcast", []string{"u1", "u2"}, "", models.EventGroupDeleted,
		models.ConversationGoneEvent{ConversationID: "conv-42", GroupID: "g42"}).Once()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleDeleted,
		GroupID:        "g42",
		ConversationID: "conv-42",
		ActorID:        "u1",
		MemberIDs:      []string{"u1", "u2"},
	})

	f.hub.AssertExpectations(t)
	// Membership rows are gone; nothing may be re-fetched or persisted.
	f.convRepo.AssertNotCalled(t, "ParticipantIDs", mock.Anything, mock.Anything)
	f.msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestDeletedWithoutMembersIsDropped(t *testing.T) {
	f := newBridgeFixture()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleDeleted,
		GroupID:        "g42",
		ConversationID: "conv-42",
	})
	f.hub.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPersistFailureSkipsBroadcast(t *testing.T) {
	f := newBridgeFixture()

	f.userRepo.On("DisplayNames", mock.Anything, []string{"u1"}).
		Return(map[string]string{"u1": "Alice"}, nil).Once()
	f.msgRepo.On("Insert", mock.Anything, mock.Anything).Return(false, assert.AnError).Once()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleCreated,
		GroupID:        "g42",
		ConversationID: "conv-42",
		ActorID:        "u1",
	})
	f.hub.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUnknownEventTypeIsIgnored(t *testing.T) {
	f := newBridgeFixture()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:    "renamed",
		GroupID: "g42",
	})
	f.hub.AssertNotCalled(t, "Broadcast", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.msgRepo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestDisplayNameFallbackToID(t *testing.T) {
	f := newBridgeFixture()

	f.userRepo.On("DisplayNames", mock.Anything, []string{"u1"}).
		Return(map[string]string{}, nil).Once()
	f.msgRepo.On("Insert", mock.Anything, mock.MatchedBy(func(msg models.Message) bool {
		return msg.Text != nil && *msg.Text == "u1 created the group"
	})).Return(true, nil).Once()
	f.convRepo.On("ParticipantIDs", mock.Anything, "conv-42").Return([]string{"u1"}, nil).Once()
	f.hub.On("Broadcast", []string{"u1"}, "", models.EventMessage, mock.Anything).Once()

	f.bridge.HandleEvent(context.Background(), models.LifecycleEvent{
		Type:           models.LifecycleCreated,
		GroupID:        "g42",
		ConversationID: "conv-42",
		ActorID:        "u1",
	})
	f.msgRepo.AssertExpectations(t)
}
