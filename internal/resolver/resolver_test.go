package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-sync-service/internal/mocks"
	"chat-sync-service/internal/models"
	"chat-sync-service/internal/protocol"
	"chat-sync-service/internal/repositories"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	require.Equal(t, "alice_bob", DirectKey("alice", "bob"))
	require.Equal(t, "alice_bob", DirectKey("bob", "alice"))
	require.Equal(t, DirectKey("u1", "u2"), DirectKey("u2", "u1"))
}

func TestSplitDirectKey(t *testing.T) {
	userA, userB, ok := splitDirectKey("alice_bob")
	require.True(t, ok)
	require.Equal(t, "alice", userA)
	require.Equal(t, "bob", userB)

	for _, id := range []string{"group-42", "alice_bob_carol", "_bob", "alice_", "bob_alice", "alice_alice"} {
		_, _, ok := splitDirectKey(id)
		require.False(t, ok, "id %q must not parse as direct", id)
	}
}

func TestResolveExistingDirect(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	res := New(convRepo, userRepo)

	convRepo.On("Get", mock.Anything, "alice_bob").Return(models.Conversation{ID: "alice_bob"}, nil).Once()
	convRepo.On("IsParticipant", mock.Anything, "alice_bob", "alice").Return(true, nil).Once()

	conv, err := res.Resolve(context.Background(), "alice_bob", "alice")
	require.NoError(t, err)
	require.Equal(t, "alice_bob", conv.ID)
	convRepo.AssertExpectations(t)
}

func TestResolveCreatesDirectLazily(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	res := New(convRepo, userRepo)

	convRepo.On("Get", mock.Anything, "alice_bob").Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()
	userRepo.On("Exist", mock.Anything, []string{"alice", "bob"}).Return(true, nil).Once()
	convRepo.On("CreateDirect", mock.Anything, "alice_bob", "alice", "bob").Return(models.Conversation{ID: "alice_bob"}, nil).Once()
	convRepo.On("IsParticipant", mock.Anything, "alice_bob", "bob").Return(true, nil).Once()

	conv, err := res.Resolve(context.Background(), "alice_bob", "bob")
	require.NoError(t, err)
	require.Equal(t, "alice_bob", conv.ID)
	convRepo.AssertExpectations(t)
	userRepo.AssertExpectations(t)
}

func TestResolveDirectUnknownUsers(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	userRepo := new(mocks.UserRepositoryMock)
	res := New(convRepo, userRepo)

	convRepo.On("Get", mock.Anything, "alice_ghost").Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()
	userRepo.On("Exist", mock.Anything, []string{"alice", "ghost"}).Return(false, nil).Once()

	_, err := res.Resolve(context.Background(), "alice_ghost", "alice")
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.KindNotFound, perr.Kind)
	require.Equal(t, protocol.MsgUsersNotFound, perr.Message)
	convRepo.AssertNotCalled(t, "CreateDirect", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveDirectRejectsNonComponentSender(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	res := New(convRepo, new(mocks.UserRepositoryMock))

	_, err := res.Resolve(context.Background(), "alice_bob", "mallory")
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.KindAuthorization, perr.Kind)
	require.Equal(t, protocol.MsgInvalidParticipant, perr.Message)
	convRepo.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestResolveGroupNotFound(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	res := New(convRepo, new(mocks.UserRepositoryMock))

	convRepo.On("Get", mock.Anything, "group-42").Return(models.Conversation{}, repositories.ErrConversationNotFound).Once()

	_, err := res.Resolve(context.Background(), "group-42", "alice")
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.KindNotFound, perr.Kind)
	require.Equal(t, protocol.MsgConversationNotFound, perr.Message)
}

func TestResolveNonMemberRendersAsNotFound(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	res := New(convRepo, new(mocks.UserRepositoryMock))

	convRepo.On("Get", mock.Anything, "group-42").Return(models.Conversation{ID: "group-42", IsGroup: true}, nil).Once()
	convRepo.On("IsParticipant", mock.Anything, "group-42", "mallory").Return(false, nil).Once()

	_, err := res.Resolve(context.Background(), "group-42", "mallory")
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.KindAuthorization, perr.Kind)
	// Indistinguishable from the missing-conversation message.
	require.Equal(t, protocol.MsgConversationNotFound, perr.Message)
}

func TestResolveRepositoryError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	res := New(convRepo, new(mocks.UserRepositoryMock))

	convRepo.On("Get", mock.Anything, "group-42").Return(models.Conversation{}, assert.AnError).Once()

	_, err := res.Resolve(context.Background(), "group-42", "alice")
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	require.Equal(t, protocol.KindPersistence, perr.Kind)
}
