package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chat-sync-service/internal/auth"
	"chat-sync-service/internal/cache"
	"chat-sync-service/internal/models"
	"chat-sync-service/internal/notify"
	"chat-sync-service/internal/presence"
	"chat-sync-service/internal/repositories"
)

type ConversationRepositoryMock struct {
	mock.Mock
}

func (m *ConversationRepositoryMock) Get(ctx context.Context, conversationID string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) CreateDirect(ctx context.Context, conversationID, userA, userB string) (models.Conversation, error) {
	args := m.Called(ctx, conversationID, userA, userB)
	var conv models.Conversation
	if val := args.Get(0); val != nil {
		conv = val.(models.Conversation)
	}
	return conv, args.Error(1)
}

func (m *ConversationRepositoryMock) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	args := m.Called(ctx, conversationID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *ConversationRepositoryMock) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	args := m.Called(ctx, conversationID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *ConversationRepositoryMock) UpdateLastRead(ctx context.Context, conversationID, userID string, at time.Time) error {
	args := m.Called(ctx, conversationID, userID, at)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Insert(ctx context.Context, msg models.Message) (bool, error) {
	args := m.Called(ctx, msg)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) Update(ctx context.Context, msg models.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepositoryMock) SoftDelete(ctx context.Context, messageID string, at time.Time) error {
	args := m.Called(ctx, messageID, at)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Get(ctx context.Context, messageID string) (models.Message, error) {
	args := m.Called(ctx, messageID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Exist(ctx context.Context, userIDs []string) (bool, error) {
	args := m.Called(ctx, userIDs)
	return args.Bool(0), args.Error(1)
}

func (m *UserRepositoryMock) DisplayNames(ctx context.Context, userIDs []string) (map[string]string, error) {
	args := m.Called(ctx, userIDs)
	var names map[string]string
	if val := args.Get(0); val != nil {
		names = val.(map[string]string)
	}
	return names, args.Error(1)
}

func (m *UserRepositoryMock) DeviceTokens(ctx context.Context, userIDs []string) ([]string, error) {
	args := m.Called(ctx, userIDs)
	var tokens []string
	if val := args.Get(0); val != nil {
		tokens = val.([]string)
	}
	return tokens, args.Error(1)
}

type PresenceStoreMock struct {
	mock.Mock
}

func (m *PresenceStoreMock) AddConnection(ctx context.Context, userID, connID string) error {
	args := m.Called(ctx, userID, connID)
	return args.Error(0)
}

func (m *PresenceStoreMock) RemoveConnection(ctx context.Context, userID, connID string) (bool, error) {
	args := m.Called(ctx, userID, connID)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceStoreMock) Status(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *PresenceStoreMock) BulkStatus(ctx context.Context, userIDs []string) (map[string]string, error) {
	args := m.Called(ctx, userIDs)
	var statuses map[string]string
	if val := args.Get(0); val != nil {
		statuses = val.(map[string]string)
	}
	return statuses, args.Error(1)
}

type MembershipCacheMock struct {
	mock.Mock
}

func (m *MembershipCacheMock) Participants(ctx context.Context, conversationID string) ([]string, error) {
	args := m.Called(ctx, conversationID)
	var ids []string
	if val := args.Get(0); val != nil {
		ids = val.([]string)
	}
	return ids, args.Error(1)
}

func (m *MembershipCacheMock) Set(ctx context.Context, conversationID string, userIDs []string) error {
	args := m.Called(ctx, conversationID, userIDs)
	return args.Error(0)
}

func (m *MembershipCacheMock) Invalidate(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type SinkMock struct {
	mock.Mock
}

func (m *SinkMock) Send(ctx context.Context, tokens []string, note notify.Notification, data map[string]string) error {
	args := m.Called(ctx, tokens, note, data)
	return args.Error(0)
}

func (m *SinkMock) SendSilent(ctx context.Context, tokens []string, data map[string]string) error {
	args := m.Called(ctx, tokens, data)
	return args.Error(0)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(ctx context.Context, token string) (string, error) {
	args := m.Called(ctx, token)
	return args.String(0), args.Error(1)
}

type BroadcasterMock struct {
	mock.Mock
}

func (m *BroadcasterMock) Broadcast(userIDs []string, excludeUserID, event string, payload any) {
	m.Called(userIDs, excludeUserID, event, payload)
}

func (m *BroadcasterMock) BroadcastAll(event string, payload any) {
	m.Called(event, payload)
}

var _ repositories.ConversationRepository = (*ConversationRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ presence.Store = (*PresenceStoreMock)(nil)
var _ cache.Membership = (*MembershipCacheMock)(nil)
var _ notify.Sink = (*SinkMock)(nil)
var _ auth.Verifier = (*VerifierMock)(nil)
