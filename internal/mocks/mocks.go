package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"messenger-service/internal/directory"
	"messenger-service/internal/models"
	"messenger-service/internal/store"
)

type ConversationStoreMock struct {
	mock.Mock
}

func (m *ConversationStoreMock) AppendMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	args := m.Called(ctx, msg)
	var persisted models.Message
	if val := args.Get(0); val != nil {
		persisted = val.(models.Message)
	}
	return persisted, args.Error(1)
}

func (m *ConversationStoreMock) LoadConversation(ctx context.Context, userID, counterpartID string) ([]models.Message, error) {
	args := m.Called(ctx, userID, counterpartID)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *ConversationStoreMock) DeleteMessage(ctx context.Context, messageID int64, requestingUserID string) (models.Message, error) {
	args := m.Called(ctx, messageID, requestingUserID)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *ConversationStoreMock) DeleteConversation(ctx context.Context, userID, counterpartID string) error {
	args := m.Called(ctx, userID, counterpartID)
	return args.Error(0)
}

func (m *ConversationStoreMock) MarkConversationRead(ctx context.Context, ownerID, counterpartID string) error {
	args := m.Called(ctx, ownerID, counterpartID)
	return args.Error(0)
}

func (m *ConversationStoreMock) ListChatSummaries(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	args := m.Called(ctx, userID)
	var summaries []models.ChatSummary
	if val := args.Get(0); val != nil {
		summaries = val.([]models.ChatSummary)
	}
	return summaries, args.Error(1)
}

type UserDirectoryMock struct {
	mock.Mock
}

func (m *UserDirectoryMock) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	args := m.Called(ctx, userID)
	var profile models.Profile
	if val := args.Get(0); val != nil {
		profile = val.(models.Profile)
	}
	return profile, args.Error(1)
}

var _ store.ConversationStore = (*ConversationStoreMock)(nil)
var _ directory.UserDirectory = (*UserDirectoryMock)(nil)
