package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/chat"
	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
	"messenger-service/internal/presence"
	"messenger-service/internal/protocol"
	"messenger-service/internal/store"
)

type sessionFixture struct {
	session  *Session
	registry *presence.Registry
	store    *mocks.ConversationStoreMock
	users    *mocks.UserDirectoryMock
}

func newSessionFixture() *sessionFixture {
	conversations := new(mocks.ConversationStoreMock)
	users := new(mocks.UserDirectoryMock)
	registry := presence.NewRegistry()
	router := chat.NewRouter(conversations, registry)

	return &sessionFixture{
		session:  newSession(nil, router, users),
		registry: registry,
		store:    conversations,
		users:    users,
	}
}

func (f *sessionFixture) dispatch(t *testing.T, frame string) {
	t.Helper()
	f.session.dispatch(context.Background(), []byte(frame))
}

func (f *sessionFixture) nextEvent(t *testing.T) protocol.ServerEvent {
	t.Helper()
	select {
	case event := <-f.session.out:
		return event
	case <-time.After(time.Second):
		t.Fatal("no outbound event")
		return protocol.ServerEvent{}
	}
}

func (f *sessionFixture) assertNoEvent(t *testing.T) {
	t.Helper()
	select {
	case event := <-f.session.out:
		t.Fatalf("unexpected outbound event %q", event.Event)
	default:
	}
}

func (f *sessionFixture) join(t *testing.T, userID string) {
	t.Helper()
	f.dispatch(t, `{"event":"join","payload":{"userId":"`+userID+`"}}`)
	event := f.nextEvent(t)
	require.Equal(t, protocol.EventPresenceChanged, event.Event)
}

func TestJoinRegistersSession(t *testing.T) {
	f := newSessionFixture()

	f.join(t, "alice")

	assert.Equal(t, "alice", f.session.UserID())
	assert.Equal(t, []string{"alice"}, f.registry.OnlineUserIDs())
}

func TestJoinWithoutUserIDRejected(t *testing.T) {
	f := newSessionFixture()

	f.dispatch(t, `{"event":"join","payload":{}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventChatError, event.Event)
	assert.Equal(t, protocol.CodeValidation, event.Payload.(protocol.ChatErrorPayload).Code)
	assert.Empty(t, f.registry.OnlineUserIDs())
}

func TestRepeatedJoinSameUserIsNoop(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	f.dispatch(t, `{"event":"join","payload":{"userId":"alice"}}`)

	f.assertNoEvent(t)
	assert.Len(t, f.registry.ActiveSessions("alice"), 1)
}

func TestEventsBeforeJoinAreRejected(t *testing.T) {
	f := newSessionFixture()

	f.dispatch(t, `{"event":"sendNewMsg","payload":{"userId":"alice","msgSendToUserId":"bob","msg":"hi"}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventChatError, event.Event)
	f.store.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestMalformedFrameReportsValidationError(t *testing.T) {
	f := newSessionFixture()

	f.dispatch(t, `not json`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventChatError, event.Event)
}

func TestUnknownEventReportsValidationError(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	f.dispatch(t, `{"event":"selfDestruct","payload":{}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventChatError, event.Event)
}

func TestLoadMessagesSetsViewingAndRepliesWithHistory(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	history := []models.Message{
		{ID: 1, SenderID: "bob", ReceiverID: "alice", Body: "hello"},
		{ID: 2, SenderID: "alice", ReceiverID: "bob", Body: "hey"},
	}
	f.store.On("LoadConversation", mock.Anything, "alice", "bob").Return(history, nil).Once()
	f.users.On("GetProfile", mock.Anything, "bob").
		Return(models.Profile{ID: "bob", Name: "Bob"}, nil).Once()

	f.dispatch(t, `{"event":"loadMessages","payload":{"userId":"alice","messagesWith":"bob"}}`)

	assert.Equal(t, "bob", f.session.Viewing())
	event := f.nextEvent(t)
	require.Equal(t, protocol.EventMessagesLoaded, event.Event)
	payload := event.Payload.(protocol.MessagesLoadedPayload)
	assert.Equal(t, "Bob", payload.Chat.MessagesWith.Name)
	assert.Equal(t, history, payload.Chat.Messages)
}

func TestLoadMessagesNoHistoryRepliesNoChatFound(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	f.store.On("LoadConversation", mock.Anything, "alice", "bob").
		Return(([]models.Message)(nil), store.ErrNoHistory).Once()

	f.dispatch(t, `{"event":"loadMessages","payload":{"userId":"alice","messagesWith":"bob"}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventNoChatFound, event.Event)
	// The session is still viewing: the client shows an empty conversation.
	assert.Equal(t, "bob", f.session.Viewing())
}

func TestLoadMessagesDirectoryOutageDegradesProfile(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	history := []models.Message{{ID: 1, SenderID: "bob", ReceiverID: "alice", Body: "hello"}}
	f.store.On("LoadConversation", mock.Anything, "alice", "bob").Return(history, nil).Once()
	f.users.On("GetProfile", mock.Anything, "bob").
		Return(models.Profile{}, assert.AnError).Once()

	f.dispatch(t, `{"event":"loadMessages","payload":{"userId":"alice","messagesWith":"bob"}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventMessagesLoaded, event.Event)
	assert.Equal(t, "bob", event.Payload.(protocol.MessagesLoadedPayload).Chat.MessagesWith.ID)
}

func TestLoadMessagesStorageFailureIsRetryable(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	f.store.On("LoadConversation", mock.Anything, "alice", "bob").
		Return(([]models.Message)(nil), assert.AnError).Once()

	f.dispatch(t, `{"event":"loadMessages","payload":{"userId":"alice","messagesWith":"bob"}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventChatError, event.Event)
	payload := event.Payload.(protocol.ChatErrorPayload)
	assert.Equal(t, protocol.CodeStorage, payload.Code)
	assert.True(t, payload.Retryable)
}

func TestLeaveChatClearsViewing(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	f.store.On("LoadConversation", mock.Anything, "alice", "bob").
		Return(([]models.Message)(nil), store.ErrNoHistory).Once()
	f.dispatch(t, `{"event":"loadMessages","payload":{"userId":"alice","messagesWith":"bob"}}`)
	f.nextEvent(t)
	require.Equal(t, "bob", f.session.Viewing())

	f.dispatch(t, `{"event":"leaveChat","payload":{}}`)

	assert.Empty(t, f.session.Viewing())
}

func TestSendNewMsgAcksThroughOwnSession(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	persisted := models.Message{ID: 3, SenderID: "alice", ReceiverID: "bob", Body: "hi"}
	f.store.On("AppendMessage", mock.Anything, mock.Anything).Return(persisted, nil).Once()

	f.dispatch(t, `{"event":"sendNewMsg","payload":{"userId":"alice","msgSendToUserId":"bob","msg":"hi"}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventMsgSent, event.Event)
	assert.Equal(t, persisted, event.Payload.(protocol.MsgPayload).NewMsg)
}

func TestSendNewMsgValidationErrorReachesOnlyRequester(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	f.dispatch(t, `{"event":"sendNewMsg","payload":{"userId":"alice","msgSendToUserId":"bob","msg":"   "}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventChatError, event.Event)
	assert.Equal(t, protocol.CodeValidation, event.Payload.(protocol.ChatErrorPayload).Code)
	f.store.AssertNotCalled(t, "AppendMessage", mock.Anything, mock.Anything)
}

func TestDeleteMsgNotFound(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")

	f.store.On("DeleteMessage", mock.Anything, int64(42), "alice").
		Return(models.Message{}, store.ErrMessageNotFound).Once()

	f.dispatch(t, `{"event":"deleteMsg","payload":{"userId":"alice","messagesWith":"bob","messageId":42}}`)

	event := f.nextEvent(t)
	require.Equal(t, protocol.EventChatError, event.Event)
	assert.Equal(t, protocol.CodeNotFound, event.Payload.(protocol.ChatErrorPayload).Code)
}

func TestCloseUnregistersExactlyOnce(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")
	require.Equal(t, []string{"alice"}, f.registry.OnlineUserIDs())

	f.session.Close()
	f.session.Close()

	assert.Empty(t, f.registry.OnlineUserIDs())
}

func TestCloseBeforeJoinIsSafe(t *testing.T) {
	f := newSessionFixture()

	f.session.Close()

	assert.Empty(t, f.registry.OnlineUserIDs())
}

func TestDeliverAfterCloseDropsSilently(t *testing.T) {
	f := newSessionFixture()
	f.join(t, "alice")
	f.session.Close()

	f.session.Deliver(protocol.ServerEvent{Event: protocol.EventMsgSent})
	// No panic, nothing queued beyond what was already there.
}

func TestCloseRacingJoinNeverLeaksRegistration(t *testing.T) {
	// A write failure can close the session while its join is still being
	// dispatched. Whatever the interleaving, no registration may survive
	// once both routines have returned.
	for i := 0; i < 200; i++ {
		f := newSessionFixture()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			f.dispatch(t, `{"event":"join","payload":{"userId":"alice"}}`)
		}()
		go func() {
			defer wg.Done()
			f.session.Close()
		}()
		wg.Wait()

		require.Empty(t, f.registry.ActiveSessions("alice"), "iteration %d", i)
		require.Empty(t, f.registry.OnlineUserIDs(), "iteration %d", i)
	}
}

func TestReconnectIsAFreshSession(t *testing.T) {
	conversations := new(mocks.ConversationStoreMock)
	users := new(mocks.UserDirectoryMock)
	registry := presence.NewRegistry()
	router := chat.NewRouter(conversations, registry)

	old := newSession(nil, router, users)
	old.dispatch(context.Background(), []byte(`{"event":"join","payload":{"userId":"alice"}}`))

	fresh := newSession(nil, router, users)
	fresh.dispatch(context.Background(), []byte(`{"event":"join","payload":{"userId":"alice"}}`))

	require.NotEqual(t, old.SessionID(), fresh.SessionID())
	require.Len(t, registry.ActiveSessions("alice"), 2)

	// Closing the stale session must not tear down the fresh one.
	old.Close()
	assert.Len(t, registry.ActiveSessions("alice"), 1)
	assert.Equal(t, []string{"alice"}, registry.OnlineUserIDs())
}
