package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/models"
)

func TestDecodeValidFrame(t *testing.T) {
	env, err := Decode([]byte(`{"event":"sendNewMsg","payload":{"userId":"alice","msgSendToUserId":"bob","msg":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, EventSendNewMsg, env.Event)

	var payload SendNewMsgPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "bob", payload.MsgSendToUser)
	assert.Equal(t, "hi", payload.Msg)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{"event":`))
	assert.Error(t, err)
}

func TestDecodeRejectsMissingEvent(t *testing.T) {
	_, err := Decode([]byte(`{"payload":{"userId":"alice"}}`))
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

// The deployed web client reads these exact field names; renaming any of them
// is a breaking change even if the Go side still compiles.
func TestMessageWireFieldNames(t *testing.T) {
	sent := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	event := ServerEvent{
		Event: EventNewMsgReceived,
		Payload: MsgPayload{NewMsg: models.Message{
			ID:         7,
			SenderID:   "alice",
			ReceiverID: "bob",
			Body:       "hi",
			CreatedAt:  sent,
		}},
	}

	data, err := event.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "newMsgReceived", decoded["event"])

	msg := decoded["payload"].(map[string]any)["newMsg"].(map[string]any)
	assert.Equal(t, "alice", msg["sender"])
	assert.Equal(t, "bob", msg["receiver"])
	assert.Equal(t, "hi", msg["msg"])
	assert.Contains(t, msg, "date")
	assert.NotContains(t, msg, "conversation_key")
}

func TestChatSummaryWireFieldNames(t *testing.T) {
	data, err := json.Marshal(models.ChatSummary{
		OwnerID:       "alice",
		MessagesWith:  "bob",
		LastMessage:   "see you",
		LastMessageAt: time.Now(),
		Unread:        true,
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "bob", decoded["messagesWith"])
	assert.Equal(t, "see you", decoded["lastMessage"])
	assert.Equal(t, true, decoded["unread"])
	assert.Contains(t, decoded, "date")
	// The owner is implied by the authenticated request and never serialized.
	assert.NotContains(t, decoded, "ownerId")
}

func TestPresenceChangedWireShape(t *testing.T) {
	data, err := ServerEvent{
		Event:   EventPresenceChanged,
		Payload: PresenceChangedPayload{OnlineUserIDs: []string{"alice", "bob"}},
	}.Encode()
	require.NoError(t, err)

	assert.JSONEq(t, `{"event":"presenceChanged","payload":{"onlineUserIds":["alice","bob"]}}`, string(data))
}

func TestMediaFieldsOmittedWhenEmpty(t *testing.T) {
	data, err := json.Marshal(models.Message{ID: 1, SenderID: "a", ReceiverID: "b", Body: "x"})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.NotContains(t, decoded, "mediaRef")
	assert.NotContains(t, decoded, "mediaType")
}
