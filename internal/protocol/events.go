// Package protocol defines the websocket wire contract between the chat core
// and the web client. Event names and payload field names are fixed by the
// deployed client and must not change.
package protocol

import (
	"encoding/json"
	"errors"

	"messenger-service/internal/models"
)

// Client-to-server event names.
const (
	EventJoin         = "join"
	EventLoadMessages = "loadMessages"
	EventLeaveChat    = "leaveChat"
	EventSendNewMsg   = "sendNewMsg"
	EventDeleteMsg    = "deleteMsg"
)

// Server-to-client event names.
const (
	EventPresenceChanged = "presenceChanged"
	EventMessagesLoaded  = "messagesLoaded"
	EventNoChatFound     = "noChatFound"
	EventMsgSent         = "msgSent"
	EventNewMsgReceived  = "newMsgReceived"
	EventMsgDeleted      = "msgDeleted"
	EventChatError       = "chatError"
)

// Error codes carried by chatError payloads.
const (
	CodeValidation    = "validation_error"
	CodeNotAuthorized = "not_authorized"
	CodeNotFound      = "not_found"
	CodeStorage       = "storage_error"
)

var ErrUnknownEvent = errors.New("unknown event")

// Envelope frames every message in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// JoinPayload enters the Joined state.
type JoinPayload struct {
	UserID string `json:"userId"`
}

// LoadMessagesPayload requests the conversation with one counterpart and
// marks it as the session's open conversation.
type LoadMessagesPayload struct {
	UserID       string `json:"userId"`
	MessagesWith string `json:"messagesWith"`
}

// SendNewMsgPayload triggers a send. MediaRef and MediaType reference an
// upload performed outside the chat core.
type SendNewMsgPayload struct {
	UserID        string `json:"userId"`
	MsgSendToUser string `json:"msgSendToUserId"`
	Msg           string `json:"msg"`
	MediaRef      string `json:"mediaRef,omitempty"`
	MediaType     string `json:"mediaType,omitempty"`
}

// DeleteMsgPayload triggers a delete.
type DeleteMsgPayload struct {
	UserID       string `json:"userId"`
	MessagesWith string `json:"messagesWith"`
	MessageID    int64  `json:"messageId"`
}

// PresenceChangedPayload is broadcast on every online/offline transition.
type PresenceChangedPayload struct {
	OnlineUserIDs []string `json:"onlineUserIds"`
}

// LoadedChat is the conversation reply: counterpart profile plus the full
// ordered history.
type LoadedChat struct {
	MessagesWith models.Profile   `json:"messagesWith"`
	Messages     []models.Message `json:"messages"`
}

// MessagesLoadedPayload replies to loadMessages when history exists.
type MessagesLoadedPayload struct {
	Chat LoadedChat `json:"chat"`
}

// MsgPayload carries a persisted message, used by both the sender ack and
// the receiver fan-out.
type MsgPayload struct {
	NewMsg models.Message `json:"newMsg"`
}

// MsgDeletedPayload notifies sessions viewing the conversation.
type MsgDeletedPayload struct {
	MessageID int64 `json:"messageId"`
}

// ChatErrorPayload reports a failed operation to the requesting session.
type ChatErrorPayload struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// ServerEvent is a ready-to-send event with a concrete payload.
type ServerEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Encode marshals a server event to its wire form.
func (e ServerEvent) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses an incoming frame into its envelope.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, err
	}
	if env.Event == "" {
		return Envelope{}, ErrUnknownEvent
	}
	return env, nil
}
