// Package chat routes messages between live sessions and the conversation
// store: it validates and serializes sends, decides fan-out versus
// store-only delivery, and scopes deletion and presence notifications.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"messenger-service/internal/models"
	"messenger-service/internal/presence"
	"messenger-service/internal/protocol"
	"messenger-service/internal/store"
)

var (
	ErrEmptyBody   = errors.New("message body is empty")
	ErrSelfMessage = errors.New("cannot message yourself")
)

// Router coordinates sends, loads and deletes across sessions.
type Router struct {
	store    store.ConversationStore
	registry *presence.Registry

	mu    sync.Mutex
	locks map[string]*sync.Mutex // per conversation key
}

// NewRouter constructs a Router.
func NewRouter(conversations store.ConversationStore, registry *presence.Registry) *Router {
	return &Router{
		store:    conversations,
		registry: registry,
		locks:    make(map[string]*sync.Mutex),
	}
}

// conversationLock returns the mutex serializing one conversation's appends.
// Lock values are never removed; the working set is bounded by the number of
// active pairs.
func (r *Router) conversationLock(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[key] = lock
	}
	return lock
}

// Join registers a session and broadcasts presence if the user came online.
func (r *Router) Join(sink presence.Sink) {
	cameOnline := r.registry.Register(sink.UserID(), sink)
	if cameOnline {
		r.broadcastPresence()
	} else {
		// New session of an already-online user still needs the roster.
		sink.Deliver(protocol.ServerEvent{
			Event:   protocol.EventPresenceChanged,
			Payload: protocol.PresenceChangedPayload{OnlineUserIDs: r.registry.OnlineUserIDs()},
		})
	}
}

// Leave unregisters a session and broadcasts presence if the user went
// offline. Safe to call more than once for the same session.
func (r *Router) Leave(userID, sessionID string) {
	if r.registry.Unregister(userID, sessionID) {
		r.broadcastPresence()
	}
}

// broadcastPresence pushes the current roster to every live session.
// Best-effort: presence is advisory, not history.
func (r *Router) broadcastPresence() {
	payload := protocol.PresenceChangedPayload{OnlineUserIDs: r.registry.OnlineUserIDs()}
	for _, sink := range r.registry.AllSessions() {
		sink.Deliver(protocol.ServerEvent{Event: protocol.EventPresenceChanged, Payload: payload})
	}
}

// Send validates and persists a message, acks the originating session and
// fans the message out to every active session of the receiver. The
// conversation lock is held across persist and fan-out so all sessions
// observe one conversation's messages in persistence order.
func (r *Router) Send(ctx context.Context, origin presence.Sink, receiverID, body, mediaRef, mediaType string) (models.Message, error) {
	senderID := origin.UserID()
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, ErrEmptyBody
	}
	if senderID == receiverID {
		return models.Message{}, ErrSelfMessage
	}

	key := store.ConversationKey(senderID, receiverID)
	lock := r.conversationLock(key)
	lock.Lock()
	defer lock.Unlock()

	persisted, err := r.store.AppendMessage(ctx, models.NewMessage{
		ConversationKey: key,
		SenderID:        senderID,
		ReceiverID:      receiverID,
		Body:            body,
		MediaRef:        mediaRef,
		MediaType:       mediaType,
	})
	if err != nil {
		zap.L().Error("append message failed",
			zap.String("conversation", key), zap.Error(err))
		return models.Message{}, err
	}

	origin.Deliver(protocol.ServerEvent{
		Event:   protocol.EventMsgSent,
		Payload: protocol.MsgPayload{NewMsg: persisted},
	})

	// All receiver sessions get the message; the client decides between
	// inline append and toast from its own open-chat state. An offline
	// receiver is covered by durable storage alone.
	for _, sink := range r.registry.ActiveSessions(receiverID) {
		sink.Deliver(protocol.ServerEvent{
			Event:   protocol.EventNewMsgReceived,
			Payload: protocol.MsgPayload{NewMsg: persisted},
		})
	}

	return persisted, nil
}

// Load returns the ordered history between the user and the counterpart.
// store.ErrNoHistory passes through as the distinct no-history outcome.
func (r *Router) Load(ctx context.Context, userID, counterpartID string) ([]models.Message, error) {
	return r.store.LoadConversation(ctx, userID, counterpartID)
}

// Delete removes a message on behalf of a participant and notifies only the
// sessions of both participants that currently have the conversation open.
func (r *Router) Delete(ctx context.Context, requestingUserID string, messageID int64) (models.Message, error) {
	deleted, err := r.store.DeleteMessage(ctx, messageID, requestingUserID)
	if err != nil {
		return models.Message{}, err
	}

	event := protocol.ServerEvent{
		Event:   protocol.EventMsgDeleted,
		Payload: protocol.MsgDeletedPayload{MessageID: deleted.ID},
	}
	r.notifyViewers(deleted.SenderID, deleted.ReceiverID, event)
	r.notifyViewers(deleted.ReceiverID, deleted.SenderID, event)
	return deleted, nil
}

// notifyViewers delivers the event to the user's sessions that are viewing
// the conversation with the counterpart.
func (r *Router) notifyViewers(userID, counterpartID string, event protocol.ServerEvent) {
	for _, sink := range r.registry.ActiveSessions(userID) {
		if sink.Viewing() == counterpartID {
			sink.Deliver(event)
		}
	}
}

// DeleteConversation drops the whole history between the user and the
// counterpart. It takes the conversation lock so a concurrent send cannot
// interleave with the purge and resurrect a summary.
func (r *Router) DeleteConversation(ctx context.Context, userID, counterpartID string) error {
	lock := r.conversationLock(store.ConversationKey(userID, counterpartID))
	lock.Lock()
	defer lock.Unlock()

	return r.store.DeleteConversation(ctx, userID, counterpartID)
}

// ListChats returns the user's chat list in the store's authoritative order.
func (r *Router) ListChats(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	return r.store.ListChatSummaries(ctx, userID)
}

// MarkRead clears the user's unread flag for the counterpart's chat entry.
func (r *Router) MarkRead(ctx context.Context, userID, counterpartID string) error {
	return r.store.MarkConversationRead(ctx, userID, counterpartID)
}

// ClassifyError maps an operation error onto the protocol error taxonomy.
func ClassifyError(err error) protocol.ChatErrorPayload {
	switch {
	case errors.Is(err, ErrEmptyBody), errors.Is(err, ErrSelfMessage):
		return protocol.ChatErrorPayload{Code: protocol.CodeValidation, Message: err.Error()}
	case errors.Is(err, store.ErrNotAuthorized):
		return protocol.ChatErrorPayload{Code: protocol.CodeNotAuthorized, Message: err.Error()}
	case errors.Is(err, store.ErrMessageNotFound):
		return protocol.ChatErrorPayload{Code: protocol.CodeNotFound, Message: err.Error()}
	default:
		return protocol.ChatErrorPayload{
			Code:      protocol.CodeStorage,
			Message:   "temporary storage failure, please retry",
			Retryable: true,
		}
	}
}
