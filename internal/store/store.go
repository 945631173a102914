// Package store owns durable conversation state: the per-pair message
// history and each participant's chat-list summary.
package store

import (
	"context"
	"errors"
	"strings"

	"messenger-service/internal/models"
)

var (
	// ErrNoHistory reports that no message has ever been exchanged between
	// the pair. It is a normal outcome for loads, not a storage failure.
	ErrNoHistory = errors.New("no conversation history")

	ErrMessageNotFound = errors.New("message not found")

	// ErrNotAuthorized reports a delete attempted by a user who is neither
	// sender nor receiver of the message.
	ErrNotAuthorized = errors.New("not a participant of this message")
)

// ConversationStore abstracts the durable layer for conversations.
type ConversationStore interface {
	// AppendMessage durably writes the message and updates both
	// participants' summaries in the same transaction. Callers must not
	// announce success before this returns.
	AppendMessage(ctx context.Context, msg models.NewMessage) (models.Message, error)

	// LoadConversation returns the pair's messages ordered oldest to
	// newest, or ErrNoHistory when none exist.
	LoadConversation(ctx context.Context, userID, counterpartID string) ([]models.Message, error)

	// DeleteMessage hard-deletes a message if the requester participates in
	// it, then recomputes both participants' summaries from the remaining
	// history. Returns the deleted message.
	DeleteMessage(ctx context.Context, messageID int64, requestingUserID string) (models.Message, error)

	// DeleteConversation hard-deletes the pair's entire history and both
	// chat-list entries, or ErrNoHistory when the pair never exchanged a
	// message.
	DeleteConversation(ctx context.Context, userID, counterpartID string) error

	// ListChatSummaries returns the user's chat list ordered by most recent
	// activity first. This ordering is authoritative.
	ListChatSummaries(ctx context.Context, userID string) ([]models.ChatSummary, error)

	// MarkConversationRead clears the owner's unread flag for the
	// counterpart. A missing summary is not an error.
	MarkConversationRead(ctx context.Context, ownerID, counterpartID string) error
}

// ConversationKey maps both directions of a user pair onto one history.
func ConversationKey(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return strings.Join([]string{userA, userB}, ":")
}
