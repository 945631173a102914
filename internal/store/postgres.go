package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"messenger-service/internal/models"
)

// PostgresStore is a sqlx implementation of ConversationStore.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ ConversationStore = (*PostgresStore)(nil)

// AppendMessage inserts the message and upserts both chat summaries
// atomically.
func (s *PostgresStore) AppendMessage(ctx context.Context, msg models.NewMessage) (models.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	var persisted models.Message
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO messages (conversation_key, sender_id, receiver_id, body, media_ref, media_type)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING id, conversation_key, sender_id, receiver_id, body, media_ref, media_type, created_at`,
		msg.ConversationKey, msg.SenderID, msg.ReceiverID, msg.Body, msg.MediaRef, msg.MediaType).
		StructScan(&persisted)
	if err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	// The receiver's copy turns unread; the sender just acted, so theirs
	// clears.
	for _, side := range []struct {
		owner, counterpart string
		unread             bool
	}{
		{persisted.SenderID, persisted.ReceiverID, false},
		{persisted.ReceiverID, persisted.SenderID, true},
	} {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_summaries (owner_id, counterpart_id, last_message_body, last_message_at, unread)
             VALUES ($1, $2, $3, $4, $5)
             ON CONFLICT (owner_id, counterpart_id)
             DO UPDATE SET last_message_body = EXCLUDED.last_message_body,
                           last_message_at = EXCLUDED.last_message_at,
                           unread = EXCLUDED.unread`,
			side.owner, side.counterpart, persisted.Body, persisted.CreatedAt, side.unread); err != nil {
			return models.Message{}, fmt.Errorf("update summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit append: %w", err)
	}
	return persisted, nil
}

// LoadConversation returns the ordered history for the pair.
func (s *PostgresStore) LoadConversation(ctx context.Context, userID, counterpartID string) ([]models.Message, error) {
	key := ConversationKey(userID, counterpartID)
	var msgs []models.Message
	err := s.db.SelectContext(ctx, &msgs,
		`SELECT id, conversation_key, sender_id, receiver_id, body, media_ref, media_type, created_at
         FROM messages
         WHERE conversation_key = $1
         ORDER BY created_at ASC, id ASC`, key)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	if len(msgs) == 0 {
		return nil, ErrNoHistory
	}
	return msgs, nil
}

// DeleteMessage removes the message for a participating requester and
// recomputes both summaries from what remains.
func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID int64, requestingUserID string) (models.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	var msg models.Message
	err = tx.GetContext(ctx, &msg,
		`SELECT id, conversation_key, sender_id, receiver_id, body, media_ref, media_type, created_at
         FROM messages WHERE id = $1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("fetch message: %w", err)
	}

	if msg.SenderID != requestingUserID && msg.ReceiverID != requestingUserID {
		return models.Message{}, ErrNotAuthorized
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, messageID); err != nil {
		return models.Message{}, fmt.Errorf("delete message: %w", err)
	}

	if err := recomputeSummaries(ctx, tx, msg.ConversationKey, msg.SenderID, msg.ReceiverID); err != nil {
		return models.Message{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, fmt.Errorf("commit delete: %w", err)
	}
	return msg, nil
}

// recomputeSummaries rebuilds both participants' summaries from the most
// recent remaining message of the pair, removing them if none remain.
func recomputeSummaries(ctx context.Context, tx *sqlx.Tx, key, userA, userB string) error {
	var latest models.Message
	err := tx.GetContext(ctx, &latest,
		`SELECT id, conversation_key, sender_id, receiver_id, body, media_ref, media_type, created_at
         FROM messages
         WHERE conversation_key = $1
         ORDER BY created_at DESC, id DESC
         LIMIT 1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM chat_summaries
             WHERE (owner_id = $1 AND counterpart_id = $2) OR (owner_id = $2 AND counterpart_id = $1)`,
			userA, userB)
		if err != nil {
			return fmt.Errorf("drop summaries: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("find latest message: %w", err)
	}

	for _, pair := range [][2]string{{userA, userB}, {userB, userA}} {
		if _, err := tx.ExecContext(ctx,
			`UPDATE chat_summaries
             SET last_message_body = $3, last_message_at = $4
             WHERE owner_id = $1 AND counterpart_id = $2`,
			pair[0], pair[1], latest.Body, latest.CreatedAt); err != nil {
			return fmt.Errorf("recompute summary: %w", err)
		}
	}
	return nil
}

// DeleteConversation removes the pair's whole history and both chat-list
// entries in one transaction.
func (s *PostgresStore) DeleteConversation(ctx context.Context, userID, counterpartID string) error {
	key := ConversationKey(userID, counterpartID)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete conversation: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_key = $1`, key)
	if err != nil {
		return fmt.Errorf("delete conversation messages: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation messages: %w", err)
	}
	if deleted == 0 {
		return ErrNoHistory
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chat_summaries
         WHERE (owner_id = $1 AND counterpart_id = $2) OR (owner_id = $2 AND counterpart_id = $1)`,
		userID, counterpartID); err != nil {
		return fmt.Errorf("delete conversation summaries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete conversation: %w", err)
	}
	return nil
}

// ListChatSummaries returns the user's chat list, most recently active first.
func (s *PostgresStore) ListChatSummaries(ctx context.Context, userID string) ([]models.ChatSummary, error) {
	var summaries []models.ChatSummary
	err := s.db.SelectContext(ctx, &summaries,
		`SELECT owner_id, counterpart_id, last_message_body, last_message_at, unread
         FROM chat_summaries
         WHERE owner_id = $1
         ORDER BY last_message_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return summaries, nil
}

// MarkConversationRead clears the owner's unread flag for the counterpart.
func (s *PostgresStore) MarkConversationRead(ctx context.Context, ownerID, counterpartID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chat_summaries SET unread = FALSE
         WHERE owner_id = $1 AND counterpart_id = $2`,
		ownerID, counterpartID); err != nil {
		return fmt.Errorf("mark conversation read: %w", err)
	}
	return nil
}
