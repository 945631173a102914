package models

import "time"

// Message is a single point-to-point chat message. Once created, every field
// is immutable; the only mutation the system supports is hard deletion.
type Message struct {
	ID              int64     `db:"id" json:"id"`
	ConversationKey string    `db:"conversation_key" json:"-"`
	SenderID        string    `db:"sender_id" json:"sender"`
	ReceiverID      string    `db:"receiver_id" json:"receiver"`
	Body            string    `db:"body" json:"msg"`
	MediaRef        string    `db:"media_ref" json:"mediaRef,omitempty"`
	MediaType       string    `db:"media_type" json:"mediaType,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"date"`
}

// NewMessage carries the validated inputs of a send before persistence
// assigns the id and timestamp.
type NewMessage struct {
	ConversationKey string
	SenderID        string
	ReceiverID      string
	Body            string
	MediaRef        string
	MediaType       string
}
