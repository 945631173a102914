package models

import "time"

// ChatSummary is the denormalized "last message" record one user holds for
// one counterpart. Each participant owns an independent copy.
type ChatSummary struct {
	OwnerID       string    `db:"owner_id" json:"-"`
	MessagesWith  string    `db:"counterpart_id" json:"messagesWith"`
	LastMessage   string    `db:"last_message_body" json:"lastMessage"`
	LastMessageAt time.Time `db:"last_message_at" json:"date"`
	Unread        bool      `db:"unread" json:"unread"`
}

// Profile is the counterpart display info resolved through the external user
// directory. The chat core never stores it.
type Profile struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	ProfilePicURL string `json:"profilePicUrl"`
}
