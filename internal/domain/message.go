package domain

import "time"

// Message is immutable once created; Author is denormalized for broadcast.
type Message struct {
	ID        string    `db:"id"`
	ChannelID string    `db:"channel_id"`
	UserID    string    `db:"user_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	Author    User      `db:"-"`
}
