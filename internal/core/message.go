package core

import "time"

// Message is the domain model for a chat message as carried in events.
type Message struct {
	ID              int64
	ConversationKey string
	SenderID        int64
	SenderName      string
	RecipientID     int64
	Body            string
	CreatedAt       time.Time
	ReadAt          *time.Time
}
