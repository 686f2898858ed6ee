package store

import (
	"context"
	"time"
)

// User represents a registered account.
type User struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Message represents a persisted chat message between two users.
// ReadAt is nil until the recipient has seen the message, either because
// they were viewing the conversation at delivery time or because they
// opened the conversation later.
type Message struct {
	ID              int64
	ConversationKey string
	SenderID        int64
	RecipientID     int64
	Body            string
	CreatedAt       time.Time
	ReadAt          *time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// MessageStore handles message persistence and read state.
type MessageStore interface {
	// SaveMessage persists a message and fills in ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// MarkMessageRead sets the read timestamp on a single message.
	// Returns false if the message does not exist or was already read.
	MarkMessageRead(ctx context.Context, id int64) (bool, error)

	// MarkConversationRead sets the read timestamp on every unread message
	// in the conversation addressed to readerID. Returns the number of
	// messages updated.
	MarkConversationRead(ctx context.Context, conversationKey string, readerID int64) (int64, error)

	// ListConversation retrieves messages for a conversation, newest last.
	// If beforeID is provided, returns messages older than that ID.
	// Limit determines max number of messages to return.
	ListConversation(ctx context.Context, conversationKey string, limit int, beforeID *int64) ([]*Message, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}
