package domain

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// DeleteCascade removes the user together with every message they sent or
	// received, the histories and notifications of those messages and the
	// user's own notifications, all in one transaction.
	DeleteCascade(ctx context.Context, id uuid.UUID) error
}

// ConversationRepository defines persistence operations for conversations.
// Returned conversations always carry their participant ids.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	ListForUser(ctx context.Context, userID uuid.UUID, offset, limit int) ([]*Conversation, int, error)
	ReplaceParticipants(ctx context.Context, id uuid.UUID, participantIDs []uuid.UUID) error
}

// MessageMutation receives the current, row-locked state of a message and may
// modify it in place. Returning a nil history leaves the record untouched;
// returning a history commits both the snapshot and the modified message.
type MessageMutation func(current *Message) (*MessageHistory, error)

// MessageRepository defines persistence operations for messages and their
// histories.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id uuid.UUID) (*Message, error)

	// ListForConversations returns the messages of the given conversations
	// ordered by send time, oldest first.
	ListForConversations(ctx context.Context, conversationIDs []uuid.UUID) ([]*Message, error)

	// ListReplies returns messages whose parent is one of parentIDs, ordered
	// by send time, oldest first.
	ListReplies(ctx context.Context, parentIDs []uuid.UUID) ([]*Message, error)

	// Search returns conversation messages visible to userID that match f.
	Search(ctx context.Context, userID uuid.UUID, f MessageFilter, offset, limit int) ([]*Message, int, error)

	// Update runs fn against the locked row inside a single transaction.
	Update(ctx context.Context, id uuid.UUID, fn MessageMutation) (*Message, error)

	ListHistory(ctx context.Context, messageID uuid.UUID) ([]*MessageHistory, error)

	// Delete removes the message and every reply below it, together with
	// their histories and notifications, in one transaction.
	Delete(ctx context.Context, id uuid.UUID) error
}

// NotificationRepository defines persistence operations for notifications.
type NotificationRepository interface {
	// CreateIfAbsent inserts n unless a notification for the same
	// (user, message) pair exists, and reports whether it inserted.
	CreateIfAbsent(ctx context.Context, n *Notification) (bool, error)
	ListUnread(ctx context.Context, userID uuid.UUID) ([]*UnreadMessage, error)
	MarkRead(ctx context.Context, userID, messageID uuid.UUID) error
}

// RecordStore groups the repositories backed by one database.
type RecordStore interface {
	Users() UserRepository
	Conversations() ConversationRepository
	Messages() MessageRepository
	Notifications() NotificationRepository
	Close() error
}
