package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role is descriptive only; access decisions never look at it.
type Role string

const (
	RoleGuest Role = "guest"
	RoleHost  Role = "host"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleHost, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user.
type User struct {
	ID             uuid.UUID `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          string    `db:"email" json:"email"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	Role           Role      `db:"role" json:"role"`
	PhoneNumber    *string   `db:"phone_number" json:"phone_number,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Conversation is a set of participants owned collectively by its members.
type Conversation struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ParticipantIDs []uuid.UUID `json:"participant_ids"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`

	// Messages is only populated by eager listings, oldest first.
	Messages []*Message `json:"messages,omitempty"`
}

// HasParticipant reports whether userID is a member of the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	for _, id := range c.ParticipantIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// ScopeKind tells which destination shape a message has.
type ScopeKind int

const (
	ScopeConversation ScopeKind = iota + 1
	ScopeDirect
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeConversation:
		return "conversation"
	case ScopeDirect:
		return "direct"
	}
	return "unknown"
}

// Scope is the destination of a message: a conversation or a single receiver.
// Exactly one of ConversationID and ReceiverID is meaningful, selected by Kind.
type Scope struct {
	Kind           ScopeKind `json:"kind"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	ReceiverID     uuid.UUID `json:"receiver_id,omitempty"`
}

func ConversationScope(conversationID uuid.UUID) Scope {
	return Scope{Kind: ScopeConversation, ConversationID: conversationID}
}

func DirectScope(receiverID uuid.UUID) Scope {
	return Scope{Kind: ScopeDirect, ReceiverID: receiverID}
}

// Message is a single message. Sender and CreatedAt never change after
// creation; Edited and EditedBy are maintained by the message service only.
type Message struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	SenderID  uuid.UUID  `db:"sender_id" json:"sender_id"`
	Scope     Scope      `json:"scope"`
	ParentID  *uuid.UUID `db:"parent_message_id" json:"parent_message_id,omitempty"`
	Content   string     `db:"content" json:"content"`
	Edited    bool       `db:"edited" json:"edited"`
	EditedBy  *uuid.UUID `db:"edited_by" json:"edited_by,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`

	// SenderName is joined in by listings; empty when not loaded.
	SenderName string `json:"sender_name,omitempty"`
}

// InvolvesPair reports whether the message was exchanged between a and b,
// in either direction.
func (m *Message) InvolvesPair(a, b uuid.UUID) bool {
	if m.Scope.Kind != ScopeDirect {
		return false
	}
	return (m.SenderID == a && m.Scope.ReceiverID == b) || (m.SenderID == b && m.Scope.ReceiverID == a)
}

// MessageHistory is an append-only snapshot of a message's prior content.
type MessageHistory struct {
	ID         uuid.UUID `db:"id" json:"id"`
	MessageID  uuid.UUID `db:"message_id" json:"message_id"`
	OldContent string    `db:"old_content" json:"old_content"`
	EditedAt   time.Time `db:"edited_at" json:"edited_at"`
}

// Notification tells a receiver about a message. At most one exists per
// (user, message) pair.
type Notification struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	MessageID uuid.UUID `db:"message_id" json:"message_id"`
	IsRead    bool      `db:"is_read" json:"is_read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// UnreadMessage is the minimal projection returned for an inbox.
type UnreadMessage struct {
	ID        uuid.UUID `json:"id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ThreadNode is one message in a reply tree together with its direct replies.
type ThreadNode struct {
	Message *Message      `json:"message"`
	Replies []*ThreadNode `json:"replies"`
}

// Size returns the number of messages in the subtree rooted at n.
func (n *ThreadNode) Size() int {
	total := 1
	for _, r := range n.Replies {
		total += r.Size()
	}
	return total
}

// ConversationView is the cached snapshot of a conversation's messages.
type ConversationView struct {
	ConversationID uuid.UUID  `json:"conversation_id"`
	Messages       []*Message `json:"messages"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

// MessageFilter narrows a message listing. Zero values mean "no filter".
type MessageFilter struct {
	ConversationID *uuid.UUID
	SenderID       *uuid.UUID
	SenderName     string
	ParticipantID  *uuid.UUID
	Start          *time.Time
	End            *time.Time
}

// Page is one page of a listing plus the total number of matching records.
type Page[T any] struct {
	Items    []T `json:"results"`
	Total    int `json:"count"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}
