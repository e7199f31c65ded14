package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

// Operation is the kind of action a principal wants to perform.
type Operation string

const (
	OpRead   Operation = "read"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Target is what an operation is performed against.
type Target interface {
	isTarget()
}

// ConversationTarget is an existing conversation.
type ConversationTarget struct {
	Conversation *domain.Conversation
}

// MessageTarget is an existing message.
type MessageTarget struct {
	Message *domain.Message
}

// NewMessageTarget is a message about to be posted into a conversation.
// A nil ConversationID is always denied.
type NewMessageTarget struct {
	ConversationID *uuid.UUID
}

func (ConversationTarget) isTarget() {}
func (MessageTarget) isTarget()      {}
func (NewMessageTarget) isTarget()   {}

// AccessController decides whether a principal may act on a conversation or
// message. Membership is the only criterion; roles and operations do not
// change the outcome.
type AccessController struct {
	conversations domain.ConversationRepository
	rt            Runtime
}

func NewAccessController(conversations domain.ConversationRepository, rt Runtime) *AccessController {
	return &AccessController{conversations: conversations, rt: rt.withDefaults()}
}

// CanAccess reports whether principal may perform op on target. The error is
// non-nil only when the decision could not be made because the store failed.
func (a *AccessController) CanAccess(ctx context.Context, principal *domain.User, op Operation, target Target) (bool, error) {
	allowed, err := a.decide(ctx, principal, target)
	if err != nil {
		return false, err
	}
	a.rt.Metrics.AccessDecision(string(op), allowed)
	return allowed, nil
}

// Authorize is CanAccess with a denial turned into domain.ErrForbidden.
func (a *AccessController) Authorize(ctx context.Context, principal *domain.User, op Operation, target Target) error {
	if principal == nil {
		a.rt.Metrics.AccessDecision(string(op), false)
		return domain.ErrUnauthorized
	}
	ok, err := a.CanAccess(ctx, principal, op, target)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s denied: %w", op, domain.ErrForbidden)
	}
	return nil
}

func (a *AccessController) decide(ctx context.Context, principal *domain.User, target Target) (bool, error) {
	if principal == nil {
		return false, nil
	}

	switch t := target.(type) {
	case ConversationTarget:
		if t.Conversation == nil {
			return false, nil
		}
		return t.Conversation.HasParticipant(principal.ID), nil

	case NewMessageTarget:
		if t.ConversationID == nil {
			return false, nil
		}
		return a.isMember(ctx, *t.ConversationID, principal.ID)

	case MessageTarget:
		m := t.Message
		if m == nil {
			return false, nil
		}
		switch m.Scope.Kind {
		case domain.ScopeConversation:
			return a.isMember(ctx, m.Scope.ConversationID, principal.ID)
		case domain.ScopeDirect:
			return principal.ID == m.SenderID || principal.ID == m.Scope.ReceiverID, nil
		}
		return false, nil
	}
	return false, nil
}

func (a *AccessController) isMember(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	conv, err := readStore(ctx, a.rt, "conversations.get", func(ctx context.Context) (*domain.Conversation, error) {
		return a.conversations.GetByID(ctx, conversationID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load conversation %s: %w", conversationID, err)
	}
	return conv.HasParticipant(userID), nil
}
