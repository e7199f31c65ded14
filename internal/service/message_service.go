package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

// MaxContentLength is the longest message content accepted, in characters.
const MaxContentLength = 5000

// Dispatcher is notified after a message has been stored.
type Dispatcher interface {
	OnMessageCreated(ctx context.Context, msg *domain.Message) (int, error)
}

type MessageService struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	messages      domain.MessageRepository
	access        *AccessController
	notify        Dispatcher
	rt            Runtime
}

func NewMessageService(
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	messages domain.MessageRepository,
	access *AccessController,
	notify Dispatcher,
	rt Runtime,
) *MessageService {
	return &MessageService{
		users:         users,
		conversations: conversations,
		messages:      messages,
		access:        access,
		notify:        notify,
		rt:            rt.withDefaults(),
	}
}

// CreateMessageInput names exactly one destination: a conversation or a
// single receiver.
type CreateMessageInput struct {
	ConversationID *uuid.UUID
	ReceiverID     *uuid.UUID
	ParentID       *uuid.UUID
	Content        string
}

func (s *MessageService) CreateMessage(ctx context.Context, principal *domain.User, in CreateMessageInput) (*domain.Message, error) {
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}
	if (in.ConversationID == nil) == (in.ReceiverID == nil) {
		return nil, fmt.Errorf("a message needs exactly one of conversation or receiver: %w", domain.ErrInvalidInput)
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:         uuid.New(),
		SenderID:   principal.ID,
		Content:    in.Content,
		CreatedAt:  s.rt.now(),
		SenderName: principal.Username,
	}

	if in.ConversationID != nil {
		convID := *in.ConversationID
		if _, err := readStore(ctx, s.rt, "conversations.get", func(ctx context.Context) (*domain.Conversation, error) {
			return s.conversations.GetByID(ctx, convID)
		}); err != nil {
			return nil, fmt.Errorf("conversation %s: %w", convID, err)
		}
		if err := s.access.Authorize(ctx, principal, OpCreate, NewMessageTarget{ConversationID: &convID}); err != nil {
			return nil, err
		}
		msg.Scope = domain.ConversationScope(convID)
	} else {
		receiverID := *in.ReceiverID
		if _, err := readStore(ctx, s.rt, "users.get", func(ctx context.Context) (*domain.User, error) {
			return s.users.GetByID(ctx, receiverID)
		}); err != nil {
			return nil, fmt.Errorf("receiver %s: %w", receiverID, err)
		}
		msg.Scope = domain.DirectScope(receiverID)
	}

	if in.ParentID != nil {
		if err := s.checkParent(ctx, msg, *in.ParentID); err != nil {
			return nil, err
		}
		parentID := *in.ParentID
		msg.ParentID = &parentID
	}

	if err := writeStore(ctx, s.rt, "messages.create", func(ctx context.Context) error {
		return s.messages.Create(ctx, msg)
	}); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	if s.notify != nil {
		if _, err := s.notify.OnMessageCreated(ctx, msg); err != nil {
			s.rt.Metrics.NotificationFailure()
			s.rt.Logger.Warn("notification dispatch failed", "message", msg.ID, "err", err)
		}
	}
	return msg, nil
}

// checkParent requires the parent to exist and share msg's destination.
func (s *MessageService) checkParent(ctx context.Context, msg *domain.Message, parentID uuid.UUID) error {
	if parentID == msg.ID {
		return fmt.Errorf("message cannot reply to itself: %w", domain.ErrInvalidInput)
	}
	parent, err := readStore(ctx, s.rt, "messages.get", func(ctx context.Context) (*domain.Message, error) {
		return s.messages.GetByID(ctx, parentID)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("parent message %s does not exist: %w", parentID, domain.ErrInvalidInput)
	}
	if err != nil {
		return fmt.Errorf("parent message %s: %w", parentID, err)
	}

	switch msg.Scope.Kind {
	case domain.ScopeConversation:
		if parent.Scope.Kind == domain.ScopeConversation && parent.Scope.ConversationID == msg.Scope.ConversationID {
			return nil
		}
	case domain.ScopeDirect:
		if parent.InvolvesPair(msg.SenderID, msg.Scope.ReceiverID) {
			return nil
		}
	}
	return fmt.Errorf("parent message %s belongs to another %s: %w", parentID, msg.Scope.Kind, domain.ErrInvalidInput)
}

// EditMessage replaces the content of a message. Unchanged content is a
// no-op; otherwise the previous content is kept as a history entry and the
// message is marked as edited by principal, in the same transaction.
func (s *MessageService) EditMessage(ctx context.Context, principal *domain.User, messageID uuid.UUID, newContent string) (*domain.Message, error) {
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}
	if err := validateContent(newContent); err != nil {
		return nil, err
	}

	msg, err := s.get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, principal, OpUpdate, MessageTarget{Message: msg}); err != nil {
		return nil, err
	}

	editor := principal.ID
	var updated *domain.Message
	err = writeStore(ctx, s.rt, "messages.update", func(ctx context.Context) error {
		var err error
		updated, err = s.messages.Update(ctx, messageID, func(current *domain.Message) (*domain.MessageHistory, error) {
			if current.Content == newContent {
				return nil, nil
			}
			h := &domain.MessageHistory{
				ID:         uuid.New(),
				MessageID:  current.ID,
				OldContent: current.Content,
				EditedAt:   s.rt.now(),
			}
			current.Content = newContent
			current.Edited = true
			current.EditedBy = &editor
			return h, nil
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("edit message %s: %w", messageID, err)
	}
	return updated, nil
}

// History returns the previous contents of a message, oldest first.
func (s *MessageService) History(ctx context.Context, principal *domain.User, messageID uuid.UUID) ([]*domain.MessageHistory, error) {
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, principal, OpRead, MessageTarget{Message: msg}); err != nil {
		return nil, err
	}
	return readStore(ctx, s.rt, "messages.history", func(ctx context.Context) ([]*domain.MessageHistory, error) {
		return s.messages.ListHistory(ctx, messageID)
	})
}

// GetMessage returns a single message the principal can read.
func (s *MessageService) GetMessage(ctx context.Context, principal *domain.User, messageID uuid.UUID) (*domain.Message, error) {
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, principal, OpRead, MessageTarget{Message: msg}); err != nil {
		return nil, err
	}
	return msg, nil
}

// DeleteMessage removes a message with its replies, histories and
// notifications.
func (s *MessageService) DeleteMessage(ctx context.Context, principal *domain.User, messageID uuid.UUID) error {
	if principal == nil {
		return domain.ErrUnauthorized
	}
	msg, err := s.get(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.access.Authorize(ctx, principal, OpDelete, MessageTarget{Message: msg}); err != nil {
		return err
	}
	if err := writeStore(ctx, s.rt, "messages.delete", func(ctx context.Context) error {
		return s.messages.Delete(ctx, messageID)
	}); err != nil {
		return fmt.Errorf("delete message %s: %w", messageID, err)
	}
	return nil
}

func (s *MessageService) get(ctx context.Context, id uuid.UUID) (*domain.Message, error) {
	msg, err := readStore(ctx, s.rt, "messages.get", func(ctx context.Context) (*domain.Message, error) {
		return s.messages.GetByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("message %s: %w", id, err)
	}
	return msg, nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return fmt.Errorf("message content cannot be empty: %w", domain.ErrInvalidInput)
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return fmt.Errorf("message content exceeds %d characters: %w", MaxContentLength, domain.ErrInvalidInput)
	}
	return nil
}
