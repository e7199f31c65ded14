package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

// NotificationService records one notification per (receiver, message) and
// serves the unread inbox.
type NotificationService struct {
	conversations domain.ConversationRepository
	notifications domain.NotificationRepository
	rt            Runtime
}

func NewNotificationService(conversations domain.ConversationRepository, notifications domain.NotificationRepository, rt Runtime) *NotificationService {
	return &NotificationService{conversations: conversations, notifications: notifications, rt: rt.withDefaults()}
}

var _ Dispatcher = (*NotificationService)(nil)

// OnMessageCreated notifies every receiver of msg except its sender and
// returns how many notifications were newly created. Running it again for
// the same message creates nothing.
func (s *NotificationService) OnMessageCreated(ctx context.Context, msg *domain.Message) (int, error) {
	receivers, err := s.receivers(ctx, msg)
	if err != nil {
		return 0, err
	}

	created := 0
	var errs []error
	for _, userID := range receivers {
		n := &domain.Notification{
			ID:        uuid.New(),
			UserID:    userID,
			MessageID: msg.ID,
			CreatedAt: s.rt.now(),
		}
		var inserted bool
		err := writeStore(ctx, s.rt, "notifications.create", func(ctx context.Context) error {
			var err error
			inserted, err = s.notifications.CreateIfAbsent(ctx, n)
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify %s of %s: %w", userID, msg.ID, err))
			continue
		}
		if inserted {
			created++
		}
	}

	s.rt.Metrics.NotificationsCreated(created)
	return created, errors.Join(errs...)
}

func (s *NotificationService) receivers(ctx context.Context, msg *domain.Message) ([]uuid.UUID, error) {
	switch msg.Scope.Kind {
	case domain.ScopeDirect:
		if msg.Scope.ReceiverID == msg.SenderID {
			return nil, nil
		}
		return []uuid.UUID{msg.Scope.ReceiverID}, nil

	case domain.ScopeConversation:
		conv, err := readStore(ctx, s.rt, "conversations.get", func(ctx context.Context) (*domain.Conversation, error) {
			return s.conversations.GetByID(ctx, msg.Scope.ConversationID)
		})
		if err != nil {
			return nil, fmt.Errorf("load conversation %s: %w", msg.Scope.ConversationID, err)
		}
		out := make([]uuid.UUID, 0, len(conv.ParticipantIDs))
		for _, id := range conv.ParticipantIDs {
			if id != msg.SenderID {
				out = append(out, id)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("message %s has no destination: %w", msg.ID, domain.ErrIntegrity)
}

// UnreadFor lists the principal's unread messages in the order they arrived.
func (s *NotificationService) UnreadFor(ctx context.Context, principal *domain.User) ([]*domain.UnreadMessage, error) {
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}
	return readStore(ctx, s.rt, "notifications.unread", func(ctx context.Context) ([]*domain.UnreadMessage, error) {
		return s.notifications.ListUnread(ctx, principal.ID)
	})
}

func (s *NotificationService) MarkRead(ctx context.Context, principal *domain.User, messageID uuid.UUID) error {
	if principal == nil {
		return domain.ErrUnauthorized
	}
	err := writeStore(ctx, s.rt, "notifications.read", func(ctx context.Context) error {
		return s.notifications.MarkRead(ctx, principal.ID, messageID)
	})
	if err != nil {
		return fmt.Errorf("mark %s read: %w", messageID, err)
	}
	return nil
}
