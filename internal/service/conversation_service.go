package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

// MinParticipants is the smallest allowed conversation.
const MinParticipants = 2

type ConversationService struct {
	users         domain.UserRepository
	conversations domain.ConversationRepository
	access        *AccessController
	rt            Runtime
}

func NewConversationService(
	users domain.UserRepository,
	conversations domain.ConversationRepository,
	access *AccessController,
	rt Runtime,
) *ConversationService {
	return &ConversationService{
		users:         users,
		conversations: conversations,
		access:        access,
		rt:            rt.withDefaults(),
	}
}

// CreateConversation starts a conversation between the creator and
// participantIDs.
func (s *ConversationService) CreateConversation(ctx context.Context, principal *domain.User, participantIDs []uuid.UUID) (*domain.Conversation, error) {
	if principal == nil {
		return nil, domain.ErrUnauthorized
	}

	ids, err := s.participantSet(ctx, append([]uuid.UUID{principal.ID}, participantIDs...))
	if err != nil {
		return nil, err
	}

	conv := &domain.Conversation{
		ID:             uuid.New(),
		ParticipantIDs: ids,
		CreatedAt:      s.rt.now(),
	}
	if err := writeStore(ctx, s.rt, "conversations.create", func(ctx context.Context) error {
		return s.conversations.Create(ctx, conv)
	}); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

func (s *ConversationService) GetConversation(ctx context.Context, principal *domain.User, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, principal, OpRead, ConversationTarget{Conversation: conv}); err != nil {
		return nil, err
	}
	return conv, nil
}

// UpdateParticipants replaces the participant set of a conversation.
func (s *ConversationService) UpdateParticipants(ctx context.Context, principal *domain.User, id uuid.UUID, participantIDs []uuid.UUID) (*domain.Conversation, error) {
	conv, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.access.Authorize(ctx, principal, OpUpdate, ConversationTarget{Conversation: conv}); err != nil {
		return nil, err
	}

	ids, err := s.participantSet(ctx, participantIDs)
	if err != nil {
		return nil, err
	}
	if err := writeStore(ctx, s.rt, "conversations.participants", func(ctx context.Context) error {
		return s.conversations.ReplaceParticipants(ctx, id, ids)
	}); err != nil {
		return nil, fmt.Errorf("update participants of %s: %w", id, err)
	}
	conv.ParticipantIDs = ids
	return conv, nil
}

func (s *ConversationService) get(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	conv, err := readStore(ctx, s.rt, "conversations.get", func(ctx context.Context) (*domain.Conversation, error) {
		return s.conversations.GetByID(ctx, id)
	})
	if err != nil {
		return nil, fmt.Errorf("conversation %s: %w", id, err)
	}
	return conv, nil
}

// participantSet de-duplicates ids, keeping first occurrences in order, and
// checks that enough of them are known users.
func (s *ConversationService) participantSet(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error) {
	unique := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	if len(unique) < MinParticipants {
		return nil, fmt.Errorf("a conversation needs at least %d distinct participants: %w", MinParticipants, domain.ErrInvalidInput)
	}

	for _, id := range unique {
		_, err := readStore(ctx, s.rt, "users.get", func(ctx context.Context) (*domain.User, error) {
			return s.users.GetByID(ctx, id)
		})
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("user %s does not exist: %w", id, domain.ErrInvalidInput)
		}
		if err != nil {
			return nil, fmt.Errorf("check participant %s: %w", id, err)
		}
	}
	return unique, nil
}
