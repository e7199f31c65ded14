package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"chatcore/internal/domain"
)

// ThreadService assembles reply trees.
type ThreadService struct {
	messages domain.MessageRepository
	access   *AccessController
	rt       Runtime
}

func NewThreadService(messages domain.MessageRepository, access *AccessController, rt Runtime) *ThreadService {
	return &ThreadService{messages: messages, access: access, rt: rt.withDefaults()}
}

// BuildThread returns the tree of replies below rootID. Replies are fetched
// one level at a time; a message reached twice means the parent links form
// a cycle and the build fails with domain.ErrIntegrity.
func (s *ThreadService) BuildThread(ctx context.Context, principal *domain.User, rootID uuid.UUID) (*domain.ThreadNode, error) {
	root, err := readStore(ctx, s.rt, "messages.get", func(ctx context.Context) (*domain.Message, error) {
		return s.messages.GetByID(ctx, rootID)
	})
	if err != nil {
		return nil, fmt.Errorf("thread root %s: %w", rootID, err)
	}
	if err := s.access.Authorize(ctx, principal, OpRead, MessageTarget{Message: root}); err != nil {
		return nil, err
	}

	tree := &domain.ThreadNode{Message: root, Replies: []*domain.ThreadNode{}}
	nodes := map[uuid.UUID]*domain.ThreadNode{root.ID: tree}
	frontier := []uuid.UUID{root.ID}

	for len(frontier) > 0 {
		level := frontier
		replies, err := readStore(ctx, s.rt, "messages.replies", func(ctx context.Context) ([]*domain.Message, error) {
			return s.messages.ListReplies(ctx, level)
		})
		if err != nil {
			return nil, fmt.Errorf("load replies: %w", err)
		}

		frontier = nil
		for _, reply := range replies {
			if _, seen := nodes[reply.ID]; seen {
				return nil, fmt.Errorf("message %s appears twice below %s: %w", reply.ID, rootID, domain.ErrIntegrity)
			}
			if reply.ParentID == nil {
				return nil, fmt.Errorf("reply %s lost its parent: %w", reply.ID, domain.ErrIntegrity)
			}
			parent, ok := nodes[*reply.ParentID]
			if !ok {
				return nil, fmt.Errorf("reply %s has unexpected parent %s: %w", reply.ID, *reply.ParentID, domain.ErrIntegrity)
			}
			node := &domain.ThreadNode{Message: reply, Replies: []*domain.ThreadNode{}}
			parent.Replies = append(parent.Replies, node)
			nodes[reply.ID] = node
			frontier = append(frontier, reply.ID)
		}
	}
	return tree, nil
}
