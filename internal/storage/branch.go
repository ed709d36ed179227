package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// BranchingConversationService extends ConversationService with the ability
// to fork a conversation at an earlier message, so a turn can be retried
// from that point without mutating the original timeline.
type BranchingConversationService interface {
	ConversationService

	// Branch copies conversation id up to and including message index
	// `at` into a new conversation and returns it. The original is left
	// untouched.
	Branch(ctx context.Context, id string, at int) (*models.Conversation, error)
}

// branchingStore layers Branch over any ConversationService.
type branchingStore struct {
	ConversationService
}

// WithBranching wraps a ConversationService with branch support.
func WithBranching(base ConversationService) BranchingConversationService {
	return &branchingStore{ConversationService: base}
}

func (s *branchingStore) Branch(ctx context.Context, id string, at int) (*models.Conversation, error) {
	conv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if at < 0 || at >= len(conv.Messages) {
		return nil, fmt.Errorf("branch point %d out of range (%d messages)", at, len(conv.Messages))
	}

	branch := conv.Clone()
	branch.ID = uuid.NewString()
	branch.Title = conv.Title
	branch.Messages = append([]models.Message(nil), conv.Messages[:at+1]...)
	branch.Metrics = models.ConversationMetrics{}

	if err := s.Upsert(ctx, branch); err != nil {
		return nil, fmt.Errorf("persist branch: %w", err)
	}
	return branch, nil
}
