package storage

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

func TestBranchForksWithoutMutatingOriginal(t *testing.T) {
	store := WithBranching(NewMemoryConversationStore())
	conv := &models.Conversation{
		ID:    "conv-1",
		Model: "test-model",
		Messages: []models.Message{
			{ID: "m1", Role: models.RoleUser, Content: "task"},
			{ID: "m2", Role: models.RoleAssistant, Content: "try A"},
			{ID: "m3", Role: models.RoleUser, Content: "no, try B"},
			{ID: "m4", Role: models.RoleAssistant, Content: "B done"},
		},
		Metrics: models.ConversationMetrics{TotalTokens: 99},
	}
	if err := store.Upsert(context.Background(), conv); err != nil {
		t.Fatal(err)
	}

	branch, err := store.Branch(context.Background(), "conv-1", 1)
	if err != nil {
		t.Fatal(err)
	}
	if branch.ID == conv.ID {
		t.Error("branch must get a fresh id")
	}
	if len(branch.Messages) != 2 || branch.Messages[1].ID != "m2" {
		t.Errorf("branch messages = %+v", branch.Messages)
	}
	if branch.Metrics.TotalTokens != 0 {
		t.Error("branch metrics must start fresh")
	}

	original, err := store.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(original.Messages) != 4 {
		t.Errorf("original mutated: %d messages", len(original.Messages))
	}

	// The branch is persisted and independently retrievable.
	persisted, err := store.Get(context.Background(), branch.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted.Messages) != 2 {
		t.Errorf("persisted branch messages = %d", len(persisted.Messages))
	}
}

func TestBranchRejectsOutOfRange(t *testing.T) {
	store := WithBranching(NewMemoryConversationStore())
	conv := &models.Conversation{
		ID:       "conv-1",
		Messages: []models.Message{{ID: "m1", Role: models.RoleUser, Content: "x"}},
	}
	store.Upsert(context.Background(), conv)

	if _, err := store.Branch(context.Background(), "conv-1", 5); err == nil {
		t.Error("out-of-range branch point must fail")
	}
	if _, err := store.Branch(context.Background(), "missing", 0); err == nil {
		t.Error("branching a missing conversation must fail")
	}
}
