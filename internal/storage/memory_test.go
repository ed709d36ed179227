package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

func TestMemoryConversationStoreLifecycle(t *testing.T) {
	store := NewMemoryConversationStore()
	conversation := &models.Conversation{
		ID:      uuid.NewString(),
		Title:   "first task",
		AgentID: "agent-1",
		Model:   "test-model",
		Messages: []models.Message{
			{ID: "m1", Role: models.RoleUser, Content: "hello"},
		},
	}

	if err := store.Upsert(context.Background(), conversation); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.Get(context.Background(), conversation.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != conversation.Title {
		t.Fatalf("Get() title = %q", got.Title)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("Get() messages = %d, want 1", len(got.Messages))
	}

	got.Messages = append(got.Messages, models.Message{ID: "m2", Role: models.RoleAssistant, Content: "hi"})
	if err := store.Upsert(context.Background(), got); err != nil {
		t.Fatalf("Upsert() update error = %v", err)
	}

	updated, err := store.Get(context.Background(), conversation.ID)
	if err != nil {
		t.Fatalf("Get() after update error = %v", err)
	}
	if len(updated.Messages) != 2 {
		t.Fatalf("Get() after update messages = %d, want 2", len(updated.Messages))
	}
	if !updated.CreatedAt.Equal(got.CreatedAt) {
		t.Fatalf("CreatedAt should not change on update")
	}

	if _, err := store.Get(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Get() missing error = %v, want ErrNotFound", err)
	}
}

func TestMemoryConversationStoreClonesOnRead(t *testing.T) {
	store := NewMemoryConversationStore()
	conversation := &models.Conversation{
		ID:       uuid.NewString(),
		Messages: []models.Message{{ID: "m1", Content: "a"}},
	}
	if err := store.Upsert(context.Background(), conversation); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := store.Get(context.Background(), conversation.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Messages[0].Content = "mutated"

	again, err := store.Get(context.Background(), conversation.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Messages[0].Content != "a" {
		t.Fatalf("mutation leaked into stored conversation: %q", again.Messages[0].Content)
	}
}

func TestMemorySessionServiceLifecycle(t *testing.T) {
	service := NewMemorySessionService()
	session, err := service.Create(context.Background(), "conversation-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if session.ConversationID != "conversation-1" {
		t.Fatalf("ConversationID = %q", session.ConversationID)
	}

	got, err := service.Get(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	select {
	case <-got.Done():
		t.Fatal("session should not be cancelled yet")
	default:
	}

	if err := service.Cancel(context.Background(), session.ID); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	select {
	case <-got.Done():
	case <-time.After(time.Second):
		t.Fatal("expected session to be cancelled")
	}

	if err := service.Cancel(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Cancel() missing error = %v, want ErrNotFound", err)
	}
}

func TestMemoryAgentRegistryResolve(t *testing.T) {
	registry := NewMemoryAgentRegistry([]*models.Agent{
		{ID: "agent-1", Name: "Coder", Model: "claude", Provider: "anthropic"},
	})

	agent, err := registry.Resolve(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if agent.Name != "Coder" {
		t.Fatalf("Resolve() name = %q", agent.Name)
	}

	if _, err := registry.Resolve(context.Background(), "missing"); err != ErrNotFound {
		t.Fatalf("Resolve() missing error = %v, want ErrNotFound", err)
	}
}
