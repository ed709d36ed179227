package storage

import (
	"context"
	"errors"
	"time"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// ConversationService persists conversations: upsert after each turn, get
// to rehydrate one for a new turn.
type ConversationService interface {
	Upsert(ctx context.Context, conversation *models.Conversation) error
	Get(ctx context.Context, id string) (*models.Conversation, error)
}

// Session tracks a single in-flight turn-loop run against a conversation.
// Cancel trips the run's active cancellation signal; it is idempotent.
type Session struct {
	ID             string
	ConversationID string
	CreatedAt      time.Time

	ctx    context.Context
	Cancel context.CancelFunc
}

// Done returns the session's cancellation channel, closed once Cancel is
// called. It does not follow the context passed to Create.
func (s *Session) Done() <-chan struct{} {
	if s.ctx == nil {
		return nil
	}
	return s.ctx.Done()
}

// SessionService creates, looks up, and cancels turn-loop sessions.
type SessionService interface {
	Create(ctx context.Context, conversationID string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	Cancel(ctx context.Context, id string) error
}

// AgentRegistry resolves an agent id to its Agent definition (system
// prompt, tool whitelist, model, params) for the orchestrator to bind a
// turn loop run to.
type AgentRegistry interface {
	Resolve(ctx context.Context, agentID string) (*models.Agent, error)
}

// StoreSet groups the persistence-backed collaborators the runtime wires
// up at startup.
type StoreSet struct {
	Conversations ConversationService
	Sessions      SessionService
	Agents        AgentRegistry
	closer        func() error
}

// Close releases any underlying resources (e.g. a database handle).
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
