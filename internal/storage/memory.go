package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// MemoryConversationStore provides an in-memory ConversationService, used
// by tests and by single-process deployments that opt out of SQLite
// persistence.
type MemoryConversationStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
}

// NewMemoryConversationStore creates an in-memory conversation store.
func NewMemoryConversationStore() *MemoryConversationStore {
	return &MemoryConversationStore{conversations: make(map[string]*models.Conversation)}
}

func (s *MemoryConversationStore) Upsert(ctx context.Context, conversation *models.Conversation) error {
	if conversation == nil || conversation.ID == "" {
		return fmt.Errorf("conversation is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conversation.UpdatedAt = time.Now()
	if _, exists := s.conversations[conversation.ID]; !exists {
		conversation.CreatedAt = conversation.UpdatedAt
	}
	s.conversations[conversation.ID] = conversation.Clone()
	return nil
}

func (s *MemoryConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conversation.Clone(), nil
}

// MemorySessionService provides an in-memory SessionService.
type MemorySessionService struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionService creates an in-memory session service.
func NewMemorySessionService() *MemorySessionService {
	return &MemorySessionService{sessions: make(map[string]*Session)}
}

func (s *MemorySessionService) Create(ctx context.Context, conversationID string) (*Session, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	sessCtx, cancel := context.WithCancel(context.Background())
	session := &Session{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		CreatedAt:      time.Now(),
		ctx:            sessCtx,
		Cancel:         cancel,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return session, nil
}

func (s *MemorySessionService) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return session, nil
}

func (s *MemorySessionService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	session.Cancel()
	return nil
}

// MemoryAgentRegistry provides an in-memory AgentRegistry seeded at
// construction time from static config (e.g. the config file's agent
// definitions). It never mutates after NewMemoryAgentRegistry.
type MemoryAgentRegistry struct {
	agents map[string]*models.Agent
}

// NewMemoryAgentRegistry builds a registry from the given agents, keyed by
// their ID.
func NewMemoryAgentRegistry(agents []*models.Agent) *MemoryAgentRegistry {
	indexed := make(map[string]*models.Agent, len(agents))
	for _, agent := range agents {
		if agent == nil || agent.ID == "" {
			continue
		}
		indexed[agent.ID] = agent
	}
	return &MemoryAgentRegistry{agents: indexed}
}

func (r *MemoryAgentRegistry) Resolve(ctx context.Context, agentID string) (*models.Agent, error) {
	if agentID == "" {
		return nil, ErrNotFound
	}
	agent, ok := r.agents[agentID]
	if !ok {
		return nil, ErrNotFound
	}
	return agent, nil
}

// NewMemoryStores constructs a StoreSet backed entirely by memory.
func NewMemoryStores(agents []*models.Agent) StoreSet {
	return StoreSet{
		Conversations: NewMemoryConversationStore(),
		Sessions:      NewMemorySessionService(),
		Agents:        NewMemoryAgentRegistry(agents),
	}
}
