package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// NewSQLiteStoresFromDSN opens a SQLite-backed ConversationService using the
// given DSN (a file path, or "file::memory:?cache=shared" for an in-process
// store that still exercises the real SQL path in tests).
func NewSQLiteStoresFromDSN(dsn string, config *SQLiteConfig) (StoreSet, error) {
	if strings.TrimSpace(dsn) == "" {
		return StoreSet{}, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return StoreSet{}, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateConversations(ctx, db); err != nil {
		_ = db.Close()
		return StoreSet{}, fmt.Errorf("migrate conversations table: %w", err)
	}

	stores := StoreSet{
		Conversations: &sqliteConversationStore{db: db},
		Sessions:      NewMemorySessionService(),
		closer:        db.Close,
	}
	return stores, nil
}

// NewSQLConversationStore wraps an existing database handle as a
// ConversationService, for callers that manage the connection themselves
// (and for exercising the SQL against a mock).
func NewSQLConversationStore(db *sql.DB) ConversationService {
	return &sqliteConversationStore{db: db}
}

func migrateConversations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			agent_id TEXT NOT NULL DEFAULT '',
			model TEXT NOT NULL DEFAULT '',
			max_tokens INTEGER NOT NULL DEFAULT 0,
			temperature REAL,
			top_p REAL,
			tool_choice TEXT NOT NULL DEFAULT '',
			reasoning_enabled INTEGER NOT NULL DEFAULT 0,
			reasoning_budget_tokens INTEGER NOT NULL DEFAULT 0,
			tool_inventory TEXT NOT NULL DEFAULT '[]',
			messages TEXT NOT NULL DEFAULT '[]',
			metrics TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)
	`)
	return err
}

type sqliteConversationStore struct {
	db *sql.DB
}

func (s *sqliteConversationStore) Upsert(ctx context.Context, conversation *models.Conversation) error {
	if conversation == nil || conversation.ID == "" {
		return fmt.Errorf("conversation is required")
	}

	messages, err := json.Marshal(conversation.Messages)
	if err != nil {
		return fmt.Errorf("marshal messages: %w", err)
	}
	toolInventory, err := json.Marshal(conversation.ToolInventory)
	if err != nil {
		return fmt.Errorf("marshal tool inventory: %w", err)
	}
	metrics, err := json.Marshal(conversation.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (
			id, title, agent_id, model, max_tokens, temperature, top_p, tool_choice,
			reasoning_enabled, reasoning_budget_tokens, tool_inventory, messages, metrics,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?, coalesce((SELECT created_at FROM conversations WHERE id = ?), CURRENT_TIMESTAMP), CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			agent_id = excluded.agent_id,
			model = excluded.model,
			max_tokens = excluded.max_tokens,
			temperature = excluded.temperature,
			top_p = excluded.top_p,
			tool_choice = excluded.tool_choice,
			reasoning_enabled = excluded.reasoning_enabled,
			reasoning_budget_tokens = excluded.reasoning_budget_tokens,
			tool_inventory = excluded.tool_inventory,
			messages = excluded.messages,
			metrics = excluded.metrics,
			updated_at = CURRENT_TIMESTAMP
	`,
		conversation.ID,
		conversation.Title,
		conversation.AgentID,
		conversation.Model,
		conversation.MaxTokens,
		nullableFloat(conversation.Temperature),
		nullableFloat(conversation.TopP),
		string(conversation.ToolChoice),
		conversation.Reasoning.Enabled,
		conversation.Reasoning.BudgetTokens,
		string(toolInventory),
		string(messages),
		string(metrics),
		conversation.ID,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}
	return nil
}

func (s *sqliteConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, agent_id, model, max_tokens, temperature, top_p, tool_choice,
			reasoning_enabled, reasoning_budget_tokens, tool_inventory, messages, metrics,
			created_at, updated_at
		FROM conversations WHERE id = ?
	`, id)

	var conversation models.Conversation
	var temperature, topP sql.NullFloat64
	var toolInventory, messages, metrics string
	if err := row.Scan(
		&conversation.ID,
		&conversation.Title,
		&conversation.AgentID,
		&conversation.Model,
		&conversation.MaxTokens,
		&temperature,
		&topP,
		&conversation.ToolChoice,
		&conversation.Reasoning.Enabled,
		&conversation.Reasoning.BudgetTokens,
		&toolInventory,
		&messages,
		&metrics,
		&conversation.CreatedAt,
		&conversation.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	if temperature.Valid {
		conversation.Temperature = &temperature.Float64
	}
	if topP.Valid {
		conversation.TopP = &topP.Float64
	}
	if err := json.Unmarshal([]byte(toolInventory), &conversation.ToolInventory); err != nil {
		return nil, fmt.Errorf("unmarshal tool inventory: %w", err)
	}
	if err := json.Unmarshal([]byte(messages), &conversation.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &conversation.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return &conversation, nil
}

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
