package models

import "time"

// ToolChoice constrains how the model may invoke tools on a request.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// ReasoningConfig controls a provider's extended-thinking behavior for a
// conversation.
type ReasoningConfig struct {
	Enabled      bool `json:"enabled"`
	BudgetTokens int  `json:"budget_tokens,omitempty"`
}

// ConversationMetrics accumulates usage across a conversation's turns.
type ConversationMetrics struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	CachedTokens     int64   `json:"cached_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
	TurnCount        int     `json:"turn_count"`
}

// Usage projects the accumulated metrics into a Usage value.
func (m ConversationMetrics) Usage() Usage {
	return Usage{
		PromptTokens:     m.PromptTokens,
		CompletionTokens: m.CompletionTokens,
		TotalTokens:      m.TotalTokens,
		CachedTokens:     m.CachedTokens,
		CostUSD:          m.CostUSD,
	}
}

// Conversation is an ordered sequence of Message entries plus the
// request-shaping metadata that travels with it: the unit the orchestrator
// creates on first user task and persists after each turn through the
// ConversationService. A Context is derived from it read-only per request.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`

	AgentID string `json:"agent_id,omitempty"`
	Model   string `json:"model,omitempty"`

	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	ToolChoice  ToolChoice      `json:"tool_choice,omitempty"`
	Reasoning   ReasoningConfig `json:"reasoning,omitempty"`

	// ToolInventory names the tools available to this conversation, not
	// the tool calls actually issued within it.
	ToolInventory []string `json:"tool_inventory,omitempty"`

	Messages []Message `json:"messages"`

	Metrics ConversationMetrics `json:"metrics"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep-enough copy for read-only Context derivation: the
// Messages slice is copied so a compaction splice on the derived context
// cannot mutate the persisted conversation in place.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Messages = append([]Message(nil), c.Messages...)
	clone.ToolInventory = append([]string(nil), c.ToolInventory...)
	return &clone
}
