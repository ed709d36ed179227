// Package models provides the domain types for the core agent runtime:
// conversation messages, tool calls, streamed completion events, and the
// notification vocabulary the UI consumes.
package models

import (
	"encoding/json"
	"time"
)

// Role indicates the message author type.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry in a conversation. A single struct covers the three
// message shapes the runtime deals in: text messages (system/user/assistant),
// tool-result messages (Role == RoleTool, ToolResults populated), and image
// messages (Attachments populated).
type Message struct {
	ID      string `json:"id,omitempty"`
	Role    Role   `json:"role"`
	Content string `json:"content,omitempty"`

	// ModelID tags a user message with the model that was active when it was
	// appended. Provider adapters use it to locate the model-switch boundary
	// when scrubbing another model's reasoning from history.
	ModelID string `json:"model_id,omitempty"`

	// ToolCalls holds the tool invocations an assistant message requested.
	// Call IDs are unique within one message's list.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolResults holds the outputs for a tool-result message. Each result
	// references a tool call in a preceding assistant message by call id.
	ToolResults []ToolResult `json:"tool_results,omitempty"`

	// ReasoningDetails carries the extended-thinking blocks a provider
	// attached to this assistant message, in emission order. Signed blocks
	// must survive round-trips verbatim; see the context compactor for how
	// reasoning survives history compaction.
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`

	// Droppable marks a message the compactor may delete entirely, typically
	// the partial assistant output persisted after a cancelled turn.
	Droppable bool `json:"droppable,omitempty"`

	// RawContent preserves the provider's unmodified payload for replay.
	RawContent json.RawMessage `json:"raw_content,omitempty"`

	Attachments []Attachment   `json:"attachments,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitzero"`
}

// ReasoningDetail is one block of a provider's extended-thinking output.
// Signature is an opaque, provider-specific token that authenticates the
// block to that same provider on a later turn; it is never interpreted or
// re-derived locally, only carried forward verbatim.
type ReasoningDetail struct {
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Type      string `json:"type,omitempty"`
	Provider  string `json:"provider,omitempty"`
}

// ReasoningDetailsNonEmpty reports whether any block carries non-empty text
// or signature.
func ReasoningDetailsNonEmpty(details []ReasoningDetail) bool {
	for _, d := range details {
		if d.Text != "" || d.Signature != "" {
			return true
		}
	}
	return false
}

// Attachment represents a file or media payload on a message, such as an
// image read from disk for a vision-capable model.
type Attachment struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"` // image, document
	MimeType string `json:"mime_type,omitempty"`
	Filename string `json:"filename,omitempty"`
	Data     []byte `json:"data,omitempty"`
	URL      string `json:"url,omitempty"`
	Size     int64  `json:"size,omitempty"`
}

// ToolCall is a fully-materialized request from the model to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolCallPart is a streamed fragment of a tool invocation. The name and id
// appear only on the first part of a run in the typical streaming dialect;
// subsequent parts carry argument fragments that continue the previous part
// at the same output index.
type ToolCallPart struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
	Index     int    `json:"index"`
}

// ToolResult is the output of one tool execution, paired with its call by id.
type ToolResult struct {
	ToolName   string `json:"tool_name,omitempty"`
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`

	// TruncationFile is the temp-file path holding the full output when the
	// inline content was truncated.
	TruncationFile string `json:"truncation_file,omitempty"`

	Attachments []Attachment `json:"attachments,omitempty"`
}

// ToolDefinition describes a tool to the model: its name, what it does, and
// the JSON schema its arguments must satisfy.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// Session describes a live run scope bound to a conversation. It carries
// identity and metadata only; the run's cancellation signal is not part of
// this type.
type Session struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	AgentID        string         `json:"agent_id,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Agent is what the AgentRegistry collaborator resolves an agent id to:
// the system prompt, tool whitelist, model, and provider params a turn loop
// run under that agent id is bound to.
type Agent struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	SystemPrompt  string         `json:"system_prompt,omitempty"`
	Model         string         `json:"model"`
	Provider      string         `json:"provider"`
	ToolWhitelist []string       `json:"tool_whitelist,omitempty"`
	Params        map[string]any `json:"params,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
