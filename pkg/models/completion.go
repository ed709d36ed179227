package models

// FinishReason is the provider's terminal classification of a response.
type FinishReason string

const (
	FinishReasonStop          FinishReason = "stop"
	FinishReasonLength        FinishReason = "length"
	FinishReasonToolCalls     FinishReason = "tool_calls"
	FinishReasonContentFilter FinishReason = "content_filter"
)

// Usage carries token accounting for one provider request. Usage does not
// stream; providers emit it once, on the final event of a response.
type Usage struct {
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	CachedTokens     int64   `json:"cached_tokens,omitempty"`
	CostUSD          float64 `json:"cost_usd,omitempty"`
}

// Add accumulates other into u, field by field.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
	u.CachedTokens += other.CachedTokens
	u.CostUSD += other.CostUSD
}

// ChatCompletionMessage is the canonical streamed event every provider
// dialect is decoded into. A single event may carry a content delta, a
// reasoning delta, tool-call parts or full tool calls, a finish reason, or
// usage counters; a terminal event is one with FinishReason set.
type ChatCompletionMessage struct {
	// Content is a delta of assistant text.
	Content string `json:"content,omitempty"`

	// Reasoning is a delta of extended-thinking text, kept apart from
	// Content so the UI can render it separately.
	Reasoning string `json:"reasoning,omitempty"`

	// ReasoningDetails carries structured reasoning blocks, including the
	// opaque signatures some providers require round-tripped verbatim.
	ReasoningDetails []ReasoningDetail `json:"reasoning_details,omitempty"`

	// ToolCallParts holds streamed fragments of tool invocations.
	ToolCallParts []ToolCallPart `json:"tool_call_parts,omitempty"`

	// ToolCalls holds fully-materialized tool invocations. Providers that
	// stream fragments leave this empty; the stream transformers fuse parts
	// into full calls at finish.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	FinishReason FinishReason `json:"finish_reason,omitempty"`
	Usage        *Usage       `json:"usage,omitempty"`
}

// AppendToolCallPart adds a streamed fragment to the event's part list.
func (m *ChatCompletionMessage) AppendToolCallPart(part ToolCallPart) {
	m.ToolCallParts = append(m.ToolCallParts, part)
}

// AppendToolCall adds a full call to the event's call list. Merging partial
// fragments into full calls is the stream transformers' job, not this
// method's.
func (m *ChatCompletionMessage) AppendToolCall(call ToolCall) {
	m.ToolCalls = append(m.ToolCalls, call)
}

// Merge folds a streamed event into a running accumulator: deltas
// concatenate, lists append, later scalar fields shadow earlier ones, and
// usage sums. The orchestrator uses this to build the final assistant
// message from the event stream.
func (m *ChatCompletionMessage) Merge(other *ChatCompletionMessage) {
	if other == nil {
		return
	}
	m.Content += other.Content
	m.Reasoning += other.Reasoning
	m.ReasoningDetails = append(m.ReasoningDetails, other.ReasoningDetails...)
	m.ToolCallParts = append(m.ToolCallParts, other.ToolCallParts...)
	m.ToolCalls = append(m.ToolCalls, other.ToolCalls...)
	if other.FinishReason != "" {
		m.FinishReason = other.FinishReason
	}
	if other.Usage != nil {
		if m.Usage == nil {
			m.Usage = &Usage{}
		}
		m.Usage.Add(*other.Usage)
	}
}

// IsTerminal reports whether this event ends the stream for its request.
func (m *ChatCompletionMessage) IsTerminal() bool {
	return m.FinishReason != ""
}

// Empty reports whether the event carries no content, reasoning, or tool
// calls. A stream whose merged result is empty with no tool calls counts as
// a retryable provider response.
func (m *ChatCompletionMessage) Empty() bool {
	return m.Content == "" && m.Reasoning == "" &&
		len(m.ToolCallParts) == 0 && len(m.ToolCalls) == 0
}
