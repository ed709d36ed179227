package models

// Context is the request-shaped, read-only view of a conversation sent to a
// provider adapter: the messages, the tool inventory, and the sampling
// parameters for one completion request. Deriving a Context copies the
// message slice, so adapters may run their pre-encode transformer pipelines
// without mutating the conversation they were derived from.
type Context struct {
	Model    string           `json:"model"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`

	ToolChoice  ToolChoice      `json:"tool_choice,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Reasoning   ReasoningConfig `json:"reasoning,omitempty"`
}

// Context derives the request view for this conversation. tools is the
// resolved definition list for the conversation's tool inventory.
func (c *Conversation) Context(tools []ToolDefinition) *Context {
	msgs := make([]Message, len(c.Messages))
	copy(msgs, c.Messages)
	return &Context{
		Model:       c.Model,
		Messages:    msgs,
		Tools:       tools,
		ToolChoice:  c.ToolChoice,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
		Reasoning:   c.Reasoning,
	}
}

// System returns the concatenated content of leading system messages.
// Providers with a separate system channel use this and skip system
// messages during encoding.
func (ctx *Context) System() string {
	var system string
	for _, m := range ctx.Messages {
		if m.Role != RoleSystem {
			break
		}
		if system != "" {
			system += "\n\n"
		}
		system += m.Content
	}
	return system
}

// Clone returns a copy with an independent message slice, for transformer
// pipelines that splice or rewrite messages.
func (ctx *Context) Clone() *Context {
	clone := *ctx
	clone.Messages = make([]Message, len(ctx.Messages))
	copy(clone.Messages, ctx.Messages)
	return &clone
}
