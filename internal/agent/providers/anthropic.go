package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// defaultThinkingBudget is the extended-thinking token budget applied when
// reasoning is enabled without an explicit budget.
const defaultThinkingBudget = 4096

// AnthropicConfig configures the native Anthropic adapter.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string

	// ModelOverride forces every request through this model id; used by
	// custom providers in Anthropic compatibility mode.
	ModelOverride string

	// Name overrides the provider identifier; defaults to "anthropic".
	Name string
}

// AnthropicProvider speaks Anthropic's native messages API: separate system
// channel, strongly-typed content-block stream events, and extended-thinking
// blocks whose signatures must round-trip verbatim.
type AnthropicProvider struct {
	client anthropic.Client
	cfg    AnthropicConfig
}

// NewAnthropicProvider creates the adapter.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: api key not configured")
	}
	if cfg.Name == "" {
		cfg.Name = "anthropic"
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{client: anthropic.NewClient(options...), cfg: cfg}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string { return p.cfg.Name }

// Models lists the Claude models this adapter serves.
func (p *AnthropicProvider) Models(ctx context.Context) ([]Model, error) {
	return []Model{
		{ID: "claude-opus-4-1-20250805", Name: "Claude Opus 4.1", ContextSize: 200000, SupportsVision: true, SupportsReasoning: true},
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000, SupportsVision: true, SupportsReasoning: true},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextSize: 200000, SupportsVision: true},
	}, nil
}

// Chat implements Provider.
func (p *AnthropicProvider) Chat(ctx context.Context, reqCtx *models.Context) (<-chan Event, error) {
	reqCtx = standardTransforms(reqCtx, true)

	model := reqCtx.Model
	if p.cfg.ModelOverride != "" {
		model = p.cfg.ModelOverride
	}
	if model == "" {
		model = defaultAnthropicModel
	}

	maxTokens := reqCtx.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  encodeAnthropicMessages(reqCtx),
	}
	if system := reqCtx.System(); system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if reqCtx.Temperature != nil {
		params.Temperature = anthropic.Float(*reqCtx.Temperature)
	}
	if reqCtx.TopP != nil {
		params.TopP = anthropic.Float(*reqCtx.TopP)
	}
	if len(reqCtx.Tools) > 0 {
		tools, err := encodeAnthropicTools(reqCtx.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
		switch reqCtx.ToolChoice {
		case models.ToolChoiceNone:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
		case models.ToolChoiceRequired:
			params.ToolChoice = anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
		}
	}
	if reqCtx.Reasoning.Enabled {
		budget := int64(reqCtx.Reasoning.BudgetTokens)
		if budget <= 0 {
			budget = defaultThinkingBudget
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, p.wrapError(err, model)
	}

	events := make(chan Event)
	go p.decodeStream(ctx, stream, events, model)
	return events, nil
}

func (p *AnthropicProvider) decodeStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], events chan<- Event, model string) {
	defer close(events)
	defer stream.Close()

	var usage models.Usage
	var finish models.FinishReason

	// Extended-thinking state: text and signature deltas accumulate per
	// content block and flush as one reasoning detail at block stop, so the
	// opaque signature stays attached to exactly the text it signs.
	var thinking struct {
		active    bool
		text      string
		signature string
	}

	// Tool-use blocks stream as input_json_delta fragments; each fragment
	// is forwarded as a tool-call part so downstream folding matches the
	// OpenAI dialect.
	var toolIndex int

	for stream.Next() {
		event := stream.Current()
		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			usage.PromptTokens = messageStart.Message.Usage.InputTokens
			usage.CachedTokens = messageStart.Message.Usage.CacheReadInputTokens

		case "content_block_start":
			block := event.AsContentBlockStart().ContentBlock
			switch block.Type {
			case "thinking":
				thinking.active = true
				thinking.text = ""
				thinking.signature = ""
			case "tool_use":
				toolUse := block.AsToolUse()
				toolIndex++
				if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{
					ToolCallParts: []models.ToolCallPart{{
						ID:    toolUse.ID,
						Name:  toolUse.Name,
						Index: toolIndex,
					}},
				}}) {
					return
				}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{Content: delta.Text}}) {
						return
					}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					thinking.text += delta.Thinking
					if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{Reasoning: delta.Thinking}}) {
						return
					}
				}
			case "signature_delta":
				// The signature is an opaque blob; carried forward verbatim,
				// never inspected.
				thinking.signature += delta.Signature
			case "input_json_delta":
				if delta.PartialJSON != "" {
					if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{
						ToolCallParts: []models.ToolCallPart{{
							Arguments: delta.PartialJSON,
							Index:     toolIndex,
						}},
					}}) {
						return
					}
				}
			}

		case "content_block_stop":
			if thinking.active {
				detail := models.ReasoningDetail{
					Text:      thinking.text,
					Signature: thinking.signature,
					Type:      "thinking",
					Provider:  p.cfg.Name,
				}
				thinking.active = false
				if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{
					ReasoningDetails: []models.ReasoningDetail{detail},
				}}) {
					return
				}
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			usage.CompletionTokens = messageDelta.Usage.OutputTokens
			finish = mapAnthropicStopReason(string(messageDelta.Delta.StopReason))

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			final := &models.ChatCompletionMessage{FinishReason: finish, Usage: &usage}
			if final.FinishReason == "" {
				final.FinishReason = models.FinishReasonStop
			}
			p.send(ctx, events, Event{Message: final})
			return
		}
	}
	if err := stream.Err(); err != nil {
		p.send(ctx, events, Event{Err: p.wrapError(err, model)})
	}
}

func (p *AnthropicProvider) send(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func mapAnthropicStopReason(reason string) models.FinishReason {
	switch reason {
	case "end_turn", "stop_sequence":
		return models.FinishReasonStop
	case "max_tokens":
		return models.FinishReasonLength
	case "tool_use":
		return models.FinishReasonToolCalls
	case "refusal":
		return models.FinishReasonContentFilter
	default:
		return ""
	}
}

// encodeAnthropicMessages converts the canonical context into Anthropic
// message params. Assistant reasoning details are re-encoded as thinking
// blocks, signature intact, ahead of text and tool-use blocks as the API
// requires.
func encodeAnthropicMessages(reqCtx *models.Context) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, m := range reqCtx.Messages {
		switch m.Role {
		case models.RoleSystem:
			continue // carried on the system channel
		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			for _, rd := range m.ReasoningDetails {
				if rd.Text == "" && rd.Signature == "" {
					continue
				}
				content = append(content, anthropic.NewThinkingBlock(rd.Signature, rd.Text))
			}
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any
				if err := json.Unmarshal(tc.Input, &input); err != nil {
					input = map[string]any{}
				}
				content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.NewAssistantMessage(content...))
		case models.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for _, tr := range m.ToolResults {
				content = append(content, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(content...))
		default:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			for _, att := range m.Attachments {
				if block, ok := anthropicImageBlock(att); ok {
					content = append(content, block)
				}
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.NewUserMessage(content...))
		}
	}
	return out
}

func anthropicImageBlock(att models.Attachment) (anthropic.ContentBlockParamUnion, bool) {
	if att.Type != "image" {
		return anthropic.ContentBlockParamUnion{}, false
	}
	if len(att.Data) > 0 {
		mediaType, ok := anthropicMediaType(att.MimeType)
		if !ok {
			return anthropic.ContentBlockParamUnion{}, false
		}
		return anthropic.NewImageBlockBase64(string(mediaType), base64.StdEncoding.EncodeToString(att.Data)), true
	}
	if att.URL != "" {
		return anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: att.URL}), true
	}
	return anthropic.ContentBlockParamUnion{}, false
}

func anthropicMediaType(mimeType string) (anthropic.Base64ImageSourceMediaType, bool) {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return anthropic.Base64ImageSourceMediaTypeImageJPEG, true
	case "image/png":
		return anthropic.Base64ImageSourceMediaTypeImagePNG, true
	case "image/gif":
		return anthropic.Base64ImageSourceMediaTypeImageGIF, true
	case "image/webp":
		return anthropic.Base64ImageSourceMediaTypeImageWebP, true
	default:
		return "", false
	}
}

func encodeAnthropicTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		var probe map[string]any
		if err := json.Unmarshal(tool.InputSchema, &probe); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s: %w", tool.Name, err)
		}
		param := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if param.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid tool schema for %s", tool.Name)
		}
		param.OfTool.Description = anthropic.String(tool.Description)
		out = append(out, param)
	}
	return out, nil
}

// wrapError classifies SDK errors into the shared retriable/fatal taxonomy.
func (p *AnthropicProvider) wrapError(err error, model string) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return wrapStatusError(p.cfg.Name, model, apiErr.StatusCode, apiErr.Error(), err)
	}
	return wrapTransportError(p.cfg.Name, model, err)
}
