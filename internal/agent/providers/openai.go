package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// OpenAIConfig configures an OpenAI-compatible adapter. The same adapter
// backs OpenAI itself, OpenRouter-style aggregators, Ollama, and custom
// endpoints; only the base URL, name, and model override differ.
type OpenAIConfig struct {
	// Name is the provider identifier surfaced in errors and logs.
	// Defaults to "openai".
	Name string

	APIKey string

	// BaseURL overrides the default api.openai.com endpoint.
	BaseURL string

	// ModelOverride forces every request through this model id. Custom
	// providers configured with a target model use it.
	ModelOverride string

	// SupportsReasoning keeps reasoning details through the pre-encode
	// transforms; when false they are stripped. The chat-completions encoder
	// does not send reasoning details back either way.
	SupportsReasoning bool

	// KnownModels seeds Models() for endpoints without a model-listing API.
	KnownModels []Model
}

// OpenAIProvider speaks the OpenAI chat-completions wire dialect: one SSE
// event per delta, tool calls streamed as indexed fragments, usage on the
// final event.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIProvider creates an adapter for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: api key not configured")
	}
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// NewOpenRouterProvider creates an adapter for OpenRouter's aggregation
// endpoint, which speaks the OpenAI dialect with reasoning extensions.
func NewOpenRouterProvider(apiKey string) (*OpenAIProvider, error) {
	return NewOpenAIProvider(OpenAIConfig{
		Name:              "openrouter",
		APIKey:            apiKey,
		BaseURL:           "https://openrouter.ai/api/v1",
		SupportsReasoning: true,
	})
}

// NewOllamaProvider creates an adapter for a local Ollama server.
func NewOllamaProvider(baseURL string) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}
	return NewOpenAIProvider(OpenAIConfig{
		Name:    "ollama",
		APIKey:  "ollama", // the server ignores it but the client requires one
		BaseURL: baseURL,
	})
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string { return p.cfg.Name }

// Models lists models from the endpoint, falling back to the configured
// known set when the listing API is unavailable.
func (p *OpenAIProvider) Models(ctx context.Context) ([]Model, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		if len(p.cfg.KnownModels) > 0 {
			return p.cfg.KnownModels, nil
		}
		return nil, p.wrapError(err, "")
	}
	out := make([]Model, 0, len(list.Models))
	for _, m := range list.Models {
		out = append(out, Model{ID: m.ID, Name: m.ID})
	}
	return out, nil
}

// Chat implements Provider.
func (p *OpenAIProvider) Chat(ctx context.Context, reqCtx *models.Context) (<-chan Event, error) {
	reqCtx = standardTransforms(reqCtx, p.cfg.SupportsReasoning)

	model := reqCtx.Model
	if p.cfg.ModelOverride != "" {
		model = p.cfg.ModelOverride
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: encodeOpenAIMessages(reqCtx),
		Stream:   true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}
	if reqCtx.MaxTokens > 0 {
		req.MaxTokens = reqCtx.MaxTokens
	}
	if reqCtx.Temperature != nil {
		req.Temperature = float32(*reqCtx.Temperature)
	}
	if reqCtx.TopP != nil {
		req.TopP = float32(*reqCtx.TopP)
	}
	if len(reqCtx.Tools) > 0 {
		req.Tools = encodeOpenAITools(reqCtx.Tools)
		switch reqCtx.ToolChoice {
		case models.ToolChoiceNone:
			req.ToolChoice = "none"
		case models.ToolChoiceRequired:
			req.ToolChoice = "required"
		}
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	events := make(chan Event)
	go p.decodeStream(ctx, stream, events, model)
	return events, nil
}

func (p *OpenAIProvider) decodeStream(ctx context.Context, stream *openai.ChatCompletionStream, events chan<- Event, model string) {
	defer close(events)
	defer stream.Close()

	var usage *models.Usage
	var finish models.FinishReason

	for {
		resp, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				final := &models.ChatCompletionMessage{FinishReason: finish, Usage: usage}
				if final.FinishReason == "" {
					final.FinishReason = models.FinishReasonStop
				}
				p.send(ctx, events, Event{Message: final})
				return
			}
			p.send(ctx, events, Event{Err: p.wrapError(err, model)})
			return
		}

		if resp.Usage != nil {
			usage = &models.Usage{
				PromptTokens:     int64(resp.Usage.PromptTokens),
				CompletionTokens: int64(resp.Usage.CompletionTokens),
				TotalTokens:      int64(resp.Usage.TotalTokens),
			}
			if d := resp.Usage.PromptTokensDetails; d != nil {
				usage.CachedTokens = int64(d.CachedTokens)
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]

		msg := &models.ChatCompletionMessage{Content: choice.Delta.Content}
		// Reasoning is read from reasoning_content on the delta
		// (DeepSeek-style) and mapped onto the canonical reasoning delta; a
		// reasoning_details array on the delta is not captured.
		if choice.Delta.ReasoningContent != "" {
			msg.Reasoning = choice.Delta.ReasoningContent
			msg.ReasoningDetails = []models.ReasoningDetail{{
				Text:     choice.Delta.ReasoningContent,
				Provider: p.cfg.Name,
			}}
		}
		for _, tc := range choice.Delta.ToolCalls {
			part := models.ToolCallPart{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}
			if tc.Index != nil {
				part.Index = *tc.Index
			}
			msg.AppendToolCallPart(part)
		}
		if choice.FinishReason != "" {
			finish = mapOpenAIFinishReason(choice.FinishReason)
			// Finish is withheld until EOF so the final event can also
			// carry usage, which OpenAI sends on a trailing chunk.
		}
		if !msg.Empty() {
			if !p.send(ctx, events, Event{Message: msg}) {
				return
			}
		}
	}
}

func (p *OpenAIProvider) send(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func mapOpenAIFinishReason(r openai.FinishReason) models.FinishReason {
	switch r {
	case openai.FinishReasonStop:
		return models.FinishReasonStop
	case openai.FinishReasonLength:
		return models.FinishReasonLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return models.FinishReasonToolCalls
	case openai.FinishReasonContentFilter:
		return models.FinishReasonContentFilter
	default:
		return models.FinishReasonStop
	}
}

// encodeOpenAIMessages converts the canonical context into the chat
// messages array. Tool results become role=tool messages keyed by call id;
// assistant tool calls are re-encoded as function calls.
func encodeOpenAIMessages(reqCtx *models.Context) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(reqCtx.Messages))
	for _, m := range reqCtx.Messages {
		switch m.Role {
		case models.RoleSystem:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: m.Content,
			})
		case models.RoleTool:
			for _, tr := range m.ToolResults {
				out = append(out, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    tr.Content,
					ToolCallID: tr.ToolCallID,
				})
			}
		case models.RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: m.Content,
			}
			for _, tc := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Input),
					},
				})
			}
			out = append(out, msg)
		default:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: m.Content,
			}
			if parts := openAIImageParts(m); len(parts) > 0 {
				msg.Content = ""
				msg.MultiContent = parts
			}
			out = append(out, msg)
		}
	}
	return out
}

func openAIImageParts(m models.Message) []openai.ChatMessagePart {
	var parts []openai.ChatMessagePart
	if m.Content != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: m.Content,
		})
	}
	hasImage := false
	for _, att := range m.Attachments {
		if att.Type != "image" {
			continue
		}
		url := att.URL
		if url == "" && len(att.Data) > 0 {
			url = fmt.Sprintf("data:%s;base64,%s", att.MimeType, base64.StdEncoding.EncodeToString(att.Data))
		}
		if url == "" {
			continue
		}
		hasImage = true
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url},
		})
	}
	if !hasImage {
		return nil
	}
	return parts
}

func encodeOpenAITools(tools []models.ToolDefinition) []openai.Tool {
	out := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		var schema map[string]any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  schema,
			},
		}
	}
	return out
}

// wrapError classifies SDK errors into the shared retriable/fatal taxonomy.
func (p *OpenAIProvider) wrapError(err error, model string) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return wrapStatusError(p.cfg.Name, model, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return wrapStatusError(p.cfg.Name, model, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return wrapTransportError(p.cfg.Name, model, err)
}
