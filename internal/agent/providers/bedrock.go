package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// BedrockConfig configures the AWS Bedrock adapter.
type BedrockConfig struct {
	// Region is the AWS region (default us-east-1). Regions in the us/eu/
	// apac/au groups address Anthropic-family models through the matching
	// cross-region inference profile prefix.
	Region string

	// Explicit credentials; the default AWS chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	DefaultModel string
}

// BedrockProvider speaks the AWS Converse/ConverseStream API: AWS-signed
// requests, tagged-union stream events, and cachePoint prompt-cache hints
// for models that support them.
type BedrockProvider struct {
	client  *bedrockruntime.Client
	control *bedrock.Client
	cfg     BedrockConfig
}

// NewBedrockProvider creates the adapter using the default AWS credential
// chain unless explicit keys are configured.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-sonnet-4-20250514-v1:0"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("bedrock: load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		control: bedrock.NewFromConfig(awsCfg),
		cfg:     cfg,
	}, nil
}

// Name returns the provider identifier.
func (p *BedrockProvider) Name() string { return "bedrock" }

// Models lists foundation models available to the account.
func (p *BedrockProvider) Models(ctx context.Context) ([]Model, error) {
	resp, err := p.control.ListFoundationModels(ctx, &bedrock.ListFoundationModelsInput{})
	if err != nil {
		return nil, p.wrapError(err, "")
	}
	out := make([]Model, 0, len(resp.ModelSummaries))
	for _, m := range resp.ModelSummaries {
		id := aws.ToString(m.ModelId)
		out = append(out, Model{
			ID:                id,
			Name:              aws.ToString(m.ModelName),
			SupportsReasoning: isAnthropicFamily(id),
		})
	}
	return out, nil
}

// Chat implements Provider.
func (p *BedrockProvider) Chat(ctx context.Context, reqCtx *models.Context) (<-chan Event, error) {
	model := reqCtx.Model
	if model == "" {
		model = p.cfg.DefaultModel
	}
	reqCtx = standardTransforms(reqCtx, isAnthropicFamily(model))
	model = regionPrefixedModelID(model, p.cfg.Region)

	messages, err := encodeBedrockMessages(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("bedrock: encode messages: %w", err)
	}

	input := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if system := reqCtx.System(); system != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: system},
		}
	}
	if reqCtx.MaxTokens > 0 || reqCtx.Temperature != nil || reqCtx.TopP != nil {
		inference := &types.InferenceConfiguration{}
		if reqCtx.MaxTokens > 0 {
			inference.MaxTokens = aws.Int32(int32(min(reqCtx.MaxTokens, 1<<31-1)))
		}
		if reqCtx.Temperature != nil {
			inference.Temperature = aws.Float32(float32(*reqCtx.Temperature))
		}
		if reqCtx.TopP != nil {
			inference.TopP = aws.Float32(float32(*reqCtx.TopP))
		}
		input.InferenceConfig = inference
	}
	if len(reqCtx.Tools) > 0 {
		input.ToolConfig = encodeBedrockTools(reqCtx.Tools, reqCtx.ToolChoice)
	}

	applyCachePoints(input, model)

	stream, err := p.client.ConverseStream(ctx, input)
	if err != nil {
		return nil, p.wrapError(err, model)
	}

	events := make(chan Event)
	go p.decodeStream(ctx, stream, events, model)
	return events, nil
}

// cacheSupport classifies a model id's prompt-cache placement rules:
// Claude-family models cache at the system block and the last message;
// Nova models cache at the system block only.
type cacheSupport int

const (
	cacheNone cacheSupport = iota
	cacheSystemOnly
	cacheSystemAndMessages
)

func cachePointSupport(modelID string) cacheSupport {
	id := stripRegionPrefix(modelID)
	switch {
	case isAnthropicFamily(id):
		return cacheSystemAndMessages
	case strings.HasPrefix(id, "amazon.nova"):
		return cacheSystemOnly
	default:
		return cacheNone
	}
}

// applyCachePoints inserts cachePoint blocks at the placements the model
// supports: after the system prompt, and after the last message's content.
func applyCachePoints(input *bedrockruntime.ConverseStreamInput, modelID string) {
	support := cachePointSupport(modelID)
	if support == cacheNone {
		return
	}
	cache := types.CachePointBlock{Type: types.CachePointTypeDefault}

	if len(input.System) > 0 {
		input.System = append(input.System, &types.SystemContentBlockMemberCachePoint{Value: cache})
	}
	if support == cacheSystemAndMessages && len(input.Messages) > 0 {
		last := &input.Messages[len(input.Messages)-1]
		last.Content = append(last.Content, &types.ContentBlockMemberCachePoint{Value: cache})
	}
}

// regionPrefixedModelID addresses Anthropic-family models through the
// cross-region inference profile matching the configured region group.
func regionPrefixedModelID(modelID, region string) string {
	if !isAnthropicFamily(modelID) || hasRegionPrefix(modelID) {
		return modelID
	}
	switch {
	case strings.HasPrefix(region, "us-"):
		return "us." + modelID
	case strings.HasPrefix(region, "eu-"):
		return "eu." + modelID
	case strings.HasPrefix(region, "ap-"):
		return "apac." + modelID
	case strings.HasPrefix(region, "au-"):
		return "au." + modelID
	default:
		return modelID
	}
}

var regionPrefixes = []string{"us.", "eu.", "apac.", "au."}

func hasRegionPrefix(modelID string) bool {
	for _, prefix := range regionPrefixes {
		if strings.HasPrefix(modelID, prefix) {
			return true
		}
	}
	return false
}

func stripRegionPrefix(modelID string) string {
	for _, prefix := range regionPrefixes {
		if strings.HasPrefix(modelID, prefix) {
			return modelID[len(prefix):]
		}
	}
	return modelID
}

func isAnthropicFamily(modelID string) bool {
	return strings.HasPrefix(stripRegionPrefix(modelID), "anthropic.")
}

func (p *BedrockProvider) decodeStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, events chan<- Event, model string) {
	defer close(events)
	eventStream := stream.GetStream()
	defer eventStream.Close()

	var usage models.Usage
	var finish models.FinishReason
	var toolIndex int
	var reasoning struct {
		text      string
		signature string
		active    bool
	}

	flushReasoning := func() *models.ChatCompletionMessage {
		if !reasoning.active {
			return nil
		}
		detail := models.ReasoningDetail{
			Text:      reasoning.text,
			Signature: reasoning.signature,
			Type:      "thinking",
			Provider:  "bedrock",
		}
		reasoning.active = false
		reasoning.text = ""
		reasoning.signature = ""
		return &models.ChatCompletionMessage{ReasoningDetails: []models.ReasoningDetail{detail}}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-eventStream.Events():
			if !ok {
				if err := eventStream.Err(); err != nil {
					p.send(ctx, events, Event{Err: p.wrapError(err, model)})
					return
				}
				final := &models.ChatCompletionMessage{FinishReason: finish, Usage: &usage}
				if final.FinishReason == "" {
					final.FinishReason = models.FinishReasonStop
				}
				p.send(ctx, events, Event{Message: final})
				return
			}

			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockStart:
				if toolUse, ok := ev.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
					toolIndex++
					if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{
						ToolCallParts: []models.ToolCallPart{{
							ID:    aws.ToString(toolUse.Value.ToolUseId),
							Name:  aws.ToString(toolUse.Value.Name),
							Index: toolIndex,
						}},
					}}) {
						return
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockDelta:
				switch delta := ev.Value.Delta.(type) {
				case *types.ContentBlockDeltaMemberText:
					if delta.Value != "" {
						if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{Content: delta.Value}}) {
							return
						}
					}
				case *types.ContentBlockDeltaMemberToolUse:
					if delta.Value.Input != nil {
						if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{
							ToolCallParts: []models.ToolCallPart{{
								Arguments: aws.ToString(delta.Value.Input),
								Index:     toolIndex,
							}},
						}}) {
							return
						}
					}
				case *types.ContentBlockDeltaMemberReasoningContent:
					switch rc := delta.Value.(type) {
					case *types.ReasoningContentBlockDeltaMemberText:
						reasoning.active = true
						reasoning.text += rc.Value
						if !p.send(ctx, events, Event{Message: &models.ChatCompletionMessage{Reasoning: rc.Value}}) {
							return
						}
					case *types.ReasoningContentBlockDeltaMemberSignature:
						reasoning.active = true
						reasoning.signature += rc.Value
					}
				}

			case *types.ConverseStreamOutputMemberContentBlockStop:
				if msg := flushReasoning(); msg != nil {
					if !p.send(ctx, events, Event{Message: msg}) {
						return
					}
				}

			case *types.ConverseStreamOutputMemberMessageStop:
				finish = mapBedrockStopReason(ev.Value.StopReason)

			case *types.ConverseStreamOutputMemberMetadata:
				if u := ev.Value.Usage; u != nil {
					usage.PromptTokens = int64(aws.ToInt32(u.InputTokens))
					usage.CompletionTokens = int64(aws.ToInt32(u.OutputTokens))
					usage.TotalTokens = int64(aws.ToInt32(u.TotalTokens))
					usage.CachedTokens = int64(aws.ToInt32(u.CacheReadInputTokens))
				}
			}
		}
	}
}

func (p *BedrockProvider) send(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

func mapBedrockStopReason(reason types.StopReason) models.FinishReason {
	switch reason {
	case types.StopReasonEndTurn, types.StopReasonStopSequence:
		return models.FinishReasonStop
	case types.StopReasonMaxTokens:
		return models.FinishReasonLength
	case types.StopReasonToolUse:
		return models.FinishReasonToolCalls
	case types.StopReasonContentFiltered, types.StopReasonGuardrailIntervened:
		return models.FinishReasonContentFilter
	default:
		return models.FinishReasonStop
	}
}

func encodeBedrockMessages(reqCtx *models.Context) ([]types.Message, error) {
	out := make([]types.Message, 0, len(reqCtx.Messages))
	for _, m := range reqCtx.Messages {
		if m.Role == models.RoleSystem {
			continue // carried on the system channel
		}

		var content []types.ContentBlock
		for _, rd := range m.ReasoningDetails {
			if rd.Text == "" && rd.Signature == "" {
				continue
			}
			content = append(content, &types.ContentBlockMemberReasoningContent{
				Value: &types.ReasoningContentBlockMemberReasoningText{
					Value: types.ReasoningTextBlock{
						Text:      aws.String(rd.Text),
						Signature: aws.String(rd.Signature),
					},
				},
			})
		}
		if m.Content != "" {
			content = append(content, &types.ContentBlockMemberText{Value: m.Content})
		}
		for _, att := range m.Attachments {
			if att.Type != "image" || len(att.Data) == 0 {
				continue
			}
			format, ok := bedrockImageFormat(att.MimeType)
			if !ok {
				continue
			}
			content = append(content, &types.ContentBlockMemberImage{
				Value: types.ImageBlock{
					Format: format,
					Source: &types.ImageSourceMemberBytes{Value: att.Data},
				},
			})
		}
		for _, tc := range m.ToolCalls {
			var input any
			if err := json.Unmarshal(tc.Input, &input); err != nil {
				input = map[string]any{}
			}
			content = append(content, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(tc.ID),
					Name:      aws.String(tc.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		}
		for _, tr := range m.ToolResults {
			status := types.ToolResultStatusSuccess
			if tr.IsError {
				status = types.ToolResultStatusError
			}
			content = append(content, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(tr.ToolCallID),
					Status:    status,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: tr.Content},
					},
				},
			})
		}
		if len(content) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if m.Role == models.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		out = append(out, types.Message{Role: role, Content: content})
	}
	return out, nil
}

func bedrockImageFormat(mimeType string) (types.ImageFormat, bool) {
	switch mimeType {
	case "image/jpeg", "image/jpg":
		return types.ImageFormatJpeg, true
	case "image/png":
		return types.ImageFormatPng, true
	case "image/gif":
		return types.ImageFormatGif, true
	case "image/webp":
		return types.ImageFormatWebp, true
	default:
		return "", false
	}
}

func encodeBedrockTools(tools []models.ToolDefinition, choice models.ToolChoice) *types.ToolConfiguration {
	bedrockTools := make([]types.Tool, len(tools))
	for i, tool := range tools {
		var schema any
		if err := json.Unmarshal(tool.InputSchema, &schema); err != nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		bedrockTools[i] = &types.ToolMemberToolSpec{
			Value: types.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(schema)},
			},
		}
	}
	cfg := &types.ToolConfiguration{Tools: bedrockTools}
	if choice == models.ToolChoiceRequired {
		cfg.ToolChoice = &types.ToolChoiceMemberAny{Value: types.AnyToolChoice{}}
	}
	return cfg
}

// wrapError classifies AWS SDK errors into the shared retriable/fatal
// taxonomy using smithy's typed API errors.
func (p *BedrockProvider) wrapError(err error, model string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.(type) {
		case *types.ThrottlingException:
			return wrapStatusError("bedrock", model, 429, apiErr.ErrorMessage(), err)
		case *types.InternalServerException, *types.ServiceUnavailableException:
			return wrapStatusError("bedrock", model, 500, apiErr.ErrorMessage(), err)
		case *types.AccessDeniedException:
			return wrapStatusError("bedrock", model, 403, apiErr.ErrorMessage(), err)
		case *types.ValidationException, *types.ResourceNotFoundException:
			return wrapStatusError("bedrock", model, 400, apiErr.ErrorMessage(), err)
		case *types.ModelTimeoutException:
			return &Error{Reason: ReasonTimeout, Provider: "bedrock", Model: model, Message: apiErr.ErrorMessage(), Cause: err}
		}
		if apiErr.ErrorFault() == smithy.FaultServer {
			return wrapStatusError("bedrock", model, 500, apiErr.ErrorMessage(), err)
		}
		return wrapStatusError("bedrock", model, 400, apiErr.ErrorMessage(), err)
	}
	return wrapTransportError("bedrock", model, err)
}
