package providers

import (
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

func TestApplyCachePointsClaude(t *testing.T) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String("us.anthropic.claude-sonnet-4-20250514-v1:0"),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: "sys"},
		},
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "hi"},
			}},
		},
	}
	applyCachePoints(input, aws.ToString(input.ModelId))

	if len(input.System) != 2 {
		t.Fatalf("system blocks = %d, want text + cachePoint", len(input.System))
	}
	if _, ok := input.System[1].(*types.SystemContentBlockMemberCachePoint); !ok {
		t.Errorf("system tail = %T, want cachePoint", input.System[1])
	}
	last := input.Messages[len(input.Messages)-1]
	if _, ok := last.Content[len(last.Content)-1].(*types.ContentBlockMemberCachePoint); !ok {
		t.Error("last message must end with a cachePoint for Claude models")
	}
}

func TestApplyCachePointsNovaSystemOnly(t *testing.T) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String("amazon.nova-pro-v1:0"),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: "sys"},
		},
		Messages: []types.Message{
			{Role: types.ConversationRoleUser, Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "hi"},
			}},
		},
	}
	applyCachePoints(input, aws.ToString(input.ModelId))

	if len(input.System) != 2 {
		t.Fatalf("system blocks = %d, want 2", len(input.System))
	}
	last := input.Messages[len(input.Messages)-1]
	if len(last.Content) != 1 {
		t.Error("Nova must not get a message-position cachePoint")
	}
}

func TestApplyCachePointsUnsupportedModel(t *testing.T) {
	input := &bedrockruntime.ConverseStreamInput{
		ModelId: aws.String("meta.llama3-70b-instruct-v1:0"),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: "sys"},
		},
	}
	applyCachePoints(input, aws.ToString(input.ModelId))
	if len(input.System) != 1 {
		t.Error("unsupported model must get no cachePoint blocks")
	}
}

func TestEncodeBedrockMessages(t *testing.T) {
	reqCtx := &models.Context{Messages: []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "do it"},
		{
			Role: models.RoleAssistant,
			ReasoningDetails: []models.ReasoningDetail{
				{Text: "think", Signature: "sig"},
			},
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "shell", Input: json.RawMessage(`{"command":"ls"}`)},
			},
		},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "call_1", Content: "file.txt", IsError: false},
		}},
	}}
	out, err := encodeBedrockMessages(reqCtx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3 {
		t.Fatalf("messages = %d, want 3 (system skipped)", len(out))
	}

	assistant := out[1]
	if assistant.Role != types.ConversationRoleAssistant {
		t.Errorf("role = %s", assistant.Role)
	}
	if _, ok := assistant.Content[0].(*types.ContentBlockMemberReasoningContent); !ok {
		t.Errorf("first assistant block = %T, want reasoningContent", assistant.Content[0])
	}
	if _, ok := assistant.Content[1].(*types.ContentBlockMemberToolUse); !ok {
		t.Errorf("second assistant block = %T, want toolUse", assistant.Content[1])
	}

	toolMsg := out[2]
	result, ok := toolMsg.Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("tool message block = %T", toolMsg.Content[0])
	}
	if aws.ToString(result.Value.ToolUseId) != "call_1" || result.Value.Status != types.ToolResultStatusSuccess {
		t.Errorf("tool result = %+v", result.Value)
	}
}

func TestMapBedrockStopReason(t *testing.T) {
	tests := []struct {
		in   types.StopReason
		want models.FinishReason
	}{
		{types.StopReasonEndTurn, models.FinishReasonStop},
		{types.StopReasonMaxTokens, models.FinishReasonLength},
		{types.StopReasonToolUse, models.FinishReasonToolCalls},
		{types.StopReasonContentFiltered, models.FinishReasonContentFilter},
		{types.StopReasonGuardrailIntervened, models.FinishReasonContentFilter},
	}
	for _, tt := range tests {
		if got := mapBedrockStopReason(tt.in); got != tt.want {
			t.Errorf("mapBedrockStopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
