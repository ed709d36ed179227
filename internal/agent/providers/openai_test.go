package providers

import (
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

func TestEncodeOpenAIMessages(t *testing.T) {
	reqCtx := &models.Context{Messages: []models.Message{
		{Role: models.RoleSystem, Content: "be terse"},
		{Role: models.RoleUser, Content: "read /a"},
		{Role: models.RoleAssistant, ToolCalls: []models.ToolCall{
			{ID: "call_1", Name: "fs_read", Input: json.RawMessage(`{"path":"/a"}`)},
		}},
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "call_1", Content: "hello"},
		}},
		{Role: models.RoleAssistant, Content: "The file says hello."},
	}}
	out := encodeOpenAIMessages(reqCtx)

	if len(out) != 5 {
		t.Fatalf("messages = %d, want 5", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("first role = %s", out[0].Role)
	}
	if len(out[2].ToolCalls) != 1 || out[2].ToolCalls[0].Function.Name != "fs_read" {
		t.Errorf("assistant tool calls = %+v", out[2].ToolCalls)
	}
	if out[3].Role != openai.ChatMessageRoleTool || out[3].ToolCallID != "call_1" {
		t.Errorf("tool result = %+v", out[3])
	}
}

func TestEncodeOpenAIToolsBadSchemaFallsBack(t *testing.T) {
	tools := encodeOpenAITools([]models.ToolDefinition{
		{Name: "broken", Description: "d", InputSchema: json.RawMessage(`not json`)},
	})
	params, ok := tools[0].Function.Parameters.(map[string]any)
	if !ok || params["type"] != "object" {
		t.Errorf("fallback schema = %#v", tools[0].Function.Parameters)
	}
}

func TestMapOpenAIFinishReason(t *testing.T) {
	tests := []struct {
		in   openai.FinishReason
		want models.FinishReason
	}{
		{openai.FinishReasonStop, models.FinishReasonStop},
		{openai.FinishReasonLength, models.FinishReasonLength},
		{openai.FinishReasonToolCalls, models.FinishReasonToolCalls},
		{openai.FinishReasonContentFilter, models.FinishReasonContentFilter},
	}
	for _, tt := range tests {
		if got := mapOpenAIFinishReason(tt.in); got != tt.want {
			t.Errorf("mapOpenAIFinishReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRegistryResolvesCustomByCompatibilityMode(t *testing.T) {
	reg := NewRegistry(StaticCredentials{
		"custom:my-gateway": {
			APIKey:            "k",
			BaseURL:           "https://llm.internal/v1",
			ModelID:           "internal-model",
			CompatibilityMode: CompatibilityOpenAI,
		},
		"custom:claude-proxy": {
			APIKey:            "k",
			BaseURL:           "https://claude.internal",
			CompatibilityMode: CompatibilityAnthropic,
		},
	})

	p, err := reg.Resolve(context.Background(), "custom:my-gateway")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.(*OpenAIProvider); !ok {
		t.Errorf("openai-mode custom resolved to %T", p)
	}
	if p.Name() != "my-gateway" {
		t.Errorf("name = %q", p.Name())
	}

	p2, err := reg.Resolve(context.Background(), "custom:claude-proxy")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p2.(*AnthropicProvider); !ok {
		t.Errorf("anthropic-mode custom resolved to %T", p2)
	}

	// Cached on second resolve.
	again, err := reg.Resolve(context.Background(), "custom:my-gateway")
	if err != nil {
		t.Fatal(err)
	}
	if again != p {
		t.Error("registry must cache adapters")
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := NewRegistry(StaticCredentials{"weird": {}})
	if _, err := reg.Resolve(context.Background(), "weird"); err == nil {
		t.Error("unknown provider id must fail")
	}
}
