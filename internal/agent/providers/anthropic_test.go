package providers

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

func TestEncodeAnthropicMessagesSkipsSystem(t *testing.T) {
	reqCtx := &models.Context{Messages: []models.Message{
		{Role: models.RoleSystem, Content: "sys"},
		{Role: models.RoleUser, Content: "hi"},
	}}
	out := encodeAnthropicMessages(reqCtx)
	if len(out) != 1 {
		t.Fatalf("messages = %d, want 1 (system carried separately)", len(out))
	}
	if reqCtx.System() != "sys" {
		t.Errorf("system = %q", reqCtx.System())
	}
}

func TestEncodeAnthropicReasoningRoundTrip(t *testing.T) {
	reqCtx := &models.Context{Messages: []models.Message{
		{
			Role:    models.RoleAssistant,
			Content: "done",
			ReasoningDetails: []models.ReasoningDetail{
				{Text: "step by step", Signature: "opaque-sig-bytes", Type: "thinking"},
			},
			ToolCalls: []models.ToolCall{
				{ID: "call_1", Name: "shell", Input: json.RawMessage(`{"command":"ls"}`)},
			},
		},
	}}
	out := encodeAnthropicMessages(reqCtx)
	if len(out) != 1 {
		t.Fatalf("messages = %d", len(out))
	}
	content := out[0].Content
	if len(content) != 3 {
		t.Fatalf("content blocks = %d, want 3 (thinking, text, tool_use)", len(content))
	}
	thinking := content[0].OfThinking
	if thinking == nil {
		t.Fatal("first block must be the thinking block")
	}
	if thinking.Signature != "opaque-sig-bytes" || thinking.Thinking != "step by step" {
		t.Errorf("thinking block = %+v (signature must round-trip verbatim)", thinking)
	}
}

func TestEncodeAnthropicToolResults(t *testing.T) {
	reqCtx := &models.Context{Messages: []models.Message{
		{Role: models.RoleTool, ToolResults: []models.ToolResult{
			{ToolCallID: "call_1", Content: "boom", IsError: true},
		}},
	}}
	out := encodeAnthropicMessages(reqCtx)
	if len(out) != 1 {
		t.Fatalf("messages = %d", len(out))
	}
	if string(out[0].Role) != "user" {
		t.Errorf("tool results must ride a user message, got %s", out[0].Role)
	}
	block := out[0].Content[0].OfToolResult
	if block == nil {
		t.Fatal("missing tool_result block")
	}
	if block.ToolUseID != "call_1" || !block.IsError.Value {
		t.Errorf("tool result block = %+v", block)
	}
}

func TestMapAnthropicStopReason(t *testing.T) {
	tests := []struct {
		in   string
		want models.FinishReason
	}{
		{"end_turn", models.FinishReasonStop},
		{"stop_sequence", models.FinishReasonStop},
		{"max_tokens", models.FinishReasonLength},
		{"tool_use", models.FinishReasonToolCalls},
		{"refusal", models.FinishReasonContentFilter},
		{"", ""},
	}
	for _, tt := range tests {
		if got := mapAnthropicStopReason(tt.in); got != tt.want {
			t.Errorf("mapAnthropicStopReason(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeAnthropicToolsRejectsBadSchema(t *testing.T) {
	_, err := encodeAnthropicTools([]models.ToolDefinition{
		{Name: "broken", InputSchema: json.RawMessage(`[]`)},
	})
	if err == nil {
		t.Error("array schema must be rejected")
	}
}
