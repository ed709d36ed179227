package stream

import (
	"errors"
	"reflect"
	"testing"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

func runAll(t *testing.T, tr Transformer, events []*models.ChatCompletionMessage) []*models.ChatCompletionMessage {
	t.Helper()
	var out []*models.ChatCompletionMessage
	for _, e := range events {
		batch, err := tr.Next(e)
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, batch...)
	}
	return out
}

func TestCollectorFusesContiguousRuns(t *testing.T) {
	events := []*models.ChatCompletionMessage{
		{ToolCallParts: []models.ToolCallPart{{ID: "call_1", Name: "fs_read", Arguments: `{"path":`}}},
		{ToolCallParts: []models.ToolCallPart{{Arguments: ` "/a"}`}}},
		{ToolCallParts: []models.ToolCallPart{{ID: "call_2", Name: "shell", Arguments: `{"command":"ls"}`}}},
		{FinishReason: models.FinishReasonToolCalls},
	}
	out := runAll(t, NewToolCallPartCollector(), events)

	if len(out) != len(events)+1 {
		t.Fatalf("events out = %d, want %d", len(out), len(events)+1)
	}
	synthetic := out[len(out)-2]
	if len(synthetic.ToolCalls) != 2 {
		t.Fatalf("fused calls = %d, want 2", len(synthetic.ToolCalls))
	}
	if synthetic.ToolCalls[0].Name != "fs_read" || string(synthetic.ToolCalls[0].Input) != `{"path":"/a"}` {
		t.Errorf("first call = %+v", synthetic.ToolCalls[0])
	}
	if synthetic.ToolCalls[1].ID != "call_2" || synthetic.ToolCalls[1].Name != "shell" {
		t.Errorf("second call = %+v", synthetic.ToolCalls[1])
	}
}

// Running the collector over its own output must yield the same event list.
func TestCollectorIdempotent(t *testing.T) {
	events := []*models.ChatCompletionMessage{
		{Content: "Let me check."},
		{ToolCallParts: []models.ToolCallPart{{ID: "call_1", Name: "fs_read", Arguments: `{"path":"/a"}`}}},
		{FinishReason: models.FinishReasonToolCalls},
	}
	once := runAll(t, NewToolCallPartCollector(), events)
	twice := runAll(t, NewToolCallPartCollector(), once)

	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second pass diverged:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestCollectorMissingName(t *testing.T) {
	events := []*models.ChatCompletionMessage{
		{ToolCallParts: []models.ToolCallPart{{ID: "call_1", Arguments: `{"path":"/a"}`}}},
	}
	c := NewToolCallPartCollector()
	runAll(t, c, events)

	_, err := c.Next(&models.ChatCompletionMessage{FinishReason: models.FinishReasonToolCalls})
	var missing *MissingToolNameError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want MissingToolNameError", err)
	}
	if missing.PartIndex != 0 {
		t.Errorf("part index = %d, want 0", missing.PartIndex)
	}
}

func TestCollectorMalformedArguments(t *testing.T) {
	c := NewToolCallPartCollector()
	c.Next(&models.ChatCompletionMessage{ToolCallParts: []models.ToolCallPart{
		{ID: "call_1", Name: "fs_read", Arguments: `{"path": "/a"`},
	}})

	_, err := c.Next(&models.ChatCompletionMessage{FinishReason: models.FinishReasonToolCalls})
	var malformed *MalformedToolArgumentsError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want MalformedToolArgumentsError", err)
	}
	if malformed.ToolName != "fs_read" {
		t.Errorf("tool name = %q", malformed.ToolName)
	}
}

func TestCollectorEmptyArgumentsDefaultToEmptyObject(t *testing.T) {
	c := NewToolCallPartCollector()
	c.Next(&models.ChatCompletionMessage{ToolCallParts: []models.ToolCallPart{
		{ID: "call_1", Name: "attempt_completion"},
	}})
	out, err := c.Next(&models.ChatCompletionMessage{FinishReason: models.FinishReasonToolCalls})
	if err != nil {
		t.Fatal(err)
	}
	synthetic := out[0]
	if string(synthetic.ToolCalls[0].Input) != "{}" {
		t.Errorf("input = %s, want {}", synthetic.ToolCalls[0].Input)
	}
}

func TestCollectorPreservesUpstreamEvents(t *testing.T) {
	events := []*models.ChatCompletionMessage{
		{Content: "working"},
		{Reasoning: "hmm"},
		{ToolCallParts: []models.ToolCallPart{{ID: "c1", Name: "shell", Arguments: `{}`}}},
		{FinishReason: models.FinishReasonToolCalls, Usage: &models.Usage{TotalTokens: 7}},
	}
	out := runAll(t, NewToolCallPartCollector(), events)
	if len(out) != len(events)+1 {
		t.Fatalf("events out = %d, want %d", len(out), len(events)+1)
	}
	// The synthetic event slots in just before the terminal event; every
	// original event passes through by identity, in order.
	want := []*models.ChatCompletionMessage{events[0], events[1], events[2], out[3], events[3]}
	for i, e := range want {
		if out[i] != e {
			t.Fatalf("event %d not passed through by identity", i)
		}
	}
	if len(out[3].ToolCalls) != 1 {
		t.Errorf("synthetic event calls = %+v", out[3].ToolCalls)
	}
}

func TestCollectorNoPartsNoSynthetic(t *testing.T) {
	events := []*models.ChatCompletionMessage{
		{Content: "Hello!"},
		{FinishReason: models.FinishReasonStop},
	}
	out := runAll(t, NewToolCallPartCollector(), events)
	if len(out) != 2 {
		t.Errorf("events out = %d, want 2 (no synthetic)", len(out))
	}
}

func TestXMLCollectorParsesInvocations(t *testing.T) {
	text := "<tool_call>\n  <name>fs_read</name>\n  <arguments>{\"path\": \"/a\"}</arguments>\n</tool_call>" +
		"<tool_call><name>shell</name><arguments>{\"command\": \"ls\"}</arguments></tool_call>"
	events := []*models.ChatCompletionMessage{
		{Content: text[:40]},
		{Content: text[40:]},
		{FinishReason: models.FinishReasonStop},
	}
	out := runAll(t, NewXMLToolCallCollector(), events)

	if len(out) != 4 {
		t.Fatalf("events out = %d, want 4", len(out))
	}
	synthetic := out[2]
	if len(synthetic.ToolCalls) != 2 {
		t.Fatalf("calls = %d, want 2", len(synthetic.ToolCalls))
	}
	if synthetic.ToolCalls[0].Name != "fs_read" || string(synthetic.ToolCalls[0].Input) != `{"path":"/a"}` {
		t.Errorf("first call = %+v", synthetic.ToolCalls[0])
	}
	if synthetic.ToolCalls[0].ID == "" || synthetic.ToolCalls[0].ID == synthetic.ToolCalls[1].ID {
		t.Error("synthetic calls must get distinct ids")
	}
}

func TestXMLCollectorPlainTextEmitsNothing(t *testing.T) {
	events := []*models.ChatCompletionMessage{
		{Content: "Just a normal answer with <b>markup</b> that is not a tool call."},
		{FinishReason: models.FinishReasonStop},
	}
	out := runAll(t, NewXMLToolCallCollector(), events)
	if len(out) != 2 {
		t.Errorf("events out = %d, want 2", len(out))
	}
}

func TestXMLCollectorSkipsWhenNativeCallsPresent(t *testing.T) {
	events := []*models.ChatCompletionMessage{
		{Content: "<tool_call><name>shell</name><arguments>{}</arguments></tool_call>"},
		{ToolCalls: []models.ToolCall{{ID: "c1", Name: "shell", Input: []byte(`{}`)}}},
		{FinishReason: models.FinishReasonToolCalls},
	}
	out := runAll(t, NewXMLToolCallCollector(), events)
	if len(out) != 3 {
		t.Errorf("native tool calls present, XML collector must stay quiet; events out = %d", len(out))
	}
}

func TestPipelineChainsStages(t *testing.T) {
	p := NewPipeline(NewToolCallPartCollector(), nil, NewXMLToolCallCollector())
	events := []*models.ChatCompletionMessage{
		{ToolCallParts: []models.ToolCallPart{{ID: "c1", Name: "fs_read", Arguments: `{"path":"/a"}`}}},
		{FinishReason: models.FinishReasonToolCalls},
	}
	out := runAll(t, p, events)
	synthetic := out[len(out)-2]
	if len(synthetic.ToolCalls) != 1 || synthetic.ToolCalls[0].Name != "fs_read" {
		t.Errorf("pipeline synthetic event = %+v", synthetic)
	}
}
