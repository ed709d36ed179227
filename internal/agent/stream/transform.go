// Package stream provides restartable combinators over the canonical
// completion event stream. Each transformer is an explicit scan state rather
// than a suspended goroutine, so it can be unit-tested without a runtime and
// re-run over its own output.
//
// Transformers never drop or reorder the events they are fed; they only
// add synthetic events once the stream reaches its terminal event, placed
// immediately before it. UI
// replay depends on that.
package stream

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// MissingToolNameError reports a run of streamed tool-call parts that
// carries argument fragments but no tool name.
type MissingToolNameError struct {
	// PartIndex is the index, within the accumulated part list, of the
	// first part of the nameless run.
	PartIndex int
}

func (e *MissingToolNameError) Error() string {
	return fmt.Sprintf("tool call parts at index %d have no tool name", e.PartIndex)
}

// MalformedToolArgumentsError reports that a run's concatenated argument
// fragments did not parse as JSON.
type MalformedToolArgumentsError struct {
	ToolName  string
	Arguments string
	Cause     error
}

func (e *MalformedToolArgumentsError) Error() string {
	return fmt.Sprintf("tool call %q arguments are not valid JSON: %v", e.ToolName, e.Cause)
}

func (e *MalformedToolArgumentsError) Unwrap() error { return e.Cause }

// Transformer consumes one canonical event and returns the events to emit
// downstream. Implementations pass the input event through unchanged and may
// add at most one synthetic event, immediately before the terminal event.
type Transformer interface {
	Next(msg *models.ChatCompletionMessage) ([]*models.ChatCompletionMessage, error)
}

// ToolCallPartCollector folds streamed tool-call parts into full tool calls.
// On the terminal tool_calls event it fuses the accumulated parts and
// appends one synthetic event carrying the materialized calls.
//
// The synthetic event is emitted immediately before the terminal event, and
// the collector remembers the ids of full tool calls it has already seen
// pass through, omitting them from the synthetic event. Running the
// collector over its own output therefore yields the same event list: the
// second pass re-fuses the same parts, finds every fused call already
// present, and appends nothing.
type ToolCallPartCollector struct {
	parts     []models.ToolCallPart
	seenCalls map[string]bool
}

// NewToolCallPartCollector returns an empty collector.
func NewToolCallPartCollector() *ToolCallPartCollector {
	return &ToolCallPartCollector{seenCalls: make(map[string]bool)}
}

// Next implements Transformer.
func (c *ToolCallPartCollector) Next(msg *models.ChatCompletionMessage) ([]*models.ChatCompletionMessage, error) {
	if msg == nil {
		return nil, nil
	}
	for _, call := range msg.ToolCalls {
		c.seenCalls[call.ID] = true
	}
	c.parts = append(c.parts, msg.ToolCallParts...)

	if msg.FinishReason != models.FinishReasonToolCalls {
		return []*models.ChatCompletionMessage{msg}, nil
	}

	calls, err := FuseToolCallParts(c.parts)
	if err != nil {
		return nil, err
	}
	fresh := calls[:0:0]
	for _, call := range calls {
		if !c.seenCalls[call.ID] {
			fresh = append(fresh, call)
		}
	}
	if len(fresh) == 0 {
		return []*models.ChatCompletionMessage{msg}, nil
	}
	synthetic := &models.ChatCompletionMessage{ToolCalls: fresh}
	return []*models.ChatCompletionMessage{synthetic, msg}, nil
}

// FuseToolCallParts groups parts into contiguous runs sharing a tool name
// (the name appears only on the first part of each run), concatenates each
// run's argument fragments, and parses them as JSON.
func FuseToolCallParts(parts []models.ToolCallPart) ([]models.ToolCall, error) {
	var calls []models.ToolCall
	for start := 0; start < len(parts); {
		if parts[start].Name == "" {
			return nil, &MissingToolNameError{PartIndex: start}
		}
		end := start + 1
		for end < len(parts) && parts[end].Name == "" {
			end++
		}

		var args strings.Builder
		for _, p := range parts[start:end] {
			args.WriteString(p.Arguments)
		}
		raw := args.String()
		if raw == "" {
			raw = "{}"
		}
		input, err := normalizeJSON(raw)
		if err != nil {
			return nil, &MalformedToolArgumentsError{ToolName: parts[start].Name, Arguments: raw, Cause: err}
		}

		// A missing id gets a deterministic stand-in derived from the run's
		// position, so re-fusing the same parts yields the same calls.
		id := parts[start].ID
		if id == "" {
			id = fmt.Sprintf("call_%d", len(calls))
		}
		calls = append(calls, models.ToolCall{ID: id, Name: parts[start].Name, Input: input})
		start = end
	}
	return calls, nil
}

// XMLToolCallCollector accumulates assistant text and, on the terminal
// event, parses it as XML-encoded tool invocations. Providers without
// native tool calling are prompted to reply with
//
//	<tool_call>
//	  <name>fs_read</name>
//	  <arguments>{"path": "/abs/x"}</arguments>
//	</tool_call>
//
// blocks; when the accumulated text parses, one synthetic event carrying the
// materialized calls is emitted immediately before the terminal event. Text that is not
// an XML invocation emits nothing extra — the assistant text already flowed
// through untouched.
type XMLToolCallCollector struct {
	buf      strings.Builder
	emitted  bool
	sawCalls bool
}

// NewXMLToolCallCollector returns an empty collector.
func NewXMLToolCallCollector() *XMLToolCallCollector {
	return &XMLToolCallCollector{}
}

// Next implements Transformer.
func (c *XMLToolCallCollector) Next(msg *models.ChatCompletionMessage) ([]*models.ChatCompletionMessage, error) {
	if msg == nil {
		return nil, nil
	}
	c.buf.WriteString(msg.Content)
	if len(msg.ToolCalls) > 0 {
		c.sawCalls = true
	}

	if msg.FinishReason == "" || c.emitted || c.sawCalls {
		return []*models.ChatCompletionMessage{msg}, nil
	}
	c.emitted = true

	calls, ok := ParseXMLToolCalls(c.buf.String())
	if !ok {
		return []*models.ChatCompletionMessage{msg}, nil
	}
	synthetic := &models.ChatCompletionMessage{ToolCalls: calls}
	return []*models.ChatCompletionMessage{synthetic, msg}, nil
}

type xmlToolCall struct {
	Name      string `xml:"name"`
	Arguments string `xml:"arguments"`
}

// ParseXMLToolCalls extracts <tool_call> invocations from text. Returns
// ok=false when the text contains no parseable invocation.
func ParseXMLToolCalls(text string) ([]models.ToolCall, bool) {
	if !strings.Contains(text, "<tool_call>") {
		return nil, false
	}
	// Wrap in a synthetic root so multiple sibling invocations parse as one
	// document.
	var doc struct {
		Calls []xmlToolCall `xml:"tool_call"`
	}
	wrapped := "<calls>" + text + "</calls>"
	if err := xml.Unmarshal([]byte(wrapped), &doc); err != nil {
		return nil, false
	}

	var calls []models.ToolCall
	for _, c := range doc.Calls {
		if c.Name == "" {
			continue
		}
		raw := strings.TrimSpace(c.Arguments)
		if raw == "" {
			raw = "{}"
		}
		input, err := normalizeJSON(raw)
		if err != nil {
			continue
		}
		calls = append(calls, models.ToolCall{
			ID:    "call_" + uuid.NewString(),
			Name:  strings.TrimSpace(c.Name),
			Input: input,
		})
	}
	if len(calls) == 0 {
		return nil, false
	}
	return calls, true
}

// Pipeline chains transformers left to right, feeding each transformer's
// output events into the next.
type Pipeline struct {
	stages []Transformer
}

// NewPipeline builds a pipeline from the given stages; nil stages are
// skipped.
func NewPipeline(stages ...Transformer) *Pipeline {
	p := &Pipeline{}
	for _, s := range stages {
		if s != nil {
			p.stages = append(p.stages, s)
		}
	}
	return p
}

// Next runs one event through every stage in order.
func (p *Pipeline) Next(msg *models.ChatCompletionMessage) ([]*models.ChatCompletionMessage, error) {
	batch := []*models.ChatCompletionMessage{msg}
	for _, stage := range p.stages {
		var next []*models.ChatCompletionMessage
		for _, m := range batch {
			out, err := stage.Next(m)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		batch = next
	}
	return batch, nil
}
