// Package context manages conversation history growth: window-based
// compaction that replaces aged-out message ranges with a single rendered
// summary while keeping reasoning-chain continuity intact.
package context

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// Range is a contiguous, inclusive span of message indices [Start, End]
// identified as safe to replace with a single summary message.
type Range struct {
	Start int
	End   int
}

// Len returns the number of messages the range spans.
func (r Range) Len() int { return r.End - r.Start + 1 }

type windowKind int

const (
	windowEvict windowKind = iota
	windowRetain
)

// EvictionStrategy computes a candidate eviction range from a window size.
// Both constructors below compute a range the same way - the window is
// measured back from the newest message, and the kind each records does not
// change the computation - so the two strategies can be directly compared
// with Min/Max once each has produced a range.
type EvictionStrategy struct {
	kind   windowKind
	window int
}

// Evict builds a strategy that fires once the conversation holds more than
// `window` messages.
func Evict(window int) EvictionStrategy { return EvictionStrategy{kind: windowEvict, window: window} }

// Retain builds a strategy that keeps the last `window` messages
// uncompacted no matter what.
func Retain(window int) EvictionStrategy { return EvictionStrategy{kind: windowRetain, window: window} }

// EvictionRange returns the contiguous range of messages, starting from the
// oldest, that this strategy would replace with a summary. The range always
// starts at index 0 and its end is snapped backward to the nearest
// assistant message not followed by tool results, so a tool call is never
// separated from its result.
// Returns ok=false if the conversation is no longer than the window or no
// such assistant-message boundary exists within the candidate span.
func (s EvictionStrategy) EvictionRange(messages []models.Message) (Range, bool) {
	n := len(messages)
	if s.window <= 0 || n <= s.window {
		return Range{}, false
	}

	boundary := n - s.window // exclusive: messages[boundary:] are left untouched
	for end := boundary - 1; end >= 0; end-- {
		if messages[end].Role == models.RoleAssistant && (end+1 >= n || messages[end+1].Role != models.RoleTool) {
			return Range{Start: 0, End: end}, true
		}
	}
	return Range{}, false
}

// Min returns the less aggressive (shorter) of the two ranges.
func Min(a, b Range, aOK, bOK bool) (Range, bool) {
	switch {
	case !aOK && !bOK:
		return Range{}, false
	case !aOK:
		return b, true
	case !bOK:
		return a, true
	case a.Len() <= b.Len():
		return a, true
	default:
		return b, true
	}
}

// Max returns the more aggressive (longer) of the two ranges.
func Max(a, b Range, aOK, bOK bool) (Range, bool) {
	switch {
	case !aOK && !bOK:
		return Range{}, false
	case !aOK:
		return b, true
	case !bOK:
		return a, true
	case a.Len() >= b.Len():
		return a, true
	default:
		return b, true
	}
}

// CompactionWindows configures the two compaction triggers.
type CompactionWindows struct {
	// EvictionWindow is the backlog size (messages since the last
	// compaction) that fires normal compaction.
	EvictionWindow int
	// RetentionWindow is the number of trailing messages that must always
	// survive compaction untouched.
	RetentionWindow int
}

// SummaryRenderer turns the messages being evicted into the text of the
// single synthetic message that replaces them. Implementations typically
// render a template; DefaultSummaryRenderer provides a dependency-free
// fallback used when no templating engine is wired.
type SummaryRenderer interface {
	Render(ctx context.Context, blocks []SummaryMessage) (string, error)
}

// SummaryMessage is one role-tagged entry in a rendered compaction summary.
type SummaryMessage struct {
	Role     models.Role
	Messages []SummaryMessageBlock
}

// SummaryMessageBlock is one unit of work extracted from a compacted
// message: either a plain text block, or a structured record of a tool call
// and whether it succeeded.
type SummaryMessageBlock struct {
	Content         string
	ToolCallID      string
	ToolName        string
	ToolCallPath    string
	ToolCallSuccess *bool
}

// WithToolCallSuccess marks the block as a tool call with the given outcome.
func (b SummaryMessageBlock) WithToolCallSuccess(ok bool) SummaryMessageBlock {
	b.ToolCallSuccess = &ok
	return b
}

// Compactor replaces aged-out conversation ranges with a single summary
// message, preserving the last non-empty extended-thinking block so
// reasoning-chain continuity survives compaction.
type Compactor struct {
	windows  CompactionWindows
	renderer SummaryRenderer
}

// NewCompactor builds a Compactor. A nil renderer falls back to
// DefaultSummaryRenderer.
func NewCompactor(windows CompactionWindows, renderer SummaryRenderer) *Compactor {
	if renderer == nil {
		renderer = DefaultSummaryRenderer{}
	}
	return &Compactor{windows: windows, renderer: renderer}
}

// ShouldCompact reports whether the eviction window has filled enough for
// Compact to find a qualifying range.
func (c *Compactor) ShouldCompact(messages []models.Message) bool {
	_, ok := Evict(c.windows.EvictionWindow).EvictionRange(messages)
	return ok
}

// Compact evicts the oldest qualifying range of messages and replaces it
// with one synthetic summary message. When forced is true the compactor
// uses the retention window alone rather than the ordinary min(eviction,
// retention) selection.
//
// This mirrors a known quirk of the reference behavior being ported: a
// "forced" compaction was clearly intended to be the more aggressive of the
// two window choices (eviction.Max(retention)), but the shipped code only
// ever applies the retention window when forced, leaving that union
// unimplemented. That is replicated here verbatim rather than silently
// "fixed", since forced compaction is already an edge path and changing its
// selection rule would change which messages survive a forced flush for
// reasons outside this port's scope.
func (c *Compactor) Compact(ctx context.Context, messages []models.Message, forced bool) ([]models.Message, error) {
	eviction, evictionOK := Evict(c.windows.EvictionWindow).EvictionRange(messages)
	retention, retentionOK := Retain(c.windows.RetentionWindow).EvictionRange(messages)

	var rng Range
	var ok bool
	if forced {
		// consider eviction.Max(retention) instead
		rng, ok = retention, retentionOK
	} else {
		rng, ok = Min(eviction, retention, evictionOK, retentionOK)
	}
	if !ok {
		return messages, nil
	}
	return c.compressRange(ctx, messages, rng)
}

func (c *Compactor) compressRange(ctx context.Context, messages []models.Message, rng Range) ([]models.Message, error) {
	sequence := messages[rng.Start : rng.End+1]

	blocks := summarizeSequence(sequence)
	summaryText, err := c.renderer.Render(ctx, blocks)
	if err != nil {
		return nil, fmt.Errorf("render compaction summary: %w", err)
	}

	reasoning := lastNonEmptyReasoning(sequence)

	out := make([]models.Message, 0, len(messages)-rng.Len()+1)
	out = append(out, messages[:rng.Start]...)
	out = append(out, models.Message{
		Role:    models.RoleUser,
		Content: summaryText,
	})
	out = append(out, messages[rng.End+1:]...)

	if reasoning != nil {
		for i := range out {
			if out[i].Role != models.RoleAssistant {
				continue
			}
			if !models.ReasoningDetailsNonEmpty(out[i].ReasoningDetails) {
				out[i].ReasoningDetails = reasoning
			}
			break
		}
	}

	return out, nil
}

// lastNonEmptyReasoning finds the most recent (last, chronologically)
// non-empty reasoning block in the evicted sequence. Empty blocks
// (including a message's entirely-empty reasoning slice) are skipped so an
// earlier non-empty block further back in the range is still found.
func lastNonEmptyReasoning(sequence []models.Message) []models.ReasoningDetail {
	for i := len(sequence) - 1; i >= 0; i-- {
		msg := sequence[i]
		if msg.Role != models.RoleAssistant {
			continue
		}
		if models.ReasoningDetailsNonEmpty(msg.ReasoningDetails) {
			return msg.ReasoningDetails
		}
	}
	return nil
}

// summarizeSequence projects a run of messages into role-tagged blocks
// suitable for rendering. System messages are dropped; within each
// assistant message only the last successful operation per path survives,
// success being read from the matching tool results by call id; the
// first user message's content is kept whole as the task anchor while later
// user messages collapse to their first line.
func summarizeSequence(sequence []models.Message) []SummaryMessage {
	successByCallID := make(map[string]bool)
	for _, msg := range sequence {
		for _, tr := range msg.ToolResults {
			successByCallID[tr.ToolCallID] = !tr.IsError
		}
	}

	out := make([]SummaryMessage, 0, len(sequence))
	sawFirstUser := false
	for _, msg := range sequence {
		switch msg.Role {
		case models.RoleSystem, models.RoleTool:
			continue
		case models.RoleUser:
			content := msg.Content
			if sawFirstUser {
				content = firstLine(content)
			}
			sawFirstUser = true
			out = append(out, SummaryMessage{
				Role:     models.RoleUser,
				Messages: []SummaryMessageBlock{{Content: content}},
			})
		case models.RoleAssistant:
			blocks := assistantBlocks(msg, successByCallID)
			out = append(out, SummaryMessage{Role: models.RoleAssistant, Messages: blocks})
		}
	}
	return out
}

// assistantBlocks extracts one block per surviving tool call plus the text
// content. Failed operations are filtered out; among successful operations
// on the same path only the last survives, first-occurrence key order
// preserved.
func assistantBlocks(msg models.Message, successByCallID map[string]bool) []SummaryMessageBlock {
	blocks := make([]SummaryMessageBlock, 0, len(msg.ToolCalls)+1)
	if strings.TrimSpace(msg.Content) != "" {
		blocks = append(blocks, SummaryMessageBlock{Content: msg.Content})
	}

	var order []string
	byKey := make(map[string]SummaryMessageBlock)

	for _, tc := range msg.ToolCalls {
		success, known := successByCallID[tc.ID]
		if known && !success {
			continue
		}
		block := SummaryMessageBlock{
			ToolCallID:   tc.ID,
			ToolName:     tc.Name,
			ToolCallPath: toolCallPath(tc),
		}
		if known {
			block = block.WithToolCallSuccess(success)
		}

		key := tc.Name + ":" + tc.ID
		if block.ToolCallPath != "" {
			key = block.ToolCallPath
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = block
	}
	for _, key := range order {
		blocks = append(blocks, byKey[key])
	}
	return blocks
}

// toolCallPath extracts the file path (or command/url) a tool call operated
// on, for per-path dedup in summaries.
func toolCallPath(tc models.ToolCall) string {
	var probe struct {
		Path    string `json:"path"`
		Command string `json:"command"`
		URL     string `json:"url"`
	}
	if err := json.Unmarshal(tc.Input, &probe); err != nil {
		return ""
	}
	switch {
	case probe.Path != "":
		return probe.Path
	case probe.Command != "":
		return probe.Command
	case probe.URL != "":
		return probe.URL
	default:
		return ""
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// DefaultSummaryRenderer renders a compaction summary without any
// templating engine, for use when the orchestrator has no TemplateEngine
// collaborator wired.
type DefaultSummaryRenderer struct{}

// Render produces a deterministic, human-readable transcript of the
// evicted range: one line per block, tool calls noted by name and
// outcome rather than by their raw arguments or output.
func (DefaultSummaryRenderer) Render(_ context.Context, blocks []SummaryMessage) (string, error) {
	var b strings.Builder
	b.WriteString("## Conversation summary (compacted)\n\n")
	for _, msg := range blocks {
		switch msg.Role {
		case models.RoleUser:
			for _, block := range msg.Messages {
				fmt.Fprintf(&b, "- User: %s\n", block.Content)
			}
		case models.RoleAssistant:
			for _, block := range msg.Messages {
				switch {
				case block.ToolName != "" && block.ToolCallPath != "":
					status := "ok"
					if block.ToolCallSuccess != nil && !*block.ToolCallSuccess {
						status = "failed"
					}
					fmt.Fprintf(&b, "- Assistant called %s on %s (%s)\n", block.ToolName, block.ToolCallPath, status)
				case block.ToolName != "":
					fmt.Fprintf(&b, "- Assistant called %s\n", block.ToolName)
				case block.Content != "":
					fmt.Fprintf(&b, "- Assistant: %s\n", block.Content)
				}
			}
		}
	}
	return b.String(), nil
}

// TemplateEngine is the external templating collaborator; the compactor
// supplies data only and never renders templates itself.
type TemplateEngine interface {
	Render(ctx context.Context, template string, data any) (string, error)
}

// TemplateSummaryRenderer renders the compaction summary through an
// external TemplateEngine with the summary blocks as template data.
type TemplateSummaryRenderer struct {
	Engine   TemplateEngine
	Template string
}

// Render implements SummaryRenderer.
func (r TemplateSummaryRenderer) Render(ctx context.Context, blocks []SummaryMessage) (string, error) {
	return r.Engine.Render(ctx, r.Template, blocks)
}
