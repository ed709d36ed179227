package agent

import (
	"bytes"
	"fmt"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// DefaultDoomLoopThreshold is the number of consecutive identical tool
// calls (including the one currently about to run) that trips detection.
const DefaultDoomLoopThreshold = 3

// DoomLoopError is returned in place of executing a tool call once the
// same tool has been called with identical arguments too many times in a
// row. It is surfaced to the model as a tool result so the model itself
// can course-correct.
type DoomLoopError struct {
	ToolName         string
	ConsecutiveCalls int
}

func (e *DoomLoopError) Error() string {
	return fmt.Sprintf(
		"⚠️  SYSTEM ALERT: You have called the '%s' tool %d times consecutively with identical arguments. "+
			"This indicates you are stuck in a repetitive loop. Please:\n"+
			"1. Reconsider your approach to solving this problem\n"+
			"2. Try a different tool or different arguments\n"+
			"3. If you're stuck, explain what you're trying to accomplish and ask for clarification",
		e.ToolName, e.ConsecutiveCalls,
	)
}

// DoomLoopDetector flags a tool call that repeats, with byte-identical
// arguments, immediately preceding assistant turns.
//
// Detection only looks at an unbroken run of matching calls counting
// backward from the most recent assistant message: an assistant message
// with no tool calls at all, or one whose tool calls don't match, stops the
// count immediately. A turn where the model also emitted plain text
// alongside a *different* tool call still breaks the streak the same way a
// wholly different tool would - this is a known false-negative (a model
// that interleaves a no-op text turn between repeated calls evades
// detection) carried over unchanged rather than "fixed", since tightening
// it would need a broader definition of "the same loop" than the arguments
// this detector is given.
type DoomLoopDetector struct {
	threshold int
}

// NewDoomLoopDetector returns a detector using DefaultDoomLoopThreshold.
func NewDoomLoopDetector() *DoomLoopDetector {
	return &DoomLoopDetector{threshold: DefaultDoomLoopThreshold}
}

// WithThreshold overrides the default threshold.
func (d *DoomLoopDetector) WithThreshold(n int) *DoomLoopDetector {
	d.threshold = n
	return d
}

// Check inspects history (most recent last) for a run of calls identical to
// call and returns the detected error if the run, including call itself,
// reaches the threshold.
func (d *DoomLoopDetector) Check(call models.ToolCall, history []models.Message) (*DoomLoopError, bool) {
	assistantMessages := extractAssistantMessages(history)

	consecutive := 1 // the call about to be made counts toward its own streak
	for i := len(assistantMessages) - 1; i >= 0; i-- {
		toolCalls := assistantMessages[i].ToolCalls
		if len(toolCalls) == 0 {
			break
		}
		if !anyMatches(toolCalls, call) {
			break
		}
		consecutive++
	}

	if consecutive >= d.threshold {
		return &DoomLoopError{ToolName: call.Name, ConsecutiveCalls: consecutive}, true
	}
	return nil, false
}

func extractAssistantMessages(history []models.Message) []models.Message {
	out := make([]models.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == models.RoleAssistant {
			out = append(out, msg)
		}
	}
	return out
}

func anyMatches(toolCalls []models.ToolCall, call models.ToolCall) bool {
	for _, tc := range toolCalls {
		if tc.Name == call.Name && bytes.Equal(tc.Input, call.Input) {
			return true
		}
	}
	return false
}
