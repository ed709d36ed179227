package agent

// FailureTracker counts consecutive failed tool calls per tool name within a
// single turn and decides when a tool has exhausted its retry budget.
//
// State is scoped to one turn: a fresh tracker is created per Run, lives on
// the loop's stack for that run, and is discarded at the end of the
// turn. A successful call resets the counter for that tool name; a failed
// call increments it. When multiple tool calls for the same tool fail within
// one assistant message, RecordMessage dedups them so the counter rises by
// exactly one, not once per call.
type FailureTracker struct {
	maxFailures int
	counts      map[string]int
}

// NewFailureTracker returns a tracker that allows up to maxFailures
// consecutive failures per tool name before MaxReached reports true. A
// non-positive maxFailures disables the limit: counts are still tracked, but
// MaxReached never fires and Remaining reports -1.
func NewFailureTracker(maxFailures int) *FailureTracker {
	return &FailureTracker{
		maxFailures: maxFailures,
		counts:      make(map[string]int),
	}
}

// RecordMessage applies the outcome of every tool result emitted by one
// assistant message's tool calls. Results are deduped by tool name first:
// a tool name that failed at least once in this message increments its
// counter by exactly one; a tool name with no failures among its results
// resets to zero.
func (f *FailureTracker) RecordMessage(results []toolOutcome) {
	failedNames := make(map[string]bool)
	succeededNames := make(map[string]bool)
	for _, r := range results {
		if r.isError {
			failedNames[r.toolName] = true
		} else {
			succeededNames[r.toolName] = true
		}
	}
	for name := range succeededNames {
		if !failedNames[name] {
			f.counts[name] = 0
		}
	}
	for name := range failedNames {
		f.counts[name]++
	}
}

// toolOutcome is the minimal shape FailureTracker needs from a tool result;
// kept decoupled from models.ToolResult so the tracker has no import cycle
// with the tool-call/result wire types.
type toolOutcome struct {
	toolName string
	isError  bool
}

// Remaining returns how many more consecutive failures name may have before
// MaxReached(name) becomes true. Returns -1 when no limit is configured.
func (f *FailureTracker) Remaining(name string) int {
	if f.maxFailures <= 0 {
		return -1
	}
	remaining := f.maxFailures - f.counts[name]
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// MaxReached reports whether name has hit or exceeded the configured limit.
func (f *FailureTracker) MaxReached(name string) bool {
	if f.maxFailures <= 0 {
		return false
	}
	return f.counts[name] >= f.maxFailures
}

// Count returns the current consecutive-failure count for name.
func (f *FailureTracker) Count(name string) int {
	return f.counts[name]
}
