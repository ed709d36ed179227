package agent

import (
	"errors"
	"fmt"
)

// Sentinel errors for turn-loop outcomes.
var (
	// ErrMaxTurns indicates the turn loop exceeded its iteration limit.
	ErrMaxTurns = errors.New("max turns exceeded")

	// ErrMaxRetries indicates the provider retry budget ran out.
	ErrMaxRetries = errors.New("max retry attempts exceeded")

	// ErrMaxToolFailures indicates a tool exhausted its per-turn failure
	// budget.
	ErrMaxToolFailures = errors.New("max tool failures reached")

	// ErrNoProvider indicates no provider adapter is configured.
	ErrNoProvider = errors.New("no provider configured")

	// ErrAwaitingFollowup indicates the turn paused on a followup question
	// and needs external input to resume.
	ErrAwaitingFollowup = errors.New("awaiting followup response")
)

// LoopError wraps a terminal turn failure with the conversation it occurred
// in, for session-level handling.
type LoopError struct {
	ConversationID string
	Turn           int
	Cause          error
}

// Error implements the error interface.
func (e *LoopError) Error() string {
	return fmt.Sprintf("turn loop failed (conversation=%s turn=%d): %v", e.ConversationID, e.Turn, e.Cause)
}

// Unwrap returns the underlying error.
func (e *LoopError) Unwrap() error { return e.Cause }
