package models

import "time"

// NotificationType identifies the kind of update surfaced to the UI.
type NotificationType string

const (
	// Model output
	NotificationTaskMessage   NotificationType = "task.message"
	NotificationTaskReasoning NotificationType = "task.reasoning"

	// Tool lifecycle
	NotificationToolCallStart NotificationType = "tool_call.start"
	NotificationToolCallEnd   NotificationType = "tool_call.end"

	// Async tool jobs
	NotificationJobUpdate NotificationType = "job.update"

	// Turn lifecycle
	NotificationRetryAttempt NotificationType = "task.retry"
	NotificationTaskComplete NotificationType = "task.complete"
	NotificationTaskError    NotificationType = "task.error"

	// Follow-up: the model asked the user a structured question and the
	// turn is paused awaiting input.
	NotificationFollowup NotificationType = "task.followup"

	// Context maintenance
	NotificationCompaction NotificationType = "context.compacted"
)

// Notification is one typed update on a session's event channel. Exactly one
// payload pointer is non-nil for a given Type. Sequence is monotonic within
// a session so consumers can assert ordering across goroutines.
type Notification struct {
	Type      NotificationType `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Sequence  uint64           `json:"seq"`
	Time      time.Time        `json:"time,omitzero"`

	Message    *MessagePayload    `json:"message,omitempty"`
	ToolCall   *ToolCallPayload   `json:"tool_call,omitempty"`
	Retry      *RetryPayload      `json:"retry,omitempty"`
	Completion *CompletionPayload `json:"completion,omitempty"`
	Error      *ErrorPayload      `json:"error,omitempty"`
	Followup   *FollowupPayload   `json:"followup,omitempty"`
	Compaction *CompactionPayload `json:"compaction,omitempty"`
	Job        *JobPayload        `json:"job,omitempty"`
}

// MessagePayload carries a streamed delta of assistant text or reasoning.
type MessagePayload struct {
	Delta string `json:"delta"`
}

// ToolCallPayload accompanies tool lifecycle notifications.
type ToolCallPayload struct {
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id"`
	IsError    bool   `json:"is_error,omitempty"`
	// Skipped is set when the call was rejected before execution, e.g. by
	// the doom-loop detector or an approval denial.
	Skipped bool   `json:"skipped,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// RetryPayload reports a provider retry in progress.
type RetryPayload struct {
	Attempt int    `json:"attempt"`
	Max     int    `json:"max"`
	Reason  string `json:"reason,omitempty"`
}

// CompletionPayload accompanies a terminal task.complete notification.
type CompletionPayload struct {
	Result string `json:"result,omitempty"`
	Usage  Usage  `json:"usage"`
	Turns  int    `json:"turns"`
}

// ErrorPayload accompanies a terminal task.error notification.
type ErrorPayload struct {
	Message string `json:"message"`
	// Terminal distinguishes turn-ending failures (max retries, failure
	// budget exhausted) from recoverable ones surfaced for visibility.
	Terminal bool `json:"terminal,omitempty"`
}

// FollowupPayload carries the model's structured question to the user.
type FollowupPayload struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// CompactionPayload reports a completed context compaction.
type CompactionPayload struct {
	MessagesEvicted int `json:"messages_evicted"`
	MessagesKept    int `json:"messages_kept"`
}

// JobPayload reports state changes of an async tool job.
type JobPayload struct {
	JobID      string `json:"job_id"`
	ToolName   string `json:"tool_name"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
}
