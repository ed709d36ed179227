package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// FollowupQuestion is the structured question a followup call carries; the
// orchestrator pauses the turn and surfaces it to the user.
type FollowupQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
}

// FollowupTool lets the model ask the user a structured question mid-task.
// Execution only validates and echoes the question; the orchestrator
// recognizes the tool name and suspends the turn awaiting external input.
type FollowupTool struct{}

// NewFollowupTool creates the followup tool.
func NewFollowupTool() *FollowupTool { return &FollowupTool{} }

type followupInput struct {
	Question string   `json:"question" jsonschema:"required,description=The question to ask the user."`
	Options  []string `json:"options,omitempty" jsonschema:"description=Optional answer choices."`
}

func (t *FollowupTool) Name() string { return NameFollowup }

func (t *FollowupTool) Description() string {
	return "Ask the user a clarifying question and wait for their answer before continuing."
}

func (t *FollowupTool) Schema() json.RawMessage { return schemaFor(&followupInput{}) }

func (t *FollowupTool) Execute(_ context.Context, params json.RawMessage) (*Output, error) {
	var input followupInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	if strings.TrimSpace(input.Question) == "" {
		return Errorf("question is required"), nil
	}
	text := "Awaiting user response to: " + input.Question
	if len(input.Options) > 0 {
		text += "\nOptions: " + strings.Join(input.Options, ", ")
	}
	return &Output{Text: text}, nil
}

// ParseFollowup extracts the structured question from a followup call's
// arguments, for the orchestrator's pause notification.
func ParseFollowup(input json.RawMessage) (FollowupQuestion, error) {
	var q FollowupQuestion
	err := json.Unmarshal(input, &q)
	return q, err
}

// PlanTool records the model's working plan. The plan is echoed back so it
// stays in context; it has no side effects.
type PlanTool struct{}

// NewPlanTool creates the plan tool.
func NewPlanTool() *PlanTool { return &PlanTool{} }

type planInput struct {
	Steps []string `json:"steps" jsonschema:"required,description=Ordered plan steps."`
}

func (t *PlanTool) Name() string { return NamePlan }

func (t *PlanTool) Description() string {
	return "Record or update the step-by-step plan for the current task."
}

func (t *PlanTool) Schema() json.RawMessage { return schemaFor(&planInput{}) }

func (t *PlanTool) Execute(_ context.Context, params json.RawMessage) (*Output, error) {
	var input planInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	if len(input.Steps) == 0 {
		return Errorf("steps must not be empty"), nil
	}
	var b strings.Builder
	b.WriteString("Plan recorded:\n")
	for i, step := range input.Steps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	return &Output{Text: b.String()}, nil
}

// CompletionTool is the terminal tool: calling it marks the turn done. The
// orchestrator recognizes the name; execution just validates the summary.
type CompletionTool struct{}

// NewCompletionTool creates the attempt_completion tool.
func NewCompletionTool() *CompletionTool { return &CompletionTool{} }

type completionInput struct {
	Result string `json:"result,omitempty" jsonschema:"description=Final summary of what was accomplished."`
}

func (t *CompletionTool) Name() string { return NameComplete }

func (t *CompletionTool) Description() string {
	return "Declare the task complete, with a final summary of the result."
}

func (t *CompletionTool) Schema() json.RawMessage { return schemaFor(&completionInput{}) }

func (t *CompletionTool) Execute(_ context.Context, params json.RawMessage) (*Output, error) {
	var input completionInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	text := input.Result
	if strings.TrimSpace(text) == "" {
		text = "Task marked complete."
	}
	return &Output{Text: text}, nil
}

// ParseCompletionResult extracts the final summary from an
// attempt_completion call's arguments.
func ParseCompletionResult(input json.RawMessage) string {
	var parsed completionInput
	if err := json.Unmarshal(input, &parsed); err != nil {
		return ""
	}
	return parsed.Result
}

// SnapshotService restores files from snapshots taken before edits. The
// snapshot store itself lives outside the core.
type SnapshotService interface {
	// Restore puts the newest snapshot of path back on disk and returns the
	// restored content length.
	Restore(ctx context.Context, path string) (int, error)

	// List returns the snapshot timestamps recorded for path.
	List(ctx context.Context, path string) ([]string, error)
}

// UndoTool restores a file from its most recent snapshot.
type UndoTool struct {
	snapshots SnapshotService
}

// NewUndoTool creates the fs_undo tool.
func NewUndoTool(snapshots SnapshotService) *UndoTool { return &UndoTool{snapshots: snapshots} }

type undoInput struct {
	Path string `json:"path" jsonschema:"required,description=Absolute path of the file to restore."`
}

func (t *UndoTool) Name() string { return NameUndo }

func (t *UndoTool) Description() string {
	return "Restore a file to its state before the last edit, from its snapshot."
}

func (t *UndoTool) Schema() json.RawMessage { return schemaFor(&undoInput{}) }

func (t *UndoTool) Execute(ctx context.Context, params json.RawMessage) (*Output, error) {
	if t.snapshots == nil {
		return Errorf("no snapshot service configured"), nil
	}
	var input undoInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	path, errOut := requireAbsolutePath(input.Path)
	if errOut != nil {
		return errOut, nil
	}
	n, err := t.snapshots.Restore(ctx, path)
	if err != nil {
		return Errorf("restore %s: %v", path, err), nil
	}
	return &Output{
		Text:        fmt.Sprintf("restored %d chars from snapshot", n),
		FrontMatter: &FrontMatter{Path: path, TotalChars: n},
	}, nil
}
