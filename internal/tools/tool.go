// Package tools implements the runtime's tool inventory: filesystem
// read/write/patch/remove/search, shell execution, web fetch, snapshot
// undo, and the control tools (followup, plan, attempt_completion) the
// orchestrator interprets. A Registry dispatches typed invocations,
// validates arguments against each tool's published schema, and formats
// outputs into the front-matter envelope the model parses.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Canonical tool names.
const (
	NameRead      = "fs_read"
	NameReadImage = "fs_read_image"
	NameWrite     = "fs_write"
	NamePatch     = "fs_patch"
	NameRemove    = "fs_remove"
	NameSearch    = "fs_search"
	NameUndo      = "fs_undo"
	NameShell     = "shell"
	NameFetch     = "fetch"
	NameFollowup  = "followup"
	NamePlan      = "plan"
	NameComplete  = "attempt_completion"

	// MCPPrefix marks dynamically-registered plugin tools.
	MCPPrefix = "mcp_"
)

// Tool is one executable capability exposed to the model.
type Tool interface {
	// Name returns the tool name for function calling.
	Name() string

	// Description returns a natural-language description of the tool.
	Description() string

	// Schema returns the JSON Schema for the tool's input.
	Schema() json.RawMessage

	// Execute runs the tool. Validation failures and execution failures are
	// reported through Output.IsError, not through the error return; a
	// non-nil error means the runtime itself broke (panic, context gone).
	Execute(ctx context.Context, params json.RawMessage) (*Output, error)
}

// Output is a tool's result before enveloping: text or image payload, an
// error flag, and optional front-matter metadata the formatter renders
// ahead of the body.
type Output struct {
	Text    string
	IsError bool

	// FrontMatter is rendered as a YAML-like header before Text.
	FrontMatter *FrontMatter

	// TruncationFile is the temp-file path carrying the full output when
	// Text was truncated.
	TruncationFile string

	// Images carries binary payloads (fs_read_image).
	Images []ImageOutput
}

// ImageOutput is one binary image payload.
type ImageOutput struct {
	MimeType string
	Data     []byte
}

// Errorf builds an error output. The text is wrapped in the error envelope
// by the formatter, not here, so callers can still inspect the raw message.
func Errorf(format string, args ...any) *Output {
	return &Output{Text: fmt.Sprintf(format, args...), IsError: true}
}

// ErrorEnvelope wraps a failed tool call's text in the tags the model is
// prompted against.
func ErrorEnvelope(text string) string {
	return "<tool_call_error>" + text + "</tool_call_error>"
}

// Render produces the final text handed back to the model: front-matter
// header (when present), then the body, with error text enveloped.
func (o *Output) Render() string {
	body := o.Text
	if o.IsError {
		body = ErrorEnvelope(body)
	}
	if o.FrontMatter == nil {
		return body
	}
	return o.FrontMatter.Render() + body
}

// requireAbsolutePath is the shared precondition for filesystem tools.
func requireAbsolutePath(path string) (string, *Output) {
	p := strings.TrimSpace(path)
	if p == "" {
		return "", Errorf("path is required")
	}
	if !strings.HasPrefix(p, "/") {
		return "", Errorf("path must be absolute, got %q", p)
	}
	return p, nil
}
