package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// ErrToolNotFound indicates a requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// Registry holds the tool inventory. Registration happens at construction
// (static tools) and at plugin load (MCP-prefixed dynamic tools); lookup and
// execution are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema

	// Timeout caps each Execute call; zero means no cap.
	Timeout time.Duration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool. The tool's published schema is compiled once here;
// a schema that does not compile is a programming error and rejected.
func (r *Registry) Register(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return errors.New("tool has no name")
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytes.NewReader(tool.Schema())); err != nil {
		return fmt.Errorf("register %s: add schema: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return fmt.Errorf("register %s: compile schema: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = tool
	r.schemas[name] = schema
	return nil
}

// MustRegister registers or panics; for static construction-time wiring.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// Unregister removes a tool (plugin unload).
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions returns the tool definitions for the given inventory names,
// or for every registered tool when names is empty. Order is deterministic.
func (r *Registry) Definitions(names []string) []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(names) == 0 {
		names = make([]string, 0, len(r.tools))
		for name := range r.tools {
			names = append(names, name)
		}
		sort.Strings(names)
	}
	out := make([]models.ToolDefinition, 0, len(names))
	for _, name := range names {
		t, ok := r.tools[name]
		if !ok {
			continue
		}
		out = append(out, models.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		})
	}
	return out
}

// Execute validates the call's arguments against the tool's schema and runs
// it under the registry timeout. Validation failures, unknown tools, panics,
// and timeouts all surface as error outputs so the orchestrator can hand
// them back to the model.
func (r *Registry) Execute(ctx context.Context, call models.ToolCall) *Output {
	r.mu.RLock()
	tool, ok := r.tools[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()
	if !ok {
		return Errorf("tool %q not found", call.Name)
	}

	var args any
	if len(call.Input) > 0 {
		if err := json.Unmarshal(call.Input, &args); err != nil {
			return Errorf("arguments are not valid JSON: %v", err)
		}
	} else {
		args = map[string]any{}
	}
	if schema != nil {
		if err := schema.Validate(args); err != nil {
			return Errorf("arguments do not match the %s schema: %v", call.Name, err)
		}
	}

	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	out, err := safeExecute(ctx, tool, call.Input)
	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		return Errorf("tool %s timed out after %s", call.Name, r.Timeout)
	case err != nil:
		return Errorf("tool %s failed: %v", call.Name, err)
	case out == nil:
		return Errorf("tool %s returned no output", call.Name)
	default:
		return out
	}
}

// safeExecute recovers tool panics into errors; a crashing tool must not
// take down the turn loop.
func safeExecute(ctx context.Context, tool Tool, params json.RawMessage) (out *Output, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = fmt.Errorf("tool panicked: %v", rec)
		}
	}()
	out, err = tool.Execute(ctx, params)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return out, err
}

// Result converts an output into the tool-result message payload, echoing
// the call id and name per the output envelope contract.
func Result(call models.ToolCall, out *Output) models.ToolResult {
	res := models.ToolResult{
		ToolName:       call.Name,
		ToolCallID:     call.ID,
		Content:        out.Render(),
		IsError:        out.IsError,
		TruncationFile: out.TruncationFile,
	}
	for _, img := range out.Images {
		res.Attachments = append(res.Attachments, models.Attachment{
			Type:     "image",
			MimeType: img.MimeType,
			Data:     img.Data,
		})
	}
	return res
}
