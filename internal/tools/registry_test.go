package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	r.MustRegister(NewReadTool(FSConfig{}))
	r.MustRegister(NewWriteTool())
	r.MustRegister(NewRemoveTool())
	r.MustRegister(NewCompletionTool())
	return r
}

func TestRegistryValidatesArguments(t *testing.T) {
	r := testRegistry(t)

	// Missing required "path".
	out := r.Execute(context.Background(), models.ToolCall{
		ID: "c1", Name: NameRead, Input: json.RawMessage(`{}`),
	})
	if !out.IsError || !strings.Contains(out.Text, "schema") {
		t.Errorf("schema violation must fail before execution, got %q", out.Text)
	}

	// Wrong type for "path".
	out = r.Execute(context.Background(), models.ToolCall{
		ID: "c2", Name: NameRead, Input: json.RawMessage(`{"path": 7}`),
	})
	if !out.IsError {
		t.Error("type mismatch must fail validation")
	}
}

func TestRegistryUnknownTool(t *testing.T) {
	r := testRegistry(t)
	out := r.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "nope", Input: json.RawMessage(`{}`)})
	if !out.IsError || !strings.Contains(out.Text, "not found") {
		t.Errorf("unknown tool output = %q", out.Text)
	}
}

func TestRegistryMalformedJSONArguments(t *testing.T) {
	r := testRegistry(t)
	out := r.Execute(context.Background(), models.ToolCall{ID: "c1", Name: NameRead, Input: json.RawMessage(`{"path":`)})
	if !out.IsError || !strings.Contains(out.Text, "JSON") {
		t.Errorf("malformed arguments output = %q", out.Text)
	}
}

type panickyTool struct{}

func (panickyTool) Name() string            { return "panicky" }
func (panickyTool) Description() string     { return "always panics" }
func (panickyTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (panickyTool) Execute(context.Context, json.RawMessage) (*Output, error) {
	panic("boom")
}

func TestRegistryRecoversPanic(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(panickyTool{})
	out := r.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "panicky", Input: json.RawMessage(`{}`)})
	if !out.IsError || !strings.Contains(out.Text, "panicked") {
		t.Errorf("panic must surface as an error output, got %q", out.Text)
	}
}

type slowTool struct{}

func (slowTool) Name() string            { return "slow" }
func (slowTool) Description() string     { return "sleeps" }
func (slowTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (slowTool) Execute(ctx context.Context, _ json.RawMessage) (*Output, error) {
	select {
	case <-time.After(5 * time.Second):
		return &Output{Text: "done"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry()
	r.Timeout = 30 * time.Millisecond
	r.MustRegister(slowTool{})

	out := r.Execute(context.Background(), models.ToolCall{ID: "c1", Name: "slow", Input: json.RawMessage(`{}`)})
	if !out.IsError || !strings.Contains(out.Text, "timed out") {
		t.Errorf("timeout output = %q", out.Text)
	}
}

func TestRegistryDefinitionsFilterAndOrder(t *testing.T) {
	r := testRegistry(t)

	defs := r.Definitions([]string{NameWrite, NameRead, "missing"})
	if len(defs) != 2 {
		t.Fatalf("definitions = %d, want 2", len(defs))
	}
	if defs[0].Name != NameWrite || defs[1].Name != NameRead {
		t.Errorf("inventory order not preserved: %v", []string{defs[0].Name, defs[1].Name})
	}

	all := r.Definitions(nil)
	if len(all) != 4 {
		t.Errorf("all definitions = %d, want 4", len(all))
	}
}

func TestResultEnvelope(t *testing.T) {
	call := models.ToolCall{ID: "call_7", Name: NameRead}
	res := Result(call, Errorf("no such file"))
	if res.ToolCallID != "call_7" || res.ToolName != NameRead {
		t.Errorf("envelope ids = %+v", res)
	}
	if !res.IsError {
		t.Error("error flag lost")
	}
	if !strings.Contains(res.Content, "<tool_call_error>no such file</tool_call_error>") {
		t.Errorf("error envelope missing: %q", res.Content)
	}
}

func TestShellCapturesStreamsAndExitCode(t *testing.T) {
	tool := NewShellTool(ShellConfig{})

	out, err := tool.Execute(context.Background(), mustJSON(t, map[string]any{
		"command": "echo out-line; echo err-line 1>&2",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if out.IsError {
		t.Fatalf("command failed: %s", out.Text)
	}
	if !strings.Contains(out.Text, "stdout:\nout-line") || !strings.Contains(out.Text, "stderr:\nerr-line") {
		t.Errorf("streams not captured separately:\n%s", out.Text)
	}

	out, _ = tool.Execute(context.Background(), mustJSON(t, map[string]any{"command": "exit 3"}))
	if !out.IsError || !strings.Contains(out.Text, "code 3") {
		t.Errorf("non-zero exit must be an error naming the code, got %q", out.Text)
	}
}

func TestShellTimeout(t *testing.T) {
	tool := NewShellTool(ShellConfig{Timeout: 50 * time.Millisecond})
	out, _ := tool.Execute(context.Background(), mustJSON(t, map[string]any{"command": "sleep 5"}))
	if !out.IsError || !strings.Contains(out.Text, "timed out") {
		t.Errorf("timeout output = %q", out.Text)
	}
}

func TestShellTruncatesLongOutput(t *testing.T) {
	tool := NewShellTool(ShellConfig{HeadLines: 5, TailLines: 3})
	out, _ := tool.Execute(context.Background(), mustJSON(t, map[string]any{
		"command": "seq 1 100",
	}))
	if out.IsError {
		t.Fatalf("command failed: %s", out.Text)
	}
	if out.TruncationFile == "" {
		t.Fatal("expected spill file for long output")
	}
	defer os.Remove(out.TruncationFile)
	if !strings.Contains(out.Text, "<truncated>") {
		t.Errorf("truncated marker missing:\n%s", out.Text)
	}
	if !strings.Contains(out.Text, "100") || !strings.Contains(out.Text, "1\n") {
		t.Error("head and tail must both survive truncation")
	}
}

func TestShellRejectsDestructiveCommands(t *testing.T) {
	tool := NewShellTool(ShellConfig{})
	out, _ := tool.Execute(context.Background(), mustJSON(t, map[string]any{"command": "rm -rf /"}))
	if !out.IsError || !strings.Contains(out.Text, "safety") {
		t.Errorf("destructive command must be rejected, got %q", out.Text)
	}
}

func TestFetchConvertsHTMLToMarkdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><script>evil()</script></head><body>
			<h1>Title</h1><p>Some <a href="https://example.com">link</a> text.</p>
			<ul><li>first</li><li>second</li></ul></body></html>`))
	}))
	defer server.Close()

	out, err := NewFetchTool(FetchConfig{}).Execute(context.Background(), mustJSON(t, map[string]any{"url": server.URL}))
	if err != nil {
		t.Fatal(err)
	}
	if out.IsError {
		t.Fatalf("fetch failed: %s", out.Text)
	}
	for _, want := range []string{"# Title", "[link](https://example.com)", "- first"} {
		if !strings.Contains(out.Text, want) {
			t.Errorf("markdown missing %q:\n%s", want, out.Text)
		}
	}
	if strings.Contains(out.Text, "evil()") {
		t.Error("script content must be stripped")
	}
}

func TestFetchTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("abcdefghij", 1000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(long))
	}))
	defer server.Close()

	out, err := NewFetchTool(FetchConfig{TruncationLimit: 100}).Execute(context.Background(), mustJSON(t, map[string]any{"url": server.URL}))
	if err != nil {
		t.Fatal(err)
	}
	if out.TruncationFile == "" {
		t.Fatal("expected spill file")
	}
	defer os.Remove(out.TruncationFile)
	if !strings.Contains(out.Text, "<truncation>") {
		t.Errorf("truncation tag missing: %q", out.Text[:200])
	}
}

func TestFetchRejectsNonHTTP(t *testing.T) {
	out, _ := NewFetchTool(FetchConfig{}).Execute(context.Background(), mustJSON(t, map[string]any{"url": "file:///etc/passwd"}))
	if !out.IsError {
		t.Error("non-http scheme must be rejected")
	}
}

type fakeSnapshots struct{ restored string }

func (f *fakeSnapshots) Restore(_ context.Context, path string) (int, error) {
	f.restored = path
	return 42, nil
}
func (f *fakeSnapshots) List(context.Context, string) ([]string, error) { return nil, nil }

func TestUndoRestoresFromSnapshot(t *testing.T) {
	snaps := &fakeSnapshots{}
	out, err := NewUndoTool(snaps).Execute(context.Background(), mustJSON(t, map[string]any{"path": "/work/f.go"}))
	if err != nil {
		t.Fatal(err)
	}
	if out.IsError {
		t.Fatalf("undo failed: %s", out.Text)
	}
	if snaps.restored != "/work/f.go" {
		t.Errorf("restored path = %q", snaps.restored)
	}
}

func TestFollowupAndCompletionParsing(t *testing.T) {
	q, err := ParseFollowup(json.RawMessage(`{"question":"Which DB?","options":["sqlite","postgres"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if q.Question != "Which DB?" || len(q.Options) != 2 {
		t.Errorf("parsed followup = %+v", q)
	}

	if got := ParseCompletionResult(json.RawMessage(`{"result":"all done"}`)); got != "all done" {
		t.Errorf("completion result = %q", got)
	}
}

func TestFrontMatterFieldOrder(t *testing.T) {
	fm := &FrontMatter{
		Path:       "/a/b.txt",
		Operation:  "CREATE",
		TotalChars: 10,
		StartLine:  1,
		EndLine:    2,
		TotalLines: 2,
	}
	want := "---\npath: /a/b.txt\noperation: CREATE\ntotal_chars: 10\nstart_line: 1\nend_line: 2\ntotal_lines: 2\n---\n"
	if got := fm.Render(); got != want {
		t.Errorf("front matter =\n%q\nwant\n%q", got, want)
	}
}
