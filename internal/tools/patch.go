package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// PatchTool edits a file by exact search-and-replace and reports the change
// as a unified diff.
type PatchTool struct{}

// NewPatchTool creates the fs_patch tool.
func NewPatchTool() *PatchTool { return &PatchTool{} }

type patchInput struct {
	Path       string `json:"path" jsonschema:"required,description=Absolute path of the file to edit."`
	OldString  string `json:"old_string" jsonschema:"required,description=Exact text to replace. Must appear in the file."`
	NewString  string `json:"new_string" jsonschema:"required,description=Replacement text."`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence instead of requiring a unique match."`
}

func (t *PatchTool) Name() string { return NamePatch }

func (t *PatchTool) Description() string {
	return "Edit a file by replacing an exact text match; returns the unified diff of the change."
}

func (t *PatchTool) Schema() json.RawMessage { return schemaFor(&patchInput{}) }

func (t *PatchTool) Execute(_ context.Context, params json.RawMessage) (*Output, error) {
	var input patchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	path, errOut := requireAbsolutePath(input.Path)
	if errOut != nil {
		return errOut, nil
	}
	if input.OldString == "" {
		return Errorf("old_string is required"), nil
	}
	if input.OldString == input.NewString {
		return Errorf("old_string and new_string are identical"), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("read %s: %v", path, err), nil
	}
	before := string(data)

	count := strings.Count(before, input.OldString)
	switch {
	case count == 0:
		return Errorf("old_string not found in %s", path), nil
	case count > 1 && !input.ReplaceAll:
		return Errorf("old_string appears %d times in %s; pass replace_all or make the match unique", count, path), nil
	}

	var after string
	if input.ReplaceAll {
		after = strings.ReplaceAll(before, input.OldString, input.NewString)
	} else {
		after = strings.Replace(before, input.OldString, input.NewString, 1)
	}

	if err := atomicWrite(path, []byte(after)); err != nil {
		return Errorf("write %s: %v", path, err), nil
	}

	diff := stripANSI(unifiedDiff(path, before, after))
	return &Output{
		Text: diff,
		FrontMatter: &FrontMatter{
			Path:       path,
			TotalChars: len(after),
			TotalLines: countLines(after),
		},
	}, nil
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// stripANSI removes terminal color codes so the diff stays model-parseable.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}

// unifiedDiff renders a single-hunk unified diff of the changed region,
// with up to three lines of context on each side.
func unifiedDiff(path, before, after string) string {
	a := strings.Split(before, "\n")
	b := strings.Split(after, "\n")

	// Common prefix/suffix bound the changed region.
	prefix := 0
	for prefix < len(a) && prefix < len(b) && a[prefix] == b[prefix] {
		prefix++
	}
	suffix := 0
	for suffix < len(a)-prefix && suffix < len(b)-prefix && a[len(a)-1-suffix] == b[len(b)-1-suffix] {
		suffix++
	}

	const contextLines = 3
	ctxStart := prefix - contextLines
	if ctxStart < 0 {
		ctxStart = 0
	}
	aEnd := len(a) - suffix
	bEnd := len(b) - suffix
	ctxEndA := aEnd + contextLines
	if ctxEndA > len(a) {
		ctxEndA = len(a)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "--- %s\n+++ %s\n", path, path)
	fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@\n",
		ctxStart+1, ctxEndA-ctxStart,
		ctxStart+1, (bEnd+ctxEndA-aEnd)-ctxStart)

	for i := ctxStart; i < prefix; i++ {
		out.WriteString(" " + a[i] + "\n")
	}
	for i := prefix; i < aEnd; i++ {
		out.WriteString("-" + a[i] + "\n")
	}
	for i := prefix; i < bEnd; i++ {
		out.WriteString("+" + b[i] + "\n")
	}
	for i := aEnd; i < ctxEndA; i++ {
		out.WriteString(" " + a[i] + "\n")
	}
	return out.String()
}
