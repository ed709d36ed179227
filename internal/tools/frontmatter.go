package tools

import (
	"fmt"
	"os"
	"strings"
)

// FrontMatter is the positional metadata header tool outputs carry so the
// model can parse path, ranges, and sizes reliably. Field order is part of
// the textual contract.
type FrontMatter struct {
	Path       string
	Operation  string
	TotalChars int
	StartLine  int
	EndLine    int
	TotalLines int

	// Extra appends free-form key/value pairs after the standard fields,
	// in insertion order.
	Extra [][2]string
}

// Render produces the header block:
//
//	---
//	path: /abs/path
//	operation: CREATE
//	total_chars: 42
//	---
//
// Zero-valued standard fields are omitted.
func (f *FrontMatter) Render() string {
	var b strings.Builder
	b.WriteString("---\n")
	if f.Path != "" {
		fmt.Fprintf(&b, "path: %s\n", f.Path)
	}
	if f.Operation != "" {
		fmt.Fprintf(&b, "operation: %s\n", f.Operation)
	}
	if f.TotalChars > 0 {
		fmt.Fprintf(&b, "total_chars: %d\n", f.TotalChars)
	}
	if f.StartLine > 0 {
		fmt.Fprintf(&b, "start_line: %d\n", f.StartLine)
	}
	if f.EndLine > 0 {
		fmt.Fprintf(&b, "end_line: %d\n", f.EndLine)
	}
	if f.TotalLines > 0 {
		fmt.Fprintf(&b, "total_lines: %d\n", f.TotalLines)
	}
	for _, kv := range f.Extra {
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}
	b.WriteString("---\n")
	return b.String()
}

// truncationTag renders the literal marker the model is trained against
// when output was cut and the remainder spilled to a file.
func truncationTag(spillPath string) string {
	return fmt.Sprintf("<truncation>...remaining content can be read from path:%s</truncation>", spillPath)
}

// truncatedTag renders the inline marker for output cut without a spill
// file.
func truncatedTag(detail string) string {
	return fmt.Sprintf("<truncated>%s</truncated>", detail)
}

// spillToTempFile writes full content to a temp file and returns its path.
// Used when a tool's inline output hits its truncation limit.
func spillToTempFile(prefix, content string) (string, error) {
	f, err := os.CreateTemp("", prefix+"-*.txt")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// truncateHeadTail keeps the first head and last tail lines of content,
// replacing the middle with the truncated marker. Returns the content
// unchanged when it fits.
func truncateHeadTail(content string, head, tail int) (string, bool) {
	lines := strings.Split(content, "\n")
	if len(lines) <= head+tail {
		return content, false
	}
	omitted := len(lines) - head - tail
	var b strings.Builder
	b.WriteString(strings.Join(lines[:head], "\n"))
	b.WriteString("\n")
	b.WriteString(truncatedTag(fmt.Sprintf("%d lines omitted", omitted)))
	b.WriteString("\n")
	b.WriteString(strings.Join(lines[len(lines)-tail:], "\n"))
	return b.String(), true
}
