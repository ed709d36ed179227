package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// FSConfig controls filesystem tool limits.
type FSConfig struct {
	// MaxFileSize is the largest file fs_read returns inline, in bytes.
	MaxFileSize int64
}

// DefaultMaxFileSize bounds inline reads when no limit is configured.
const DefaultMaxFileSize = 256 * 1024

func (c FSConfig) maxFileSize() int64 {
	if c.MaxFileSize <= 0 {
		return DefaultMaxFileSize
	}
	return c.MaxFileSize
}

// ReadTool reads text files, whole or by line range.
type ReadTool struct {
	cfg FSConfig
}

// NewReadTool creates the fs_read tool.
func NewReadTool(cfg FSConfig) *ReadTool { return &ReadTool{cfg: cfg} }

type readInput struct {
	Path      string `json:"path" jsonschema:"required,description=Absolute path of the file to read."`
	StartLine int    `json:"start_line,omitempty" jsonschema:"minimum=1,description=First line of a ranged read (1-based)."`
	EndLine   int    `json:"end_line,omitempty" jsonschema:"minimum=1,description=Last line of a ranged read (inclusive)."`
}

func (t *ReadTool) Name() string { return NameRead }

func (t *ReadTool) Description() string {
	return "Read a text file from an absolute path, optionally limited to a line range."
}

func (t *ReadTool) Schema() json.RawMessage { return schemaFor(&readInput{}) }

func (t *ReadTool) Execute(ctx context.Context, params json.RawMessage) (*Output, error) {
	var input readInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	path, errOut := requireAbsolutePath(input.Path)
	if errOut != nil {
		return errOut, nil
	}
	if input.EndLine > 0 && input.StartLine > input.EndLine {
		return Errorf("start_line %d is after end_line %d", input.StartLine, input.EndLine), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return Errorf("stat %s: %v", path, err), nil
	}
	if info.IsDir() {
		return Errorf("%s is a directory", path), nil
	}

	if input.StartLine > 0 || input.EndLine > 0 {
		return t.readRange(ctx, path, input.StartLine, input.EndLine)
	}

	if info.Size() > t.cfg.maxFileSize() {
		return Errorf("%s is %d bytes, larger than the %d byte limit; use start_line/end_line to read a range",
			path, info.Size(), t.cfg.maxFileSize()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("read %s: %v", path, err), nil
	}
	if !isLikelyText(data) {
		return Errorf("%s is binary; use %s for images", path, NameReadImage), nil
	}
	content := string(data)
	return &Output{
		Text: content,
		FrontMatter: &FrontMatter{
			Path:       path,
			TotalChars: len(content),
			TotalLines: countLines(content),
		},
	}, nil
}

// readRange streams the file line by line so ranged reads of large files
// stay within memory bounds, and reports the file's total line count.
func (t *ReadTool) readRange(ctx context.Context, path string, start, end int) (*Output, error) {
	f, err := os.Open(path)
	if err != nil {
		return Errorf("open %s: %v", path, err), nil
	}
	defer f.Close()

	if start <= 0 {
		start = 1
	}

	var b strings.Builder
	lineNo := 0
	lastIncluded := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++
		if lineNo < start {
			continue
		}
		if end > 0 && lineNo > end {
			// Keep scanning to report total_lines, but stop collecting.
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(scanner.Text())
		lastIncluded = lineNo
	}
	if err := scanner.Err(); err != nil {
		return Errorf("read %s: %v", path, err), nil
	}
	if lastIncluded == 0 {
		return Errorf("%s has %d lines, range starts at %d", path, lineNo, start), nil
	}

	content := b.String()
	return &Output{
		Text: content,
		FrontMatter: &FrontMatter{
			Path:       path,
			TotalChars: len(content),
			StartLine:  start,
			EndLine:    lastIncluded,
			TotalLines: lineNo,
		},
	}, nil
}

// imageMimeTypes is the closed set of binary formats fs_read_image serves.
var imageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".gif":  "image/gif",
}

// ReadImageTool reads image files for vision-capable models.
type ReadImageTool struct {
	cfg FSConfig
}

// NewReadImageTool creates the fs_read_image tool.
func NewReadImageTool(cfg FSConfig) *ReadImageTool { return &ReadImageTool{cfg: cfg} }

type readImageInput struct {
	Path string `json:"path" jsonschema:"required,description=Absolute path of the image (jpg/png/webp/gif)."`
}

func (t *ReadImageTool) Name() string { return NameReadImage }

func (t *ReadImageTool) Description() string {
	return "Read an image file (jpg, png, webp, gif) so the model can see it."
}

func (t *ReadImageTool) Schema() json.RawMessage { return schemaFor(&readImageInput{}) }

func (t *ReadImageTool) Execute(_ context.Context, params json.RawMessage) (*Output, error) {
	var input readImageInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	path, errOut := requireAbsolutePath(input.Path)
	if errOut != nil {
		return errOut, nil
	}

	mimeType, ok := imageMimeTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Errorf("unsupported image format %q; supported: jpg, png, webp, gif", filepath.Ext(path)), nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return Errorf("stat %s: %v", path, err), nil
	}
	if info.Size() > t.cfg.maxFileSize() {
		return Errorf("%s is %d bytes, larger than the %d byte limit", path, info.Size(), t.cfg.maxFileSize()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Errorf("read %s: %v", path, err), nil
	}
	return &Output{
		Text:        fmt.Sprintf("read image %s (%d bytes)", path, len(data)),
		FrontMatter: &FrontMatter{Path: path},
		Images:      []ImageOutput{{MimeType: mimeType, Data: data}},
	}, nil
}

// WriteTool creates or overwrites files.
type WriteTool struct{}

// NewWriteTool creates the fs_write tool.
func NewWriteTool() *WriteTool { return &WriteTool{} }

type writeInput struct {
	Path      string `json:"path" jsonschema:"required,description=Absolute path to write."`
	Content   string `json:"content" jsonschema:"required,description=Full file contents."`
	Overwrite bool   `json:"overwrite,omitempty" jsonschema:"description=Allow replacing an existing file."`
}

func (t *WriteTool) Name() string { return NameWrite }

func (t *WriteTool) Description() string {
	return "Write a file at an absolute path, creating parent directories. Refuses to replace an existing file unless overwrite is set."
}

func (t *WriteTool) Schema() json.RawMessage { return schemaFor(&writeInput{}) }

func (t *WriteTool) Execute(_ context.Context, params json.RawMessage) (*Output, error) {
	var input writeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	path, errOut := requireAbsolutePath(input.Path)
	if errOut != nil {
		return errOut, nil
	}

	operation := "CREATE"
	if existing, err := os.ReadFile(path); err == nil {
		if !input.Overwrite {
			// The current content rides in the error so the model can
			// decide whether replacing it is actually what it wants.
			preview := string(existing)
			if len(preview) > 4000 {
				preview = preview[:4000] + "\n" + truncatedTag("existing content truncated")
			}
			return Errorf("%s already exists; pass overwrite=true to replace it. Current content:\n%s", path, preview), nil
		}
		operation = "OVERWRITE"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Errorf("create parent directories for %s: %v", path, err), nil
	}
	if err := atomicWrite(path, []byte(input.Content)); err != nil {
		return Errorf("write %s: %v", path, err), nil
	}

	out := &Output{
		Text: fmt.Sprintf("wrote %d chars", len(input.Content)),
		FrontMatter: &FrontMatter{
			Path:       path,
			Operation:  operation,
			TotalChars: len(input.Content),
			TotalLines: countLines(input.Content),
		},
	}
	if warning := syntaxWarning(path, input.Content); warning != "" {
		out.Text += "\n" + warning
	}
	return out, nil
}

// atomicWrite writes through a temp file in the target directory and
// renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// syntaxWarning validates recognized formats and returns a warning line.
// The write has already happened; a warning never blocks it.
func syntaxWarning(path, content string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if !json.Valid([]byte(content)) {
			return "warning: content is not valid JSON"
		}
	case ".yaml", ".yml":
		var probe any
		if err := yaml.Unmarshal([]byte(content), &probe); err != nil {
			return fmt.Sprintf("warning: content is not valid YAML: %v", err)
		}
	}
	return ""
}

// RemoveTool deletes files, idempotently.
type RemoveTool struct{}

// NewRemoveTool creates the fs_remove tool.
func NewRemoveTool() *RemoveTool { return &RemoveTool{} }

type removeInput struct {
	Path string `json:"path" jsonschema:"required,description=Absolute path of the file to remove."`
}

func (t *RemoveTool) Name() string { return NameRemove }

func (t *RemoveTool) Description() string {
	return "Remove a file at an absolute path. Succeeds whether or not the file exists."
}

func (t *RemoveTool) Schema() json.RawMessage { return schemaFor(&removeInput{}) }

func (t *RemoveTool) Execute(_ context.Context, params json.RawMessage) (*Output, error) {
	var input removeInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	path, errOut := requireAbsolutePath(input.Path)
	if errOut != nil {
		return errOut, nil
	}
	err := os.Remove(path)
	switch {
	case err == nil:
		return &Output{Text: "removed", FrontMatter: &FrontMatter{Path: path}}, nil
	case os.IsNotExist(err):
		return &Output{Text: "already absent", FrontMatter: &FrontMatter{Path: path}}, nil
	default:
		return Errorf("remove %s: %v", path, err), nil
	}
}

// isLikelyText rejects payloads with NUL bytes in their head, the cheap
// binary heuristic.
func isLikelyText(data []byte) bool {
	probe := data
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	for _, b := range probe {
		if b == 0 {
			return false
		}
	}
	return true
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
