package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// SearchConfig bounds fs_search output.
type SearchConfig struct {
	// MaxLines caps the inline match lines; the full result spills to a
	// temp file beyond it.
	MaxLines int
}

// DefaultMaxSearchLines bounds inline search output when unconfigured.
const DefaultMaxSearchLines = 200

func (c SearchConfig) maxLines() int {
	if c.MaxLines <= 0 {
		return DefaultMaxSearchLines
	}
	return c.MaxLines
}

// SearchTool greps a directory tree with a regular expression.
type SearchTool struct {
	cfg SearchConfig
}

// NewSearchTool creates the fs_search tool.
func NewSearchTool(cfg SearchConfig) *SearchTool { return &SearchTool{cfg: cfg} }

type searchInput struct {
	Path    string `json:"path" jsonschema:"required,description=Absolute directory (or file) to search."`
	Pattern string `json:"pattern" jsonschema:"required,description=Regular expression to match against file lines."`
	Glob    string `json:"glob,omitempty" jsonschema:"description=Optional file glob filter such as *.go."`
}

func (t *SearchTool) Name() string { return NameSearch }

func (t *SearchTool) Description() string {
	return "Search files under a directory for a regular expression, with an optional filename glob filter."
}

func (t *SearchTool) Schema() json.RawMessage { return schemaFor(&searchInput{}) }

func (t *SearchTool) Execute(ctx context.Context, params json.RawMessage) (*Output, error) {
	var input searchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	root, errOut := requireAbsolutePath(input.Path)
	if errOut != nil {
		return errOut, nil
	}
	re, err := regexp.Compile(input.Pattern)
	if err != nil {
		return Errorf("invalid pattern: %v", err), nil
	}

	var lines []string
	matchCount := 0
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if input.Glob != "" {
			if ok, _ := filepath.Match(input.Glob, d.Name()); !ok {
				return nil
			}
		}
		fileMatches, err := grepFile(path, re)
		if err != nil {
			return nil
		}
		matchCount += len(fileMatches)
		lines = append(lines, fileMatches...)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	if matchCount == 0 {
		return &Output{Text: fmt.Sprintf("no matches for %q under %s", input.Pattern, root)}, nil
	}

	full := strings.Join(lines, "\n")
	out := &Output{
		FrontMatter: &FrontMatter{
			Path:  root,
			Extra: [][2]string{{"matches", fmt.Sprintf("%d", matchCount)}},
		},
	}
	if len(lines) > t.cfg.maxLines() {
		spill, err := spillToTempFile("fs-search", full)
		if err != nil {
			return Errorf("spill search results: %v", err), nil
		}
		out.Text = strings.Join(lines[:t.cfg.maxLines()], "\n") + "\n" + truncationTag(spill)
		out.TruncationFile = spill
	} else {
		out.Text = full
	}
	return out, nil
}

// grepFile returns "path:lineno:line" entries for matching lines. Binary
// files are skipped on the first NUL byte.
func grepFile(path string, re *regexp.Regexp) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.IndexByte(line, 0) >= 0 {
			return nil, nil
		}
		if re.MatchString(line) {
			matches = append(matches, fmt.Sprintf("%s:%d:%s", path, lineNo, line))
		}
	}
	return matches, scanner.Err()
}
