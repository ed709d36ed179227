package tools

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// FetchConfig bounds the fetch tool.
type FetchConfig struct {
	// TruncationLimit caps the returned characters; longer content spills
	// to a temp file.
	TruncationLimit int

	// Timeout caps the whole request.
	Timeout time.Duration

	// MaxBodyBytes caps how much of the response body is read.
	MaxBodyBytes int64

	// Client overrides the HTTP client (tests).
	Client *http.Client
}

const (
	defaultFetchLimit     = 40000
	defaultFetchTimeout   = 30 * time.Second
	defaultFetchBodyBytes = 4 * 1024 * 1024
)

// FetchTool retrieves a URL and converts HTML responses to Markdown.
type FetchTool struct {
	cfg      FetchConfig
	client   *http.Client
	renderer Renderer
}

// NewFetchTool creates the fetch tool.
func NewFetchTool(cfg FetchConfig) *FetchTool {
	if cfg.TruncationLimit <= 0 {
		cfg.TruncationLimit = defaultFetchLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultFetchBodyBytes
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &FetchTool{cfg: cfg, client: client}
}

type fetchInput struct {
	URL string `json:"url" jsonschema:"required,description=HTTP or HTTPS URL to fetch."`
}

func (t *FetchTool) Name() string { return NameFetch }

func (t *FetchTool) Description() string {
	return "Fetch a URL with HTTP GET. HTML responses are converted to Markdown; long content is truncated."
}

func (t *FetchTool) Schema() json.RawMessage { return schemaFor(&fetchInput{}) }

func (t *FetchTool) Execute(ctx context.Context, params json.RawMessage) (*Output, error) {
	var input fetchInput
	if err := json.Unmarshal(params, &input); err != nil {
		return Errorf("invalid parameters: %v", err), nil
	}
	target, err := url.Parse(strings.TrimSpace(input.URL))
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") {
		return Errorf("url must be http or https, got %q", input.URL), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return Errorf("build request: %v", err), nil
	}
	req.Header.Set("Accept", "text/html, text/plain, application/json;q=0.9, */*;q=0.5")

	resp, err := t.client.Do(req)
	if err != nil {
		return Errorf("fetch %s: %v", target, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Errorf("fetch %s: HTTP %d", target, resp.StatusCode), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.cfg.MaxBodyBytes))
	if err != nil {
		return Errorf("read response from %s: %v", target, err), nil
	}

	contentType := resp.Header.Get("Content-Type")
	content := string(body)
	if strings.Contains(contentType, "text/html") || looksLikeHTML(content) {
		converted := htmlToMarkdown(content)
		content = t.maybeRender(ctx, target.String(), string(body), converted)
	}

	out := &Output{FrontMatter: &FrontMatter{Extra: [][2]string{
		{"url", target.String()},
		{"content_type", contentType},
	}}}
	if len(content) > t.cfg.TruncationLimit {
		spill, err := spillToTempFile("fetch", content)
		if err != nil {
			return Errorf("spill fetched content: %v", err), nil
		}
		out.Text = content[:t.cfg.TruncationLimit] + "\n" + truncationTag(spill)
		out.TruncationFile = spill
	} else {
		out.Text = content
	}
	out.FrontMatter.TotalChars = len(content)
	return out, nil
}

func looksLikeHTML(content string) bool {
	head := strings.ToLower(content)
	if len(head) > 512 {
		head = head[:512]
	}
	return strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html")
}

var (
	reScript   = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	reStyle    = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	reComment  = regexp.MustCompile(`(?s)<!--.*?-->`)
	reHeading  = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	reAnchor   = regexp.MustCompile(`(?is)<a[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	reListItem = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	reBreak    = regexp.MustCompile(`(?i)<(?:br|/p|/div|/tr)[^>]*>`)
	reTag      = regexp.MustCompile(`(?s)<[^>]+>`)
	reBlank    = regexp.MustCompile(`\n{3,}`)
)

// htmlToMarkdown is a dependency-free readable-content conversion: strips
// scripts and styles, rewrites headings, links, and list items, drops the
// remaining tags, and collapses whitespace.
func htmlToMarkdown(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")

	s = reHeading.ReplaceAllStringFunc(s, func(m string) string {
		groups := reHeading.FindStringSubmatch(m)
		level := int(groups[1][0] - '0')
		return "\n" + strings.Repeat("#", level) + " " + strings.TrimSpace(reTag.ReplaceAllString(groups[2], "")) + "\n"
	})
	s = reAnchor.ReplaceAllString(s, "[$2]($1)")
	s = reListItem.ReplaceAllString(s, "\n- $1")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reTag.ReplaceAllString(s, "")

	s = decodeEntities(s)
	s = reBlank.ReplaceAllString(s, "\n\n")

	var lines []string
	for _, line := range strings.Split(s, "\n") {
		lines = append(lines, strings.TrimRight(line, " \t"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

func decodeEntities(s string) string {
	return entityReplacer.Replace(s)
}
