package tools

import (
	"context"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// Renderer produces the post-JavaScript HTML of a page, for sites that
// serve an empty shell to plain HTTP clients.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// ChromeRenderer renders pages through a headless Chrome reachable at a
// DevTools debug URL.
type ChromeRenderer struct {
	// DebugURL is the DevTools endpoint, e.g. http://localhost:9222.
	DebugURL string

	// Timeout caps one render.
	Timeout time.Duration
}

// Render implements Renderer.
func (r *ChromeRenderer) Render(ctx context.Context, url string) (string, error) {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, r.DebugURL)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	runCtx, runCancel := context.WithTimeout(taskCtx, timeout)
	defer runCancel()

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(url),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

// WithRenderer attaches a JS-render fallback to the fetch tool. When a
// fetched HTML page converts to almost no text, the page is re-rendered
// through the Renderer before conversion.
func (t *FetchTool) WithRenderer(r Renderer) *FetchTool {
	t.renderer = r
	return t
}

// renderThreshold is the extracted-text length below which an HTML page is
// treated as a JavaScript shell worth re-rendering.
const renderThreshold = 200

// maybeRender re-renders url when the plain fetch extracted almost nothing
// from a substantial HTML payload.
func (t *FetchTool) maybeRender(ctx context.Context, url, rawHTML, extracted string) string {
	if t.renderer == nil {
		return extracted
	}
	if len(strings.TrimSpace(extracted)) >= renderThreshold || len(rawHTML) < renderThreshold*4 {
		return extracted
	}
	rendered, err := t.renderer.Render(ctx, url)
	if err != nil {
		return extracted
	}
	if converted := htmlToMarkdown(rendered); len(strings.TrimSpace(converted)) > len(strings.TrimSpace(extracted)) {
		return converted
	}
	return extracted
}
