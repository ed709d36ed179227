package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// printer renders turn notifications as a human-readable transcript. On a
// TTY the width clips retry-reason and error lines; piped output is left
// unclipped.
type printer struct {
	mu    sync.Mutex
	out   io.Writer
	width int

	// inMessage tracks whether the last write was a streaming delta, so
	// structural lines can break out of it cleanly.
	inMessage bool
}

func newPrinter(out io.Writer) *printer {
	p := &printer{out: out, width: 0}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil {
			p.width = w
		}
	}
	return p
}

func (p *printer) print(_ context.Context, n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch n.Type {
	case models.NotificationTaskMessage:
		fmt.Fprint(p.out, n.Message.Delta)
		p.inMessage = true
	case models.NotificationTaskReasoning:
		// Reasoning streams as plain text, with no styling or marker, to
		// stay pipe-safe.
		fmt.Fprint(p.out, n.Message.Delta)
		p.inMessage = true
	case models.NotificationToolCallStart:
		p.breakLine()
		fmt.Fprintf(p.out, "→ %s (%s)\n", n.ToolCall.ToolName, n.ToolCall.ToolCallID)
	case models.NotificationToolCallEnd:
		status := "ok"
		if n.ToolCall.Skipped {
			status = "skipped"
		} else if n.ToolCall.IsError {
			status = "error"
		}
		fmt.Fprintf(p.out, "← %s %s\n", n.ToolCall.ToolName, status)
	case models.NotificationRetryAttempt:
		p.breakLine()
		fmt.Fprintf(p.out, "retrying (%d/%d): %s\n", n.Retry.Attempt, n.Retry.Max, p.clip(n.Retry.Reason))
	case models.NotificationFollowup:
		p.breakLine()
		fmt.Fprintf(p.out, "? %s\n", n.Followup.Question)
		for _, opt := range n.Followup.Options {
			fmt.Fprintf(p.out, "  - %s\n", opt)
		}
	case models.NotificationCompaction:
		p.breakLine()
		fmt.Fprintf(p.out, "(compacted %d messages, %d kept)\n", n.Compaction.MessagesEvicted, n.Compaction.MessagesKept)
	case models.NotificationJobUpdate:
		p.breakLine()
		fmt.Fprintf(p.out, "job %s %s: %s\n", n.Job.JobID, n.Job.ToolName, n.Job.Status)
	case models.NotificationTaskComplete:
		p.breakLine()
		u := n.Completion.Usage
		fmt.Fprintf(p.out, "done (%d turns, %d tokens)\n", n.Completion.Turns, u.TotalTokens)
	case models.NotificationTaskError:
		p.breakLine()
		fmt.Fprintf(p.out, "error: %s\n", p.clip(n.Error.Message))
	}
}

func (p *printer) breakLine() {
	if p.inMessage {
		fmt.Fprintln(p.out)
		p.inMessage = false
	}
}

// clip bounds one-line detail to the terminal width.
func (p *printer) clip(s string) string {
	if p.width <= 10 || len(s) <= p.width-10 {
		return s
	}
	return s[:p.width-10] + "…"
}
