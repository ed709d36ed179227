package agent

import (
	"context"
	"path"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// Approver decides whether a gated tool call may run. Implementations
// typically prompt the user; the decision is made before execution, after
// the doom-loop check.
type Approver interface {
	Approve(ctx context.Context, call models.ToolCall) (bool, error)
}

// ApproverFunc adapts a function into an Approver.
type ApproverFunc func(ctx context.Context, call models.ToolCall) (bool, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, call models.ToolCall) (bool, error) {
	return f(ctx, call)
}

// ApprovalPolicy gates tool names behind an Approver. Patterns use
// path.Match syntax ("shell", "fs_*", "mcp_*").
type ApprovalPolicy struct {
	// Require lists tool-name patterns that need approval before running.
	Require []string

	// Approver makes the decision for gated calls. A nil Approver denies
	// every gated call.
	Approver Approver
}

// Requires reports whether the tool name matches any gated pattern.
func (p *ApprovalPolicy) Requires(name string) bool {
	if p == nil {
		return false
	}
	for _, pattern := range p.Require {
		if ok, _ := path.Match(pattern, name); ok {
			return true
		}
		if pattern == name {
			return true
		}
	}
	return false
}

// Check runs the policy for one call: (approved, gated, err). Calls not
// matching any pattern are approved without consulting the Approver.
func (p *ApprovalPolicy) Check(ctx context.Context, call models.ToolCall) (bool, bool, error) {
	if !p.Requires(call.Name) {
		return true, false, nil
	}
	if p.Approver == nil {
		return false, true, nil
	}
	ok, err := p.Approver.Approve(ctx, call)
	return ok, true, err
}
