package providers

import "github.com/haasonsaas/nexus-coreagent/pkg/models"

// ContextTransformer rewrites a request context before encoding. Transformers
// operate on a clone of the orchestrator's context; they may mutate messages
// freely.
type ContextTransformer interface {
	Transform(reqCtx *models.Context) *models.Context
}

// ApplyTransforms clones reqCtx and runs the given transformers in order.
// Every adapter calls this before serialization.
func ApplyTransforms(reqCtx *models.Context, transformers ...ContextTransformer) *models.Context {
	out := reqCtx.Clone()
	for _, t := range transformers {
		if t != nil {
			out = t.Transform(out)
		}
	}
	return out
}

// DropReasoningDetailsFromOtherModels deletes reasoning details emitted
// before the current model took over the conversation. Models reject
// reasoning blocks signed by other models, so on a model switch everything
// before the switch boundary must be scrubbed.
//
// The boundary is the last user message tagged with the current model id;
// reasoning on every message before it is dropped. With no tagged message
// the whole history is treated as foreign and scrubbed.
type DropReasoningDetailsFromOtherModels struct {
	Model string
}

// Transform implements ContextTransformer.
func (t DropReasoningDetailsFromOtherModels) Transform(reqCtx *models.Context) *models.Context {
	boundary := -1
	for i := len(reqCtx.Messages) - 1; i >= 0; i-- {
		m := reqCtx.Messages[i]
		if m.Role == models.RoleUser && m.ModelID == t.Model {
			boundary = i
			break
		}
	}
	end := boundary
	if end == -1 {
		end = len(reqCtx.Messages)
	}
	for i := 0; i < end; i++ {
		reqCtx.Messages[i].ReasoningDetails = nil
	}
	return reqCtx
}

// StripReasoningDetails removes every reasoning block, for models that do
// not support extended thinking at all.
type StripReasoningDetails struct{}

// Transform implements ContextTransformer.
func (StripReasoningDetails) Transform(reqCtx *models.Context) *models.Context {
	for i := range reqCtx.Messages {
		reqCtx.Messages[i].ReasoningDetails = nil
	}
	return reqCtx
}

// DropOrphanToolResults removes tool-result messages whose call id does not
// appear in any preceding assistant message, which a misbehaving provider
// can hand back in history. Orphaned results are never produced locally;
// recovery is to discard them before encoding.
type DropOrphanToolResults struct{}

// Transform implements ContextTransformer.
func (DropOrphanToolResults) Transform(reqCtx *models.Context) *models.Context {
	known := make(map[string]bool)
	out := reqCtx.Messages[:0]
	for _, m := range reqCtx.Messages {
		for _, call := range m.ToolCalls {
			known[call.ID] = true
		}
		if m.Role == models.RoleTool {
			kept := m.ToolResults[:0:0]
			for _, tr := range m.ToolResults {
				if known[tr.ToolCallID] {
					kept = append(kept, tr)
				}
			}
			if len(kept) == 0 {
				continue
			}
			m.ToolResults = kept
		}
		out = append(out, m)
	}
	reqCtx.Messages = out
	return reqCtx
}

// standardTransforms is the pipeline every adapter runs before encoding:
// model-switch reasoning hygiene, orphan-result cleanup, and, when the
// model has no reasoning support, a full reasoning strip.
func standardTransforms(reqCtx *models.Context, supportsReasoning bool) *models.Context {
	transformers := []ContextTransformer{
		DropOrphanToolResults{},
		DropReasoningDetailsFromOtherModels{Model: reqCtx.Model},
	}
	if !supportsReasoning {
		transformers = append(transformers, StripReasoningDetails{})
	}
	return ApplyTransforms(reqCtx, transformers...)
}
