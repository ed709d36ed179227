// Package agent implements the conversation execution engine: the per-turn
// state machine that renders a request context, streams the provider's
// response, materializes and executes tool calls with doom-loop and
// failure-budget guard rails, and surfaces typed notifications to the UI.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	agentctx "github.com/haasonsaas/nexus-coreagent/internal/agent/context"
	"github.com/haasonsaas/nexus-coreagent/internal/agent/providers"
	"github.com/haasonsaas/nexus-coreagent/internal/agent/stream"
	"github.com/haasonsaas/nexus-coreagent/internal/retry"
	"github.com/haasonsaas/nexus-coreagent/internal/tools"
	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// Config bounds one turn loop.
type Config struct {
	// MaxTurns caps provider round-trips per Run.
	MaxTurns int

	// MaxRetryAttempts caps provider attempts per request, the first one
	// included; retriable errors and empty responses each use up an attempt.
	MaxRetryAttempts int

	// MaxToolFailuresPerTurn ends the run once one tool fails this many
	// times consecutively. Zero disables the budget.
	MaxToolFailuresPerTurn int

	// DoomLoopThreshold trips the repeated-identical-call detector.
	// Zero uses the default.
	DoomLoopThreshold int

	// ToolParallelism bounds concurrent tool executions within one
	// assistant message. Results are re-ordered to emission order before
	// appending.
	ToolParallelism int

	// Compaction configures the context compactor windows. Zero windows
	// disable compaction.
	Compaction agentctx.CompactionWindows

	// AsyncTools lists tool-name patterns executed as detached jobs.
	AsyncTools []string

	// Retry shapes the delays between provider retries.
	Retry retry.Policy
}

// DefaultConfig returns the stock loop limits.
func DefaultConfig() Config {
	return Config{
		MaxTurns:         30,
		MaxRetryAttempts: 3,
		ToolParallelism:  4,
		Retry:            retry.Default(),
	}
}

func (c Config) sanitized() Config {
	d := DefaultConfig()
	if c.MaxTurns <= 0 {
		c.MaxTurns = d.MaxTurns
	}
	if c.MaxRetryAttempts <= 0 {
		c.MaxRetryAttempts = d.MaxRetryAttempts
	}
	if c.ToolParallelism <= 0 {
		c.ToolParallelism = d.ToolParallelism
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry = d.Retry
	}
	return c
}

// Options wires a Loop's collaborators. Provider is required; a nil Tools
// becomes an empty registry, and everything else degrades gracefully when
// nil.
type Options struct {
	Provider      providers.Provider
	Tools         *tools.Registry
	Conversations ConversationService
	Jobs          JobStore
	Sink          NotificationSink
	Approval      *ApprovalPolicy
	Steering      *SteeringQueue
	Renderer      agentctx.SummaryRenderer
	Metrics       *Metrics
	Logger        *slog.Logger
	Tracer        trace.Tracer
	Config        Config
}

// Loop drives conversations: request, stream, dispatch tools, repeat.
// One Loop instance may serve many conversations, but a single conversation
// must only ever be driven by one Run at a time.
type Loop struct {
	provider      providers.Provider
	tools         *tools.Registry
	conversations ConversationService
	jobs          JobStore
	sink          NotificationSink
	approval      *ApprovalPolicy
	steering      *SteeringQueue
	compactor     *agentctx.Compactor
	detector      *DoomLoopDetector
	metrics       *Metrics
	logger        *slog.Logger
	tracer        trace.Tracer
	cfg           Config
}

// NewLoop builds the orchestrator.
func NewLoop(opts Options) (*Loop, error) {
	if opts.Provider == nil {
		return nil, ErrNoProvider
	}
	if opts.Tools == nil {
		opts.Tools = tools.NewRegistry()
	}
	cfg := opts.Config.sanitized()

	detector := NewDoomLoopDetector()
	if cfg.DoomLoopThreshold > 0 {
		detector = detector.WithThreshold(cfg.DoomLoopThreshold)
	}

	var compactor *agentctx.Compactor
	if cfg.Compaction.EvictionWindow > 0 || cfg.Compaction.RetentionWindow > 0 {
		compactor = agentctx.NewCompactor(cfg.Compaction, opts.Renderer)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics(nil)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("coreagent")
	}

	return &Loop{
		provider:      opts.Provider,
		tools:         opts.Tools,
		conversations: opts.Conversations,
		jobs:          opts.Jobs,
		sink:          opts.Sink,
		approval:      opts.Approval,
		steering:      opts.Steering,
		compactor:     compactor,
		detector:      detector,
		metrics:       opts.Metrics,
		logger:        logger,
		tracer:        tracer,
		cfg:           cfg,
	}, nil
}

// Run executes one user task against the conversation until the model
// completes, a limit fires, or the context is cancelled. An empty task
// resumes from the conversation's existing tail (e.g. after a restart).
func (l *Loop) Run(ctx context.Context, conv *models.Conversation, task string) error {
	if task != "" {
		conv.Messages = append(conv.Messages, models.Message{
			ID:        uuid.NewString(),
			Role:      models.RoleUser,
			Content:   task,
			ModelID:   conv.Model,
			CreatedAt: time.Now(),
		})
	}
	return l.run(ctx, conv)
}

// ResumeFollowup answers a pending followup question and continues the
// task. The answer becomes the followup call's tool result.
func (l *Loop) ResumeFollowup(ctx context.Context, conv *models.Conversation, answer string) error {
	call, ok := pendingFollowupCall(conv)
	if !ok {
		return errors.New("no pending followup to resume")
	}
	conv.Messages = append(conv.Messages, models.Message{
		ID:   uuid.NewString(),
		Role: models.RoleTool,
		ToolResults: []models.ToolResult{{
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Content:    answer,
		}},
		CreatedAt: time.Now(),
	})
	return l.run(ctx, conv)
}

func (l *Loop) run(ctx context.Context, conv *models.Conversation) error {
	em := newEmitter(l.sink, conv.ID)
	tracker := NewFailureTracker(l.cfg.MaxToolFailuresPerTurn)

	for turn := 0; turn < l.cfg.MaxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return l.persist(conv)
		}

		l.steering.drainInto(conv)
		l.maybeCompact(ctx, conv, em)

		assistant, err := l.streamTurn(ctx, conv, em)
		switch {
		case err != nil && ctx.Err() != nil:
			// Cancellation mid-stream: keep what streamed as droppable
			// partial output and return cleanly.
			return l.persist(conv)
		case err != nil:
			em.errorf(ctx, true, err.Error())
			l.persist(conv)
			return &LoopError{ConversationID: conv.ID, Turn: turn, Cause: err}
		}
		l.metrics.inc(l.metrics.Turns)
		l.accountUsage(conv, assistant.Usage)

		msg := assistantMessage(assistant)
		conv.Messages = append(conv.Messages, msg)

		if len(msg.ToolCalls) == 0 {
			// Stop, Length, or ContentFilter with plain content: done.
			em.complete(ctx, msg.Content, conv.Metrics.Usage(), turn+1)
			return l.persist(conv)
		}

		done, result, err := l.dispatchToolCalls(ctx, conv, msg.ToolCalls, tracker, em)
		if err != nil {
			if ctx.Err() != nil {
				// Cancellation during dispatch is a clean stop, not a
				// failure.
				l.persist(conv)
				return nil
			}
			if errors.Is(err, ErrAwaitingFollowup) {
				l.persist(conv)
				return err
			}
			em.errorf(ctx, true, err.Error())
			l.persist(conv)
			return &LoopError{ConversationID: conv.ID, Turn: turn, Cause: err}
		}
		if done {
			em.complete(ctx, result, conv.Metrics.Usage(), turn+1)
			return l.persist(conv)
		}
		if err := l.persist(conv); err != nil {
			l.logger.Warn("persist conversation failed", "conversation_id", conv.ID, "error", err)
		}
		// Tool results drive the next turn; no new user message.
	}

	em.errorf(ctx, true, ErrMaxTurns.Error())
	l.persist(conv)
	return &LoopError{ConversationID: conv.ID, Turn: l.cfg.MaxTurns, Cause: ErrMaxTurns}
}

// maybeCompact runs the compactor when its eviction window has filled.
func (l *Loop) maybeCompact(ctx context.Context, conv *models.Conversation, em *emitter) {
	if l.compactor == nil || !l.compactor.ShouldCompact(conv.Messages) {
		return
	}
	before := len(conv.Messages)
	compacted, err := l.compactor.Compact(ctx, dropDroppable(conv.Messages), false)
	if err != nil {
		l.logger.Warn("compaction failed", "conversation_id", conv.ID, "error", err)
		return
	}
	conv.Messages = compacted
	l.metrics.inc(l.metrics.Compactions)
	em.compaction(ctx, before-len(compacted), len(compacted))
}

// dropDroppable removes messages flagged droppable (partial output from a
// cancelled turn) ahead of compaction.
func dropDroppable(messages []models.Message) []models.Message {
	out := messages[:0:0]
	for _, m := range messages {
		if m.Droppable {
			continue
		}
		out = append(out, m)
	}
	return out
}

// streamTurn issues one provider request, retrying on retriable errors and
// empty responses, and returns the merged event accumulator.
func (l *Loop) streamTurn(ctx context.Context, conv *models.Conversation, em *emitter) (*models.ChatCompletionMessage, error) {
	reqCtx := conv.Context(l.tools.Definitions(conv.ToolInventory))

	var lastErr error
	for attempt := 1; attempt <= l.cfg.MaxRetryAttempts; attempt++ {
		if attempt > 1 {
			l.metrics.inc(l.metrics.ProviderRetries)
			em.retry(ctx, attempt-1, l.cfg.MaxRetryAttempts-1, retryReason(lastErr))
			if err := l.cfg.Retry.Sleep(ctx, attempt-1); err != nil {
				return nil, err
			}
		}

		acc, err := l.streamOnce(ctx, reqCtx, conv, em)
		switch {
		case err == nil && acc.Empty():
			// A stream that ends with no content and no tool calls counts
			// against the retry budget; re-issue the request unchanged.
			lastErr = errors.New("provider returned an empty response")
			continue
		case err == nil:
			return acc, nil
		case ctx.Err() != nil:
			return nil, err
		case providers.IsRetryable(err):
			lastErr = err
			continue
		default:
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %v", ErrMaxRetries, lastErr)
}

func retryReason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// streamOnce opens one provider stream and folds it into an accumulator,
// forwarding deltas to the UI and persisting partial output on
// cancellation.
func (l *Loop) streamOnce(ctx context.Context, reqCtx *models.Context, conv *models.Conversation, em *emitter) (*models.ChatCompletionMessage, error) {
	spanCtx, span := l.tracer.Start(ctx, "provider.chat")
	defer span.End()

	// An early return (decode error, malformed tool calls) must drop the
	// provider stream, closing the underlying connection.
	streamCtx, cancelStream := context.WithCancel(spanCtx)
	defer cancelStream()

	events, err := l.provider.Chat(streamCtx, reqCtx)
	if err != nil {
		return nil, err
	}

	pipeline := stream.NewPipeline(
		stream.NewToolCallPartCollector(),
		stream.NewXMLToolCallCollector(),
	)

	acc := &models.ChatCompletionMessage{}
	announced := make(map[string]bool)

	for event := range events {
		if event.Err != nil {
			return nil, event.Err
		}
		batch, err := pipeline.Next(event.Message)
		if err != nil {
			// Malformed tool-call parts surface as a synthetic assistant
			// error handed back to the model, not a crash.
			return l.recoverMalformedToolCalls(acc, err)
		}
		for _, msg := range batch {
			if msg.Content != "" {
				em.message(ctx, msg.Content)
			}
			if msg.Reasoning != "" {
				em.reasoning(ctx, msg.Reasoning)
			}
			for _, part := range msg.ToolCallParts {
				if part.Name != "" && !announced[part.Name+"/"+part.ID] {
					announced[part.Name+"/"+part.ID] = true
					em.toolCallStart(ctx, part.Name, part.ID)
				}
			}
			for _, call := range msg.ToolCalls {
				if !announced[call.Name+"/"+call.ID] {
					announced[call.Name+"/"+call.ID] = true
					em.toolCallStart(ctx, call.Name, call.ID)
				}
			}
			acc.Merge(msg)
		}
		if ctx.Err() != nil {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		l.persistPartial(conv, acc)
		return nil, err
	}
	return acc, nil
}

// recoverMalformedToolCalls converts a part-fusion failure into a synthetic
// error result so the model can correct itself on the next turn.
func (l *Loop) recoverMalformedToolCalls(acc *models.ChatCompletionMessage, cause error) (*models.ChatCompletionMessage, error) {
	l.logger.Warn("failed to assemble streamed tool calls", "error", cause)
	recovered := &models.ChatCompletionMessage{
		Content:      acc.Content,
		Reasoning:    acc.Reasoning,
		FinishReason: models.FinishReasonStop,
	}
	if recovered.Content == "" {
		recovered.Content = tools.ErrorEnvelope(fmt.Sprintf("tool call arguments could not be assembled: %v", cause))
	}
	return recovered, nil
}

// persistPartial appends the partially-streamed assistant text as a
// droppable message so a later compaction can discard it.
func (l *Loop) persistPartial(conv *models.Conversation, acc *models.ChatCompletionMessage) {
	if acc.Content == "" && acc.Reasoning == "" {
		l.persist(conv)
		return
	}
	conv.Messages = append(conv.Messages, models.Message{
		ID:               uuid.NewString(),
		Role:             models.RoleAssistant,
		Content:          acc.Content,
		ReasoningDetails: acc.ReasoningDetails,
		Droppable:        true,
		CreatedAt:        time.Now(),
	})
	l.persist(conv)
}

// assistantMessage materializes the merged stream accumulator as a
// conversation message.
func assistantMessage(acc *models.ChatCompletionMessage) models.Message {
	details := acc.ReasoningDetails
	if len(details) == 0 && acc.Reasoning != "" {
		details = []models.ReasoningDetail{{Text: acc.Reasoning}}
	}
	return models.Message{
		ID:               uuid.NewString(),
		Role:             models.RoleAssistant,
		Content:          acc.Content,
		ToolCalls:        acc.ToolCalls,
		ReasoningDetails: details,
		CreatedAt:        time.Now(),
	}
}

func (l *Loop) accountUsage(conv *models.Conversation, usage *models.Usage) {
	if usage == nil {
		return
	}
	conv.Metrics.PromptTokens += usage.PromptTokens
	conv.Metrics.CompletionTokens += usage.CompletionTokens
	conv.Metrics.TotalTokens += usage.TotalTokens
	conv.Metrics.CachedTokens += usage.CachedTokens
	conv.Metrics.CostUSD += usage.CostUSD
	conv.Metrics.TurnCount++
}

func (l *Loop) persist(conv *models.Conversation) error {
	if l.conversations == nil {
		return nil
	}
	conv.UpdatedAt = time.Now()
	// Persistence must survive turn cancellation; it runs on a fresh
	// context.
	return l.conversations.Upsert(context.Background(), conv)
}

// pendingFollowupCall finds the followup call in the last assistant message
// that has no tool result yet.
func pendingFollowupCall(conv *models.Conversation) (models.ToolCall, bool) {
	answered := make(map[string]bool)
	for _, m := range conv.Messages {
		for _, tr := range m.ToolResults {
			answered[tr.ToolCallID] = true
		}
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		m := conv.Messages[i]
		if m.Role != models.RoleAssistant {
			continue
		}
		for _, call := range m.ToolCalls {
			if call.Name == tools.NameFollowup && !answered[call.ID] {
				return call, true
			}
		}
		break
	}
	return models.ToolCall{}, false
}

// dispatchOutcome pairs one call with its result in emission order.
type dispatchOutcome struct {
	call    models.ToolCall
	output  *tools.Output
	skipped bool
}

// dispatchToolCalls runs the guard-rail pipeline and executor for one
// assistant message's calls. Returns done=true when attempt_completion was
// called, with its result text.
func (l *Loop) dispatchToolCalls(ctx context.Context, conv *models.Conversation, calls []models.ToolCall, tracker *FailureTracker, em *emitter) (bool, string, error) {
	outcomes := make([]dispatchOutcome, len(calls))
	var runnable []int
	var completionResult string
	completion := false

	// Sequential guard-rail pass: doom-loop, approval, and the control
	// tools the orchestrator interprets itself.
	for i, call := range calls {
		outcomes[i].call = call

		// History for the doom-loop check excludes this turn's own
		// assistant message, which already carries these calls.
		history := conv.Messages[:len(conv.Messages)-1]
		if doomErr, tripped := l.detector.Check(call, history); tripped {
			l.metrics.inc(l.metrics.DoomLoopRejections)
			l.logger.Warn("doom loop detected", "tool", call.Name, "consecutive", doomErr.ConsecutiveCalls)
			outcomes[i].output = tools.Errorf("%s", doomErr.Error())
			outcomes[i].skipped = true
			continue
		}

		approved, gated, err := l.approval.Check(ctx, call)
		if err != nil {
			return false, "", err
		}
		if gated && !approved {
			outcomes[i].output = tools.Errorf("tool %s was not approved for execution", call.Name)
			outcomes[i].skipped = true
			continue
		}

		switch call.Name {
		case tools.NameComplete:
			completion = true
			completionResult = tools.ParseCompletionResult(call.Input)
			outcomes[i].output = &tools.Output{Text: "Task complete."}
		case tools.NameFollowup:
			question, err := tools.ParseFollowup(call.Input)
			if err != nil {
				outcomes[i].output = tools.Errorf("invalid followup arguments: %v", err)
				continue
			}
			em.followup(ctx, question.Question, question.Options)
			return false, "", ErrAwaitingFollowup
		default:
			if isAsyncTool(l.cfg.AsyncTools, call.Name) {
				outcomes[i].output = l.startAsyncJob(ctx, conv.ID, call, em)
			} else {
				runnable = append(runnable, i)
			}
		}
	}

	l.executeParallel(ctx, outcomes, runnable)

	if err := ctx.Err(); err != nil {
		// Cancelled mid-dispatch: no further results are appended.
		return false, "", err
	}

	// Failure accounting is deduped per tool name for this one assistant
	// message before results are appended.
	batch := make([]toolOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.output == nil {
			continue
		}
		batch = append(batch, toolOutcome{toolName: o.call.Name, isError: o.output.IsError})
	}
	tracker.RecordMessage(batch)

	budgetExhausted := false
	warned := make(map[string]bool)
	for _, o := range outcomes {
		if o.output == nil {
			continue
		}
		result := tools.Result(o.call, o.output)
		if o.output.IsError && l.cfg.MaxToolFailuresPerTurn > 0 && !warned[o.call.Name] {
			warned[o.call.Name] = true
			result.Content += fmt.Sprintf("\nYou have %d attempt(s) remaining", tracker.Remaining(o.call.Name))
			if tracker.MaxReached(o.call.Name) {
				budgetExhausted = true
			}
		}
		conv.Messages = append(conv.Messages, models.Message{
			ID:          uuid.NewString(),
			Role:        models.RoleTool,
			ToolResults: []models.ToolResult{result},
			CreatedAt:   time.Now(),
		})
		em.toolCallEnd(ctx, o.call.Name, o.call.ID, o.output.IsError, o.skipped, "")
	}

	if budgetExhausted {
		l.metrics.inc(l.metrics.FailureTerminations)
		return false, "", ErrMaxToolFailures
	}
	return completion, completionResult, nil
}

// executeParallel runs the runnable calls concurrently, bounded by
// ToolParallelism, and writes each result back to its emission slot.
func (l *Loop) executeParallel(ctx context.Context, outcomes []dispatchOutcome, runnable []int) {
	if len(runnable) == 0 {
		return
	}
	sem := make(chan struct{}, l.cfg.ToolParallelism)
	var wg sync.WaitGroup
	for _, idx := range runnable {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			call := outcomes[i].call
			spanCtx, span := l.tracer.Start(ctx, "tool.execute")
			started := time.Now()
			out := l.tools.Execute(spanCtx, call)
			span.End()
			l.logger.Debug("tool executed",
				"tool", call.Name,
				"call_id", call.ID,
				"is_error", out.IsError,
				"duration", time.Since(started).Round(time.Millisecond),
			)
			outcomes[i].output = out
		}(idx)
	}
	wg.Wait()
}

// startAsyncJob detaches a tool execution as a job and returns the
// immediate placeholder result.
func (l *Loop) startAsyncJob(ctx context.Context, sessionID string, call models.ToolCall, em *emitter) *tools.Output {
	job := newJob(sessionID, call)
	if l.jobs != nil {
		if err := l.jobs.Put(ctx, job); err != nil {
			return tools.Errorf("queue job for %s: %v", call.Name, err)
		}
	}
	em.job(ctx, models.JobPayload{
		JobID: job.ID, ToolName: call.Name, ToolCallID: call.ID, Status: string(JobRunning),
	})

	go func() {
		// The job outlives the dispatching turn; it is detached from
		// cancellation and runs until the tool returns.
		out := l.tools.Execute(context.WithoutCancel(ctx), call)
		job.Status = JobSucceeded
		if out.IsError {
			job.Status = JobFailed
		}
		job.Result = out.Render()
		job.FinishedAt = time.Now()
		if l.jobs != nil {
			l.jobs.Put(context.WithoutCancel(ctx), job)
		}
		em.job(context.WithoutCancel(ctx), models.JobPayload{
			JobID: job.ID, ToolName: call.Name, ToolCallID: call.ID, Status: string(job.Status),
		})
	}()

	return &tools.Output{Text: fmt.Sprintf("started background job %s for %s; poll the job for its result", job.ID, call.Name)}
}
