package agent

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// NotificationSink receives session-scoped updates during a turn.
// Implementations must be safe to call from multiple goroutines and should
// be non-blocking or handle backpressure themselves.
type NotificationSink interface {
	Emit(ctx context.Context, n models.Notification)
}

// emitter stamps notifications with the session id and a monotonic sequence
// before handing them to the sink, enforcing one send per event.
type emitter struct {
	sink      NotificationSink
	sessionID string
	seq       atomic.Uint64
	clock     func() time.Time
}

func newEmitter(sink NotificationSink, sessionID string) *emitter {
	return &emitter{sink: sink, sessionID: sessionID, clock: time.Now}
}

func (e *emitter) emit(ctx context.Context, n models.Notification) {
	if e.sink == nil {
		return
	}
	n.SessionID = e.sessionID
	n.Sequence = e.seq.Add(1)
	n.Time = e.clock()
	e.sink.Emit(ctx, n)
}

func (e *emitter) message(ctx context.Context, delta string) {
	e.emit(ctx, models.Notification{
		Type:    models.NotificationTaskMessage,
		Message: &models.MessagePayload{Delta: delta},
	})
}

func (e *emitter) reasoning(ctx context.Context, delta string) {
	e.emit(ctx, models.Notification{
		Type:    models.NotificationTaskReasoning,
		Message: &models.MessagePayload{Delta: delta},
	})
}

func (e *emitter) toolCallStart(ctx context.Context, name, callID string) {
	e.emit(ctx, models.Notification{
		Type:     models.NotificationToolCallStart,
		ToolCall: &models.ToolCallPayload{ToolName: name, ToolCallID: callID},
	})
}

func (e *emitter) toolCallEnd(ctx context.Context, name, callID string, isError, skipped bool, detail string) {
	e.emit(ctx, models.Notification{
		Type: models.NotificationToolCallEnd,
		ToolCall: &models.ToolCallPayload{
			ToolName:   name,
			ToolCallID: callID,
			IsError:    isError,
			Skipped:    skipped,
			Detail:     detail,
		},
	})
}

func (e *emitter) retry(ctx context.Context, attempt, max int, reason string) {
	e.emit(ctx, models.Notification{
		Type:  models.NotificationRetryAttempt,
		Retry: &models.RetryPayload{Attempt: attempt, Max: max, Reason: reason},
	})
}

func (e *emitter) complete(ctx context.Context, result string, usage models.Usage, turns int) {
	e.emit(ctx, models.Notification{
		Type:       models.NotificationTaskComplete,
		Completion: &models.CompletionPayload{Result: result, Usage: usage, Turns: turns},
	})
}

func (e *emitter) errorf(ctx context.Context, terminal bool, message string) {
	e.emit(ctx, models.Notification{
		Type:  models.NotificationTaskError,
		Error: &models.ErrorPayload{Message: message, Terminal: terminal},
	})
}

func (e *emitter) followup(ctx context.Context, question string, options []string) {
	e.emit(ctx, models.Notification{
		Type:     models.NotificationFollowup,
		Followup: &models.FollowupPayload{Question: question, Options: options},
	})
}

func (e *emitter) compaction(ctx context.Context, evicted, kept int) {
	e.emit(ctx, models.Notification{
		Type:       models.NotificationCompaction,
		Compaction: &models.CompactionPayload{MessagesEvicted: evicted, MessagesKept: kept},
	})
}

func (e *emitter) job(ctx context.Context, payload models.JobPayload) {
	e.emit(ctx, models.Notification{
		Type: models.NotificationJobUpdate,
		Job:  &payload,
	})
}

// ChanSink delivers notifications to a bounded channel. Sends block until
// the consumer drains the channel or the context is cancelled, which is the
// backpressure point for the whole turn loop.
type ChanSink struct {
	ch chan<- models.Notification
}

// NewChanSink creates a sink over the given channel. The channel should be
// buffered; its capacity bounds how far the producer can run ahead.
func NewChanSink(ch chan<- models.Notification) *ChanSink {
	return &ChanSink{ch: ch}
}

// Emit implements NotificationSink.
func (s *ChanSink) Emit(ctx context.Context, n models.Notification) {
	select {
	case s.ch <- n:
	case <-ctx.Done():
	}
}

// MultiSink fans out notifications to several sinks in order.
type MultiSink struct {
	sinks []NotificationSink
}

// NewMultiSink creates a fan-out sink; nil entries are dropped.
func NewMultiSink(sinks ...NotificationSink) *MultiSink {
	out := &MultiSink{}
	for _, s := range sinks {
		if s != nil {
			out.sinks = append(out.sinks, s)
		}
	}
	return out
}

// Emit implements NotificationSink.
func (s *MultiSink) Emit(ctx context.Context, n models.Notification) {
	for _, sink := range s.sinks {
		sink.Emit(ctx, n)
	}
}

// CallbackSink adapts a function into a NotificationSink.
type CallbackSink func(ctx context.Context, n models.Notification)

// Emit implements NotificationSink.
func (s CallbackSink) Emit(ctx context.Context, n models.Notification) { s(ctx, n) }
