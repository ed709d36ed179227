package agent

import (
	"sync"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// SteeringQueue buffers follow-up messages the user sends while a turn is
// still running. Queued messages are not injected mid-request; the loop
// drains the queue at its next Requesting boundary, so an in-flight provider
// stream is never interrupted by steering.
type SteeringQueue struct {
	mu      sync.Mutex
	pending []string
}

// NewSteeringQueue creates an empty queue.
func NewSteeringQueue() *SteeringQueue {
	return &SteeringQueue{}
}

// Push enqueues a user steering message.
func (q *SteeringQueue) Push(content string) {
	if content == "" {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, content)
}

// Drain returns and clears all queued messages.
func (q *SteeringQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len reports how many messages are waiting.
func (q *SteeringQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// drainInto appends queued steering messages as user messages tagged with
// the active model.
func (q *SteeringQueue) drainInto(conv *models.Conversation) int {
	if q == nil {
		return 0
	}
	msgs := q.Drain()
	for _, content := range msgs {
		conv.Messages = append(conv.Messages, models.Message{
			Role:    models.RoleUser,
			Content: content,
			ModelID: conv.Model,
		})
	}
	return len(msgs)
}
