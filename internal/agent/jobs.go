package agent

import (
	"context"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

// JobStatus is the lifecycle state of an async tool job.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Job records one detached tool execution.
type Job struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	ToolName   string    `json:"tool_name"`
	ToolCallID string    `json:"tool_call_id"`
	Status     JobStatus `json:"status"`
	Result     string    `json:"result,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// JobStore persists async tool jobs so they can be polled after the turn
// that spawned them has moved on.
type JobStore interface {
	Put(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
}

// MemoryJobStore is the in-process JobStore.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

// NewMemoryJobStore creates an empty store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]Job)}
}

// Put implements JobStore.
func (s *MemoryJobStore) Put(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

// Get implements JobStore.
func (s *MemoryJobStore) Get(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

// isAsyncTool reports whether the tool name matches any async pattern.
func isAsyncTool(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if ok, _ := path.Match(pattern, name); ok || pattern == name {
			return true
		}
	}
	return false
}

// newJob builds a running job record for a call.
func newJob(sessionID string, call models.ToolCall) *Job {
	return &Job{
		ID:         "job_" + uuid.NewString(),
		SessionID:  sessionID,
		ToolName:   call.Name,
		ToolCallID: call.ID,
		Status:     JobRunning,
		StartedAt:  time.Now(),
	}
}
