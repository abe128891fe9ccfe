// Package memory provides an in-memory TaskRepository for tests and
// single-process development setups.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/diffbridge/diffbridge/internal/domain/validation"
)

var _ validation.TaskRepository = (*TaskStore)(nil)

// TaskStore keeps task snapshots in a map. It enforces the same optimistic
// version discipline as the PostgreSQL store so the two are interchangeable in
// tests.
type TaskStore struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]validation.TaskState
}

// NewTaskStore creates an empty in-memory task store.
func NewTaskStore() *TaskStore {
	return &TaskStore{tasks: make(map[uuid.UUID]validation.TaskState)}
}

// CreateTask persists a new task's initial state at version 1.
func (s *TaskStore) CreateTask(_ context.Context, task *validation.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := task.State()
	st.Version = 1
	s.tasks[st.ID] = st
	return nil
}

// GetTask retrieves a task's current state.
func (s *TaskStore) GetTask(_ context.Context, taskID uuid.UUID) (*validation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.tasks[taskID]
	if !ok {
		return nil, validation.ErrTaskNotFound
	}
	return validation.ReconstructTask(st), nil
}

// FindTaskByJobID retrieves the task referencing the correlation id through
// either of its dispatches.
func (s *TaskStore) FindTaskByJobID(_ context.Context, correlationID string) (*validation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, st := range s.tasks {
		if (st.GenerationJobID != "" && st.GenerationJobID == correlationID) ||
			(st.IntegrationJobID != "" && st.IntegrationJobID == correlationID) {
			return validation.ReconstructTask(st), nil
		}
	}
	return nil, validation.ErrNoTaskAwaitingJob
}

// UpdateTask persists changes guarded by the aggregate's version.
func (s *TaskStore) UpdateTask(_ context.Context, task *validation.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := task.State()
	stored, ok := s.tasks[st.ID]
	if !ok {
		return validation.ErrTaskNotFound
	}
	if stored.Version != st.Version {
		return validation.ErrConcurrentModification
	}
	st.Version++
	s.tasks[st.ID] = st
	return nil
}

// ListTasks retrieves tasks newest first, optionally filtered by status.
func (s *TaskStore) ListTasks(_ context.Context, status *validation.Status) ([]*validation.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*validation.Task
	for _, st := range s.tasks {
		if status != nil && st.Status != *status {
			continue
		}
		out = append(out, validation.ReconstructTask(st))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt().After(out[j].CreatedAt())
	})
	return out, nil
}
