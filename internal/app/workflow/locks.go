package workflow

import (
	"sync"

	"github.com/google/uuid"
)

// TaskLocks serializes all mutations to a given task. Operations on different
// tasks never block each other; two operations racing on the same task are
// linearized for the duration of their read-validate-write sequence.
//
// Entries are reference counted so the map does not grow with the number of
// tasks ever touched.
type TaskLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

// NewTaskLocks creates an empty lock registry.
func NewTaskLocks() *TaskLocks {
	return &TaskLocks{locks: make(map[uuid.UUID]*taskLock)}
}

// Lock acquires the mutex for the given task id, creating it on first use.
func (l *TaskLocks) Lock(id uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		entry = &taskLock{}
		l.locks[id] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
}

// Unlock releases the mutex for the given task id and drops the entry once no
// goroutine holds or waits on it.
func (l *TaskLocks) Unlock(id uuid.UUID) {
	l.mu.Lock()
	entry, ok := l.locks[id]
	if !ok {
		l.mu.Unlock()
		return
	}
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	entry.mu.Unlock()
}
