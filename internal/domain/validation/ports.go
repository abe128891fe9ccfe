package validation

import (
	"context"

	"github.com/google/uuid"
)

// TaskRepository defines the persistence operations for validation tasks.
// It provides an abstraction layer over the storage mechanism used to maintain
// task state. Implementations must honor the optimistic version carried by the
// aggregate: UpdateTask fails with ErrConcurrentModification when the stored
// version no longer matches.
type TaskRepository interface {
	// CreateTask persists a new task's initial state.
	CreateTask(ctx context.Context, task *Task) error

	// GetTask retrieves a task's current state. Returns ErrTaskNotFound when
	// no task matches.
	GetTask(ctx context.Context, taskID uuid.UUID) (*Task, error)

	// FindTaskByJobID retrieves the task that references the given correlation
	// id through either of its dispatches, awaited or not. Returns
	// ErrNoTaskAwaitingJob when no task references the id at all.
	FindTaskByJobID(ctx context.Context, correlationID string) (*Task, error)

	// UpdateTask persists changes to an existing task's state using the
	// aggregate's version for compare-and-swap.
	UpdateTask(ctx context.Context, task *Task) error

	// ListTasks retrieves tasks ordered by creation time descending,
	// optionally filtered by status.
	ListTasks(ctx context.Context, status *Status) ([]*Task, error)
}

// JobDispatcher issues build requests to the external CI system. A successful
// dispatch returns the externally assigned correlation identifier; the caller
// must persist it on the task before reporting success to the original
// requester. Failures are returned as DispatchFailureError and leave no state
// behind.
type JobDispatcher interface {
	Dispatch(ctx context.Context, kind JobKind, params map[string]string) (string, error)
}

// BlobStore is the durable file collaborator. The orchestrator stores and
// passes around opaque locators; it never interprets blob contents.
type BlobStore interface {
	// Put stores the given bytes under the key and returns an opaque locator.
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)

	// Get retrieves the bytes behind a locator previously returned by Put.
	Get(ctx context.Context, locator string) ([]byte, error)
}

// ArtifactFetcher retrieves an artifact published by the external CI system,
// such as a generated diff, so it can be mirrored into blob storage.
type ArtifactFetcher interface {
	FetchArtifact(ctx context.Context, url string) ([]byte, error)
}
