package validation

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors shared across the workflow layers.
var (
	// ErrTaskNotFound is returned when no task matches the requested identifier.
	ErrTaskNotFound = errors.New("validation task not found")

	// ErrNoTaskAwaitingJob is returned when a correlation id matches no task at
	// all, currently awaited or otherwise.
	ErrNoTaskAwaitingJob = errors.New("no validation task references this job id")

	// ErrPermissionDenied is returned when the authorization gate rejects an
	// action. It is distinct from not-found so callers can tell "you may not do
	// this" from "this does not exist".
	ErrPermissionDenied = errors.New("permission denied")

	// ErrConcurrentModification is returned when an optimistic write observed a
	// stale task version. The caller may re-read and retry the whole operation.
	ErrConcurrentModification = errors.New("task was modified concurrently")
)

// ValidationError indicates malformed caller input. No state is changed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TaskInvalidStateError indicates a transition or mutation was attempted while
// the task is in a state that does not permit it. The task is left untouched.
type TaskInvalidStateError struct {
	taskID uuid.UUID
	status Status
	reason string
}

// NewTaskInvalidStateError creates a TaskInvalidStateError for the given task.
func NewTaskInvalidStateError(taskID uuid.UUID, status Status, reason string) TaskInvalidStateError {
	return TaskInvalidStateError{taskID: taskID, status: status, reason: reason}
}

func (e TaskInvalidStateError) Error() string {
	return fmt.Sprintf("task %s in state %s: %s", e.taskID, e.status, e.reason)
}

// TaskID returns the identifier of the task the error refers to.
func (e TaskInvalidStateError) TaskID() uuid.UUID { return e.taskID }

// Status returns the task status at the time of the rejected attempt.
func (e TaskInvalidStateError) Status() Status { return e.status }

// DispatchFailureError indicates the external CI system could not be reached or
// rejected a build request. The task is left in its prior state and the caller
// may retry the whole user action.
type DispatchFailureError struct {
	Kind JobKind
	Err  error
}

func (e DispatchFailureError) Error() string {
	return fmt.Sprintf("dispatching %s job failed: %v", e.Kind, e.Err)
}

func (e DispatchFailureError) Unwrap() error { return e.Err }

// InconsistentDispatchError indicates an external dispatch succeeded but the
// correlation id could not be persisted. The dispatched job can never be
// matched to the task by any future webhook, so this is fatal and must be
// surfaced to operators; the recommended remediation is manual task
// re-creation.
type InconsistentDispatchError struct {
	TaskID        uuid.UUID
	CorrelationID string
	Err           error
}

func (e InconsistentDispatchError) Error() string {
	return fmt.Sprintf("dispatched job %s for task %s but failed to persist the correlation id: %v",
		e.CorrelationID, e.TaskID, e.Err)
}

func (e InconsistentDispatchError) Unwrap() error { return e.Err }
