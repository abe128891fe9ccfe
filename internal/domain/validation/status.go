package validation

import (
	"errors"
	"fmt"
)

// Status represents the lifecycle state of a validation task. It enables
// tracking of the diff-review-integrate workflow from creation through
// completion or failure.
type Status string

// ErrStatusUnknown is returned when a task status is unknown.
var ErrStatusUnknown = errors.New("task status unknown")

const (
	// StatusCreated indicates a task exists and its diff generation job has
	// been dispatched, but no diff has been produced yet.
	StatusCreated Status = "CREATED"

	// StatusPendingValidation indicates the diff was generated and the task is
	// waiting for a validator to review it.
	StatusPendingValidation Status = "PENDING_VALIDATION"

	// StatusIntegrationInProgress indicates a validator approved the diff and
	// the integration job is running.
	StatusIntegrationInProgress Status = "INTEGRATION_IN_PROGRESS"

	// StatusIntegrated indicates the integration job finished successfully.
	StatusIntegrated Status = "INTEGRATED"

	// StatusError indicates the task encountered an unrecoverable error in
	// either the generation or the integration phase.
	StatusError Status = "ERROR"

	// StatusUnspecified is used when a task status is unknown.
	StatusUnspecified Status = "UNSPECIFIED"
)

// String returns the string representation of the Status.
func (s Status) String() string { return string(s) }

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusIntegrated || s == StatusError
}

// ParseStatus converts a string to a Status.
func ParseStatus(s string) Status {
	switch s {
	case "CREATED":
		return StatusCreated
	case "PENDING_VALIDATION":
		return StatusPendingValidation
	case "INTEGRATION_IN_PROGRESS":
		return StatusIntegrationInProgress
	case "INTEGRATED":
		return StatusIntegrated
	case "ERROR":
		return StatusError
	default:
		return StatusUnspecified
	}
}

// validateTransition checks if a status transition is valid and returns an
// error if not.
func (s Status) validateTransition(target Status) error {
	if !s.isValidTransition(target) {
		return fmt.Errorf("invalid task status transition from %s to %s", s, target)
	}
	return nil
}

// isValidTransition checks if the current status can transition to the target
// status. It enforces the task lifecycle rules to prevent invalid state
// changes; the graph is monotonic and never moves a task backward.
func (s Status) isValidTransition(target Status) bool {
	switch s {
	case StatusCreated:
		// From Created, the diff webhook moves the task forward or fails it.
		return target == StatusPendingValidation || target == StatusError
	case StatusPendingValidation:
		// From PendingValidation, only a validator trigger moves the task.
		return target == StatusIntegrationInProgress
	case StatusIntegrationInProgress:
		// From IntegrationInProgress, the integration webhook settles the task.
		return target == StatusIntegrated || target == StatusError
	case StatusIntegrated, StatusError:
		// Terminal states - no further transitions allowed.
		return false
	case StatusUnspecified:
		return false
	default:
		return false
	}
}
