// Package validation provides domain types and interfaces for the
// diff-review-integrate workflow. It defines the task aggregate, its lifecycle
// state machine, and the ports used to coordinate with the external CI system
// and durable storage.
package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is the central aggregate of the workflow: one instance of the
// diff-review-integrate lifecycle. All mutations go through guarded methods
// that enforce the state machine; illegal attempts return
// TaskInvalidStateError without mutating the entity.
type Task struct {
	id     uuid.UUID
	status Status

	gitBranch           string
	referenceCommitHash string
	currentCommitHash   string

	diffFileName    string
	diffFilePath    string
	diffGeneratedAt time.Time

	// Correlation identifiers for dispatched CI jobs. Each is written at most
	// once per dispatch; exactly one of them is awaited at any time.
	generationJobID  string
	integrationJobID string

	validatorUserID         string
	validatedFilePath       string
	validatedFileUploadedAt time.Time

	integrationResult      IntegrationResult
	errorMessage           string
	errorFileLink          string
	integrationCompletedAt time.Time

	createdBy string
	createdAt time.Time
	updatedAt time.Time

	// version supports optimistic concurrency in the store; it is opaque to
	// domain logic.
	version int64
}

// NewTask creates a task for the given branch in the CREATED state. The diff
// generation job is dispatched separately; its correlation id is recorded via
// RecordGenerationDispatch before the task is first persisted.
func NewTask(gitBranch, referenceCommitHash, createdBy string) (*Task, error) {
	gitBranch = strings.TrimSpace(gitBranch)
	if gitBranch == "" {
		return nil, ValidationError{Field: "git_branch", Reason: "must not be empty"}
	}
	if createdBy == "" {
		return nil, ValidationError{Field: "created_by", Reason: "must not be empty"}
	}

	now := time.Now().UTC()
	return &Task{
		id:                  uuid.New(),
		status:              StatusCreated,
		gitBranch:           gitBranch,
		referenceCommitHash: referenceCommitHash,
		diffFileName:        fmt.Sprintf("%s-diff.csv", sanitizeFileName(gitBranch)),
		createdBy:           createdBy,
		createdAt:           now,
		updatedAt:           now,
	}, nil
}

// TaskState is a flat snapshot of a task used by repositories to persist and
// reconstruct the aggregate without exposing setters.
type TaskState struct {
	ID                      uuid.UUID
	Status                  Status
	GitBranch               string
	ReferenceCommitHash     string
	CurrentCommitHash       string
	DiffFileName            string
	DiffFilePath            string
	DiffGeneratedAt         time.Time
	GenerationJobID         string
	IntegrationJobID        string
	ValidatorUserID         string
	ValidatedFilePath       string
	ValidatedFileUploadedAt time.Time
	IntegrationResult       IntegrationResult
	ErrorMessage            string
	ErrorFileLink           string
	IntegrationCompletedAt  time.Time
	CreatedBy               string
	CreatedAt               time.Time
	UpdatedAt               time.Time
	Version                 int64
}

// ReconstructTask creates a Task instance from persisted data without
// enforcing creation-time invariants. This should only be used by repositories
// when reconstructing from storage.
func ReconstructTask(st TaskState) *Task {
	return &Task{
		id:                      st.ID,
		status:                  st.Status,
		gitBranch:               st.GitBranch,
		referenceCommitHash:     st.ReferenceCommitHash,
		currentCommitHash:       st.CurrentCommitHash,
		diffFileName:            st.DiffFileName,
		diffFilePath:            st.DiffFilePath,
		diffGeneratedAt:         st.DiffGeneratedAt,
		generationJobID:         st.GenerationJobID,
		integrationJobID:        st.IntegrationJobID,
		validatorUserID:         st.ValidatorUserID,
		validatedFilePath:       st.ValidatedFilePath,
		validatedFileUploadedAt: st.ValidatedFileUploadedAt,
		integrationResult:       st.IntegrationResult,
		errorMessage:            st.ErrorMessage,
		errorFileLink:           st.ErrorFileLink,
		integrationCompletedAt:  st.IntegrationCompletedAt,
		createdBy:               st.CreatedBy,
		createdAt:               st.CreatedAt,
		updatedAt:               st.UpdatedAt,
		version:                 st.Version,
	}
}

// State returns a snapshot of the task for persistence.
func (t *Task) State() TaskState {
	return TaskState{
		ID:                      t.id,
		Status:                  t.status,
		GitBranch:               t.gitBranch,
		ReferenceCommitHash:     t.referenceCommitHash,
		CurrentCommitHash:       t.currentCommitHash,
		DiffFileName:            t.diffFileName,
		DiffFilePath:            t.diffFilePath,
		DiffGeneratedAt:         t.diffGeneratedAt,
		GenerationJobID:         t.generationJobID,
		IntegrationJobID:        t.integrationJobID,
		ValidatorUserID:         t.validatorUserID,
		ValidatedFilePath:       t.validatedFilePath,
		ValidatedFileUploadedAt: t.validatedFileUploadedAt,
		IntegrationResult:       t.integrationResult,
		ErrorMessage:            t.errorMessage,
		ErrorFileLink:           t.errorFileLink,
		IntegrationCompletedAt:  t.integrationCompletedAt,
		CreatedBy:               t.createdBy,
		CreatedAt:               t.createdAt,
		UpdatedAt:               t.updatedAt,
		Version:                 t.version,
	}
}

// ID returns the unique identifier for this task.
func (t *Task) ID() uuid.UUID { return t.id }

// Status returns the current lifecycle state of the task.
func (t *Task) Status() Status { return t.status }

// GitBranch returns the source branch the diff is generated from.
func (t *Task) GitBranch() string { return t.gitBranch }

// ReferenceCommitHash returns the optional commit the diff is taken against.
func (t *Task) ReferenceCommitHash() string { return t.referenceCommitHash }

// CurrentCommitHash returns the commit the diff was actually generated
// against, once known.
func (t *Task) CurrentCommitHash() string { return t.currentCommitHash }

// DiffFileName returns the display name of the diff artifact.
func (t *Task) DiffFileName() string { return t.diffFileName }

// DiffFilePath returns the opaque locator of the diff artifact; empty until
// the generation job succeeds.
func (t *Task) DiffFilePath() string { return t.diffFilePath }

// DiffGeneratedAt returns the time the diff artifact was produced.
func (t *Task) DiffGeneratedAt() time.Time { return t.diffGeneratedAt }

// GenerationJobID returns the correlation id of the diff generation dispatch.
func (t *Task) GenerationJobID() string { return t.generationJobID }

// IntegrationJobID returns the correlation id of the integration dispatch.
func (t *Task) IntegrationJobID() string { return t.integrationJobID }

// ValidatorUserID returns the identity of the validator who claimed the task.
func (t *Task) ValidatorUserID() string { return t.validatorUserID }

// ValidatedFilePath returns the opaque locator of the validator-supplied
// replacement file; empty until a validator uploads.
func (t *Task) ValidatedFilePath() string { return t.validatedFilePath }

// ValidatedFileUploadedAt returns the time the validated file was uploaded.
func (t *Task) ValidatedFileUploadedAt() time.Time { return t.validatedFileUploadedAt }

// IntegrationResult returns how the integration ended; empty for non-terminal
// tasks.
func (t *Task) IntegrationResult() IntegrationResult { return t.integrationResult }

// ErrorMessage returns the human-readable failure text, if any.
func (t *Task) ErrorMessage() string { return t.errorMessage }

// ErrorFileLink returns the locator of a failure artifact, if any.
func (t *Task) ErrorFileLink() string { return t.errorFileLink }

// IntegrationCompletedAt returns the completion time of a terminal task.
func (t *Task) IntegrationCompletedAt() time.Time { return t.integrationCompletedAt }

// CreatedBy returns the identity that created the task.
func (t *Task) CreatedBy() string { return t.createdBy }

// CreatedAt returns the creation time of the task.
func (t *Task) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns the last modification time of the task.
func (t *Task) UpdatedAt() time.Time { return t.updatedAt }

// Version returns the optimistic concurrency version of the task.
func (t *Task) Version() int64 { return t.version }

// AwaitedJobID returns the correlation id of the single outstanding dispatch
// this task is waiting on, or empty when nothing is awaited. A task never has
// two outstanding external requests simultaneously.
func (t *Task) AwaitedJobID() string {
	switch t.status {
	case StatusCreated:
		return t.generationJobID
	case StatusIntegrationInProgress:
		return t.integrationJobID
	default:
		return ""
	}
}

// RecordGenerationDispatch records the correlation id of the diff generation
// dispatch. The id is written at most once and only while the task is in
// CREATED.
func (t *Task) RecordGenerationDispatch(correlationID string) error {
	if t.status != StatusCreated {
		return NewTaskInvalidStateError(t.id, t.status, "generation dispatch only allowed in CREATED")
	}
	if t.generationJobID != "" {
		return NewTaskInvalidStateError(t.id, t.status, "generation correlation id already recorded")
	}
	if correlationID == "" {
		return ValidationError{Field: "correlation_id", Reason: "must not be empty"}
	}

	t.generationJobID = correlationID
	t.touch()
	return nil
}

// CompleteDiffGeneration applies a successful diff generation outcome: the
// resolved commit hash and the diff artifact locator are recorded and the task
// moves to PENDING_VALIDATION.
func (t *Task) CompleteDiffGeneration(commitHash, diffPath string) error {
	if err := t.status.validateTransition(StatusPendingValidation); err != nil {
		return NewTaskInvalidStateError(t.id, t.status, err.Error())
	}
	if commitHash == "" || diffPath == "" {
		return ValidationError{Field: "artifacts", Reason: "diff locator and commit hash are required"}
	}

	t.currentCommitHash = commitHash
	t.diffFilePath = diffPath
	t.diffGeneratedAt = time.Now().UTC()
	t.status = StatusPendingValidation
	t.touch()
	return nil
}

// FailGeneration applies a failed diff generation outcome, moving the task
// from CREATED to ERROR.
func (t *Task) FailGeneration(message, errorFileLink string) error {
	if t.status != StatusCreated {
		return NewTaskInvalidStateError(t.id, t.status, "generation failure only applies in CREATED")
	}
	if message == "" {
		message = "diff generation job failed"
	}

	t.errorMessage = message
	t.errorFileLink = errorFileLink
	t.status = StatusError
	t.touch()
	return nil
}

// AttachValidatedFile records a validator-supplied replacement file. The task
// stays in PENDING_VALIDATION; uploading claims the task for the validator.
func (t *Task) AttachValidatedFile(validatorID, path string) error {
	if t.status != StatusPendingValidation {
		return NewTaskInvalidStateError(t.id, t.status, "validated file can only be attached in PENDING_VALIDATION")
	}
	if validatorID == "" {
		return ValidationError{Field: "validator_user_id", Reason: "must not be empty"}
	}
	if path == "" {
		return ValidationError{Field: "validated_file_path", Reason: "must not be empty"}
	}

	t.validatorUserID = validatorID
	t.validatedFilePath = path
	t.validatedFileUploadedAt = time.Now().UTC()
	t.touch()
	return nil
}

// BeginIntegration moves the task to INTEGRATION_IN_PROGRESS and records the
// correlation id of the integration dispatch. A validated file must already be
// attached.
func (t *Task) BeginIntegration(validatorID, correlationID string) error {
	if err := t.status.validateTransition(StatusIntegrationInProgress); err != nil {
		return NewTaskInvalidStateError(t.id, t.status, err.Error())
	}
	if t.validatedFilePath == "" {
		return NewTaskInvalidStateError(t.id, t.status, "no validated file attached")
	}
	if t.integrationJobID != "" {
		return NewTaskInvalidStateError(t.id, t.status, "integration correlation id already recorded")
	}
	if correlationID == "" {
		return ValidationError{Field: "correlation_id", Reason: "must not be empty"}
	}

	if validatorID != "" {
		t.validatorUserID = validatorID
	}
	t.integrationJobID = correlationID
	t.status = StatusIntegrationInProgress
	t.touch()
	return nil
}

// CompleteIntegration applies a successful integration outcome, moving the
// task to its INTEGRATED terminal state.
func (t *Task) CompleteIntegration() error {
	if err := t.status.validateTransition(StatusIntegrated); err != nil {
		return NewTaskInvalidStateError(t.id, t.status, err.Error())
	}

	t.integrationResult = IntegrationResultSuccess
	t.integrationCompletedAt = time.Now().UTC()
	t.status = StatusIntegrated
	t.touch()
	return nil
}

// FailIntegration applies a failed integration outcome, moving the task to its
// ERROR terminal state.
func (t *Task) FailIntegration(message, errorFileLink string) error {
	if t.status != StatusIntegrationInProgress {
		return NewTaskInvalidStateError(t.id, t.status, "integration failure only applies in INTEGRATION_IN_PROGRESS")
	}
	if message == "" {
		message = "integration job failed"
	}

	t.integrationResult = IntegrationResultFailure
	t.errorMessage = message
	t.errorFileLink = errorFileLink
	t.integrationCompletedAt = time.Now().UTC()
	t.status = StatusError
	t.touch()
	return nil
}

func (t *Task) touch() { t.updatedAt = time.Now().UTC() }

// sanitizeFileName flattens branch separators so the display name is a single
// path element.
func sanitizeFileName(s string) string {
	return strings.ReplaceAll(s, "/", "-")
}
