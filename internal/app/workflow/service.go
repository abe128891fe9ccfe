// Package workflow implements the task lifecycle orchestrator: it composes the
// task store, the CI job dispatcher, webhook ingestion and change notification
// under a per-task mutual-exclusion discipline.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diffbridge/diffbridge/internal/domain/events"
	"github.com/diffbridge/diffbridge/internal/domain/validation"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
)

// Coordinator exposes the user-driven lifecycle operations of the workflow:
// create, upload a validated file, trigger integration, and reads. Webhook
// deliveries are handled by Ingestor; both share the same TaskLocks so all
// mutations to one task are serialized.
type Coordinator struct {
	repo       validation.TaskRepository
	dispatcher validation.JobDispatcher
	blobs      validation.BlobStore
	publisher  events.DomainEventPublisher
	locks      *TaskLocks

	logger *logger.Logger
	tracer trace.Tracer
}

// NewCoordinator returns a Coordinator wired to the given collaborators.
func NewCoordinator(
	repo validation.TaskRepository,
	dispatcher validation.JobDispatcher,
	blobs validation.BlobStore,
	publisher events.DomainEventPublisher,
	locks *TaskLocks,
	log *logger.Logger,
	tracer trace.Tracer,
) *Coordinator {
	return &Coordinator{
		repo:       repo,
		dispatcher: dispatcher,
		blobs:      blobs,
		publisher:  publisher,
		locks:      locks,
		logger:     log.With("component", "workflow_coordinator"),
		tracer:     tracer,
	}
}

// CreateTask dispatches a diff generation job for the branch and persists a
// new task in CREATED with the dispatch's correlation id recorded. The id is
// persisted before success is reported to the requester; if persistence fails
// after a successful dispatch the returned InconsistentDispatchError is fatal
// and operator-visible, since no future webhook can ever be matched to the
// task.
func (c *Coordinator) CreateTask(ctx context.Context, actor validation.Identity, gitBranch, referenceCommitHash string) (*validation.Task, error) {
	ctx, span := c.tracer.Start(ctx, "workflow.create_task",
		trace.WithAttributes(
			attribute.String("git_branch", gitBranch),
			attribute.String("actor_id", actor.ID),
		),
	)
	defer span.End()

	if !validation.Allowed(actor, validation.ActionCreateTask) {
		span.SetStatus(codes.Error, "permission denied")
		return nil, validation.ErrPermissionDenied
	}

	task, err := validation.NewTask(gitBranch, referenceCommitHash, actor.ID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	params := map[string]string{"GIT_BRANCH": task.GitBranch()}
	if task.ReferenceCommitHash() != "" {
		params["REFERENCE_COMMIT_HASH"] = task.ReferenceCommitHash()
	}

	correlationID, err := c.dispatcher.Dispatch(ctx, validation.JobKindGenerateDiff, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return nil, validation.DispatchFailureError{Kind: validation.JobKindGenerateDiff, Err: err}
	}
	span.AddEvent("generation_job_dispatched", trace.WithAttributes(
		attribute.String("correlation_id", correlationID),
	))

	if err := task.RecordGenerationDispatch(correlationID); err != nil {
		return nil, err
	}

	if err := c.repo.CreateTask(ctx, task); err != nil {
		inconsistent := validation.InconsistentDispatchError{
			TaskID:        task.ID(),
			CorrelationID: correlationID,
			Err:           err,
		}
		span.RecordError(inconsistent)
		span.SetStatus(codes.Error, "correlation id not persisted")
		c.logger.Error(ctx, "dispatched job is unreachable, manual task re-creation required",
			"task_id", task.ID(),
			"correlation_id", correlationID,
			"err", err,
		)
		return nil, inconsistent
	}

	c.publish(ctx, task.ID(), validation.EventTypeTaskCreated,
		validation.NewTaskCreatedEvent(task.ID(), task.GitBranch(), task.CreatedBy()))

	c.logger.Info(ctx, "task created",
		"task_id", task.ID(), "git_branch", task.GitBranch(), "correlation_id", correlationID)
	return task, nil
}

// AttachValidatedFile stores the reviewer-supplied replacement file in blob
// storage and records its locator on the task. The task state is unchanged;
// only tasks in PENDING_VALIDATION accept uploads and only CSV content is
// accepted.
func (c *Coordinator) AttachValidatedFile(ctx context.Context, actor validation.Identity, taskID uuid.UUID, fileName, contentType string, data []byte) (*validation.Task, error) {
	ctx, span := c.tracer.Start(ctx, "workflow.attach_validated_file",
		trace.WithAttributes(
			attribute.String("task_id", taskID.String()),
			attribute.String("actor_id", actor.ID),
		),
	)
	defer span.End()

	if !validation.Allowed(actor, validation.ActionValidate) {
		span.SetStatus(codes.Error, "permission denied")
		return nil, validation.ErrPermissionDenied
	}
	if !isCSV(fileName, contentType) {
		return nil, validation.ValidationError{Field: "file", Reason: "validated file must be CSV"}
	}
	if len(data) == 0 {
		return nil, validation.ValidationError{Field: "file", Reason: "must not be empty"}
	}

	c.locks.Lock(taskID)
	defer c.locks.Unlock(taskID)

	task, err := c.repo.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	prev := task.Status()

	key := fmt.Sprintf("validated-files/%s/%s", taskID, fileName)
	locator, err := c.blobs.Put(ctx, key, "text/csv", data)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("storing validated file: %w", err)
	}

	if err := task.AttachValidatedFile(actor.ID, locator); err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := c.repo.UpdateTask(ctx, task); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persisting validated file locator: %w", err)
	}

	c.publishStatusChange(ctx, task, prev,
		[]string{"validator_user_id", "validated_file_path", "validated_file_uploaded_at"})

	c.logger.Info(ctx, "validated file attached", "task_id", taskID, "locator", locator)
	return task, nil
}

// TriggerIntegration dispatches the integration job for a reviewed task and
// moves it to INTEGRATION_IN_PROGRESS with the new awaited correlation id
// recorded. The validated file must already be attached.
func (c *Coordinator) TriggerIntegration(ctx context.Context, actor validation.Identity, taskID uuid.UUID) (*validation.Task, error) {
	ctx, span := c.tracer.Start(ctx, "workflow.trigger_integration",
		trace.WithAttributes(
			attribute.String("task_id", taskID.String()),
			attribute.String("actor_id", actor.ID),
		),
	)
	defer span.End()

	if !validation.Allowed(actor, validation.ActionValidate) {
		span.SetStatus(codes.Error, "permission denied")
		return nil, validation.ErrPermissionDenied
	}

	c.locks.Lock(taskID)
	defer c.locks.Unlock(taskID)

	task, err := c.repo.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	prev := task.Status()

	// Guard before dispatching so an illegal trigger never reaches the CI
	// system.
	if task.Status() != validation.StatusPendingValidation {
		return nil, validation.NewTaskInvalidStateError(taskID, task.Status(), "integration can only be triggered in PENDING_VALIDATION")
	}
	if task.ValidatedFilePath() == "" {
		return nil, validation.NewTaskInvalidStateError(taskID, task.Status(), "no validated file attached")
	}

	params := map[string]string{
		"TASK_ID":             taskID.String(),
		"GIT_BRANCH":          task.GitBranch(),
		"VALIDATED_FILE_PATH": task.ValidatedFilePath(),
	}

	correlationID, err := c.dispatcher.Dispatch(ctx, validation.JobKindRunIntegration, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "dispatch failed")
		return nil, validation.DispatchFailureError{Kind: validation.JobKindRunIntegration, Err: err}
	}
	span.AddEvent("integration_job_dispatched", trace.WithAttributes(
		attribute.String("correlation_id", correlationID),
	))

	if err := task.BeginIntegration(actor.ID, correlationID); err != nil {
		return nil, err
	}

	if err := c.repo.UpdateTask(ctx, task); err != nil {
		inconsistent := validation.InconsistentDispatchError{
			TaskID:        taskID,
			CorrelationID: correlationID,
			Err:           err,
		}
		span.RecordError(inconsistent)
		span.SetStatus(codes.Error, "correlation id not persisted")
		c.logger.Error(ctx, "dispatched job is unreachable, manual task re-creation required",
			"task_id", taskID,
			"correlation_id", correlationID,
			"err", err,
		)
		return nil, inconsistent
	}

	c.publishStatusChange(ctx, task, prev,
		[]string{"status", "validator_user_id", "integration_job_id"})

	c.logger.Info(ctx, "integration triggered", "task_id", taskID, "correlation_id", correlationID)
	return task, nil
}

// GetTask retrieves a single task. Reads are open to any authenticated
// identity.
func (c *Coordinator) GetTask(ctx context.Context, actor validation.Identity, taskID uuid.UUID) (*validation.Task, error) {
	if !validation.Allowed(actor, validation.ActionRead) {
		return nil, validation.ErrPermissionDenied
	}
	return c.repo.GetTask(ctx, taskID)
}

// ListTasks retrieves tasks ordered newest first, optionally filtered by
// status.
func (c *Coordinator) ListTasks(ctx context.Context, actor validation.Identity, status *validation.Status) ([]*validation.Task, error) {
	if !validation.Allowed(actor, validation.ActionRead) {
		return nil, validation.ErrPermissionDenied
	}
	return c.repo.ListTasks(ctx, status)
}

// publishStatusChange emits the change event for a committed mutation. Publish
// failures are logged and never roll back the committed transition; delivery
// is at-most-once from the orchestrator's point of view.
func (c *Coordinator) publishStatusChange(ctx context.Context, task *validation.Task, prev validation.Status, changed []string) {
	c.publish(ctx, task.ID(), validation.EventTypeTaskStatusChanged,
		validation.NewTaskStatusChangedEvent(task.ID(), prev, task.Status(), changed))
}

func (c *Coordinator) publish(ctx context.Context, taskID uuid.UUID, eventType events.EventType, payload any) {
	evt := events.DomainEvent{
		Type:      eventType,
		Key:       taskID.String(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	if err := c.publisher.PublishDomainEvent(ctx, evt, events.WithKey(taskID.String())); err != nil {
		c.logger.Error(ctx, "publishing domain event failed",
			"task_id", taskID, "event_type", eventType, "err", err)
	}
}

func isCSV(fileName, contentType string) bool {
	if contentType != "" {
		mt := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
		if mt == "text/csv" || mt == "application/csv" {
			return true
		}
		if mt != "application/octet-stream" {
			return false
		}
	}
	return strings.HasSuffix(strings.ToLower(fileName), ".csv")
}

// IsRetryable reports whether the error represents a condition the caller may
// resolve by retrying the whole user action.
func IsRetryable(err error) bool {
	var dispatchErr validation.DispatchFailureError
	if errors.As(err, &dispatchErr) {
		return true
	}
	return errors.Is(err, validation.ErrConcurrentModification)
}
