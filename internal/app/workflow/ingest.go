package workflow

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diffbridge/diffbridge/internal/domain/events"
	"github.com/diffbridge/diffbridge/internal/domain/validation"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
)

// IngestResult tells the webhook endpoint how a delivery was handled, so it
// can pick a response that stops or continues the CI system's retries.
type IngestResult int

const (
	// IngestApplied means the delivery advanced the task's state.
	IngestApplied IngestResult = iota
	// IngestIgnored means the delivery was recognized but intentionally had
	// no effect, typically a duplicate or a stale replay.
	IngestIgnored
	// IngestNotFound means no task has ever awaited this correlation id.
	IngestNotFound
)

func (r IngestResult) String() string {
	switch r {
	case IngestApplied:
		return "applied"
	case IngestIgnored:
		return "ignored"
	case IngestNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Ingestor applies CI webhook deliveries to tasks. Deliveries arrive
// at-least-once and unordered; the ingestor makes them idempotent by checking,
// under the task's lock, that the delivery's correlation id is the one the
// task currently awaits.
type Ingestor struct {
	repo      validation.TaskRepository
	blobs     validation.BlobStore
	artifacts validation.ArtifactFetcher
	publisher events.DomainEventPublisher
	locks     *TaskLocks

	logger *logger.Logger
	tracer trace.Tracer
}

// NewIngestor returns an Ingestor wired to the given collaborators. It must
// share its TaskLocks with the Coordinator handling the same tasks.
func NewIngestor(
	repo validation.TaskRepository,
	blobs validation.BlobStore,
	artifacts validation.ArtifactFetcher,
	publisher events.DomainEventPublisher,
	locks *TaskLocks,
	log *logger.Logger,
	tracer trace.Tracer,
) *Ingestor {
	return &Ingestor{
		repo:      repo,
		blobs:     blobs,
		artifacts: artifacts,
		publisher: publisher,
		locks:     locks,
		logger:    log.With("component", "webhook_ingestor"),
		tracer:    tracer,
	}
}

// Ingest applies one webhook delivery. It locates the task awaiting the
// correlation id, and under that task's lock re-checks that the id is still
// the awaited one before applying the outcome. A delivery that no longer
// matches is Ignored rather than rejected, since at-least-once CI systems
// redeliver and replays must be acknowledged quietly.
func (i *Ingestor) Ingest(ctx context.Context, correlationID string, outcome validation.Outcome, artifacts validation.JobArtifacts) (IngestResult, error) {
	ctx, span := i.tracer.Start(ctx, "workflow.ingest_webhook",
		trace.WithAttributes(
			attribute.String("correlation_id", correlationID),
			attribute.String("outcome", outcome.String()),
		),
	)
	defer span.End()

	if correlationID == "" {
		return IngestNotFound, validation.ValidationError{Field: "jobId", Reason: "must not be empty"}
	}

	task, err := i.repo.FindTaskByJobID(ctx, correlationID)
	if err != nil {
		if errors.Is(err, validation.ErrTaskNotFound) || errors.Is(err, validation.ErrNoTaskAwaitingJob) {
			span.AddEvent("no_task_for_correlation_id")
			i.logger.Warn(ctx, "webhook for unknown job", "correlation_id", correlationID)
			return IngestNotFound, nil
		}
		span.RecordError(err)
		return IngestIgnored, fmt.Errorf("locating task for job %s: %w", correlationID, err)
	}

	taskID := task.ID()
	span.SetAttributes(attribute.String("task_id", taskID.String()))

	i.locks.Lock(taskID)
	defer i.locks.Unlock(taskID)

	// Re-read under the lock; a concurrent delivery may have already applied
	// this outcome.
	task, err = i.repo.GetTask(ctx, taskID)
	if err != nil {
		span.RecordError(err)
		return IngestIgnored, fmt.Errorf("re-reading task %s: %w", taskID, err)
	}

	if task.AwaitedJobID() != correlationID {
		span.AddEvent("stale_delivery")
		i.logger.Info(ctx, "ignoring stale webhook delivery",
			"task_id", taskID, "correlation_id", correlationID, "status", task.Status())
		return IngestIgnored, nil
	}

	// A task only advances when the job reports a final outcome. Progress
	// pings are acknowledged so the CI system stops retrying them.
	if outcome == validation.OutcomeInProgress {
		span.AddEvent("progress_ping")
		return IngestIgnored, nil
	}

	prev := task.Status()

	switch task.Status() {
	case validation.StatusCreated:
		err = i.applyGenerationOutcome(ctx, task, outcome, artifacts)
	case validation.StatusIntegrationInProgress:
		err = i.applyIntegrationOutcome(task, outcome, artifacts)
	default:
		// AwaitedJobID is empty outside those two states, so this is
		// unreachable unless the store is corrupted.
		return IngestIgnored, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "applying outcome failed")
		return IngestIgnored, err
	}

	if err := i.repo.UpdateTask(ctx, task); err != nil {
		span.RecordError(err)
		return IngestIgnored, fmt.Errorf("persisting task %s: %w", taskID, err)
	}

	i.publishStatusChange(ctx, task, prev)

	i.logger.Info(ctx, "webhook applied",
		"task_id", taskID,
		"correlation_id", correlationID,
		"outcome", outcome,
		"status", task.Status(),
	)
	return IngestApplied, nil
}

// applyGenerationOutcome resolves a generation job report. A SUCCESS report
// must carry the diff URL and the commit hash it was generated against; a
// report missing either is treated as a failed generation rather than
// rejected, so the task does not hang in CREATED forever.
func (i *Ingestor) applyGenerationOutcome(ctx context.Context, task *validation.Task, outcome validation.Outcome, artifacts validation.JobArtifacts) error {
	if outcome == validation.OutcomeFailure {
		return task.FailGeneration(artifacts.ErrorMessage, artifacts.ErrorFileURL)
	}

	if artifacts.DiffURL == "" || artifacts.CurrentCommitHash == "" {
		i.logger.Warn(ctx, "generation success without required artifacts, failing task",
			"task_id", task.ID(), "diff_url", artifacts.DiffURL, "commit_hash", artifacts.CurrentCommitHash)
		return task.FailGeneration("generation succeeded but artifacts are incomplete", artifacts.ErrorFileURL)
	}

	locator := i.mirrorDiff(ctx, task, artifacts.DiffURL)
	return task.CompleteDiffGeneration(artifacts.CurrentCommitHash, locator)
}

func (i *Ingestor) applyIntegrationOutcome(task *validation.Task, outcome validation.Outcome, artifacts validation.JobArtifacts) error {
	if outcome == validation.OutcomeFailure {
		return task.FailIntegration(artifacts.ErrorMessage, artifacts.ErrorFileURL)
	}
	return task.CompleteIntegration()
}

// mirrorDiff copies the CI-hosted diff into our own blob store so the task
// does not depend on CI artifact retention. If the copy fails the external
// URL is recorded as-is; reviewers can still fetch it while it lives.
func (i *Ingestor) mirrorDiff(ctx context.Context, task *validation.Task, diffURL string) string {
	data, err := i.artifacts.FetchArtifact(ctx, diffURL)
	if err != nil {
		i.logger.Warn(ctx, "mirroring diff artifact failed, keeping external url",
			"task_id", task.ID(), "diff_url", diffURL, "err", err)
		return diffURL
	}

	key := fmt.Sprintf("diff-files/%s/%s", task.GenerationJobID(), task.DiffFileName())
	locator, err := i.blobs.Put(ctx, key, "text/csv", data)
	if err != nil {
		i.logger.Warn(ctx, "storing mirrored diff failed, keeping external url",
			"task_id", task.ID(), "diff_url", diffURL, "err", err)
		return diffURL
	}
	return locator
}

func (i *Ingestor) publishStatusChange(ctx context.Context, task *validation.Task, prev validation.Status) {
	changed := []string{"status"}
	switch task.Status() {
	case validation.StatusPendingValidation:
		changed = append(changed, "current_commit_hash", "diff_file_path", "diff_generated_at")
	case validation.StatusIntegrated:
		changed = append(changed, "integration_result", "integration_completed_at")
	case validation.StatusError:
		changed = append(changed, "error_message", "error_file_link")
	}

	evt := events.DomainEvent{
		Type:      validation.EventTypeTaskStatusChanged,
		Key:       task.ID().String(),
		Timestamp: task.UpdatedAt(),
		Payload:   validation.NewTaskStatusChangedEvent(task.ID(), prev, task.Status(), changed),
	}
	if err := i.publisher.PublishDomainEvent(ctx, evt, events.WithKey(task.ID().String())); err != nil {
		i.logger.Error(ctx, "publishing domain event failed",
			"task_id", task.ID(), "event_type", evt.Type, "err", err)
	}
}
