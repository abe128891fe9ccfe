// Package postgres provides the PostgreSQL-backed task repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/diffbridge/diffbridge/internal/domain/validation"
	"github.com/diffbridge/diffbridge/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

var _ validation.TaskRepository = (*taskStore)(nil)

// taskStore provides a PostgreSQL-backed TaskRepository. Updates use the
// aggregate's version column for compare-and-swap, so lost updates surface as
// ErrConcurrentModification instead of silent overwrites.
type taskStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
}

// NewTaskStore creates a PostgreSQL-backed store that implements
// TaskRepository.
func NewTaskStore(pool *pgxpool.Pool, tracer trace.Tracer) *taskStore {
	return &taskStore{pool: pool, tracer: tracer}
}

const taskColumns = `
	id, status,
	git_branch, reference_commit_hash, current_commit_hash,
	diff_file_name, diff_file_path, diff_generated_at,
	generation_job_id, integration_job_id,
	validator_user_id, validated_file_path, validated_file_uploaded_at,
	integration_result, error_message, error_file_link, integration_completed_at,
	created_by, created_at, updated_at, version`

// CreateTask persists a new task's initial state.
func (s *taskStore) CreateTask(ctx context.Context, task *validation.Task) error {
	st := task.State()
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", st.ID.String()),
		attribute.String("status", st.Status.String()),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.validation.create_task", dbAttrs, func(ctx context.Context) error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO validation_tasks (
				id, status,
				git_branch, reference_commit_hash, current_commit_hash,
				diff_file_name, diff_file_path, diff_generated_at,
				generation_job_id, integration_job_id,
				validator_user_id, validated_file_path, validated_file_uploaded_at,
				integration_result, error_message, error_file_link, integration_completed_at,
				created_by, created_at, updated_at, version
			) VALUES (
				$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				$11, $12, $13, $14, $15, $16, $17, $18, $19, $20, 1
			)`,
			st.ID, st.Status.String(),
			st.GitBranch, nullText(st.ReferenceCommitHash), nullText(st.CurrentCommitHash),
			st.DiffFileName, nullText(st.DiffFilePath), nullTime(st.DiffGeneratedAt),
			nullText(st.GenerationJobID), nullText(st.IntegrationJobID),
			nullText(st.ValidatorUserID), nullText(st.ValidatedFilePath), nullTime(st.ValidatedFileUploadedAt),
			nullText(string(st.IntegrationResult)), nullText(st.ErrorMessage), nullText(st.ErrorFileLink), nullTime(st.IntegrationCompletedAt),
			st.CreatedBy, st.CreatedAt, st.UpdatedAt,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("task %s already exists: %w", st.ID, err)
			}
			return fmt.Errorf("inserting task: %w", err)
		}
		return nil
	})
}

// GetTask retrieves a task's current state.
func (s *taskStore) GetTask(ctx context.Context, taskID uuid.UUID) (*validation.Task, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("task_id", taskID.String()))

	var task *validation.Task
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.validation.get_task", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM validation_tasks WHERE id = $1`, taskID)

		var err error
		task, err = scanTask(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return validation.ErrTaskNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// FindTaskByJobID retrieves the task referencing the correlation id through
// either of its dispatches.
func (s *taskStore) FindTaskByJobID(ctx context.Context, correlationID string) (*validation.Task, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("correlation_id", correlationID))

	var task *validation.Task
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.validation.find_task_by_job_id", dbAttrs, func(ctx context.Context) error {
		row := s.pool.QueryRow(ctx,
			`SELECT `+taskColumns+` FROM validation_tasks
			 WHERE generation_job_id = $1 OR integration_job_id = $1`, correlationID)

		var err error
		task, err = scanTask(row)
		if errors.Is(err, pgx.ErrNoRows) {
			return validation.ErrNoTaskAwaitingJob
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTask persists a task's state, guarded by the version the aggregate was
// loaded with. A row whose version moved on yields ErrConcurrentModification.
func (s *taskStore) UpdateTask(ctx context.Context, task *validation.Task) error {
	st := task.State()
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("task_id", st.ID.String()),
		attribute.String("status", st.Status.String()),
		attribute.Int64("version", st.Version),
	)

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.validation.update_task", dbAttrs, func(ctx context.Context) error {
		tag, err := s.pool.Exec(ctx, `
			UPDATE validation_tasks SET
				status = $2,
				current_commit_hash = $3,
				diff_file_path = $4,
				diff_generated_at = $5,
				generation_job_id = $6,
				integration_job_id = $7,
				validator_user_id = $8,
				validated_file_path = $9,
				validated_file_uploaded_at = $10,
				integration_result = $11,
				error_message = $12,
				error_file_link = $13,
				integration_completed_at = $14,
				updated_at = $15,
				version = version + 1
			WHERE id = $1 AND version = $16`,
			st.ID, st.Status.String(),
			nullText(st.CurrentCommitHash),
			nullText(st.DiffFilePath), nullTime(st.DiffGeneratedAt),
			nullText(st.GenerationJobID), nullText(st.IntegrationJobID),
			nullText(st.ValidatorUserID), nullText(st.ValidatedFilePath), nullTime(st.ValidatedFileUploadedAt),
			nullText(string(st.IntegrationResult)), nullText(st.ErrorMessage), nullText(st.ErrorFileLink), nullTime(st.IntegrationCompletedAt),
			st.UpdatedAt, st.Version,
		)
		if err != nil {
			return fmt.Errorf("updating task: %w", err)
		}
		if tag.RowsAffected() == 0 {
			// Either the row is gone or someone else won the version race.
			var exists bool
			if err := s.pool.QueryRow(ctx,
				`SELECT EXISTS (SELECT 1 FROM validation_tasks WHERE id = $1)`, st.ID).Scan(&exists); err != nil {
				return fmt.Errorf("checking task existence: %w", err)
			}
			if !exists {
				return validation.ErrTaskNotFound
			}
			return validation.ErrConcurrentModification
		}
		return nil
	})
}

// ListTasks retrieves tasks newest first, optionally filtered by status.
func (s *taskStore) ListTasks(ctx context.Context, status *validation.Status) ([]*validation.Task, error) {
	dbAttrs := defaultDBAttributes
	if status != nil {
		dbAttrs = append(dbAttrs, attribute.String("status_filter", status.String()))
	}

	var tasks []*validation.Task
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.validation.list_tasks", dbAttrs, func(ctx context.Context) error {
		query := `SELECT ` + taskColumns + ` FROM validation_tasks`
		args := []any{}
		if status != nil {
			query += ` WHERE status = $1`
			args = append(args, status.String())
		}
		query += ` ORDER BY created_at DESC`

		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("listing tasks: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			task, err := scanTask(rows)
			if err != nil {
				return err
			}
			tasks = append(tasks, task)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// scanTask reconstructs an aggregate from one row. The row must carry
// taskColumns in order.
func scanTask(row pgx.Row) (*validation.Task, error) {
	var (
		st                 validation.TaskState
		statusStr          string
		refHash            pgtype.Text
		curHash            pgtype.Text
		diffPath           pgtype.Text
		diffGeneratedAt    pgtype.Timestamptz
		genJobID           pgtype.Text
		intJobID           pgtype.Text
		validatorID        pgtype.Text
		validatedPath      pgtype.Text
		validatedAt        pgtype.Timestamptz
		integrationResult  pgtype.Text
		errorMessage       pgtype.Text
		errorFileLink      pgtype.Text
		integrationDoneAt  pgtype.Timestamptz
	)

	err := row.Scan(
		&st.ID, &statusStr,
		&st.GitBranch, &refHash, &curHash,
		&st.DiffFileName, &diffPath, &diffGeneratedAt,
		&genJobID, &intJobID,
		&validatorID, &validatedPath, &validatedAt,
		&integrationResult, &errorMessage, &errorFileLink, &integrationDoneAt,
		&st.CreatedBy, &st.CreatedAt, &st.UpdatedAt, &st.Version,
	)
	if err != nil {
		return nil, err
	}

	st.Status = validation.ParseStatus(statusStr)
	st.ReferenceCommitHash = refHash.String
	st.CurrentCommitHash = curHash.String
	st.DiffFilePath = diffPath.String
	st.DiffGeneratedAt = diffGeneratedAt.Time
	st.GenerationJobID = genJobID.String
	st.IntegrationJobID = intJobID.String
	st.ValidatorUserID = validatorID.String
	st.ValidatedFilePath = validatedPath.String
	st.ValidatedFileUploadedAt = validatedAt.Time
	st.IntegrationResult = validation.IntegrationResult(integrationResult.String)
	st.ErrorMessage = errorMessage.String
	st.ErrorFileLink = errorFileLink.String
	st.IntegrationCompletedAt = integrationDoneAt.Time

	return validation.ReconstructTask(st), nil
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func nullTime(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}
