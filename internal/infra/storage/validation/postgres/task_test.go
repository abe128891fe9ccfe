package postgres

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffbridge/diffbridge/internal/domain/validation"
	"github.com/diffbridge/diffbridge/internal/infra/storage"
)

func newCreatedTask(t *testing.T, jobID string) *validation.Task {
	t.Helper()

	task, err := validation.NewTask("feature/pg", "ref-1", "creator-1")
	require.NoError(t, err)
	require.NoError(t, task.RecordGenerationDispatch(jobID))
	return task
}

func TestTaskStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	task := newCreatedTask(t, "gen-create-get")
	require.NoError(t, store.CreateTask(ctx, task))

	loaded, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)

	assert.Equal(t, task.ID(), loaded.ID())
	assert.Equal(t, validation.StatusCreated, loaded.Status())
	assert.Equal(t, "feature/pg", loaded.GitBranch())
	assert.Equal(t, "ref-1", loaded.ReferenceCommitHash())
	assert.Equal(t, "gen-create-get", loaded.GenerationJobID())
	assert.EqualValues(t, 1, loaded.Version())
}

func TestTaskStore_GetTask_NotFound(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())

	_, err := store.GetTask(context.Background(), uuid.New())
	assert.ErrorIs(t, err, validation.ErrTaskNotFound)
}

func TestTaskStore_FindTaskByJobID(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	task := newCreatedTask(t, "gen-find")
	require.NoError(t, store.CreateTask(ctx, task))

	found, err := store.FindTaskByJobID(ctx, "gen-find")
	require.NoError(t, err)
	assert.Equal(t, task.ID(), found.ID())

	_, err = store.FindTaskByJobID(ctx, "never-dispatched")
	assert.ErrorIs(t, err, validation.ErrNoTaskAwaitingJob)
}

func TestTaskStore_FindTaskByJobID_IntegrationID(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	task := newCreatedTask(t, "gen-int-find")
	require.NoError(t, task.CompleteDiffGeneration("abc123", "blob://diff.csv"))
	require.NoError(t, task.AttachValidatedFile("validator-1", "blob://reviewed.csv"))
	require.NoError(t, task.BeginIntegration("validator-1", "int-find"))
	require.NoError(t, store.CreateTask(ctx, task))

	found, err := store.FindTaskByJobID(ctx, "int-find")
	require.NoError(t, err)
	assert.Equal(t, task.ID(), found.ID())
	assert.Equal(t, "int-find", found.AwaitedJobID())
}

func TestTaskStore_UpdateTask_FullLifecycle(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	task := newCreatedTask(t, "gen-lifecycle")
	require.NoError(t, store.CreateTask(ctx, task))

	loaded, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.CompleteDiffGeneration("abc123", "blob://diff.csv"))
	require.NoError(t, store.UpdateTask(ctx, loaded))

	loaded, err = store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, validation.StatusPendingValidation, loaded.Status())
	assert.Equal(t, "blob://diff.csv", loaded.DiffFilePath())
	assert.False(t, loaded.DiffGeneratedAt().IsZero())
	assert.EqualValues(t, 2, loaded.Version())

	require.NoError(t, loaded.AttachValidatedFile("validator-1", "blob://reviewed.csv"))
	require.NoError(t, loaded.BeginIntegration("validator-1", "int-lifecycle"))
	require.NoError(t, store.UpdateTask(ctx, loaded))

	loaded, err = store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	require.NoError(t, loaded.CompleteIntegration())
	require.NoError(t, store.UpdateTask(ctx, loaded))

	final, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, validation.StatusIntegrated, final.Status())
	assert.Equal(t, validation.IntegrationResultSuccess, final.IntegrationResult())
	assert.False(t, final.IntegrationCompletedAt().IsZero())
}

func TestTaskStore_UpdateTask_VersionConflict(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	task := newCreatedTask(t, "gen-conflict")
	require.NoError(t, store.CreateTask(ctx, task))

	first, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	second, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)

	require.NoError(t, first.CompleteDiffGeneration("abc123", "blob://diff.csv"))
	require.NoError(t, store.UpdateTask(ctx, first))

	require.NoError(t, second.FailGeneration("late failure", ""))
	err = store.UpdateTask(ctx, second)
	assert.ErrorIs(t, err, validation.ErrConcurrentModification)

	// The winner's state is intact.
	loaded, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	assert.Equal(t, validation.StatusPendingValidation, loaded.Status())
}

func TestTaskStore_UpdateTask_Missing(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())

	task := newCreatedTask(t, "gen-missing")
	err := store.UpdateTask(context.Background(), task)
	assert.ErrorIs(t, err, validation.ErrTaskNotFound)
}

func TestTaskStore_ListTasks(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()
	store := NewTaskStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	created := newCreatedTask(t, "gen-list-1")
	require.NoError(t, store.CreateTask(ctx, created))

	pending := newCreatedTask(t, "gen-list-2")
	require.NoError(t, pending.CompleteDiffGeneration("abc123", "blob://diff.csv"))
	require.NoError(t, store.CreateTask(ctx, pending))

	all, err := store.ListTasks(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	status := validation.StatusPendingValidation
	filtered, err := store.ListTasks(ctx, &status)
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, pending.ID(), filtered[0].ID())
}
