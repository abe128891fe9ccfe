package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diffbridge/diffbridge/internal/domain/validation"
)

func TestTaskStore_VersionConflict(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()

	task, err := validation.NewTask("feature/x", "", "creator-1")
	require.NoError(t, err)
	require.NoError(t, task.RecordGenerationDispatch("gen-1"))
	require.NoError(t, store.CreateTask(ctx, task))

	first, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)
	second, err := store.GetTask(ctx, task.ID())
	require.NoError(t, err)

	require.NoError(t, first.CompleteDiffGeneration("abc123", "blob://diff.csv"))
	require.NoError(t, store.UpdateTask(ctx, first))

	require.NoError(t, second.FailGeneration("late", ""))
	assert.ErrorIs(t, store.UpdateTask(ctx, second), validation.ErrConcurrentModification)
}

func TestTaskStore_FindTaskByJobID(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()

	task, err := validation.NewTask("feature/x", "", "creator-1")
	require.NoError(t, err)
	require.NoError(t, task.RecordGenerationDispatch("gen-1"))
	require.NoError(t, store.CreateTask(ctx, task))

	found, err := store.FindTaskByJobID(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, task.ID(), found.ID())

	_, err = store.FindTaskByJobID(ctx, "")
	assert.ErrorIs(t, err, validation.ErrNoTaskAwaitingJob)
}

func TestTaskStore_ListTasksNewestFirst(t *testing.T) {
	t.Parallel()

	store := NewTaskStore()
	ctx := context.Background()

	for _, branch := range []string{"a", "b", "c"} {
		task, err := validation.NewTask(branch, "", "creator-1")
		require.NoError(t, err)
		require.NoError(t, store.CreateTask(ctx, task))
	}

	tasks, err := store.ListTasks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	for i := 1; i < len(tasks); i++ {
		assert.False(t, tasks[i].CreatedAt().After(tasks[i-1].CreatedAt()))
	}
}
