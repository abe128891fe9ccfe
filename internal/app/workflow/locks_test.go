package workflow

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestTaskLocks_SerializesSameTask(t *testing.T) {
	t.Parallel()

	locks := NewTaskLocks()
	id := uuid.New()

	counter := 0
	var wg sync.WaitGroup
	for n := 0; n < 64; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock(id)
			counter++
			locks.Unlock(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 64, counter)
}

func TestTaskLocks_EntriesAreReclaimed(t *testing.T) {
	t.Parallel()

	locks := NewTaskLocks()

	for n := 0; n < 100; n++ {
		id := uuid.New()
		locks.Lock(id)
		locks.Unlock(id)
	}

	locks.mu.Lock()
	defer locks.mu.Unlock()
	assert.Empty(t, locks.locks, "released entries must not accumulate")
}

func TestTaskLocks_IndependentTasksDoNotBlock(t *testing.T) {
	t.Parallel()

	locks := NewTaskLocks()
	a, b := uuid.New(), uuid.New()

	locks.Lock(a)
	done := make(chan struct{})
	go func() {
		locks.Lock(b)
		locks.Unlock(b)
		close(done)
	}()
	<-done
	locks.Unlock(a)
}
