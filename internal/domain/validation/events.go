package validation

import (
	"time"

	"github.com/google/uuid"

	"github.com/diffbridge/diffbridge/internal/domain/events"
)

// Event types relevant to validation tasks:
const (
	EventTypeTaskCreated       events.EventType = "TaskCreated"
	EventTypeTaskStatusChanged events.EventType = "TaskStatusChanged"
)

// TaskCreatedEvent indicates a new validation task entered the workflow.
type TaskCreatedEvent struct {
	occurredAt time.Time
	TaskID     uuid.UUID
	GitBranch  string
	CreatedBy  string
}

func NewTaskCreatedEvent(taskID uuid.UUID, gitBranch, createdBy string) TaskCreatedEvent {
	return TaskCreatedEvent{
		occurredAt: time.Now(),
		TaskID:     taskID,
		GitBranch:  gitBranch,
		CreatedBy:  createdBy,
	}
}

func (e TaskCreatedEvent) EventType() events.EventType { return EventTypeTaskCreated }
func (e TaskCreatedEvent) OccurredAt() time.Time       { return e.occurredAt }

// TaskStatusChangedEvent is emitted after every committed mutation of a task.
// Delivery to subscribers is at-most-once per committed transition; the event
// stream is a convenience, not a durable log, and subscribers needing a full
// catch-up must query current state.
type TaskStatusChangedEvent struct {
	occurredAt    time.Time
	TaskID        uuid.UUID
	PreviousState Status
	NewState      Status
	ChangedFields []string
}

func NewTaskStatusChangedEvent(taskID uuid.UUID, previous, next Status, changedFields []string) TaskStatusChangedEvent {
	return TaskStatusChangedEvent{
		occurredAt:    time.Now(),
		TaskID:        taskID,
		PreviousState: previous,
		NewState:      next,
		ChangedFields: changedFields,
	}
}

func (e TaskStatusChangedEvent) EventType() events.EventType { return EventTypeTaskStatusChanged }
func (e TaskStatusChangedEvent) OccurredAt() time.Time       { return e.occurredAt }
