package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/tasktrack/apiserver/internal/mq"
	"github.com/tasktrack/apiserver/types"
)

// Task lifecycle event names.
const (
	EventTaskCreated   = "task.created"
	EventTaskCompleted = "task.completed"
	EventTaskReopened  = "task.reopened"
)

// DefaultEventChannel is the broker channel task events publish to.
const DefaultEventChannel = "task-events"

// TaskEvents publishes task lifecycle events to a message broker.
// A nil *TaskEvents is a no-op, so callers never guard the calls.
// Publish failures are logged and never surface to the request.
type TaskEvents struct {
	publisher mq.Publisher
	channel   string
}

func NewTaskEvents(publisher mq.Publisher, channel string) *TaskEvents {
	if channel == "" {
		channel = DefaultEventChannel
	}
	return &TaskEvents{publisher: publisher, channel: channel}
}

// taskEvent is the wire payload for task lifecycle events.
type taskEvent struct {
	Event string     `json:"event"`
	Task  types.Task `json:"task"`
}

func (e *TaskEvents) Created(ctx context.Context, task types.Task) {
	e.publish(ctx, EventTaskCreated, task)
}

func (e *TaskEvents) Completed(ctx context.Context, task types.Task) {
	e.publish(ctx, EventTaskCompleted, task)
}

func (e *TaskEvents) Reopened(ctx context.Context, task types.Task) {
	e.publish(ctx, EventTaskReopened, task)
}

func (e *TaskEvents) publish(ctx context.Context, event string, task types.Task) {
	if e == nil || e.publisher == nil {
		return
	}

	data, err := json.Marshal(taskEvent{Event: event, Task: task})
	if err != nil {
		log.Printf("task events: marshal %s: %v", event, err)
		return
	}

	attrs := map[string]string{"event": event}
	if _, err := e.publisher.Publish(ctx, e.channel, data, attrs); err != nil {
		log.Printf("task events: publish %s: %v", event, err)
	}
}
