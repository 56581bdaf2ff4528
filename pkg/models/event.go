package models

import "time"

// EventType represents the type of coordination event.
type EventType string

const (
	// EventTaskStarted indicates a task has started execution.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task reached a failed or cancelled state.
	EventTaskFailed EventType = "task_failed"
	// EventTaskProgress carries incremental progress from a running task.
	EventTaskProgress EventType = "task_progress"
	// EventRealTimeUpdate carries scheduler-level updates such as retry scheduling.
	EventRealTimeUpdate EventType = "real_time_update"
	// EventHeartbeat is a synthetic liveness signal emitted during quiet periods.
	EventHeartbeat EventType = "heartbeat"
	// EventWorkflowCompleted indicates the whole workflow reached a terminal state.
	EventWorkflowCompleted EventType = "workflow_completed"
)

// Valid returns true if the event type is a known value.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskStarted, EventTaskCompleted, EventTaskFailed, EventTaskProgress,
		EventRealTimeUpdate, EventHeartbeat, EventWorkflowCompleted:
		return true
	default:
		return false
	}
}

// CoordinationEvent is a discrete notification of a scheduler-observed
// state change, delivered to subscribed coordinators. Events are ephemeral:
// they are not persisted unless a subscriber chooses to log them.
type CoordinationEvent struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// TaskID is the ID of the related task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`
	// Payload carries free-form key-value data about the event.
	Payload map[string]any `json:"payload,omitempty"`
}
