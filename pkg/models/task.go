package models

import "time"

// TaskState represents the lifecycle state of a task.
type TaskState string

const (
	// TaskStatePending indicates the task is waiting on dependencies.
	TaskStatePending TaskState = "pending"
	// TaskStateReady indicates all dependencies are satisfied.
	TaskStateReady TaskState = "ready"
	// TaskStateAssigned indicates the scheduler has dispatched the task.
	TaskStateAssigned TaskState = "assigned"
	// TaskStateRunning indicates the executor is working on the task.
	TaskStateRunning TaskState = "running"
	// TaskStateCompleted indicates the task finished successfully.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed indicates the task failed with no retries left.
	TaskStateFailed TaskState = "failed"
	// TaskStateCancelled indicates the task was interrupted or aborted.
	TaskStateCancelled TaskState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s TaskState) Valid() bool {
	switch s {
	case TaskStatePending, TaskStateReady, TaskStateAssigned, TaskStateRunning,
		TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the state is a terminal state.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCancelled:
		return true
	default:
		return false
	}
}

// Priority orders tasks for admission when more work is ready than slots exist.
type Priority int

const (
	// PriorityLow is for background or best-effort work.
	PriorityLow Priority = iota
	// PriorityNormal is the default priority.
	PriorityNormal
	// PriorityHigh is for work that should jump the queue.
	PriorityHigh
	// PriorityCritical is for work that must run as soon as it is ready.
	PriorityCritical
)

// String returns a human-readable representation of the priority.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParsePriority converts a string to a Priority. Unrecognized values
// map to PriorityNormal.
func ParsePriority(s string) Priority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	case "critical":
		return PriorityCritical
	default:
		return PriorityNormal
	}
}

// RetryPolicy holds the parameters for the retry decision function.
// The decision itself lives in internal/retry and is side-effect free.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts allowed. 1 means no retries.
	MaxAttempts int `json:"max_attempts"`
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `json:"initial_delay"`
	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration `json:"max_delay"`
	// BackoffMultiplier scales the delay after each failed attempt.
	BackoffMultiplier float64 `json:"backoff_multiplier"`
	// RetryCategories lists error categories eligible for retry.
	// Empty means the default set (transient, timeout, unknown).
	RetryCategories []ErrorCategory `json:"retry_categories,omitempty"`
}

// DefaultRetryPolicy returns the engine-wide default policy: three attempts
// with exponential backoff, retrying transient, timeout, and unknown errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// Retryable returns true if the given category is eligible for retry
// under this policy.
func (p RetryPolicy) Retryable(cat ErrorCategory) bool {
	cats := p.RetryCategories
	if len(cats) == 0 {
		cats = []ErrorCategory{ErrorTransient, ErrorTimeout, ErrorUnknown}
	}
	for _, c := range cats {
		if c == cat {
			return true
		}
	}
	return false
}

// TaskRecord represents one unit of work in a workflow DAG.
// Identity fields are immutable after insertion; lifecycle fields are
// mutated exclusively by the scheduler loop.
type TaskRecord struct {
	// ID is the unique identifier for this task within a DAG.
	ID string `json:"id"`
	// Name is the short human-readable description of the task.
	Name string `json:"name"`
	// Priority orders admission among ready tasks.
	Priority Priority `json:"priority"`
	// Timeout is the per-attempt execution timeout. Zero means no timeout.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Dependencies lists task IDs that must complete before this task starts.
	Dependencies []string `json:"dependencies,omitempty"`
	// State is the current lifecycle state.
	State TaskState `json:"state"`
	// Attempts is the number of execution attempts made so far.
	Attempts int `json:"attempts"`
	// RetryPolicy overrides the workflow-level policy when non-nil.
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`
	// Interruptible marks the task as accepting cooperative interrupts.
	Interruptible bool `json:"interruptible,omitempty"`
	// StreamingEnabled marks the task as emitting progress events.
	StreamingEnabled bool `json:"streaming_enabled,omitempty"`
	// RequestedKeys lists reserved context keys this task explicitly wants
	// passed through to its executor.
	RequestedKeys []string `json:"requested_keys,omitempty"`
	// Seq is the insertion sequence number, used as a stable tie-break
	// when priorities are equal.
	Seq int `json:"seq"`
	// StartedAt is when the most recent attempt began.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Result holds the most recent attempt's outcome.
	Result *TaskResult `json:"result,omitempty"`
	// Context is a mutable key-value bag for interrupt reasons,
	// streaming flags, and similar bookkeeping.
	Context map[string]any `json:"context,omitempty"`
}

// Blocked reports whether the task starved: still pending at workflow end
// because a dependency never completed. Distinct from failed.
func (t *TaskRecord) Blocked() bool {
	return t.State == TaskStatePending || t.State == TaskStateReady
}
