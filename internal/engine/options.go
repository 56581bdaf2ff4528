package engine

import (
	"time"

	"github.com/milad-o/agenticflow/pkg/models"
)

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

// engineOptions holds all optional configuration.
type engineOptions struct {
	maxConcurrent     int
	defaultRetry      models.RetryPolicy
	globals           map[string]any
	heartbeatInterval time.Duration
	eventBufferSize   int
	debugLog          func(format string, args ...any)
}

func defaultOptions() *engineOptions {
	return &engineOptions{
		maxConcurrent:     4,
		defaultRetry:      models.DefaultRetryPolicy(),
		heartbeatInterval: 5 * time.Second,
		eventBufferSize:   64,
		debugLog:          func(format string, args ...any) {},
	}
}

// WithMaxConcurrentTasks bounds the number of simultaneously running tasks.
func WithMaxConcurrentTasks(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.maxConcurrent = n
		}
	}
}

// WithDefaultRetryPolicy sets the workflow-level retry policy applied to
// tasks without their own override.
func WithDefaultRetryPolicy(p models.RetryPolicy) Option {
	return func(o *engineOptions) { o.defaultRetry = p }
}

// WithGlobals supplies caller-provided key-value pairs merged into every
// task's execution context, subject to the reserved-key filter.
func WithGlobals(globals map[string]any) Option {
	return func(o *engineOptions) { o.globals = globals }
}

// WithHeartbeatInterval sets the quiet-period interval after which a
// synthetic heartbeat event is emitted. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(o *engineOptions) { o.heartbeatInterval = d }
}

// WithEventBufferSize sets the per-coordinator event buffer size.
func WithEventBufferSize(n int) Option {
	return func(o *engineOptions) {
		if n > 0 {
			o.eventBufferSize = n
		}
	}
}

// WithDebugLog sets the debug logging function.
func WithDebugLog(fn func(format string, args ...any)) Option {
	return func(o *engineOptions) {
		if fn != nil {
			o.debugLog = fn
		}
	}
}

// TaskOption configures a task at submission time.
type TaskOption func(*models.TaskRecord)

// WithDependencies declares the task IDs that must complete before this
// task may start.
func WithDependencies(deps ...string) TaskOption {
	return func(t *models.TaskRecord) { t.Dependencies = deps }
}

// WithPriority sets the task's admission priority.
func WithPriority(p models.Priority) TaskOption {
	return func(t *models.TaskRecord) { t.Priority = p }
}

// WithTimeout sets the per-attempt execution timeout.
func WithTimeout(d time.Duration) TaskOption {
	return func(t *models.TaskRecord) { t.Timeout = d }
}

// WithRetryPolicy overrides the workflow-level retry policy for this task.
func WithRetryPolicy(p models.RetryPolicy) TaskOption {
	return func(t *models.TaskRecord) { t.RetryPolicy = &p }
}

// WithInterruptible marks the task as accepting cooperative interrupts.
func WithInterruptible() TaskOption {
	return func(t *models.TaskRecord) { t.Interruptible = true }
}

// WithStreaming enables progress events for the task.
func WithStreaming() TaskOption {
	return func(t *models.TaskRecord) { t.StreamingEnabled = true }
}

// WithRequestedKeys names reserved context keys the task's executor
// explicitly wants passed through from the globals.
func WithRequestedKeys(keys ...string) TaskOption {
	return func(t *models.TaskRecord) { t.RequestedKeys = keys }
}
