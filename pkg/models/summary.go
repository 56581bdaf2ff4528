package models

import "time"

// TaskOutcome is the per-task slice of a workflow summary.
type TaskOutcome struct {
	// ID is the task identifier.
	ID string `json:"id"`
	// Name is the task's human-readable name.
	Name string `json:"name"`
	// State is the task's state at workflow end.
	State TaskState `json:"state"`
	// Blocked is true if the task starved because a dependency never completed.
	Blocked bool `json:"blocked,omitempty"`
	// Attempts is the number of execution attempts made.
	Attempts int `json:"attempts"`
	// Error is the last failure, for failed or cancelled tasks.
	Error *ErrorRecord `json:"error,omitempty"`
	// Duration is the wall-clock time from first start to terminal state.
	Duration time.Duration `json:"duration,omitempty"`
}

// WorkflowSummary is the aggregate outcome of one workflow run.
// A workflow with zero tasks has SuccessRate 100 by definition.
type WorkflowSummary struct {
	// Total is the number of tasks in the DAG.
	Total int `json:"total"`
	// Completed is the number of tasks that finished successfully.
	Completed int `json:"completed"`
	// Failed is the number of tasks that exhausted their retries.
	Failed int `json:"failed"`
	// Cancelled is the number of interrupted or aborted tasks.
	Cancelled int `json:"cancelled"`
	// Blocked is the number of tasks that starved waiting on a
	// dependency that never completed. Reported distinctly from Failed.
	Blocked int `json:"blocked"`
	// SuccessRate is Completed / Total as a percentage.
	SuccessRate float64 `json:"success_rate"`
	// StartedAt is when the scheduler loop began.
	StartedAt time.Time `json:"started_at"`
	// Duration is the total wall-clock time of the run.
	Duration time.Duration `json:"duration"`
	// Tasks holds the per-task terminal outcomes, in insertion order.
	Tasks []TaskOutcome `json:"tasks"`
}

// AllCompleted returns true if every task finished successfully.
func (s *WorkflowSummary) AllCompleted() bool {
	return s.Completed == s.Total
}
