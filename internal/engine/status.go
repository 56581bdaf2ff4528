package engine

import (
	"sort"

	"github.com/milad-o/agenticflow/pkg/models"
)

// Status is a point-in-time snapshot of a workflow run, safe to take while
// the scheduler loop is active.
type Status struct {
	// Started is true once the scheduler loop has begun.
	Started bool `json:"started"`
	// Aborted is true if a workflow-level abort was requested.
	Aborted bool `json:"aborted"`
	// TotalTasks is the number of tasks in the DAG.
	TotalTasks int `json:"total_tasks"`
	// StateCounts is the number of tasks per lifecycle state.
	StateCounts map[models.TaskState]int `json:"state_counts"`
	// Running lists the IDs of currently-executing tasks, sorted.
	Running []string `json:"running,omitempty"`
	// PendingRetry lists the IDs of tasks waiting out a backoff delay, sorted.
	PendingRetry []string `json:"pending_retry,omitempty"`
	// Coordinators is the number of connected coordinators.
	Coordinators int `json:"coordinators"`
	// Subscriptions is the number of active stream subscriptions.
	Subscriptions int `json:"subscriptions"`
	// DroppedEvents is the number of events dropped due to slow consumers.
	DroppedEvents uint64 `json:"dropped_events"`
	// Summary is the final aggregate outcome, once the run has finished.
	Summary *models.WorkflowSummary `json:"summary,omitempty"`
}

// ComprehensiveStatus reports the engine's current view of the run:
// per-state counts, in-flight work, coordination health, and the final
// summary when available.
func (e *Engine) ComprehensiveStatus() Status {
	e.mu.Lock()
	running := make([]string, 0, len(e.running))
	for id := range e.running {
		running = append(running, id)
	}
	heldIDs := make([]string, 0, len(e.held))
	for id := range e.held {
		heldIDs = append(heldIDs, id)
	}
	started := e.started
	aborted := e.aborted
	summary := e.summary
	e.mu.Unlock()

	sort.Strings(running)
	sort.Strings(heldIDs)

	return Status{
		Started:       started,
		Aborted:       aborted,
		TotalTasks:    e.graph.Size(),
		StateCounts:   e.graph.StateCounts(),
		Running:       running,
		PendingRetry:  heldIDs,
		Coordinators:  e.coord.CoordinatorCount(),
		Subscriptions: e.coord.SubscriptionCount(),
		DroppedEvents: e.coord.DroppedCount(),
		Summary:       summary,
	}
}
