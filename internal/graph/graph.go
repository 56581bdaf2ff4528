// Package graph provides the dependency DAG that owns all task records
// for one workflow run and answers readiness and structural-validity queries.
package graph

import (
	"sort"
	"sync"

	"github.com/milad-o/agenticflow/pkg/models"
)

// DAG is a directed acyclic graph of task dependencies. Tasks are nodes,
// and edges represent "blocked by" relationships. The DAG exclusively owns
// all task records; the scheduler mutates them through it.
type DAG struct {
	mu sync.RWMutex
	// tasks maps task ID to its record.
	tasks map[string]*models.TaskRecord
	// dependents is the reverse-dependency index: task ID to IDs of tasks
	// that depend on it. Maintained incrementally as tasks are added.
	dependents map[string][]string
	// order holds task IDs in insertion order, for stable tie-breaks
	// and summary reporting.
	order []string
	// debugLog is an optional logging function.
	debugLog func(format string, args ...any)
}

// New creates a new empty DAG.
func New() *DAG {
	return &DAG{
		tasks:      make(map[string]*models.TaskRecord),
		dependents: make(map[string][]string),
		debugLog:   func(format string, args ...any) {}, // no-op by default
	}
}

// SetDebugLog sets the debug logging function.
func (g *DAG) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		g.debugLog = fn
	}
}

// AddTask inserts a task record. It fails with a StructuralError if the
// task ID is already present, a declared dependency is absent, or the
// insertion would create a cycle. On failure nothing is mutated.
func (g *DAG) AddTask(rec *models.TaskRecord) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[rec.ID]; exists {
		return structuralf(ErrDuplicateTask, rec.ID, "already present in graph")
	}

	for _, depID := range rec.Dependencies {
		if depID == rec.ID {
			return cycleError(rec.ID, []string{rec.ID, rec.ID})
		}
		if _, exists := g.tasks[depID]; !exists {
			return structuralf(ErrMissingDependency, rec.ID, "depends on unknown task %s", depID)
		}
	}

	// Reachability check: a cycle through the new task would require a path
	// from one of its dependencies back to itself.
	if path := g.findPathLocked(rec.Dependencies, rec.ID); path != nil {
		return cycleError(rec.ID, append([]string{rec.ID}, path...))
	}

	rec.Seq = len(g.order)
	if rec.State == "" {
		rec.State = models.TaskStatePending
	}
	g.tasks[rec.ID] = rec
	g.order = append(g.order, rec.ID)
	for _, depID := range rec.Dependencies {
		g.dependents[depID] = append(g.dependents[depID], rec.ID)
	}

	g.debugLog("[graph.AddTask] added task %s (deps=%v), graph now has %d tasks", rec.ID, rec.Dependencies, len(g.tasks))
	return nil
}

// findPathLocked performs a DFS from the given start nodes and returns a
// path to the target, or nil if the target is unreachable. Caller holds the lock.
func (g *DAG) findPathLocked(starts []string, target string) []string {
	visited := make(map[string]bool)
	var dfs func(id string) []string
	dfs = func(id string) []string {
		if id == target {
			return []string{id}
		}
		if visited[id] {
			return nil
		}
		visited[id] = true
		rec, ok := g.tasks[id]
		if !ok {
			return nil
		}
		for _, depID := range rec.Dependencies {
			if path := dfs(depID); path != nil {
				return append([]string{id}, path...)
			}
		}
		return nil
	}

	for _, start := range starts {
		if path := dfs(start); path != nil {
			return path
		}
	}
	return nil
}

// Update runs fn on the named task's record while holding the graph's
// write lock. All record mutation after insertion must go through here so
// concurrent readers (ReadyTasks, StateCounts, snapshots) observe a
// consistent state.
func (g *DAG) Update(taskID string, fn func(*models.TaskRecord)) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	rec, ok := g.tasks[taskID]
	if !ok {
		return &NotFoundError{TaskID: taskID}
	}
	fn(rec)
	return nil
}

// Get returns the record for a task ID, or a NotFoundError.
func (g *DAG) Get(taskID string) (*models.TaskRecord, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.tasks[taskID]
	if !ok {
		return nil, &NotFoundError{TaskID: taskID}
	}
	return rec, nil
}

// GetDependencies returns the IDs of tasks the given task depends on.
func (g *DAG) GetDependencies(taskID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.tasks[taskID]
	if !ok {
		return nil, &NotFoundError{TaskID: taskID}
	}
	deps := make([]string, len(rec.Dependencies))
	copy(deps, rec.Dependencies)
	return deps, nil
}

// GetDependents returns the IDs of tasks that depend on the given task.
func (g *DAG) GetDependents(taskID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.tasks[taskID]; !ok {
		return nil, &NotFoundError{TaskID: taskID}
	}
	deps := make([]string, len(g.dependents[taskID]))
	copy(deps, g.dependents[taskID])
	return deps, nil
}

// ReadyTasks returns all tasks whose state is pending and all of whose
// dependencies are completed, in insertion order. This is the sole
// readiness predicate and is recomputed fresh on every call.
func (g *DAG) ReadyTasks() []*models.TaskRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.TaskRecord
	for _, id := range g.order {
		rec := g.tasks[id]
		if rec.State != models.TaskStatePending {
			continue
		}

		allDepsComplete := true
		for _, depID := range rec.Dependencies {
			if dep, ok := g.tasks[depID]; !ok || dep.State != models.TaskStateCompleted {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, rec)
		}
	}

	g.debugLog("[graph.ReadyTasks] %d of %d tasks ready", len(ready), len(g.tasks))
	return ready
}

// Validate performs a full structural check: dependency existence for every
// task plus acyclicity. It returns an ordered list of violations instead of
// stopping at the first one, so the caller can report all problems at once.
func (g *DAG) Validate() []error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var violations []error
	for _, id := range g.order {
		rec := g.tasks[id]
		for _, depID := range rec.Dependencies {
			if _, ok := g.tasks[depID]; !ok {
				violations = append(violations, structuralf(ErrMissingDependency, id, "depends on unknown task %s", depID))
			}
		}
	}

	if cyclic, path := g.hasCycleLocked(); cyclic {
		start := ""
		if len(path) > 0 {
			start = path[0]
		}
		violations = append(violations, cycleError(start, path))
	}

	return violations
}

// hasCycleLocked detects a cycle via depth-first search with coloring.
// Color states: 0 = white (unvisited), 1 = gray (on recursion stack),
// 2 = black (done). A gray node revisited signals a back edge.
// Caller holds the lock.
func (g *DAG) hasCycleLocked() (bool, []string) {
	colors := make(map[string]int, len(g.tasks))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		rec := g.tasks[id]
		for _, depID := range rec.Dependencies {
			switch colors[depID] {
			case 1:
				cycle = append(append([]string{}, stack...), depID)
				return true
			case 0:
				if _, ok := g.tasks[depID]; ok && visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		stack = stack[:len(stack)-1]
		return false
	}

	// Iterate in insertion order so reported cycles are deterministic.
	for _, id := range g.order {
		if colors[id] == 0 {
			if visit(id) {
				return true, cycle
			}
		}
	}
	return false, nil
}

// IsComplete returns true iff every task is in a terminal state.
// A graph with zero tasks is trivially complete.
func (g *DAG) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, rec := range g.tasks {
		if !rec.State.Terminal() {
			return false
		}
	}
	return true
}

// Size returns the number of tasks in the graph.
func (g *DAG) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}

// Tasks returns all task records in insertion order.
func (g *DAG) Tasks() []*models.TaskRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*models.TaskRecord, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id])
	}
	return out
}

// StateCounts returns the number of tasks in each state.
func (g *DAG) StateCounts() map[models.TaskState]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := make(map[models.TaskState]int)
	for _, rec := range g.tasks {
		counts[rec.State]++
	}
	return counts
}

// TasksInState returns the IDs of tasks currently in the given state, sorted.
func (g *DAG) TasksInState(state models.TaskState) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ids []string
	for id, rec := range g.tasks {
		if rec.State == state {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
