package graph

import (
	"errors"
	"strings"
	"testing"

	"github.com/milad-o/agenticflow/pkg/models"
)

func task(id string, deps ...string) *models.TaskRecord {
	return &models.TaskRecord{ID: id, Name: id, Dependencies: deps}
}

func TestAddTask(t *testing.T) {
	g := New()

	if err := g.AddTask(task("a")); err != nil {
		t.Fatalf("failed to add task a: %v", err)
	}
	if err := g.AddTask(task("b", "a")); err != nil {
		t.Fatalf("failed to add task b: %v", err)
	}

	if g.Size() != 2 {
		t.Errorf("expected 2 tasks, got %d", g.Size())
	}

	rec, err := g.Get("b")
	if err != nil {
		t.Fatalf("Get(b) failed: %v", err)
	}
	if rec.State != models.TaskStatePending {
		t.Errorf("expected pending state, got %s", rec.State)
	}
	if rec.Seq != 1 {
		t.Errorf("expected seq 1, got %d", rec.Seq)
	}
}

func TestAddTaskDuplicate(t *testing.T) {
	g := New()
	if err := g.AddTask(task("a")); err != nil {
		t.Fatalf("failed to add task: %v", err)
	}

	err := g.AddTask(task("a"))
	if err == nil {
		t.Fatal("expected error adding duplicate task")
	}
	if !errors.Is(err, ErrDuplicateTask) {
		t.Errorf("expected ErrDuplicateTask, got %v", err)
	}
	if g.Size() != 1 {
		t.Errorf("duplicate insertion mutated graph: size %d", g.Size())
	}
}

func TestAddTaskMissingDependency(t *testing.T) {
	g := New()

	err := g.AddTask(task("x", "y"))
	if err == nil {
		t.Fatal("expected error for missing dependency")
	}
	if !errors.Is(err, ErrMissingDependency) {
		t.Errorf("expected ErrMissingDependency, got %v", err)
	}
	if !strings.Contains(err.Error(), "y") {
		t.Errorf("expected error message to name the missing dependency, got %q", err.Error())
	}

	// No partial insertion.
	if _, err := g.Get("x"); err == nil {
		t.Error("task x should not be present after failed insertion")
	}
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got size %d", g.Size())
	}
}

func TestAddTaskSelfDependency(t *testing.T) {
	g := New()

	err := g.AddTask(task("a", "a"))
	if err == nil {
		t.Fatal("expected error for self-dependency")
	}
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
	if g.Size() != 0 {
		t.Errorf("expected empty graph after rejected insertion, got size %d", g.Size())
	}
}

func TestGetNotFound(t *testing.T) {
	g := New()

	_, err := g.Get("nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}

	if _, err := g.GetDependencies("nope"); err == nil {
		t.Error("expected error from GetDependencies on absent task")
	}
	if _, err := g.GetDependents("nope"); err == nil {
		t.Error("expected error from GetDependents on absent task")
	}
}

func TestDependentsIndex(t *testing.T) {
	g := New()
	mustAdd(t, g, task("a"))
	mustAdd(t, g, task("b", "a"))
	mustAdd(t, g, task("c", "a"))

	deps, err := g.GetDependents("a")
	if err != nil {
		t.Fatalf("GetDependents failed: %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependents of a, got %d", len(deps))
	}
}

func TestReadyTasks(t *testing.T) {
	g := New()
	mustAdd(t, g, task("a"))
	mustAdd(t, g, task("b", "a"))
	mustAdd(t, g, task("c", "a"))
	mustAdd(t, g, task("d", "b", "c"))

	ready := readyIDs(g)
	if len(ready) != 1 || ready[0] != "a" {
		t.Fatalf("expected only a ready, got %v", ready)
	}

	// Completing a unblocks b and c but not d.
	setState(t, g, "a", models.TaskStateCompleted)
	ready = readyIDs(g)
	if len(ready) != 2 {
		t.Fatalf("expected b and c ready, got %v", ready)
	}

	setState(t, g, "b", models.TaskStateCompleted)
	setState(t, g, "c", models.TaskStateCompleted)
	ready = readyIDs(g)
	if len(ready) != 1 || ready[0] != "d" {
		t.Fatalf("expected only d ready, got %v", ready)
	}
}

func TestReadyTasksFailedDependencyStarves(t *testing.T) {
	g := New()
	mustAdd(t, g, task("a"))
	mustAdd(t, g, task("b", "a"))

	// A failed dependency never satisfies readiness: b starves as pending.
	setState(t, g, "a", models.TaskStateFailed)
	if ready := readyIDs(g); len(ready) != 0 {
		t.Errorf("expected no ready tasks with failed dependency, got %v", ready)
	}

	rec, _ := g.Get("b")
	if rec.State != models.TaskStatePending {
		t.Errorf("expected b to remain pending, got %s", rec.State)
	}
}

func TestValidateReportsAllViolations(t *testing.T) {
	g := New()
	mustAdd(t, g, task("a"))
	mustAdd(t, g, task("b", "a"))

	// Corrupt the graph behind the insertion checks to exercise Validate.
	recA, _ := g.Get("a")
	recA.Dependencies = []string{"b"} // forms a cycle a -> b -> a
	recB, _ := g.Get("b")
	recB.Dependencies = append(recB.Dependencies, "ghost")

	violations := g.Validate()
	if len(violations) < 2 {
		t.Fatalf("expected at least 2 violations, got %d: %v", len(violations), violations)
	}

	var sawMissing, sawCycle bool
	for _, v := range violations {
		if errors.Is(v, ErrMissingDependency) {
			sawMissing = true
		}
		if errors.Is(v, ErrCycleDetected) {
			sawCycle = true
		}
	}
	if !sawMissing || !sawCycle {
		t.Errorf("expected missing-dependency and cycle violations, got %v", violations)
	}
}

func TestValidateCleanGraph(t *testing.T) {
	g := New()
	mustAdd(t, g, task("a"))
	mustAdd(t, g, task("b", "a"))
	mustAdd(t, g, task("c", "a", "b"))

	if violations := g.Validate(); len(violations) != 0 {
		t.Errorf("expected no violations, got %v", violations)
	}
}

func TestIsComplete(t *testing.T) {
	g := New()
	if !g.IsComplete() {
		t.Error("empty graph should be trivially complete")
	}

	mustAdd(t, g, task("a"))
	if g.IsComplete() {
		t.Error("graph with pending task should not be complete")
	}

	setState(t, g, "a", models.TaskStateCancelled)
	if !g.IsComplete() {
		t.Error("graph with all-terminal tasks should be complete")
	}
}

func TestStateCounts(t *testing.T) {
	g := New()
	mustAdd(t, g, task("a"))
	mustAdd(t, g, task("b"))
	mustAdd(t, g, task("c"))
	setState(t, g, "a", models.TaskStateCompleted)
	setState(t, g, "b", models.TaskStateFailed)

	counts := g.StateCounts()
	if counts[models.TaskStateCompleted] != 1 || counts[models.TaskStateFailed] != 1 || counts[models.TaskStatePending] != 1 {
		t.Errorf("unexpected state counts: %v", counts)
	}
}

func mustAdd(t *testing.T, g *DAG, rec *models.TaskRecord) {
	t.Helper()
	if err := g.AddTask(rec); err != nil {
		t.Fatalf("failed to add task %s: %v", rec.ID, err)
	}
}

func setState(t *testing.T, g *DAG, id string, state models.TaskState) {
	t.Helper()
	rec, err := g.Get(id)
	if err != nil {
		t.Fatalf("task %s not found: %v", id, err)
	}
	rec.State = state
}

func readyIDs(g *DAG) []string {
	var ids []string
	for _, rec := range g.ReadyTasks() {
		ids = append(ids, rec.ID)
	}
	return ids
}
