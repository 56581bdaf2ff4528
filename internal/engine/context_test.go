package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/milad-o/agenticflow/pkg/models"
)

// capture returns an executor that records the execution context it received.
func capture(into *ExecutionContext, mu *sync.Mutex) Executor {
	return ExecutorFunc(func(ctx context.Context, task *models.TaskRecord, ec ExecutionContext) models.TaskResult {
		mu.Lock()
		*into = ec
		mu.Unlock()
		return models.Success("captured")
	})
}

func TestContextCarriesDependencyResults(t *testing.T) {
	e := New(WithHeartbeatInterval(0))

	mustAddTask(t, e, "fetch", ExecutorFunc(func(ctx context.Context, task *models.TaskRecord, ec ExecutionContext) models.TaskResult {
		return models.Success(map[string]any{"rows": 42})
	}))

	var mu sync.Mutex
	var got ExecutionContext
	mustAddTask(t, e, "report", capture(&got, &mu), WithDependencies("fetch"))

	if _, err := e.ExecuteWorkflow(context.Background()); err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	val, ok := got["fetch_result"]
	if !ok {
		t.Fatal("expected fetch_result in execution context")
	}
	m, ok := val.(map[string]any)
	if !ok || m["rows"] != 42 {
		t.Errorf("unexpected dependency result: %#v", val)
	}
}

func TestContextMergesGlobals(t *testing.T) {
	e := New(
		WithHeartbeatInterval(0),
		WithGlobals(map[string]any{
			"workspace":           "/tmp/run",
			"interrupt_requested": "shadow attempt",
		}),
	)

	var mu sync.Mutex
	var got ExecutionContext
	mustAddTask(t, e, "a", capture(&got, &mu))

	if _, err := e.ExecuteWorkflow(context.Background()); err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got["workspace"] != "/tmp/run" {
		t.Errorf("global not passed through: %#v", got["workspace"])
	}
	if _, present := got[KeyInterruptRequested]; present {
		t.Error("reserved key from globals must be filtered for non-requesting task")
	}
}

func TestContextRequestedKeysPassThrough(t *testing.T) {
	e := New(
		WithHeartbeatInterval(0),
		WithGlobals(map[string]any{"workflow_globals": map[string]any{"env": "test"}}),
	)

	var mu sync.Mutex
	var got ExecutionContext
	mustAddTask(t, e, "a", capture(&got, &mu), WithRequestedKeys(KeyWorkflowGlobals))

	if _, err := e.ExecuteWorkflow(context.Background()); err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	raw, ok := got[KeyWorkflowGlobals].(map[string]any)
	if !ok || raw["env"] != "test" {
		t.Errorf("requested reserved key not passed through: %#v", got[KeyWorkflowGlobals])
	}
}

func TestContextGlobalCannotShadowDependencyResult(t *testing.T) {
	e := New(
		WithHeartbeatInterval(0),
		WithGlobals(map[string]any{"dep_result": "from globals"}),
	)

	mustAddTask(t, e, "dep", ExecutorFunc(func(ctx context.Context, task *models.TaskRecord, ec ExecutionContext) models.TaskResult {
		return models.Success("from dependency")
	}))

	var mu sync.Mutex
	var got ExecutionContext
	mustAddTask(t, e, "sink", capture(&got, &mu), WithDependencies("dep"))

	if _, err := e.ExecuteWorkflow(context.Background()); err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if got["dep_result"] != "from dependency" {
		t.Errorf("dependency result shadowed by global: %#v", got["dep_result"])
	}
}

func TestContextInterruptTokenOnlyForInterruptible(t *testing.T) {
	e := New(WithHeartbeatInterval(0))

	var mu sync.Mutex
	var plain, interruptible ExecutionContext
	mustAddTask(t, e, "plain", capture(&plain, &mu))
	mustAddTask(t, e, "soft", capture(&interruptible, &mu), WithInterruptible())

	if _, err := e.ExecuteWorkflow(context.Background()); err != nil {
		t.Fatalf("ExecuteWorkflow failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, ok := plain[KeyInterruptRequested]; ok {
		t.Error("non-interruptible task must not receive an interrupt token")
	}
	token, ok := interruptible[KeyInterruptRequested].(*InterruptToken)
	if !ok {
		t.Fatal("interruptible task must receive an interrupt token")
	}
	if token.Interrupted() {
		t.Error("fresh token must not report interrupted")
	}
	if InterruptRequested(interruptible) {
		t.Error("helper must report false before any interrupt")
	}
}

func TestProgressReporterEmitsEvents(t *testing.T) {
	e := New(WithHeartbeatInterval(0))

	body := ExecutorFunc(func(ctx context.Context, task *models.TaskRecord, ec ExecutionContext) models.TaskResult {
		ReportProgress(ec, "halfway", map[string]any{"percent": 50})
		return models.Success(nil)
	})
	mustAddTask(t, e, "stream", body, WithStreaming())

	events, err := e.ExecuteWorkflowWithStreaming(context.Background())
	if err != nil {
		t.Fatalf("ExecuteWorkflowWithStreaming failed: %v", err)
	}

	var progress []models.CoordinationEvent
	for ev := range events {
		if ev.Type == models.EventTaskProgress {
			progress = append(progress, ev)
		}
	}

	if len(progress) != 1 {
		t.Fatalf("expected 1 progress event, got %d", len(progress))
	}
	if progress[0].TaskID != "stream" || progress[0].Payload["message"] != "halfway" {
		t.Errorf("unexpected progress event: %+v", progress[0])
	}
	if progress[0].Payload["percent"] != 50 {
		t.Errorf("progress data not merged into payload: %+v", progress[0].Payload)
	}
}

func TestReportProgressNoopWithoutStreaming(t *testing.T) {
	ec := make(ExecutionContext)
	// Must not panic.
	ReportProgress(ec, "ignored", nil)
	if InterruptRequested(ec) {
		t.Error("empty context must not report an interrupt")
	}
	if InterruptReason(ec) != "" {
		t.Error("empty context must have no interrupt reason")
	}
}
