package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/milad-o/agenticflow/pkg/models"
)

func event(t models.EventType, taskID string, payload map[string]any) models.CoordinationEvent {
	return models.CoordinationEvent{Type: t, TaskID: taskID, Timestamp: time.Now(), Payload: payload}
}

func TestApplyTaskLifecycle(t *testing.T) {
	a := New("test", nil)

	a.apply(event(models.EventTaskStarted, "build", map[string]any{"name": "Build", "attempt": 1}))
	row := a.rows["build"]
	if row == nil || row.state != models.TaskStateRunning {
		t.Fatalf("expected running row, got %+v", row)
	}
	if row.name != "Build" {
		t.Errorf("expected name Build, got %s", row.name)
	}

	a.apply(event(models.EventTaskCompleted, "build", map[string]any{"attempts": 1}))
	if row.state != models.TaskStateCompleted {
		t.Errorf("expected completed, got %s", row.state)
	}
}

func TestApplyFailureDetail(t *testing.T) {
	a := New("test", nil)

	a.apply(event(models.EventTaskFailed, "deploy", map[string]any{
		"state":   string(models.TaskStateFailed),
		"message": "connection refused",
	}))

	row := a.rows["deploy"]
	if row.state != models.TaskStateFailed {
		t.Errorf("expected failed, got %s", row.state)
	}
	if row.detail != "connection refused" {
		t.Errorf("expected failure detail, got %q", row.detail)
	}
}

func TestApplyRetryScheduled(t *testing.T) {
	a := New("test", nil)

	a.apply(event(models.EventTaskStarted, "flaky", map[string]any{"attempt": 1}))
	a.apply(event(models.EventRealTimeUpdate, "flaky", map[string]any{
		"phase": "retry_scheduled",
		"delay": "500ms",
	}))

	row := a.rows["flaky"]
	if row.state != models.TaskStatePending {
		t.Errorf("expected pending during backoff, got %s", row.state)
	}
	if row.detail != "retrying in 500ms" {
		t.Errorf("unexpected detail: %q", row.detail)
	}
}

func TestWorkflowCompletedFinishes(t *testing.T) {
	a := New("test", nil)

	a.apply(event(models.EventWorkflowCompleted, "", map[string]any{
		"total": 2, "completed": 2, "success_rate": 100.0,
	}))
	if !a.done {
		t.Error("workflow_completed must mark the app done")
	}
	if a.summary == nil {
		t.Error("summary payload must be retained")
	}
}

func TestHeartbeatIgnored(t *testing.T) {
	a := New("test", nil)
	a.apply(event(models.EventHeartbeat, "", nil))
	if len(a.rows) != 0 {
		t.Error("heartbeat must not create a task row")
	}
}

func TestUpdateConsumesStream(t *testing.T) {
	events := make(chan models.CoordinationEvent, 4)
	a := New("test", events)

	events <- event(models.EventTaskStarted, "a", map[string]any{"attempt": 1})
	events <- event(models.EventWorkflowCompleted, "", map[string]any{"total": 1, "completed": 1})
	close(events)

	// Drive the model the way bubbletea would.
	msg := a.waitForEvent()()
	model, cmd := a.Update(msg)
	a = model.(*App)
	if a.done {
		t.Fatal("first event must not finish the run")
	}
	if cmd == nil {
		t.Fatal("expected follow-up command to keep reading the stream")
	}

	msg = cmd()
	model, _ = a.Update(msg)
	a = model.(*App)
	if !a.done {
		t.Error("workflow_completed must finish the run")
	}
}

func TestQuitKey(t *testing.T) {
	a := New("test", nil)
	model, cmd := a.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	a = model.(*App)
	if !a.quitting {
		t.Error("q must set quitting")
	}
	if cmd == nil {
		t.Error("q must return tea.Quit")
	}
}

func TestViewRendersRows(t *testing.T) {
	a := New("demo", nil)
	a.apply(event(models.EventTaskStarted, "build", map[string]any{"name": "Build", "attempt": 2}))

	out := a.View()
	if out == "" {
		t.Fatal("empty view")
	}
	if !containsAll(out, "demo", "Build", "running") {
		t.Errorf("view missing expected content:\n%s", out)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
