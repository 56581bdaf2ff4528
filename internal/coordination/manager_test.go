package coordination

import (
	"errors"
	"testing"
	"time"

	"github.com/milad-o/agenticflow/pkg/models"
)

func event(t models.EventType, taskID string) models.CoordinationEvent {
	return models.CoordinationEvent{Type: t, TaskID: taskID, Timestamp: time.Now()}
}

func TestConnectCoordinatorIdempotent(t *testing.T) {
	m := NewManager(8, 0)

	m.ConnectCoordinator("obs-1", "monitor")
	subID, err := m.CreateStreamSubscription("obs-1")
	if err != nil {
		t.Fatalf("failed to create subscription: %v", err)
	}

	// Reconnecting must keep the existing subscription.
	m.ConnectCoordinator("obs-1", "monitor")
	if m.SubscriptionCount() != 1 {
		t.Errorf("expected 1 subscription after reconnect, got %d", m.SubscriptionCount())
	}
	if err := m.CancelSubscription(subID); err != nil {
		t.Errorf("subscription lost after reconnect: %v", err)
	}
}

func TestCreateSubscriptionUnknownCoordinator(t *testing.T) {
	m := NewManager(8, 0)

	_, err := m.CreateStreamSubscription("ghost")
	if !errors.Is(err, ErrUnknownCoordinator) {
		t.Errorf("expected ErrUnknownCoordinator, got %v", err)
	}
}

func TestPublishDelivery(t *testing.T) {
	m := NewManager(8, 0)
	m.ConnectCoordinator("obs-1", "monitor")
	if _, err := m.CreateStreamSubscription("obs-1"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	ch, err := m.StreamUpdates("obs-1")
	if err != nil {
		t.Fatalf("StreamUpdates failed: %v", err)
	}

	m.Publish(event(models.EventTaskStarted, "a"))
	m.Publish(event(models.EventTaskCompleted, "a"))

	first := <-ch
	second := <-ch
	if first.Type != models.EventTaskStarted || second.Type != models.EventTaskCompleted {
		t.Errorf("events out of order: %s then %s", first.Type, second.Type)
	}
}

func TestSubscriptionFilter(t *testing.T) {
	m := NewManager(8, 0)
	m.ConnectCoordinator("obs-1", "monitor")
	if _, err := m.CreateStreamSubscription("obs-1", models.EventTaskFailed); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ch, _ := m.StreamUpdates("obs-1")

	m.Publish(event(models.EventTaskStarted, "a"))
	m.Publish(event(models.EventTaskFailed, "a"))

	got := <-ch
	if got.Type != models.EventTaskFailed {
		t.Errorf("filter leaked event type %s", got.Type)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected extra event: %s", ev.Type)
	default:
	}
}

func TestNoSubscriptionNoDelivery(t *testing.T) {
	m := NewManager(8, 0)
	m.ConnectCoordinator("obs-1", "monitor")
	ch, _ := m.StreamUpdates("obs-1")

	m.Publish(event(models.EventTaskStarted, "a"))

	select {
	case ev := <-ch:
		t.Errorf("coordinator without subscriptions received event %s", ev.Type)
	default:
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	m := NewManager(2, 0)
	m.ConnectCoordinator("slow", "monitor")
	if _, err := m.CreateStreamSubscription("slow"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	// Nobody consumes: buffer of 2 fills, the rest are dropped.
	for i := 0; i < 10; i++ {
		m.Publish(event(models.EventTaskProgress, "a"))
	}

	if m.DroppedCount() != 8 {
		t.Errorf("expected 8 dropped events, got %d", m.DroppedCount())
	}
}

func TestWorkflowCompletedTerminatesStream(t *testing.T) {
	m := NewManager(8, 0)
	m.ConnectCoordinator("obs-1", "monitor")
	if _, err := m.CreateStreamSubscription("obs-1"); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ch, _ := m.StreamUpdates("obs-1")

	m.Publish(event(models.EventTaskCompleted, "a"))
	m.Publish(event(models.EventWorkflowCompleted, ""))

	var got []models.EventType
	for ev := range ch {
		got = append(got, ev.Type)
	}
	if len(got) != 2 || got[len(got)-1] != models.EventWorkflowCompleted {
		t.Errorf("expected stream ending in workflow_completed, got %v", got)
	}

	if !m.Closed() {
		t.Error("manager should report closed after workflow_completed")
	}

	// Publishing after close is a no-op, not a panic.
	m.Publish(event(models.EventTaskStarted, "b"))
}

func TestDisconnectCoordinator(t *testing.T) {
	m := NewManager(8, 0)
	m.ConnectCoordinator("obs-1", "monitor")
	subID, _ := m.CreateStreamSubscription("obs-1")
	ch, _ := m.StreamUpdates("obs-1")

	m.DisconnectCoordinator("obs-1")

	if _, open := <-ch; open {
		t.Error("expected stream closed after disconnect")
	}
	if err := m.CancelSubscription(subID); !errors.Is(err, ErrUnknownSubscription) {
		t.Errorf("expected subscription removed on disconnect, got %v", err)
	}
	if m.CoordinatorCount() != 0 {
		t.Errorf("expected 0 coordinators, got %d", m.CoordinatorCount())
	}
}

func TestHeartbeat(t *testing.T) {
	m := NewManager(8, 20*time.Millisecond)
	m.ConnectCoordinator("obs-1", "monitor")
	if _, err := m.CreateStreamSubscription("obs-1", models.EventHeartbeat); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	ch, _ := m.StreamUpdates("obs-1")

	m.StartHeartbeat()
	defer m.StopHeartbeat()

	select {
	case ev := <-ch:
		if ev.Type != models.EventHeartbeat {
			t.Errorf("expected heartbeat, got %s", ev.Type)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("no heartbeat received during quiet period")
	}
}

// Heartbeats bypass subscription filters: a coordinator watching only
// task_completed must still hear them during a quiet period.
func TestHeartbeatBypassesSubscriptionFilter(t *testing.T) {
	m := NewManager(8, 0)
	m.ConnectCoordinator("obs-1", "monitor")
	if _, err := m.CreateStreamSubscription("obs-1", models.EventTaskCompleted); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	m.ConnectCoordinator("idle", "monitor")
	chIdle, _ := m.StreamUpdates("idle")
	ch, _ := m.StreamUpdates("obs-1")

	m.Publish(event(models.EventHeartbeat, ""))

	select {
	case ev := <-ch:
		if ev.Type != models.EventHeartbeat {
			t.Errorf("expected heartbeat, got %s", ev.Type)
		}
	default:
		t.Fatal("filtered subscriber did not receive heartbeat")
	}

	// A coordinator with no subscriptions at all stays silent.
	select {
	case ev := <-chIdle:
		t.Errorf("coordinator without subscriptions received %s", ev.Type)
	default:
	}
}

func TestInterruptTaskDelegation(t *testing.T) {
	m := NewManager(8, 0)

	if err := m.InterruptTask("a", "because"); !errors.Is(err, ErrNoInterrupter) {
		t.Errorf("expected ErrNoInterrupter before binding, got %v", err)
	}

	var gotTask, gotReason string
	m.BindInterrupter(func(taskID, reason string) error {
		gotTask, gotReason = taskID, reason
		return nil
	})

	if err := m.InterruptTask("a", "operator request"); err != nil {
		t.Fatalf("InterruptTask failed: %v", err)
	}
	if gotTask != "a" || gotReason != "operator request" {
		t.Errorf("interrupter got (%q, %q)", gotTask, gotReason)
	}
}
