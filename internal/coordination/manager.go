// Package coordination decouples scheduler state changes from external
// observers. Coordinators connect, create filtered stream subscriptions,
// and receive coordination events without ever stalling the scheduler:
// per-coordinator buffers are bounded and excess events are dropped.
package coordination

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/milad-o/agenticflow/pkg/models"
)

// ErrUnknownCoordinator indicates an operation referenced an unregistered coordinator.
var ErrUnknownCoordinator = errors.New("unknown coordinator")

// ErrUnknownSubscription indicates a cancel for an absent subscription ID.
var ErrUnknownSubscription = errors.New("unknown subscription")

// ErrNoInterrupter indicates InterruptTask was called before an engine was bound.
var ErrNoInterrupter = errors.New("no interrupt handler bound")

// finalDeliveryGrace is how long delivery of the terminating
// workflow_completed event may wait for a slow consumer before dropping it.
// The closed channel still signals termination either way.
const finalDeliveryGrace = 100 * time.Millisecond

// subscription is one filtered event feed belonging to a coordinator.
type subscription struct {
	id            string
	coordinatorID string
	// filter is the set of event types of interest. Empty means all types.
	filter map[models.EventType]bool
}

func (s *subscription) matches(t models.EventType) bool {
	return len(s.filter) == 0 || s.filter[t]
}

// coordinator is a connected observer with a single delivery channel fed
// by all of its subscriptions.
type coordinator struct {
	id   string
	kind string
	ch   chan models.CoordinationEvent
	subs map[string]*subscription
}

// Manager tracks connected coordinators, their stream subscriptions, and
// pending interrupt requests, and fans scheduler lifecycle transitions out
// to matching subscriptions.
type Manager struct {
	mu           sync.Mutex
	coordinators map[string]*coordinator
	// subIndex maps subscription ID to owning coordinator ID.
	subIndex map[string]string
	// interrupter is bound by the engine; InterruptTask delegates to it.
	interrupter func(taskID, reason string) error
	// closed is set after the workflow_completed event has been delivered.
	closed bool

	bufferSize     int
	streamInterval time.Duration

	droppedCount atomic.Uint64
	// lastEventNano is the unix-nano timestamp of the last real (non-heartbeat)
	// event, read by the heartbeat loop.
	lastEventNano atomic.Int64

	heartbeatStop chan struct{}
	heartbeatOnce sync.Once
}

// NewManager creates a Manager with the given per-coordinator buffer size
// and heartbeat interval. A zero or negative interval disables heartbeats.
func NewManager(bufferSize int, streamInterval time.Duration) *Manager {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Manager{
		coordinators:   make(map[string]*coordinator),
		subIndex:       make(map[string]string),
		bufferSize:     bufferSize,
		streamInterval: streamInterval,
		heartbeatStop:  make(chan struct{}),
	}
}

// BindInterrupter sets the handler InterruptTask delegates to.
// The engine binds itself here at construction.
func (m *Manager) BindInterrupter(fn func(taskID, reason string) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interrupter = fn
}

// ConnectCoordinator registers an observer. It is idempotent per ID:
// reconnecting an existing coordinator keeps its subscriptions and channel.
func (m *Manager) ConnectCoordinator(id, kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.coordinators[id]; exists {
		return
	}
	m.coordinators[id] = &coordinator{
		id:   id,
		kind: kind,
		ch:   make(chan models.CoordinationEvent, m.bufferSize),
		subs: make(map[string]*subscription),
	}
	log.Printf("[coordination] coordinator %s connected (kind=%s)", id, kind)
}

// DisconnectCoordinator removes an observer, cancelling its subscriptions
// and closing its stream. Disconnecting an unknown coordinator is a no-op.
func (m *Manager) DisconnectCoordinator(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.coordinators[id]
	if !exists {
		return
	}
	for subID := range c.subs {
		delete(m.subIndex, subID)
	}
	delete(m.coordinators, id)
	if !m.closed {
		close(c.ch)
	}
	log.Printf("[coordination] coordinator %s disconnected", id)
}

// CreateStreamSubscription registers a filtered subscription for the given
// coordinator and returns its ID. An empty type list subscribes to all types.
func (m *Manager) CreateStreamSubscription(coordinatorID string, eventTypes ...models.EventType) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.coordinators[coordinatorID]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrUnknownCoordinator, coordinatorID)
	}

	filter := make(map[models.EventType]bool, len(eventTypes))
	for _, t := range eventTypes {
		filter[t] = true
	}

	sub := &subscription{
		id:            uuid.New().String(),
		coordinatorID: coordinatorID,
		filter:        filter,
	}
	c.subs[sub.id] = sub
	m.subIndex[sub.id] = coordinatorID
	return sub.id, nil
}

// CancelSubscription removes a subscription by ID.
func (m *Manager) CancelSubscription(subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coordID, exists := m.subIndex[subscriptionID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, subscriptionID)
	}
	delete(m.subIndex, subscriptionID)
	if c, ok := m.coordinators[coordID]; ok {
		delete(c.subs, subscriptionID)
	}
	return nil
}

// StreamUpdates returns the coordinator's event stream: a lazy sequence of
// events matching any of its subscriptions. The channel is closed after a
// workflow_completed event is delivered or the coordinator disconnects.
func (m *Manager) StreamUpdates(coordinatorID string) (<-chan models.CoordinationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, exists := m.coordinators[coordinatorID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCoordinator, coordinatorID)
	}
	return c.ch, nil
}

// InterruptTask records an interrupt request against the named task and
// returns immediately. Actual cancellation happens at the next cooperative
// check point inside the running executor. Interrupting a non-interruptible
// or unknown task is rejected.
func (m *Manager) InterruptTask(taskID, reason string) error {
	m.mu.Lock()
	fn := m.interrupter
	m.mu.Unlock()

	if fn == nil {
		return ErrNoInterrupter
	}
	return fn(taskID, reason)
}

// Publish delivers an event to every coordinator with a matching
// subscription. Heartbeats bypass subscription filters and reach every
// coordinator with at least one active subscription, so a consumer
// filtered to a quiet event type can still tell quiet from dead.
// Delivery never blocks the caller: full buffers drop the event and bump
// the dropped counter. A workflow_completed event also terminates all
// streams.
func (m *Manager) Publish(ev models.CoordinationEvent) {
	if ev.Type != models.EventHeartbeat {
		m.lastEventNano.Store(time.Now().UnixNano())
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}

	final := ev.Type == models.EventWorkflowCompleted
	heartbeat := ev.Type == models.EventHeartbeat
	for _, c := range m.coordinators {
		if heartbeat {
			if len(c.subs) == 0 {
				continue
			}
		} else if !m.matchesAny(c, ev.Type) {
			continue
		}
		if final {
			// Give the consumer a short grace period for the terminator,
			// then drop it. Closing the channel below still ends the stream.
			select {
			case c.ch <- ev:
			case <-time.After(finalDeliveryGrace):
				m.drop(ev)
			}
			continue
		}
		select {
		case c.ch <- ev:
		default:
			m.drop(ev)
		}
	}

	if final {
		for _, c := range m.coordinators {
			close(c.ch)
		}
		m.closed = true
	}
}

// matchesAny reports whether any of the coordinator's subscriptions wants
// the event type. Caller holds the lock.
func (m *Manager) matchesAny(c *coordinator, t models.EventType) bool {
	for _, sub := range c.subs {
		if sub.matches(t) {
			return true
		}
	}
	return false
}

// drop counts a dropped event, logging every 10th drop to avoid spam.
func (m *Manager) drop(ev models.CoordinationEvent) {
	count := m.droppedCount.Add(1)
	if count%10 == 1 {
		log.Printf("[coordination] WARNING: subscriber buffer full, dropped event (total dropped: %d): type=%s", count, ev.Type)
	}
}

// StartHeartbeat launches the heartbeat loop: if no real coordination event
// fired within the stream interval, a synthetic heartbeat is published to
// every active subscription so consumers can distinguish quiet from dead.
func (m *Manager) StartHeartbeat() {
	if m.streamInterval <= 0 {
		return
	}
	m.lastEventNano.Store(time.Now().UnixNano())

	go func() {
		ticker := time.NewTicker(m.streamInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.heartbeatStop:
				return
			case now := <-ticker.C:
				last := time.Unix(0, m.lastEventNano.Load())
				if now.Sub(last) < m.streamInterval {
					continue
				}
				m.Publish(models.CoordinationEvent{
					Type:      models.EventHeartbeat,
					Timestamp: now,
					Payload:   map[string]any{"idle_since": last},
				})
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat loop. Safe to call more than once.
func (m *Manager) StopHeartbeat() {
	m.heartbeatOnce.Do(func() { close(m.heartbeatStop) })
}

// DroppedCount returns the total number of events dropped across all
// coordinators.
func (m *Manager) DroppedCount() uint64 {
	return m.droppedCount.Load()
}

// CoordinatorCount returns the number of connected coordinators.
func (m *Manager) CoordinatorCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.coordinators)
}

// SubscriptionCount returns the number of active subscriptions.
func (m *Manager) SubscriptionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subIndex)
}

// Closed reports whether the terminating workflow_completed event has
// been delivered.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
