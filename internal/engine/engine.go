// Package engine implements the concurrency-bounded scheduler that drives
// a workflow DAG from all-pending to fully-terminal, applying retry policy
// on failures and publishing coordination events along the way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/milad-o/agenticflow/internal/coordination"
	"github.com/milad-o/agenticflow/internal/graph"
	"github.com/milad-o/agenticflow/pkg/models"
)

// ErrAlreadyStarted indicates a second execution of the same engine.
// A workflow run is single-shot; construct a new engine to run again.
var ErrAlreadyStarted = errors.New("workflow already started")

// ErrNotInterruptible indicates an interrupt request for a task that did
// not opt into interruption.
var ErrNotInterruptible = errors.New("task is not interruptible")

// ErrTaskTerminal indicates an interrupt request for a task that already
// reached a terminal state.
var ErrTaskTerminal = errors.New("task already in terminal state")

// Engine coordinates one workflow run. Decision-making (readiness,
// admission, state transitions) is single-threaded in the scheduler loop;
// task bodies run concurrently and report back through a completion channel.
type Engine struct {
	graph *graph.DAG
	coord *coordination.Manager

	maxConcurrent int
	defaultRetry  models.RetryPolicy
	globals       map[string]any
	debugLog      func(format string, args ...any)

	mu        sync.Mutex
	executors map[string]Executor
	taskLocks map[string]*sync.Mutex
	tokens    map[string]*InterruptToken
	running   map[string]*inflight
	// held tracks tasks sitting out a retry backoff delay. Held tasks are
	// pending but not admissible until the delay elapses.
	held    map[string]bool
	started bool
	aborted bool
	summary *models.WorkflowSummary

	wake      chan struct{}
	abortCh   chan struct{}
	abortOnce sync.Once
}

// inflight tracks one currently-running task attempt.
type inflight struct {
	taskID   string
	started  time.Time
	cancelFn context.CancelFunc
}

// completion is the message a finished task attempt sends back to the loop.
type completion struct {
	taskID string
	result models.TaskResult
}

// New creates an Engine with an empty DAG.
func New(opts ...Option) *Engine {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{
		graph:         graph.New(),
		coord:         coordination.NewManager(o.eventBufferSize, o.heartbeatInterval),
		maxConcurrent: o.maxConcurrent,
		defaultRetry:  o.defaultRetry,
		globals:       o.globals,
		debugLog:      o.debugLog,
		executors:     make(map[string]Executor),
		taskLocks:     make(map[string]*sync.Mutex),
		tokens:        make(map[string]*InterruptToken),
		running:       make(map[string]*inflight),
		held:          make(map[string]bool),
		wake:          make(chan struct{}, 1),
		abortCh:       make(chan struct{}),
	}
	e.graph.SetDebugLog(o.debugLog)
	e.coord.BindInterrupter(e.Interrupt)
	return e
}

// Coordination returns the engine's coordination manager, through which
// callers connect coordinators and create stream subscriptions.
func (e *Engine) Coordination() *coordination.Manager {
	return e.coord
}

// Graph exposes the underlying DAG for structural queries.
func (e *Engine) Graph() *graph.DAG {
	return e.graph
}

// AddTask inserts a task into the DAG. It fails with a StructuralError on
// duplicate ID, missing dependency, or induced cycle, and with
// ErrAlreadyStarted once the scheduler loop is running.
func (e *Engine) AddTask(id, name string, exec Executor, opts ...TaskOption) (*models.TaskRecord, error) {
	if exec == nil {
		return nil, fmt.Errorf("task %s: executor is required", id)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return nil, ErrAlreadyStarted
	}

	rec := &models.TaskRecord{
		ID:       id,
		Name:     name,
		Priority: models.PriorityNormal,
		State:    models.TaskStatePending,
		Context:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(rec)
	}

	if err := e.graph.AddTask(rec); err != nil {
		return nil, err
	}
	e.executors[id] = exec
	e.taskLocks[id] = &sync.Mutex{}
	e.tokens[id] = &InterruptToken{}
	return rec, nil
}

// Interrupt records an interrupt request against the named task and
// returns immediately. A running task has its attempt context cancelled
// and its token triggered for cooperative check points; a pending task is
// cancelled before its next admission.
func (e *Engine) Interrupt(taskID, reason string) error {
	rec, err := e.graph.Get(taskID)
	if err != nil {
		return err
	}
	if !rec.Interruptible {
		return fmt.Errorf("%w: %s", ErrNotInterruptible, taskID)
	}

	lock := e.taskLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	if rec.State.Terminal() {
		return fmt.Errorf("%w: %s", ErrTaskTerminal, taskID)
	}

	e.token(taskID).trigger(reason)
	e.graph.Update(taskID, func(r *models.TaskRecord) {
		r.Context[KeyInterruptRequested] = true
		r.Context[KeyInterruptReason] = reason
	})
	log.Printf("[engine] interrupt requested for task %s: %s", taskID, reason)

	// Cancel the running attempt's context as well, so executors without
	// poll checkpoints (external commands) still stop.
	e.mu.Lock()
	if inf, ok := e.running[taskID]; ok {
		inf.cancelFn()
	}
	e.mu.Unlock()

	e.poke()
	return nil
}

// Abort cancels the whole workflow: all non-terminal tasks transition to
// cancelled without further retries, and the scheduler loop stops early.
func (e *Engine) Abort() {
	e.abortOnce.Do(func() {
		e.mu.Lock()
		e.aborted = true
		e.mu.Unlock()
		close(e.abortCh)
		log.Printf("[engine] workflow abort requested")
	})
}

// ExecuteWorkflow runs the DAG to completion and returns the aggregate
// summary. Individual task failures never propagate as errors; only a
// double start does.
func (e *Engine) ExecuteWorkflow(ctx context.Context) (*models.WorkflowSummary, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	start := time.Now()
	log.Printf("[engine] starting workflow with %d tasks, max concurrency %d", e.graph.Size(), e.maxConcurrent)

	e.coord.StartHeartbeat()
	defer e.coord.StopHeartbeat()

	e.runLoop(ctx)

	summary := e.buildSummary(start)
	e.mu.Lock()
	e.summary = summary
	e.mu.Unlock()

	e.coord.Publish(models.CoordinationEvent{
		Type:      models.EventWorkflowCompleted,
		Timestamp: time.Now(),
		Payload: map[string]any{
			"total":        summary.Total,
			"completed":    summary.Completed,
			"failed":       summary.Failed,
			"cancelled":    summary.Cancelled,
			"blocked":      summary.Blocked,
			"success_rate": summary.SuccessRate,
			"duration":     summary.Duration,
		},
	})

	log.Printf("[engine] workflow finished: %d/%d completed (%.1f%%), %d failed, %d cancelled, %d blocked",
		summary.Completed, summary.Total, summary.SuccessRate, summary.Failed, summary.Cancelled, summary.Blocked)
	return summary, nil
}

// ExecuteWorkflowWithStreaming runs the workflow and returns a finite event
// stream that terminates after the final workflow_completed event. The
// consumed stream cannot be replayed; construct a new engine to run again.
func (e *Engine) ExecuteWorkflowWithStreaming(ctx context.Context) (<-chan models.CoordinationEvent, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	e.mu.Unlock()

	coordID := "workflow-stream-" + uuid.New().String()[:8]
	e.coord.ConnectCoordinator(coordID, "stream")
	if _, err := e.coord.CreateStreamSubscription(coordID); err != nil {
		return nil, err
	}
	ch, err := e.coord.StreamUpdates(coordID)
	if err != nil {
		return nil, err
	}

	go func() {
		if _, err := e.ExecuteWorkflow(ctx); err != nil {
			log.Printf("[engine] streaming workflow failed to start: %v", err)
		}
	}()

	return ch, nil
}

// Summary returns the final workflow summary, or nil if the run has not
// finished yet.
func (e *Engine) Summary() *models.WorkflowSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// buildSummary assembles the aggregate outcome after the loop exits.
// Tasks still pending at the end starved on a dependency and are counted
// as blocked, distinct from failed.
func (e *Engine) buildSummary(start time.Time) *models.WorkflowSummary {
	tasks := e.graph.Tasks()

	summary := &models.WorkflowSummary{
		Total:     len(tasks),
		StartedAt: start,
		Duration:  time.Since(start),
	}

	for _, rec := range tasks {
		outcome := models.TaskOutcome{
			ID:       rec.ID,
			Name:     rec.Name,
			State:    rec.State,
			Attempts: rec.Attempts,
		}
		if rec.Result != nil && rec.Result.Err != nil {
			outcome.Error = rec.Result.Err
		}
		if rec.StartedAt != nil && rec.CompletedAt != nil {
			outcome.Duration = rec.CompletedAt.Sub(*rec.StartedAt)
		}

		switch {
		case rec.State == models.TaskStateCompleted:
			summary.Completed++
		case rec.State == models.TaskStateFailed:
			summary.Failed++
		case rec.State == models.TaskStateCancelled:
			summary.Cancelled++
		case rec.Blocked():
			outcome.Blocked = true
			summary.Blocked++
		}
		summary.Tasks = append(summary.Tasks, outcome)
	}

	if summary.Total == 0 {
		// A workflow with zero tasks succeeds trivially.
		summary.SuccessRate = 100.0
	} else {
		summary.SuccessRate = float64(summary.Completed) / float64(summary.Total) * 100.0
	}
	return summary
}

// taskLock returns the per-task mutex that serializes state transitions,
// so concurrent interrupts and natural completion resolve to exactly one
// terminal state.
func (e *Engine) taskLock(taskID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.taskLocks[taskID]
}

// token returns the interrupt token for a task.
func (e *Engine) token(taskID string) *InterruptToken {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tokens[taskID]
}

// poke nudges the scheduler loop to re-evaluate readiness.
func (e *Engine) poke() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// emit publishes a coordination event without blocking the loop.
func (e *Engine) emit(t models.EventType, taskID string, payload map[string]any) {
	e.coord.Publish(models.CoordinationEvent{
		Type:      t,
		TaskID:    taskID,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}
