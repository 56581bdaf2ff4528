package engine

import (
	"context"
	"sync"

	"github.com/milad-o/agenticflow/pkg/models"
)

// ExecutionContext carries the merged inputs for one task attempt:
// dependency results keyed "{dep_id}_result", caller-supplied globals,
// and engine-owned entries such as the interrupt token.
type ExecutionContext map[string]any

// Reserved context keys. These are filtered out of caller-supplied globals
// unless a task explicitly requests them, so executor parameters never
// collide with engine bookkeeping.
const (
	// KeyInterruptRequested holds the *InterruptToken for interruptible tasks.
	KeyInterruptRequested = "interrupt_requested"
	// KeyInterruptReason holds the reason string recorded by an interrupt.
	KeyInterruptReason = "interrupt_reason"
	// KeyProgressReporter holds the ProgressFunc for streaming-enabled tasks.
	KeyProgressReporter = "progress_reporter"
	// KeyWorkflowGlobals is reserved for future use by callers that want
	// the raw globals map passed through.
	KeyWorkflowGlobals = "workflow_globals"
)

// reservedKeys is the filter applied to caller-supplied globals.
var reservedKeys = map[string]bool{
	KeyInterruptRequested: true,
	KeyInterruptReason:    true,
	KeyProgressReporter:   true,
	KeyWorkflowGlobals:    true,
}

// Executor is the contract a task delegates actual work to. The engine is
// agnostic to what runs inside: an implementation may call an LLM, run a
// command, write files, or anything else.
//
// Contract: Execute must be invocable once per attempt with the same inputs,
// must never mutate the DAG or the task record, and, if the task is
// interruptible, should periodically poll InterruptRequested and return a
// cancelled-flavored failure when it observes an interrupt.
type Executor interface {
	Execute(ctx context.Context, task *models.TaskRecord, ec ExecutionContext) models.TaskResult
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, task *models.TaskRecord, ec ExecutionContext) models.TaskResult

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, task *models.TaskRecord, ec ExecutionContext) models.TaskResult {
	return f(ctx, task, ec)
}

// ProgressFunc reports incremental progress from inside an executor.
// It is non-blocking; updates may be dropped under backpressure.
type ProgressFunc func(message string, data map[string]any)

// InterruptToken is the cooperative cancellation flag reachable through the
// execution context. The engine triggers it; interruptible executors poll it.
type InterruptToken struct {
	mu        sync.Mutex
	triggered bool
	reason    string
}

// Interrupted returns true once an interrupt has been requested.
func (t *InterruptToken) Interrupted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.triggered
}

// Reason returns the interrupt reason, or "" if none was requested.
func (t *InterruptToken) Reason() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// trigger records the interrupt request. The first reason wins.
func (t *InterruptToken) trigger(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.triggered {
		t.triggered = true
		t.reason = reason
	}
}

// InterruptRequested is the polling helper for executors: it returns true
// if the execution context carries a triggered interrupt token.
func InterruptRequested(ec ExecutionContext) bool {
	token, ok := ec[KeyInterruptRequested].(*InterruptToken)
	return ok && token.Interrupted()
}

// InterruptReason returns the interrupt reason from the execution context,
// or "" if no interrupt was requested.
func InterruptReason(ec ExecutionContext) string {
	if token, ok := ec[KeyInterruptRequested].(*InterruptToken); ok {
		return token.Reason()
	}
	return ""
}

// ReportProgress invokes the context's progress reporter, if present.
// It is a no-op for tasks without streaming enabled.
func ReportProgress(ec ExecutionContext, message string, data map[string]any) {
	if report, ok := ec[KeyProgressReporter].(ProgressFunc); ok {
		report(message, data)
	}
}
