package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/milad-o/agenticflow/internal/retry"
	"github.com/milad-o/agenticflow/pkg/models"
)

// runLoop drives the DAG until no further progress is possible: every task
// is terminal or starved on a dependency that will never complete. The loop
// is event-driven: it suspends until a running task finishes, a retry hold
// expires, or an abort arrives.
func (e *Engine) runLoop(ctx context.Context) {
	completionCh := make(chan completion, e.maxConcurrent)

	abortC := e.abortCh
	done := ctx.Done()

	for {
		e.admit(ctx, completionCh)

		e.mu.Lock()
		runningCount := len(e.running)
		heldCount := len(e.held)
		e.mu.Unlock()

		if runningCount == 0 && heldCount == 0 && e.admissibleCount() == 0 {
			// Nothing running, nothing waiting on a backoff, nothing to
			// admit: remaining pending tasks are starved and stay pending.
			e.debugLog("[engine.runLoop] exiting: no running, held, or admissible tasks")
			return
		}

		select {
		case c := <-completionCh:
			e.handleCompletion(c)
		case <-e.wake:
			// Retry hold expired or an interrupt landed; re-evaluate.
		case <-abortC:
			abortC = nil
			e.cancelNonRunning()
		case <-done:
			done = nil
			e.Abort()
			e.cancelNonRunning()
		}
	}
}

// admit launches ready tasks up to the concurrency bound, ordered by
// priority descending with insertion order as the stable tie-break.
func (e *Engine) admit(ctx context.Context, completionCh chan completion) {
	e.mu.Lock()
	slots := e.maxConcurrent - len(e.running)
	aborted := e.aborted
	e.mu.Unlock()

	if aborted || slots <= 0 {
		return
	}

	var candidates []*models.TaskRecord
	for _, rec := range e.graph.ReadyTasks() {
		e.mu.Lock()
		held := e.held[rec.ID]
		e.mu.Unlock()
		if held {
			continue
		}
		if e.token(rec.ID).Interrupted() {
			// Interrupted before it ever started: cancel instead of running.
			e.cancelBeforeStart(rec)
			continue
		}
		candidates = append(candidates, rec)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority > candidates[j].Priority
		}
		return candidates[i].Seq < candidates[j].Seq
	})

	if len(candidates) > slots {
		candidates = candidates[:slots]
	}
	for _, rec := range candidates {
		e.launch(ctx, rec, completionCh)
	}
}

// admissibleCount counts tasks that admit would currently consider.
func (e *Engine) admissibleCount() int {
	count := 0
	for _, rec := range e.graph.ReadyTasks() {
		e.mu.Lock()
		held := e.held[rec.ID]
		e.mu.Unlock()
		if !held {
			count++
		}
	}
	return count
}

// launch transitions a task pending -> ready -> assigned -> running, builds
// its execution context, and starts the attempt as an independent goroutine.
func (e *Engine) launch(ctx context.Context, rec *models.TaskRecord, completionCh chan completion) {
	lock := e.taskLock(rec.ID)
	lock.Lock()

	if rec.State != models.TaskStatePending {
		lock.Unlock()
		return
	}

	now := time.Now()
	e.graph.Update(rec.ID, func(r *models.TaskRecord) {
		r.State = models.TaskStateReady
		r.State = models.TaskStateAssigned
		if r.StartedAt == nil {
			r.StartedAt = &now
		}
		r.State = models.TaskStateRunning
	})
	attempt := rec.Attempts + 1
	ec := e.buildContext(rec)
	lock.Unlock()

	var taskCtx context.Context
	var cancel context.CancelFunc
	if rec.Timeout > 0 {
		taskCtx, cancel = context.WithTimeout(ctx, rec.Timeout)
	} else {
		taskCtx, cancel = context.WithCancel(ctx)
	}

	e.mu.Lock()
	e.running[rec.ID] = &inflight{taskID: rec.ID, started: now, cancelFn: cancel}
	exec := e.executors[rec.ID]
	e.mu.Unlock()

	e.debugLog("[engine.launch] task %s attempt %d starting (priority=%s)", rec.ID, attempt, rec.Priority)
	e.emit(models.EventTaskStarted, rec.ID, map[string]any{
		"name":     rec.Name,
		"attempt":  attempt,
		"priority": rec.Priority.String(),
	})

	go func() {
		defer cancel()

		resCh := make(chan models.TaskResult, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					resCh <- models.Failure(models.ErrorPermanent, fmt.Sprintf("executor panic: %v", r), "panic")
				}
			}()
			resCh <- exec.Execute(taskCtx, rec, ec)
		}()

		var res models.TaskResult
		select {
		case res = <-resCh:
		case <-taskCtx.Done():
			if errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
				// The executor is abandoned; the loop treats the attempt as
				// a timeout failure subject to the normal retry policy.
				res = models.Failure(models.ErrorTimeout,
					fmt.Sprintf("task exceeded timeout of %s", rec.Timeout), "context.DeadlineExceeded")
			} else {
				res = models.Failure(models.ErrorCancelled, "execution cancelled", "context.Canceled")
			}
		}
		completionCh <- completion{taskID: rec.ID, result: res}
	}()
}

// handleCompletion applies the retry policy and records the terminal or
// retry transition for a finished attempt. It runs on the loop goroutine;
// the per-task lock arbitrates against concurrent interrupts.
func (e *Engine) handleCompletion(c completion) {
	e.mu.Lock()
	delete(e.running, c.taskID)
	aborted := e.aborted
	e.mu.Unlock()

	rec, err := e.graph.Get(c.taskID)
	if err != nil {
		log.Printf("[engine] completion for unknown task %s dropped", c.taskID)
		return
	}

	lock := e.taskLock(c.taskID)
	lock.Lock()
	defer lock.Unlock()

	if rec.State.Terminal() {
		// Already resolved, e.g. cancelled during an abort.
		return
	}

	attempts := rec.Attempts + 1
	res := c.result
	now := time.Now()

	if !res.Failed() {
		e.graph.Update(rec.ID, func(r *models.TaskRecord) {
			r.Attempts = attempts
			r.Result = &res
			r.State = models.TaskStateCompleted
			r.CompletedAt = &now
		})
		e.debugLog("[engine] task %s completed after %d attempt(s)", rec.ID, attempts)
		e.emit(models.EventTaskCompleted, rec.ID, map[string]any{
			"name":     rec.Name,
			"attempts": attempts,
		})
		e.poke()
		return
	}

	if res.Err.Category == models.ErrorCancelled || aborted {
		e.graph.Update(rec.ID, func(r *models.TaskRecord) {
			r.Attempts = attempts
			r.Result = &res
			r.State = models.TaskStateCancelled
			r.CompletedAt = &now
		})
		reason := e.token(rec.ID).Reason()
		e.emit(models.EventTaskFailed, rec.ID, map[string]any{
			"name":   rec.Name,
			"state":  string(models.TaskStateCancelled),
			"reason": reason,
		})
		return
	}

	policy := e.defaultRetry
	if rec.RetryPolicy != nil {
		policy = *rec.RetryPolicy
	}

	decision := retry.Decide(policy, attempts, res.Err.Category)
	if decision.Outcome == retry.GiveUp {
		e.graph.Update(rec.ID, func(r *models.TaskRecord) {
			r.Attempts = attempts
			r.Result = &res
			r.State = models.TaskStateFailed
			r.CompletedAt = &now
		})
		log.Printf("[engine] task %s failed after %d attempt(s): %s", rec.ID, attempts, res.Err.Message)
		e.emit(models.EventTaskFailed, rec.ID, map[string]any{
			"name":     rec.Name,
			"state":    string(models.TaskStateFailed),
			"category": string(res.Err.Category),
			"message":  res.Err.Message,
			"attempts": attempts,
		})
		return
	}

	// Retry: the task re-enters readiness evaluation after the backoff
	// delay. Attempts counts the failed try; state returns to pending.
	e.graph.Update(rec.ID, func(r *models.TaskRecord) {
		r.Attempts = attempts
		r.Result = &res
		r.State = models.TaskStatePending
	})
	e.mu.Lock()
	e.held[rec.ID] = true
	e.mu.Unlock()

	e.debugLog("[engine] task %s attempt %d failed (%s), retrying in %s", rec.ID, attempts, res.Err.Category, decision.Delay)
	e.emit(models.EventRealTimeUpdate, rec.ID, map[string]any{
		"name":     rec.Name,
		"phase":    "retry_scheduled",
		"attempt":  attempts,
		"delay":    decision.Delay.String(),
		"category": string(res.Err.Category),
	})

	taskID := rec.ID
	time.AfterFunc(decision.Delay, func() {
		e.mu.Lock()
		delete(e.held, taskID)
		e.mu.Unlock()
		e.poke()
	})
}

// cancelBeforeStart resolves an interrupted task that never began running.
func (e *Engine) cancelBeforeStart(rec *models.TaskRecord) {
	lock := e.taskLock(rec.ID)
	lock.Lock()
	defer lock.Unlock()

	if rec.State.Terminal() {
		return
	}
	now := time.Now()
	reason := e.token(rec.ID).Reason()
	res := models.Failure(models.ErrorCancelled, reason, "interrupt")
	e.graph.Update(rec.ID, func(r *models.TaskRecord) {
		r.Result = &res
		r.State = models.TaskStateCancelled
		r.CompletedAt = &now
	})
	e.emit(models.EventTaskFailed, rec.ID, map[string]any{
		"name":   rec.Name,
		"state":  string(models.TaskStateCancelled),
		"reason": reason,
	})
}

// cancelNonRunning transitions every task that is neither terminal nor
// currently running to cancelled, and signals running tasks to stop.
// Running tasks resolve to cancelled when their completions arrive.
func (e *Engine) cancelNonRunning() {
	e.mu.Lock()
	runningIDs := make(map[string]bool, len(e.running))
	for id, inf := range e.running {
		runningIDs[id] = true
		inf.cancelFn()
	}
	e.held = make(map[string]bool)
	e.mu.Unlock()

	for _, rec := range e.graph.Tasks() {
		if runningIDs[rec.ID] {
			e.token(rec.ID).trigger("workflow aborted")
			continue
		}

		lock := e.taskLock(rec.ID)
		lock.Lock()
		if !rec.State.Terminal() {
			now := time.Now()
			res := models.Failure(models.ErrorCancelled, "workflow aborted", "abort")
			e.graph.Update(rec.ID, func(r *models.TaskRecord) {
				r.Result = &res
				r.State = models.TaskStateCancelled
				r.CompletedAt = &now
			})
			e.emit(models.EventTaskFailed, rec.ID, map[string]any{
				"name":   rec.Name,
				"state":  string(models.TaskStateCancelled),
				"reason": "workflow aborted",
			})
		}
		lock.Unlock()
	}
}
