package engine

import "github.com/milad-o/agenticflow/pkg/models"

// buildContext assembles the execution context for one task attempt.
// Merge order: caller-supplied globals (minus reserved keys, unless the
// task explicitly requested them), then dependency results keyed
// "{dep_id}_result", then engine-owned entries. Later entries win, so a
// global can never shadow a dependency result or the interrupt token.
func (e *Engine) buildContext(rec *models.TaskRecord) ExecutionContext {
	ec := make(ExecutionContext)

	requested := make(map[string]bool, len(rec.RequestedKeys))
	for _, k := range rec.RequestedKeys {
		requested[k] = true
	}

	for k, v := range e.globals {
		if reservedKeys[k] && !requested[k] {
			continue
		}
		ec[k] = v
	}

	for _, depID := range rec.Dependencies {
		dep, err := e.graph.Get(depID)
		if err != nil || dep.Result == nil {
			continue
		}
		ec[depID+"_result"] = dep.Result.Value
	}

	if rec.Interruptible {
		ec[KeyInterruptRequested] = e.token(rec.ID)
	}
	if rec.StreamingEnabled {
		taskID := rec.ID
		name := rec.Name
		ec[KeyProgressReporter] = ProgressFunc(func(message string, data map[string]any) {
			payload := map[string]any{"name": name, "message": message}
			for k, v := range data {
				payload[k] = v
			}
			e.emit(models.EventTaskProgress, taskID, payload)
		})
	}
	return ec
}
