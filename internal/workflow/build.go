package workflow

import (
	"fmt"
	"time"

	"github.com/milad-o/agenticflow/internal/engine"
	"github.com/milad-o/agenticflow/pkg/models"
)

// BuildOptions adjusts engine construction beyond what the file specifies.
type BuildOptions struct {
	// MaxConcurrent is the configured concurrency bound. The file's own
	// max_concurrent wins when set.
	MaxConcurrent int
	// DefaultRetry is the configured workflow-level retry policy, applied
	// when the file has no retry section.
	DefaultRetry models.RetryPolicy
	// HeartbeatInterval is passed through to the engine.
	HeartbeatInterval time.Duration
	// EventBufferSize is passed through to the engine.
	EventBufferSize int
	// DebugLog enables engine debug logging when non-nil.
	DebugLog func(format string, args ...any)
}

// Build constructs an engine from a workflow file, wiring every task to a
// shell command executor.
func Build(f *File, opts BuildOptions) (*engine.Engine, error) {
	maxConcurrent := opts.MaxConcurrent
	if f.MaxConcurrent > 0 {
		maxConcurrent = f.MaxConcurrent
	}

	defaultRetry := opts.DefaultRetry
	if f.Retry != nil {
		defaultRetry = f.Retry.Policy()
	}

	engineOpts := []engine.Option{
		engine.WithMaxConcurrentTasks(maxConcurrent),
		engine.WithDefaultRetryPolicy(defaultRetry),
		engine.WithHeartbeatInterval(opts.HeartbeatInterval),
		engine.WithEventBufferSize(opts.EventBufferSize),
	}
	if len(f.Globals) > 0 {
		engineOpts = append(engineOpts, engine.WithGlobals(f.Globals))
	}
	if opts.DebugLog != nil {
		engineOpts = append(engineOpts, engine.WithDebugLog(opts.DebugLog))
	}

	e := engine.New(engineOpts...)

	for _, td := range f.Tasks {
		name := td.Name
		if name == "" {
			name = td.ID
		}

		taskOpts := []engine.TaskOption{
			engine.WithDependencies(td.DependsOn...),
			engine.WithPriority(models.ParsePriority(td.Priority)),
		}
		if td.Timeout != "" {
			d, _ := time.ParseDuration(td.Timeout)
			taskOpts = append(taskOpts, engine.WithTimeout(d))
		}
		if td.Retry != nil {
			taskOpts = append(taskOpts, engine.WithRetryPolicy(td.Retry.Policy()))
		}
		if td.Interruptible {
			taskOpts = append(taskOpts, engine.WithInterruptible())
		}
		if td.Streaming {
			taskOpts = append(taskOpts, engine.WithStreaming())
		}

		exec := NewCommandExecutor(td.Command, td.WorkDir)
		if _, err := e.AddTask(td.ID, name, exec, taskOpts...); err != nil {
			return nil, fmt.Errorf("adding task %s: %w", td.ID, err)
		}
	}

	if errs := e.Graph().Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("workflow %q is not a valid DAG: %v", f.Name, errs[0])
	}
	return e, nil
}
