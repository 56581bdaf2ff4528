package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrDuplicateTask indicates a task ID is already present in the graph.
var ErrDuplicateTask = errors.New("duplicate task id")

// ErrMissingDependency indicates a declared dependency is absent from the graph.
var ErrMissingDependency = errors.New("missing dependency")

// StructuralError describes a workflow-definition error: duplicate IDs,
// missing dependencies, or induced cycles. Structural errors are raised
// eagerly at construction time and never at execution time.
type StructuralError struct {
	// Kind is the underlying sentinel error.
	Kind error
	// TaskID is the task whose insertion or validation failed.
	TaskID string
	// Detail carries additional context, such as the missing dependency ID.
	Detail string
}

// Error implements the error interface.
func (e *StructuralError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("task %s: %s", e.TaskID, e.Kind.Error())
	}
	return fmt.Sprintf("task %s: %s: %s", e.TaskID, e.Kind.Error(), e.Detail)
}

// Unwrap returns the sentinel error for errors.Is checks.
func (e *StructuralError) Unwrap() error { return e.Kind }

func structuralf(kind error, taskID, format string, args ...any) error {
	return &StructuralError{Kind: kind, TaskID: taskID, Detail: fmt.Sprintf(format, args...)}
}

func cycleError(taskID string, path []string) error {
	detail := ""
	if len(path) > 0 {
		detail = strings.Join(path, " -> ")
	}
	return &StructuralError{Kind: ErrCycleDetected, TaskID: taskID, Detail: detail}
}

// NotFoundError indicates a lookup for an absent task ID.
type NotFoundError struct {
	TaskID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}
