package workflow

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/milad-o/agenticflow/internal/engine"
	"github.com/milad-o/agenticflow/pkg/models"
)

// CommandRunner runs a shell command and returns combined stdout/stderr.
// The abstraction allows mocking command execution in tests.
type CommandRunner interface {
	RunShell(ctx context.Context, workDir string, command string) ([]byte, error)
}

// shellRunner is the default CommandRunner, backed by "sh -c".
type shellRunner struct{}

func (shellRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// CommandExecutor runs a task's shell command and maps the process outcome
// onto the task result model.
type CommandExecutor struct {
	command string
	workDir string
	runner  CommandRunner
}

// NewCommandExecutor creates an executor for one shell command.
func NewCommandExecutor(command, workDir string) *CommandExecutor {
	return &CommandExecutor{command: command, workDir: workDir, runner: shellRunner{}}
}

// WithRunner swaps the command runner, for tests.
func (c *CommandExecutor) WithRunner(r CommandRunner) *CommandExecutor {
	c.runner = r
	return c
}

// Execute implements engine.Executor. A shell command has no interrupt
// checkpoints; timeouts and aborts kill the process through the context.
func (c *CommandExecutor) Execute(ctx context.Context, task *models.TaskRecord, ec engine.ExecutionContext) models.TaskResult {
	out, err := c.runner.RunShell(ctx, c.workDir, c.command)
	output := strings.TrimRight(string(out), "\n")

	if err == nil {
		engine.ReportProgress(ec, "command finished", map[string]any{"output_bytes": len(out)})
		return models.Success(output)
	}

	category := classify(ctx, err)
	msg := err.Error()
	if output != "" {
		msg = fmt.Sprintf("%s: %s", err, tail(output, 500))
	}
	return models.Failure(category, msg, fmt.Sprintf("%T", err))
}

// classify maps a command failure to an error category. Context-driven
// deaths are timeouts or cancellations; non-zero exits are treated as
// permanent since rerunning the same command rarely changes the outcome.
func classify(ctx context.Context, err error) models.ErrorCategory {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return models.ErrorTimeout
	case errors.Is(ctx.Err(), context.Canceled):
		return models.ErrorCancelled
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return models.ErrorPermanent
	}
	// Spawn failures (missing shell, bad workdir) may be environmental.
	return models.ErrorTransient
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
