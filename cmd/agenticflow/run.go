package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/milad-o/agenticflow/internal/config"
	"github.com/milad-o/agenticflow/internal/engine"
	"github.com/milad-o/agenticflow/internal/state"
	"github.com/milad-o/agenticflow/internal/tui"
	"github.com/milad-o/agenticflow/internal/workflow"
	"github.com/milad-o/agenticflow/pkg/models"
)

var (
	runConfigPath    string
	runMaxConcurrent int
	runTUI           bool
	runWatch         bool
	runNoHistory     bool
	runVerbose       bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow.yaml>",
	Short: "Run a workflow file",
	Long: `Run a workflow file to completion.

Tasks run as shell commands with bounded concurrency, honoring the
dependency graph, per-task timeouts, and retry policies declared in the
file. Ctrl-C aborts the run: running tasks are signalled and everything
else is cancelled.

With --tui, a live terminal view shows per-task progress. With --watch,
the workflow re-runs whenever the file changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflow,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a config file (default: XDG + project lookup)")
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 0, "Override the concurrency bound")
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live terminal view of the run")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Re-run the workflow when the file changes")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Skip recording the run to history")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "Enable scheduler debug logging")
}

func runWorkflow(cmd *cobra.Command, args []string) error {
	path := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runMaxConcurrent > 0 {
		cfg.Engine.MaxConcurrent = runMaxConcurrent
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runWatch {
		return watchLoop(ctx, path, cfg)
	}

	f, err := workflow.LoadFile(path)
	if err != nil {
		return err
	}

	summary, err := executeOnce(ctx, path, f, cfg)
	if err != nil {
		return err
	}
	if !summary.AllCompleted() {
		os.Exit(1)
	}
	return nil
}

// watchLoop runs the workflow, then re-runs it after each valid file change
// until the context is cancelled.
func watchLoop(ctx context.Context, path string, cfg *config.Config) error {
	f, err := workflow.LoadFile(path)
	if err != nil {
		return err
	}

	runs := make(chan *workflow.File, 1)
	runs <- f

	go func() {
		err := workflow.Watch(ctx, path, func(changed *workflow.File) {
			select {
			case runs <- changed:
			default:
				// A re-run is already queued; the latest file wins next time.
			}
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("[run] watch stopped: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case next := <-runs:
			if _, err := executeOnce(ctx, path, next, cfg); err != nil {
				color.Red("run failed: %v", err)
			}
			color.Cyan("watching %s for changes (ctrl-c to stop)", path)
		}
	}
}

// executeOnce builds a fresh engine for the file and drives a single run.
func executeOnce(ctx context.Context, path string, f *workflow.File, cfg *config.Config) (*models.WorkflowSummary, error) {
	opts := workflow.BuildOptions{
		MaxConcurrent: cfg.Engine.MaxConcurrent,
		DefaultRetry: models.RetryPolicy{
			MaxAttempts:       cfg.Retry.MaxAttempts,
			InitialDelay:      cfg.Retry.InitialDelay,
			MaxDelay:          cfg.Retry.MaxDelay,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
		},
		HeartbeatInterval: cfg.Engine.HeartbeatInterval,
		EventBufferSize:   cfg.Engine.EventBufferSize,
	}
	if runVerbose {
		opts.DebugLog = log.Printf
	}

	e, err := workflow.Build(f, opts)
	if err != nil {
		return nil, err
	}

	// Ctrl-C aborts the engine rather than killing the process outright,
	// so the summary and history still get written.
	go func() {
		<-ctx.Done()
		e.Abort()
	}()

	var summary *models.WorkflowSummary
	if runTUI {
		summary, err = executeWithTUI(ctx, f, e)
	} else {
		summary, err = e.ExecuteWorkflow(ctx)
	}
	if err != nil {
		return nil, err
	}

	printSummary(summary)
	recordHistory(path, f, cfg, summary)
	return summary, nil
}

// executeWithTUI streams the run into the live terminal view.
func executeWithTUI(ctx context.Context, f *workflow.File, e *engine.Engine) (*models.WorkflowSummary, error) {
	events, err := e.ExecuteWorkflowWithStreaming(ctx)
	if err != nil {
		return nil, err
	}

	app := tui.New(workflowLabel(f), events)
	if _, err := tea.NewProgram(app).Run(); err != nil {
		return nil, fmt.Errorf("running tui: %w", err)
	}

	// The stream ends with workflow_completed, so the summary is ready.
	summary := e.Summary()
	if summary == nil {
		return nil, fmt.Errorf("workflow did not produce a summary")
	}
	return summary, nil
}

// printSummary writes the colored aggregate outcome to stdout.
func printSummary(summary *models.WorkflowSummary) {
	fmt.Println()
	color.New(color.Bold).Printf("%d/%d tasks completed (%.1f%%) in %s\n",
		summary.Completed, summary.Total, summary.SuccessRate,
		summary.Duration.Round(time.Millisecond))

	for _, outcome := range summary.Tasks {
		switch {
		case outcome.State == models.TaskStateCompleted:
			color.Green("  ✓ %s (%d attempt(s), %s)", outcome.Name, outcome.Attempts,
				outcome.Duration.Round(time.Millisecond))
		case outcome.State == models.TaskStateFailed:
			msg := ""
			if outcome.Error != nil {
				msg = ": " + outcome.Error.Message
			}
			color.Red("  ✗ %s (%d attempt(s))%s", outcome.Name, outcome.Attempts, msg)
		case outcome.State == models.TaskStateCancelled:
			color.Yellow("  ⊘ %s (cancelled)", outcome.Name)
		case outcome.Blocked:
			color.Yellow("  · %s (blocked: dependency never completed)", outcome.Name)
		}
	}
}

// recordHistory persists the run unless history is disabled.
func recordHistory(path string, f *workflow.File, cfg *config.Config, summary *models.WorkflowSummary) {
	if runNoHistory || !cfg.History.Enabled {
		return
	}

	dbPath := cfg.History.Path
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}

	db, err := state.Open(dbPath)
	if err != nil {
		log.Printf("[run] history disabled: %v", err)
		return
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Printf("[run] history disabled: %v", err)
		return
	}

	label := workflowLabel(f)
	if label == "" {
		label = path
	}
	if _, err := db.RecordRun(label, summary); err != nil {
		log.Printf("[run] recording run failed: %v", err)
	}
}

func workflowLabel(f *workflow.File) string {
	if f.Name != "" {
		return f.Name
	}
	return "workflow"
}

func loadConfig() (*config.Config, error) {
	if runConfigPath != "" {
		return config.LoadFromPath(runConfigPath)
	}
	return config.Load()
}
