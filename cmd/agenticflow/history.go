package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/milad-o/agenticflow/internal/state"
	"github.com/milad-o/agenticflow/pkg/models"
)

var (
	historyLimit int
	historyPurge time.Duration
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List or inspect recorded workflow runs",
	Long: `Without arguments, lists recent runs newest first. With a run ID,
shows the per-task outcomes of that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	historyCmd.Flags().DurationVar(&historyPurge, "purge-older-than", 0, "Delete runs older than this duration")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dbPath := cfg.History.Path
	if dbPath == "" {
		dbPath = state.DefaultDBPath()
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening history database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrating history database: %w", err)
	}

	if historyPurge > 0 {
		deleted, err := db.PurgeOldRuns(historyPurge)
		if err != nil {
			return err
		}
		fmt.Printf("purged %d run(s)\n", deleted)
		return nil
	}

	if len(args) == 1 {
		return showRun(db, args[0])
	}
	return listRuns(db)
}

func listRuns(db *state.DB) error {
	runs, err := db.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	for _, run := range runs {
		rate := color.GreenString("%.1f%%", run.SuccessRate)
		if run.Failed > 0 || run.Blocked > 0 {
			rate = color.YellowString("%.1f%%", run.SuccessRate)
		}
		fmt.Printf("%s  %-24s %s  %d/%d completed  %s  %s\n",
			run.ID[:8], run.Workflow, run.StartedAt.Local().Format("2006-01-02 15:04"),
			run.Completed, run.Total, rate, run.Duration.Round(time.Millisecond))
	}
	return nil
}

func showRun(db *state.DB, idOrPrefix string) error {
	runID, err := db.ResolveRunID(idOrPrefix)
	if err != nil {
		return err
	}
	run, err := db.GetRun(runID)
	if err != nil {
		return err
	}

	color.New(color.Bold).Printf("%s  (%s)\n", run.Workflow, run.ID)
	fmt.Printf("started %s, took %s\n", run.StartedAt.Local().Format(time.RFC1123),
		run.Duration.Round(time.Millisecond))
	fmt.Printf("%d total: %d completed, %d failed, %d cancelled, %d blocked (%.1f%%)\n\n",
		run.Total, run.Completed, run.Failed, run.Cancelled, run.Blocked, run.SuccessRate)

	for _, rt := range run.Tasks {
		switch {
		case rt.State == models.TaskStateCompleted:
			color.Green("  ✓ %-24s %d attempt(s)  %s", rt.Name, rt.Attempts, rt.Duration.Round(time.Millisecond))
		case rt.State == models.TaskStateFailed:
			color.Red("  ✗ %-24s %d attempt(s)  [%s] %s", rt.Name, rt.Attempts, rt.ErrorCategory, rt.ErrorMessage)
		case rt.State == models.TaskStateCancelled:
			color.Yellow("  ⊘ %-24s cancelled", rt.Name)
		case rt.Blocked:
			color.Yellow("  · %-24s blocked", rt.Name)
		default:
			fmt.Printf("  · %-24s %s\n", rt.Name, rt.State)
		}
	}
	return nil
}
