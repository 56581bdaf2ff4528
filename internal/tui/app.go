// Package tui provides the live terminal view of a workflow run. It
// consumes the engine's coordination event stream and renders per-task
// state until the final workflow_completed event arrives.
package tui

import (
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/milad-o/agenticflow/pkg/models"
)

// EventMsg wraps one coordination event for the bubbletea update loop.
type EventMsg struct {
	Event models.CoordinationEvent
}

// StreamClosedMsg signals the event stream ended without a final summary.
type StreamClosedMsg struct{}

// taskRow is the display state of one task.
type taskRow struct {
	id       string
	name     string
	state    models.TaskState
	attempts int
	detail   string
	first    time.Time
}

// App is the bubbletea model for a streaming workflow run.
type App struct {
	workflow string
	spinner  spinner.Model
	events   <-chan models.CoordinationEvent

	rows  map[string]*taskRow
	order []string

	startedAt time.Time
	done      bool
	quitting  bool
	summary   map[string]any

	width  int
	height int
}

// New creates an App consuming the given event stream.
func New(workflow string, events <-chan models.CoordinationEvent) *App {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return &App{
		workflow:  workflow,
		spinner:   sp,
		events:    events,
		rows:      make(map[string]*taskRow),
		startedAt: time.Now(),
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.waitForEvent())
}

// waitForEvent blocks on the stream and converts the next event to a msg.
func (a *App) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-a.events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg{Event: ev}
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case EventMsg:
		a.apply(msg.Event)
		if a.done {
			return a, tea.Quit
		}
		return a, a.waitForEvent()

	case StreamClosedMsg:
		a.done = true
		return a, tea.Quit
	}

	return a, nil
}

// apply folds one coordination event into the display state.
func (a *App) apply(ev models.CoordinationEvent) {
	switch ev.Type {
	case models.EventWorkflowCompleted:
		a.done = true
		a.summary = ev.Payload
		return
	case models.EventHeartbeat:
		return
	}

	if ev.TaskID == "" {
		return
	}

	row, ok := a.rows[ev.TaskID]
	if !ok {
		row = &taskRow{id: ev.TaskID, state: models.TaskStatePending, first: ev.Timestamp}
		a.rows[ev.TaskID] = row
		a.order = append(a.order, ev.TaskID)
	}
	if name, ok := ev.Payload["name"].(string); ok && name != "" {
		row.name = name
	}
	if attempts, ok := ev.Payload["attempts"].(int); ok {
		row.attempts = attempts
	}

	switch ev.Type {
	case models.EventTaskStarted:
		row.state = models.TaskStateRunning
		if attempt, ok := ev.Payload["attempt"].(int); ok {
			row.attempts = attempt
		}
	case models.EventTaskCompleted:
		row.state = models.TaskStateCompleted
		row.detail = ""
	case models.EventTaskFailed:
		if s, ok := ev.Payload["state"].(string); ok {
			row.state = models.TaskState(s)
		} else {
			row.state = models.TaskStateFailed
		}
		if msg, ok := ev.Payload["message"].(string); ok {
			row.detail = msg
		} else if reason, ok := ev.Payload["reason"].(string); ok {
			row.detail = reason
		}
	case models.EventTaskProgress:
		if msg, ok := ev.Payload["message"].(string); ok {
			row.detail = msg
		}
	case models.EventRealTimeUpdate:
		if phase, ok := ev.Payload["phase"].(string); ok && phase == "retry_scheduled" {
			row.state = models.TaskStatePending
			if delay, ok := ev.Payload["delay"].(string); ok {
				row.detail = fmt.Sprintf("retrying in %s", delay)
			}
		}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting && !a.done {
		return "aborted\n"
	}

	header := titleStyle.Render(fmt.Sprintf(" %s ", a.workflow))
	out := header + "\n\n"

	ids := append([]string(nil), a.order...)
	sort.Strings(ids)
	for _, id := range ids {
		out += a.renderRow(a.rows[id]) + "\n"
	}

	if a.done {
		out += "\n" + a.renderSummary() + "\n"
	} else {
		out += "\n" + a.spinner.View() + dimStyle.Render(
			fmt.Sprintf(" running %s  (q to quit)", time.Since(a.startedAt).Round(time.Second)))
	}
	return out
}

// renderRow formats one task line.
func (a *App) renderRow(row *taskRow) string {
	name := row.name
	if name == "" {
		name = row.id
	}

	var marker string
	switch row.state {
	case models.TaskStateCompleted:
		marker = okStyle.Render("✓")
	case models.TaskStateFailed:
		marker = errStyle.Render("✗")
	case models.TaskStateCancelled:
		marker = dimStyle.Render("⊘")
	case models.TaskStateRunning:
		marker = a.spinner.View()
	default:
		marker = dimStyle.Render("·")
	}

	line := fmt.Sprintf(" %s %-24s %s", marker, name, stateStyle(row.state).Render(string(row.state)))
	if row.attempts > 1 {
		line += dimStyle.Render(fmt.Sprintf("  attempt %d", row.attempts))
	}
	if row.detail != "" {
		line += "  " + dimStyle.Render(truncate(row.detail, 60))
	}
	return line
}

// renderSummary formats the final aggregates from the workflow_completed
// payload.
func (a *App) renderSummary() string {
	if a.summary == nil {
		return dimStyle.Render(" stream closed")
	}

	completed, _ := a.summary["completed"].(int)
	total, _ := a.summary["total"].(int)
	failed, _ := a.summary["failed"].(int)
	cancelled, _ := a.summary["cancelled"].(int)
	blocked, _ := a.summary["blocked"].(int)
	rate, _ := a.summary["success_rate"].(float64)

	line := fmt.Sprintf(" %d/%d completed (%.1f%%)", completed, total, rate)
	if failed > 0 {
		line += errStyle.Render(fmt.Sprintf("  %d failed", failed))
	}
	if cancelled > 0 {
		line += dimStyle.Render(fmt.Sprintf("  %d cancelled", cancelled))
	}
	if blocked > 0 {
		line += warnStyle.Render(fmt.Sprintf("  %d blocked", blocked))
	}
	return line
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
