package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/milad-o/agenticflow/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62"))

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	runStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// stateStyle returns the style for rendering a task state label.
func stateStyle(s models.TaskState) lipgloss.Style {
	switch s {
	case models.TaskStateCompleted:
		return okStyle
	case models.TaskStateFailed:
		return errStyle
	case models.TaskStateCancelled:
		return warnStyle
	case models.TaskStateRunning:
		return runStyle
	default:
		return dimStyle
	}
}
