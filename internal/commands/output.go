// internal/commands/output.go
package kolosalctl

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
)

var (
	successText = color.New(color.FgGreen).SprintFunc()
	warnText    = color.New(color.FgYellow).SprintFunc()
	errorText   = color.New(color.FgRed, color.Bold).SprintFunc()
	faintText   = color.New(color.Faint).SprintFunc()

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	labelStyle = lipgloss.NewStyle().Faint(true).Width(10)
	panelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func printSuccess(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, successText("✔ "+fmt.Sprintf(format, args...)))
}

func printWarn(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, warnText("! "+fmt.Sprintf(format, args...)))
}

func printError(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errorText("✘ "+fmt.Sprintf(format, args...)))
}

// panel renders a titled box of label/value rows.
func panel(title string, rows [][2]string) string {
	lines := []string{titleStyle.Render(title)}
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r[0]), r[1]))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
