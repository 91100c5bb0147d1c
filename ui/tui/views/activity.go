package views

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"msmanager/internal/activity"
	"msmanager/ui/tui/state"
)

// ActivityContent renders entries one per line, clipped to width.
func ActivityContent(entries []activity.Entry, width int) string {
	if len(entries) == 0 {
		return CopyStyleDim.Render("no activity")
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		line := activity.Line(e)
		if width > 0 {
			line = ansi.Truncate(line, width, "…")
		}
		lines = append(lines, levelStyle(e.Level).Render(line))
	}
	return strings.Join(lines, "\n")
}

func levelStyle(l activity.Level) lipgloss.Style {
	switch l {
	case activity.LevelOK:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	case activity.LevelWarn:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	case activity.LevelError:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	}
	return lipgloss.NewStyle()
}

var CopyStyleDim = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))

type ActivityView struct{}

func (v ActivityView) Render(s state.AppState, props ViewProps) string {
	filter := "all"
	if s.Dash.ActivityFilter != "" {
		filter = string(s.Dash.ActivityFilter)
	}
	title := lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render("Activity"),
		CopyStyleDim.Render(" ["+filter+"] tab filter • x clear • y copy • pgup/pgdn scroll"),
	)
	return lipgloss.JoinVertical(lipgloss.Left, title, props.ActivityView)
}
