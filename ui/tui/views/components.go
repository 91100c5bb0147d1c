package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"msmanager/internal/engine"
	"msmanager/internal/output"
	"msmanager/ui/tui/styles"
)

func ColorForStatus(status string) lipgloss.Style {
	sStyle := styles.StatusStyle
	switch status {
	case engine.StatusWarning:
		return sStyle.Foreground(lipgloss.Color("220")) // Gold
	case engine.StatusCritical:
		return sStyle.Foreground(lipgloss.Color("196")) // Red
	}
	return sStyle.Foreground(lipgloss.Color("46")) // Green
}

// RenderSection lays out a report section as "label : value" rows.
func RenderSection(sec *output.Section) string {
	if sec == nil {
		return ""
	}
	var b strings.Builder
	for _, item := range sec.Items {
		var valStr string
		switch {
		case item.Unit != "":
			valStr = fmt.Sprintf("%.0f%s", item.Value, item.Unit)
		case item.Note != "":
			valStr = item.Note
		default:
			valStr = fmt.Sprintf("%.0f", item.Value)
		}
		if item.Status != "" {
			valStr = ColorForStatus(item.Status).Render(fmt.Sprintf("[%s]", item.Status)) + " " + valStr
		}
		fmt.Fprintf(&b, "%-14s : %s\n", item.Label, valStr)
	}
	return strings.TrimRight(b.String(), "\n")
}

func card(title, body string) string {
	return styles.CardStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render(title),
		body,
	))
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}
