package views

import (
	"fmt"
	"math"

	"github.com/charmbracelet/lipgloss"
	zone "github.com/lrstanley/bubblezone"

	"msmanager/ui/tui/state"
	"msmanager/ui/tui/styles"
)

// ProfileZone names the clickable zone of profile row i.
func ProfileZone(i int) string { return fmt.Sprintf("profile_%d", i) }

type ProfilesView struct{}

func (v ProfilesView) Render(s state.AppState, props ViewProps) string {
	var rows []string
	for i, profile := range s.Dash.ProfileOptions {
		// Rows near the animated cursor pop out.
		dist := math.Abs(float64(i) - props.AnimCursor)
		strength := 0.0
		if dist < 1.0 {
			strength = 1.0 - dist
		}

		borderColor := styles.BaseColor
		if strength > 0.1 || i == props.ProfileCursor {
			borderColor = styles.BrandColor
		}

		rowStyle := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(borderColor).
			Padding(0, 1).
			MarginLeft(int(strength * 2)).
			Width(28)
		if i == props.ProfileCursor {
			rowStyle = rowStyle.Bold(true).Foreground(lipgloss.Color("#FFF"))
		} else {
			rowStyle = rowStyle.Foreground(lipgloss.Color("#AAA"))
		}

		mark := "○"
		if profile == s.Dash.Profile {
			mark = "●"
		}
		text := fmt.Sprintf("%s %s", mark, profile)
		if s.Dash.LastFlashed != nil && s.Dash.LastFlashed.Profile == profile {
			text += CopyStyleDim.Render("  flashed " + s.Dash.LastFlashed.Tag)
		}
		rows = append(rows, zone.Mark(ProfileZone(i), rowStyle.Render(text)))
	}
	if len(rows) == 0 {
		rows = append(rows, styles.CopyStyle.Render("no profiles for this release"))
	}

	return card("Profiles", lipgloss.JoinVertical(lipgloss.Left, rows...))
}
