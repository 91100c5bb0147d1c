package views

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"msmanager/internal/output"
	"msmanager/ui/tui/state"
	"msmanager/ui/tui/styles"
)

type DashboardView struct{}

func (v DashboardView) Render(s state.AppState, props ViewProps) string {
	report := output.Report{}
	if s.Snapshot != nil {
		report = s.Snapshot.Report
	}

	overall := ""
	if report.Overall != "" {
		overall = ColorForStatus(report.Overall).Render("[" + report.Overall + "]")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		styles.HeaderStyle.Render("MS MANAGER // FIRMWARE"),
		" ", props.SpinnerView, " ", overall,
		styles.HintStyle.Render(fmt.Sprintf("  updated %s", s.LastUpdate.Format("15:04:05"))),
	)

	lines := []string{header}

	now := report.Now
	if now == "" {
		now = "Idle"
	}
	nowLine := styles.TitleStyle.Render(now)
	if s.Dash.Flashing || s.Dash.HasFlashPercent() {
		nowLine = lipgloss.JoinHorizontal(lipgloss.Center, nowLine, props.BarView,
			fmt.Sprintf(" %3d%%", s.Dash.FlashPercent))
	}
	lines = append(lines, nowLine)

	if report.Error != "" {
		lines = append(lines, styles.ErrorStyle.Render(" ✗ "+report.Error)+styles.HintStyle.Render("  (e to dismiss)"))
	}
	if report.AppUpdate != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.Special).Render(" ↑ application update "+report.AppUpdate)+styles.HintStyle.Render("  (u to open)"))
	}

	selection := card("Selection", RenderSection(report.SectionByID(output.SectionSelection)))
	row1 := lipgloss.JoinHorizontal(lipgloss.Top, ProfilesView{}.Render(s, props), selection)

	health := card("Health", RenderSection(report.SectionByID(output.SectionHealth)))
	device := card("Device", RenderSection(report.SectionByID(output.SectionDevice)))
	install := card("Install", RenderSection(report.SectionByID(output.SectionInstall)))
	row2 := lipgloss.JoinHorizontal(lipgloss.Top, health, lipgloss.JoinVertical(lipgloss.Left, device, install))

	lines = append(lines, row1, row2)

	if s.Dash.ActivityOpen {
		lines = append(lines, styles.CardStyle.Render(ActivityView{}.Render(s, props)))
	}

	footer := props.HelpView
	if s.Notice != "" {
		footer = styles.CopyStyle.Render(s.Notice) + "\n" + footer
	}
	lines = append(lines, lipgloss.NewStyle().PaddingLeft(1).Render(footer))

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
