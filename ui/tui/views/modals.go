package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	zone "github.com/lrstanley/bubblezone"

	"msmanager/ui/tui/state"
	"msmanager/ui/tui/styles"
)

// Context menu zones.
const (
	ZoneMenuFlash  = "menu_flash"
	ZoneMenuSelect = "menu_select"
)

type FlashConfirmView struct{}

func (v FlashConfirmView) Render(s state.AppState, props ViewProps) string {
	m := s.Dash.FlashModal
	target := "no controller detected"
	if s.Dash.Device.Connected {
		target = fmt.Sprintf("%d controller(s) connected", s.Dash.Device.Count)
	}
	tag := "-"
	if s.Dash.Installed != nil {
		tag = s.Dash.Installed.Tag
	}

	confirm := styles.HintStyle.Render("enter flash (needs acknowledgement)")
	if m.Ack {
		confirm = lipgloss.NewStyle().Bold(true).Foreground(styles.BrandColor).Render("enter flash now")
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render("Flash firmware"),
		"",
		fmt.Sprintf("Profile:  %s", m.Profile),
		fmt.Sprintf("Firmware: %s", tag),
		fmt.Sprintf("Target:   %s", target),
		"",
		styles.ErrorStyle.Render("The controller reboots into its bootloader and is overwritten."),
		fmt.Sprintf("%s I understand (space)", checkbox(m.Ack)),
		"",
		confirm+styles.HintStyle.Render(" • esc cancel"),
	)
	return place(props, styles.ModalStyle.Render(body))
}

type RelocateView struct{}

func (v RelocateView) Render(s state.AppState, props ViewProps) string {
	m := s.Dash.RelocateModal
	status := ""
	if s.Dash.Relocating {
		status = props.SpinnerView + " moving…"
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render("Move payload root"),
		"",
		fmt.Sprintf("Current: %s", s.Dash.PayloadRoot),
		"New:     "+props.InputView,
		"",
		fmt.Sprintf("%s Move the installed bundle (tab)", checkbox(m.Ack)),
		status,
		styles.HintStyle.Render("enter move • ctrl+o browse • esc cancel"),
	)
	return place(props, styles.ModalStyle.Render(body))
}

type BrowseView struct{}

func (v BrowseView) Render(s state.AppState, props ViewProps) string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Bold(true).Render("Choose a folder"),
		props.PickerView,
		styles.HintStyle.Render("enter open/choose • . use current folder • esc cancel"),
	)
	return place(props, styles.ModalStyle.Render(body))
}

// ContextMenu renders the profile popup.
func ContextMenu(s state.AppState) string {
	menu := s.Dash.ContextMenu
	items := lipgloss.JoinVertical(lipgloss.Left,
		CopyStyleDim.Render(menu.Profile),
		zone.Mark(ZoneMenuFlash, "f  Flash…"),
		zone.Mark(ZoneMenuSelect, "s  Use profile"),
	)
	return styles.MenuStyle.Render(items)
}

// Overlay draws popup over base with its top-left cell at (x, y).
func Overlay(base, popup string, x, y int) string {
	lines := strings.Split(base, "\n")
	for i, pl := range strings.Split(popup, "\n") {
		row := y + i
		for len(lines) <= row {
			lines = append(lines, "")
		}
		prefix := ansi.Truncate(lines[row], x, "")
		if w := ansi.StringWidth(prefix); w < x {
			prefix += strings.Repeat(" ", x-w)
		}
		lines[row] = prefix + pl
	}
	return strings.Join(lines, "\n")
}

func place(props ViewProps, box string) string {
	if props.Width <= 0 || props.Height <= 0 {
		return box
	}
	return lipgloss.Place(props.Width, props.Height, lipgloss.Center, lipgloss.Center, box)
}
