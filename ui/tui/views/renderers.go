package views

import (
	"msmanager/ui/tui/state"
)

// Render draws the layer for the current mode.
func Render(s state.AppState, props ViewProps) string {
	switch s.Mode() {
	case state.ModeFlashConfirm:
		return FlashConfirmView{}.Render(s, props)
	case state.ModeRelocate:
		return RelocateView{}.Render(s, props)
	case state.ModeBrowse:
		return BrowseView{}.Render(s, props)
	case state.ModeContextMenu:
		base := DashboardView{}.Render(s, props)
		return Overlay(base, ContextMenu(s), s.Dash.ContextMenu.X, s.Dash.ContextMenu.Y)
	default:
		return DashboardView{}.Render(s, props)
	}
}
