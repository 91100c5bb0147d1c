package state

import (
	"time"

	"msmanager/internal/activity"
	"msmanager/internal/dashboard"
	"msmanager/internal/output"
)

type Mode int

const (
	ModeDashboard Mode = iota
	ModeFlashConfirm
	ModeRelocate
	ModeBrowse      // folder picker for relocation
	ModeContextMenu // per-profile popup
)

// AppState holds the current snapshot of the dashboard as the TUI shows it
type AppState struct {
	Dash       dashboard.State
	Snapshot   *output.Snapshot
	Activity   []activity.Entry // already filtered by Dash.ActivityFilter
	LastUpdate time.Time
	Notice     string // one-line feedback for the last key action
	Browsing   bool
}

// Mode picks the layer receiving keys. Modals stack over the dashboard; the
// folder picker sits on top of the relocate modal.
func (s AppState) Mode() Mode {
	switch {
	case s.Browsing:
		return ModeBrowse
	case s.Dash.FlashModal.Open:
		return ModeFlashConfirm
	case s.Dash.RelocateModal.Open:
		return ModeRelocate
	case s.Dash.ContextMenu.Open:
		return ModeContextMenu
	default:
		return ModeDashboard
	}
}
