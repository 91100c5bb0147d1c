package views

import (
	"msmanager/ui/tui/state"
)

// ViewProps contains UI-specific properties provided by the Controller.
type ViewProps struct {
	Width, Height int

	// Component States
	ProfileCursor int
	AnimCursor    float64
	SpinnerView   string
	BarView       string
	ActivityView  string
	InputView     string
	PickerView    string
	HelpView      string
}

// View defines the contract for any renderable layer in the TUI.
type View interface {
	Render(s state.AppState, props ViewProps) string
}
