package dashboard

import (
	"msmanager/internal/activity"
	"msmanager/internal/api"
)

// FlashModal is the confirmation gate in front of a firmware flash.
type FlashModal struct {
	Open    bool
	Profile string
	Ack     bool
}

// RelocateModal is the confirmation gate in front of a payload root move.
type RelocateModal struct {
	Open     bool
	NextRoot string
	Ack      bool
}

// ContextMenu is the per-profile popup, anchored at a screen cell.
type ContextMenu struct {
	Open    bool
	X, Y    int
	Profile string
}

// State is the single source of truth for the dashboard. Values handed out
// by the store are snapshots: slices and pointers in them are never mutated
// in place, transforms replace them.
type State struct {
	// Selection
	Channel        api.Channel
	Profile        string
	PinnedTag      string // empty tracks the latest release
	Tags           []string
	ProfileOptions []string

	// Backend facts
	Installed     *api.InstallState
	HostInstalled bool
	Platform      *api.Platform
	PayloadRoot   string
	LastFlashed   *api.LastFlashed
	Device        api.DeviceStatus
	Bridge        api.BridgeStatus
	Release       *api.LatestManifestResponse
	AppUpdate     *api.AppUpdateStatus

	// Operation flags
	LoadingRelease      bool
	LoadingTags         bool
	SavingSettings      bool
	Installing          bool
	Flashing            bool
	Relocating          bool
	CheckingAppUpdate   bool
	InstallingAppUpdate bool

	// Transient
	Now          string
	FlashPercent int // 0 while no percentage-bearing flash output is active
	LastError    *api.Error

	// Modals and panels
	FlashModal     FlashModal
	RelocateModal  RelocateModal
	ContextMenu    ContextMenu
	ActivityOpen   bool
	ActivityFilter activity.Scope // empty shows every scope
}

// InitialState builds the state a session starts from.
func InitialState(cfg Config) State {
	return State{
		Channel:        cfg.DefaultChannel,
		Profile:        cfg.DefaultProfile,
		ProfileOptions: append([]string(nil), cfg.DefaultProfileOptions...),
	}
}

// HasFlashPercent reports whether a flash percentage is being displayed.
func (s State) HasFlashPercent() bool { return s.FlashPercent > 0 }

// Busy reports whether any backend-mutating action is running.
func (s State) Busy() bool {
	return s.Installing || s.Flashing || s.Relocating || s.SavingSettings || s.InstallingAppUpdate
}

// Loading reports whether any refresh is running.
func (s State) Loading() bool {
	return s.LoadingRelease || s.LoadingTags || s.CheckingAppUpdate
}

// CanInstallAppUpdate mirrors the preconditions of InstallAppUpdate.
func (s State) CanInstallAppUpdate() bool {
	return s.AppUpdate != nil && s.AppUpdate.Available && !s.Busy()
}

func flagLoadingRelease(s *State) *bool      { return &s.LoadingRelease }
func flagLoadingTags(s *State) *bool         { return &s.LoadingTags }
func flagSavingSettings(s *State) *bool      { return &s.SavingSettings }
func flagInstalling(s *State) *bool          { return &s.Installing }
func flagRelocating(s *State) *bool          { return &s.Relocating }
func flagCheckingAppUpdate(s *State) *bool   { return &s.CheckingAppUpdate }
func flagInstallingAppUpdate(s *State) *bool { return &s.InstallingAppUpdate }

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
