package api

import "context"

// Command names of the request/response operations.
const (
	CmdStatusGet             = "status_get"
	CmdDeviceStatusGet       = "device_status_get"
	CmdBridgeStatusGet       = "bridge_status_get"
	CmdSettingsSetChannel    = "settings_set_channel"
	CmdSettingsSetProfile    = "settings_set_profile"
	CmdSettingsSetPinnedTag  = "settings_set_pinned_tag"
	CmdResolveLatestManifest = "resolve_latest_manifest"
	CmdResolveManifestForTag = "resolve_manifest_for_tag"
	CmdListChannelTags       = "list_channel_tags"
	CmdInstallSelected       = "install_selected"
	CmdFlashFirmware         = "flash_firmware"
	CmdPayloadRootRelocate   = "payload_root_relocate"
	CmdAppUpdateCheck        = "app_update_check"
	CmdAppUpdateOpenLatest   = "app_update_open_latest"
)

// Commands lists every command name.
func Commands() []string {
	return []string{
		CmdStatusGet, CmdDeviceStatusGet, CmdBridgeStatusGet,
		CmdSettingsSetChannel, CmdSettingsSetProfile, CmdSettingsSetPinnedTag,
		CmdResolveLatestManifest, CmdResolveManifestForTag, CmdListChannelTags,
		CmdInstallSelected, CmdFlashFirmware, CmdPayloadRootRelocate,
		CmdAppUpdateCheck, CmdAppUpdateOpenLatest,
	}
}

// Event stream names.
const (
	StreamInstall = "install"
	StreamFlash   = "flash"
)

// StatusFetcher issues point-in-time snapshot queries.
type StatusFetcher interface {
	Status(ctx context.Context) (Status, error)
	DeviceStatus(ctx context.Context) (DeviceStatus, error)
	BridgeStatus(ctx context.Context) (BridgeStatus, error)
}

// Gateway mutates backend state and returns the backend's resulting view.
// An empty pinned tag means "track latest".
type Gateway interface {
	SetChannel(ctx context.Context, channel Channel) (Settings, error)
	SetProfile(ctx context.Context, profile string) (Settings, error)
	SetPinnedTag(ctx context.Context, tag string) (Settings, error)
	ResolveLatestManifest(ctx context.Context, channel Channel) (LatestManifestResponse, error)
	ResolveManifestForTag(ctx context.Context, channel Channel, tag string) (LatestManifestResponse, error)
	ListChannelTags(ctx context.Context, channel Channel) ([]string, error)
	InstallSelected(ctx context.Context) (InstallState, error)
	FlashFirmware(ctx context.Context, profile string) (LastFlashed, error)
	RelocatePayloadRoot(ctx context.Context, newRoot string) (Status, error)
	CheckAppUpdate(ctx context.Context) (AppUpdateStatus, error)
	OpenLatestAppUpdate(ctx context.Context) error
}

// Backend is everything the dashboard calls.
type Backend interface {
	StatusFetcher
	Gateway
}

// Subscription is a live event stream registration.
type Subscription interface {
	Unsubscribe() error
}

// EventSource delivers install and flash events in publication order.
// Handlers for one stream are never called concurrently.
type EventSource interface {
	SubscribeInstall(ctx context.Context, fn func(InstallEvent)) (Subscription, error)
	SubscribeFlash(ctx context.Context, fn func(FlashEvent)) (Subscription, error)
}
