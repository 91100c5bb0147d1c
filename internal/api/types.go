// Package api defines the backend contract the dashboard consumes: wire
// types, the status fetcher, the action gateways and the event streams.
package api

import "fmt"

type Channel string

const (
	ChannelStable  Channel = "stable"
	ChannelBeta    Channel = "beta"
	ChannelNightly Channel = "nightly"
)

// Channels lists every channel in display order.
func Channels() []Channel {
	return []Channel{ChannelStable, ChannelBeta, ChannelNightly}
}

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	for _, c := range Channels() {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, s)
}

type OS string

const (
	OSWindows OS = "windows"
	OSMacOS   OS = "macos"
	OSLinux   OS = "linux"
)

type Arch string

const (
	ArchX86_64 Arch = "x86_64"
	ArchARM64  Arch = "arm64"
)

type Platform struct {
	OS   OS   `json:"os"`
	Arch Arch `json:"arch"`
}

type Settings struct {
	Schema    int     `json:"schema"`
	Channel   Channel `json:"channel"`
	Profile   string  `json:"profile"`
	PinnedTag string  `json:"pinned_tag,omitempty"`
}

type InstallState struct {
	Schema  int     `json:"schema"`
	Channel Channel `json:"channel"`
	Profile string  `json:"profile"`
	Tag     string  `json:"tag"`
}

type TargetKind string

const (
	TargetSerial     TargetKind = "serial"
	TargetBootloader TargetKind = "bootloader"
)

type DeviceTarget struct {
	ID     string     `json:"id"`
	Kind   TargetKind `json:"kind"`
	Port   string     `json:"port,omitempty"`
	Serial string     `json:"serial,omitempty"`
}

type DeviceStatus struct {
	Connected bool           `json:"connected"`
	Count     int            `json:"count"`
	Targets   []DeviceTarget `json:"targets"`
}

type BridgeStatus struct {
	Installed  bool   `json:"installed"`
	Running    bool   `json:"running"`
	Paused     bool   `json:"paused"`
	SerialOpen bool   `json:"serial_open"`
	Version    string `json:"version,omitempty"`
	Message    string `json:"message,omitempty"`
}

type LastFlashed struct {
	Channel     Channel `json:"channel"`
	Tag         string  `json:"tag"`
	Profile     string  `json:"profile"`
	FlashedAtMS int64   `json:"flashed_at_ms"`
}

type Status struct {
	Settings      Settings      `json:"settings"`
	Installed     *InstallState `json:"installed,omitempty"`
	HostInstalled bool          `json:"host_installed"`
	Platform      Platform      `json:"platform"`
	PayloadRoot   string        `json:"payload_root"`
	Device        DeviceStatus  `json:"device"`
	LastFlashed   *LastFlashed  `json:"last_flashed,omitempty"`
	Bridge        BridgeStatus  `json:"bridge"`
}

type ManifestAsset struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	OS       OS     `json:"os,omitempty"`
	Arch     Arch   `json:"arch,omitempty"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
	URL      string `json:"url,omitempty"`
}

type InstallSet struct {
	ID     string   `json:"id"`
	OS     OS       `json:"os,omitempty"`
	Arch   Arch     `json:"arch,omitempty"`
	Assets []string `json:"assets"`
}

type Manifest struct {
	Schema      int             `json:"schema"`
	Channel     Channel         `json:"channel"`
	Tag         string          `json:"tag"`
	PublishedAt string          `json:"published_at"`
	Assets      []ManifestAsset `json:"assets"`
	InstallSets []InstallSet    `json:"install_sets"`
}

// ProfilesFor returns the ids of the install sets that apply to p, in
// manifest order without duplicates.
func (m *Manifest) ProfilesFor(p Platform) []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, s := range m.InstallSets {
		if s.OS != p.OS || s.Arch != p.Arch || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		out = append(out, s.ID)
	}
	return out
}

type LatestManifestResponse struct {
	Channel   Channel   `json:"channel"`
	Available bool      `json:"available"`
	Tag       string    `json:"tag,omitempty"`
	Manifest  *Manifest `json:"manifest,omitempty"`
	Message   string    `json:"message,omitempty"`
}

type AppUpdateInfo struct {
	Version string `json:"version"`
	PubDate string `json:"pub_date,omitempty"`
	Notes   string `json:"notes,omitempty"`
}

type AppUpdateStatus struct {
	CurrentVersion string         `json:"current_version"`
	Available      bool           `json:"available"`
	Update         *AppUpdateInfo `json:"update,omitempty"`
	Error          string         `json:"error,omitempty"`
}

type InstallEventType string

const (
	InstallBegin       InstallEventType = "begin"
	InstallDownloading InstallEventType = "downloading"
	InstallApplying    InstallEventType = "applying"
	InstallDone        InstallEventType = "done"
)

// InstallEvent is a flat tagged union; only the fields of Type are set.
type InstallEvent struct {
	Type        InstallEventType `json:"type"`
	Channel     Channel          `json:"channel,omitempty"`
	Tag         string           `json:"tag,omitempty"`
	Profile     string           `json:"profile,omitempty"`
	AssetsTotal int              `json:"assets_total,omitempty"`
	Index       int              `json:"index,omitempty"`
	Total       int              `json:"total,omitempty"`
	AssetID     string           `json:"asset_id,omitempty"`
	Filename    string           `json:"filename,omitempty"`
	Step        string           `json:"step,omitempty"`
}

type FlashEventType string

const (
	FlashBegin  FlashEventType = "begin"
	FlashOutput FlashEventType = "output"
	FlashDone   FlashEventType = "done"
)

type FlashEvent struct {
	Type    FlashEventType `json:"type"`
	Channel Channel        `json:"channel,omitempty"`
	Tag     string         `json:"tag,omitempty"`
	Profile string         `json:"profile,omitempty"`
	Line    string         `json:"line,omitempty"`
	OK      bool           `json:"ok"`
}
