package output

import (
	"fmt"
	"strings"
	"time"

	"msmanager/internal/dashboard"
	"msmanager/internal/engine"
)

// Section constants to avoid hardcoded strings
const (
	SectionHealth    = "health"
	SectionSelection = "selection"
	SectionDevice    = "device"
	SectionInstall   = "install"
)

// UI/view-model types (no printing here)
type Item struct {
	Key    string
	Label  string
	Value  float64
	Unit   string
	Status string
	Note   string
}

type Section struct {
	ID    string
	Title string
	Items []Item
}

type Report struct {
	Sections  []Section
	Overall   string
	Now       string
	AppUpdate string
	Error     string
}

// BuildReport converts check results and a dashboard snapshot into
// UI-ready sections.
func BuildReport(results []engine.CheckResult, s dashboard.State) Report {
	health := Section{ID: SectionHealth, Title: "Health"}
	for _, r := range results {
		health.Items = append(health.Items, Item{
			Key:    keyOf(r.Name),
			Label:  r.Name,
			Status: r.Status,
			Note:   r.Note,
		})
	}

	selection := Section{ID: SectionSelection, Title: "Selection", Items: []Item{
		{Key: "channel", Label: "Channel", Note: string(s.Channel)},
		{Key: "profile", Label: "Profile", Note: s.Profile},
		{Key: "pinned_tag", Label: "Pinned Tag", Note: orDash(s.PinnedTag, "latest")},
		{Key: "profiles", Label: "Profiles", Note: strings.Join(s.ProfileOptions, ", ")},
	}}
	if s.Release != nil && s.Release.Available {
		selection.Items = append(selection.Items, Item{Key: "release", Label: "Release", Note: s.Release.Tag})
	}
	if len(s.Tags) > 0 {
		selection.Items = append(selection.Items, Item{Key: "tags", Label: "Tags", Value: float64(len(s.Tags))})
	}

	device := Section{ID: SectionDevice, Title: "Device", Items: []Item{
		{Key: "controllers", Label: "Controllers", Value: float64(s.Device.Count)},
	}}
	for _, t := range s.Device.Targets {
		note := string(t.Kind)
		if t.Port != "" {
			note += " " + t.Port
		}
		device.Items = append(device.Items, Item{Key: "target_" + keyOf(t.ID), Label: "Target " + t.ID, Note: note})
	}
	device.Items = append(device.Items,
		Item{Key: "bridge_version", Label: "Bridge Version", Note: orDash(s.Bridge.Version, "-")},
	)
	if s.HasFlashPercent() {
		device.Items = append(device.Items, Item{Key: "flash", Label: "Flash", Value: float64(s.FlashPercent), Unit: "%"})
	}

	install := Section{ID: SectionInstall, Title: "Install", Items: []Item{
		{Key: "payload_root", Label: "Payload Root", Note: orDash(s.PayloadRoot, "-")},
	}}
	if s.Platform != nil {
		install.Items = append(install.Items, Item{Key: "platform", Label: "Platform", Note: fmt.Sprintf("%s/%s", s.Platform.OS, s.Platform.Arch)})
	}
	if s.Installed != nil {
		install.Items = append(install.Items, Item{
			Key:   "installed",
			Label: "Installed",
			Note:  fmt.Sprintf("%s %s (%s)", s.Installed.Channel, s.Installed.Tag, s.Installed.Profile),
		})
	}
	if s.LastFlashed != nil {
		at := time.UnixMilli(s.LastFlashed.FlashedAtMS).Local().Format("2006-01-02 15:04")
		install.Items = append(install.Items, Item{
			Key:   "last_flashed",
			Label: "Last Flashed",
			Note:  fmt.Sprintf("%s (%s) %s", s.LastFlashed.Tag, s.LastFlashed.Profile, at),
		})
	}

	r := Report{
		Sections: []Section{health, selection, device, install},
		Overall:  engine.Worst(results),
		Now:      s.Now,
	}
	if s.AppUpdate != nil && s.AppUpdate.Available && s.AppUpdate.Update != nil {
		r.AppUpdate = fmt.Sprintf("%s -> %s", s.AppUpdate.CurrentVersion, s.AppUpdate.Update.Version)
	}
	if s.LastError != nil {
		r.Error = s.LastError.Error()
	}
	return r
}

func (r Report) SectionByID(id string) *Section {
	for i := range r.Sections {
		if r.Sections[i].ID == id {
			return &r.Sections[i]
		}
	}
	return nil
}

func (s Section) ItemByKey(key string) *Item {
	for i := range s.Items {
		if s.Items[i].Key == key {
			return &s.Items[i]
		}
	}
	return nil
}

func keyOf(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

func orDash(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
