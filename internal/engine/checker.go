package engine

import (
	"fmt"

	"msmanager/internal/api"
	"msmanager/internal/dashboard"
)

const (
	StatusHealthy  = "OK"
	StatusWarning  = "WARN"
	StatusCritical = "CRIT"
)

// Check names, in evaluation order.
const (
	CheckHostBundle = "Host Bundle"
	CheckController = "Controller"
	CheckBridge     = "Bridge"
	CheckRelease    = "Release"
	CheckInstall    = "Install Drift"
	CheckFirmware   = "Firmware"
	CheckBackend    = "Backend"
)

type CheckResult struct {
	Name   string
	Value  float64
	Status string
	Note   string
}

// Evaluate grades a dashboard snapshot.
func Evaluate(s dashboard.State) []CheckResult {
	return []CheckResult{
		hostBundle(s),
		controller(s.Device),
		bridge(s),
		release(s.Release),
		installDrift(s),
		firmware(s),
		backend(s.LastError),
	}
}

// Worst returns the most severe status among results.
func Worst(results []CheckResult) string {
	worst := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusCritical:
			return StatusCritical
		case StatusWarning:
			worst = StatusWarning
		}
	}
	return worst
}

func hostBundle(s dashboard.State) CheckResult {
	if !s.HostInstalled {
		return CheckResult{Name: CheckHostBundle, Status: StatusCritical, Note: "not installed"}
	}
	return CheckResult{Name: CheckHostBundle, Status: StatusHealthy, Note: s.PayloadRoot}
}

func controller(d api.DeviceStatus) CheckResult {
	r := CheckResult{Name: CheckController, Value: float64(d.Count)}
	if !d.Connected {
		r.Status, r.Note = StatusWarning, "not detected"
		return r
	}
	for _, t := range d.Targets {
		if t.Kind == api.TargetBootloader {
			r.Status, r.Note = StatusWarning, "in bootloader"
			return r
		}
	}
	r.Status, r.Note = StatusHealthy, fmt.Sprintf("%d connected", d.Count)
	return r
}

func bridge(s dashboard.State) CheckResult {
	b := s.Bridge
	r := CheckResult{Name: CheckBridge, Note: b.Version}
	switch {
	case !b.Installed:
		r.Status, r.Note = StatusWarning, "not installed"
	case !b.Running:
		r.Status, r.Note = StatusCritical, "not running"
	case b.Paused:
		r.Status, r.Note = StatusWarning, "paused"
	case !b.SerialOpen && s.Device.Connected:
		r.Status, r.Note = StatusWarning, "serial closed"
	default:
		r.Status = StatusHealthy
	}
	if b.Message != "" && r.Status != StatusHealthy {
		r.Note = b.Message
	}
	return r
}

func release(rel *api.LatestManifestResponse) CheckResult {
	r := CheckResult{Name: CheckRelease}
	switch {
	case rel == nil:
		r.Status, r.Note = StatusWarning, "not resolved"
	case !rel.Available:
		r.Status, r.Note = StatusWarning, rel.Message
		if r.Note == "" {
			r.Note = "no release"
		}
	default:
		r.Status, r.Note = StatusHealthy, rel.Tag
	}
	return r
}

func installDrift(s dashboard.State) CheckResult {
	r := CheckResult{Name: CheckInstall}
	inst := s.Installed
	switch {
	case inst == nil:
		r.Status, r.Note = StatusWarning, "nothing installed"
	case inst.Channel != s.Channel:
		r.Status, r.Note = StatusWarning, fmt.Sprintf("installed from %s", inst.Channel)
	case s.Release != nil && s.Release.Available && inst.Tag != s.Release.Tag:
		r.Status, r.Note = StatusWarning, fmt.Sprintf("%s installed, %s selected", inst.Tag, s.Release.Tag)
	case inst.Profile != s.Profile:
		r.Status, r.Note = StatusWarning, fmt.Sprintf("profile %s installed", inst.Profile)
	default:
		r.Status, r.Note = StatusHealthy, inst.Tag
	}
	return r
}

func firmware(s dashboard.State) CheckResult {
	r := CheckResult{Name: CheckFirmware}
	last := s.LastFlashed
	switch {
	case last == nil:
		r.Status, r.Note = StatusWarning, "never flashed"
	case s.Installed != nil && last.Tag != s.Installed.Tag:
		r.Status, r.Note = StatusWarning, fmt.Sprintf("%s flashed, %s installed", last.Tag, s.Installed.Tag)
	default:
		r.Status, r.Note = StatusHealthy, fmt.Sprintf("%s (%s)", last.Tag, last.Profile)
	}
	return r
}

func backend(e *api.Error) CheckResult {
	if e == nil {
		return CheckResult{Name: CheckBackend, Status: StatusHealthy}
	}
	return CheckResult{Name: CheckBackend, Status: StatusCritical, Note: e.Error()}
}
