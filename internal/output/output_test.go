package output

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msmanager/internal/api"
	"msmanager/internal/dashboard"
	"msmanager/internal/engine"
)

type fakeLoader struct {
	state     dashboard.State
	statusErr error
	steps     []string
}

func (f *fakeLoader) RefreshStatus(ctx context.Context) error {
	f.steps = append(f.steps, "status")
	return f.statusErr
}

func (f *fakeLoader) RefreshTags(ctx context.Context) dashboard.Outcome {
	f.steps = append(f.steps, "tags")
	return dashboard.Applied
}

func (f *fakeLoader) RefreshRelease(ctx context.Context) dashboard.Outcome {
	f.steps = append(f.steps, "release")
	return dashboard.Applied
}

func (f *fakeLoader) CheckAppUpdate(ctx context.Context) dashboard.Outcome {
	f.steps = append(f.steps, "app_update")
	return dashboard.Applied
}

func (f *fakeLoader) State() dashboard.State { return f.state }

func sampleState() dashboard.State {
	return dashboard.State{
		Channel:        api.ChannelBeta,
		Profile:        "bitwig",
		ProfileOptions: []string{"default", "bitwig"},
		Tags:           []string{"v1.2.0-beta.1"},
		HostInstalled:  true,
		PayloadRoot:    "/opt/ms",
		Platform:       &api.Platform{OS: api.OSLinux, Arch: api.ArchX86_64},
		Installed:      &api.InstallState{Channel: api.ChannelBeta, Profile: "bitwig", Tag: "v1.2.0-beta.1"},
		Device: api.DeviceStatus{Connected: true, Count: 1, Targets: []api.DeviceTarget{
			{ID: "usb:1-4", Kind: api.TargetSerial, Port: "/dev/ttyACM0"},
		}},
		Bridge:       api.BridgeStatus{Installed: true, Running: true, SerialOpen: true, Version: "0.3.2"},
		Release:      &api.LatestManifestResponse{Available: true, Tag: "v1.2.0-beta.1"},
		AppUpdate:    &api.AppUpdateStatus{CurrentVersion: "0.4.0", Available: true, Update: &api.AppUpdateInfo{Version: "0.5.0"}},
		FlashPercent: 63,
		Now:          "Flashing… 63%",
	}
}

func TestRunSnapshot(t *testing.T) {
	l := &fakeLoader{state: sampleState()}

	snap, err := RunSnapshot(context.Background(), l)
	require.NoError(t, err)

	assert.Equal(t, []string{"status", "tags", "release", "app_update"}, l.steps)
	assert.Len(t, snap.Checks, 7)
	assert.Equal(t, engine.StatusWarning, snap.Report.Overall, "never flashed")
	assert.Equal(t, "0.4.0 -> 0.5.0", snap.Report.AppUpdate)
}

func TestRunSnapshotStatusFailure(t *testing.T) {
	l := &fakeLoader{statusErr: errors.New("connection refused")}

	_, err := RunSnapshot(context.Background(), l)
	require.Error(t, err)
	assert.Equal(t, []string{"status"}, l.steps)
}

func TestBuildReport(t *testing.T) {
	s := sampleState()
	s.LastError = api.NewError("flash_failed", "firmware flash failed", nil)
	r := BuildReport(engine.Evaluate(s), s)

	require.Len(t, r.Sections, 4)
	health := r.SectionByID(SectionHealth)
	require.NotNil(t, health)
	backend := health.ItemByKey("backend")
	require.NotNil(t, backend)
	assert.Equal(t, engine.StatusCritical, backend.Status)
	assert.Equal(t, engine.StatusCritical, r.Overall)
	assert.Equal(t, "flash_failed: firmware flash failed", r.Error)

	sel := r.SectionByID(SectionSelection)
	assert.Equal(t, "latest", sel.ItemByKey("pinned_tag").Note)
	assert.Equal(t, "default, bitwig", sel.ItemByKey("profiles").Note)
	assert.Equal(t, "v1.2.0-beta.1", sel.ItemByKey("release").Note)

	dev := r.SectionByID(SectionDevice)
	assert.Equal(t, "serial /dev/ttyACM0", dev.ItemByKey("target_usb:1-4").Note)
	flash := dev.ItemByKey("flash")
	require.NotNil(t, flash)
	assert.Equal(t, 63.0, flash.Value)

	inst := r.SectionByID(SectionInstall)
	assert.Equal(t, "linux/x86_64", inst.ItemByKey("platform").Note)
	assert.Nil(t, inst.ItemByKey("last_flashed"))
	assert.Nil(t, r.SectionByID("cpu"))
}
