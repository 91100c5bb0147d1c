package dashboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msmanager/internal/activity"
	"msmanager/internal/api"
)

func TestNewValidates(t *testing.T) {
	_, err := New(DefaultConfig().WithActivityLimit(0), newFakeBackend(), nil, activity.New(1))
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)

	_, err = New(DefaultConfig(), nil, nil, activity.New(1))
	assert.ErrorIs(t, err, ErrNoBackend)

	_, err = New(DefaultConfig(), newFakeBackend(), nil, nil)
	assert.ErrorIs(t, err, ErrNoActivityLog)
}

func TestInitialState(t *testing.T) {
	r := newTestReconciler(t, newFakeBackend(), nil)
	s := r.State()

	assert.Equal(t, api.ChannelStable, s.Channel)
	assert.Equal(t, "default", s.Profile)
	assert.Equal(t, []string{"default", "bitwig"}, s.ProfileOptions)
	assert.False(t, s.Busy())
	assert.False(t, s.Loading())
	assert.False(t, s.HasFlashPercent())
	assert.Nil(t, s.Platform)
}

func TestStartLoadsEverythingAndTearsDown(t *testing.T) {
	b := newFakeBackend()
	ev := &fakeEvents{}
	r := newTestReconciler(t, b, ev)

	sess := r.Start(context.Background())
	waitFor(t, func() bool { return r.State().AppUpdate != nil })

	s := r.State()
	assert.Equal(t, "/opt/ms", s.PayloadRoot)
	assert.Equal(t, []string{"v1.1.0", "v1.0.0"}, s.Tags)
	require.NotNil(t, s.Release)
	assert.Equal(t, "v1.1.0", s.Release.Tag)
	assert.Equal(t, []string{"default", "bitwig"}, s.ProfileOptions)
	assert.NotNil(t, ev.install)
	assert.NotNil(t, ev.flash)

	require.NoError(t, sess.Close())
	assert.True(t, sess.Closed())
	assert.Equal(t, int32(2), ev.unsubs.Load())

	require.NoError(t, sess.Close())
	assert.Equal(t, int32(2), ev.unsubs.Load())

	r.OpenFlashModal("default")
	assert.False(t, r.State().FlashModal.Open, "state must not change after teardown")
}

func TestStartFailuresAreIndependent(t *testing.T) {
	b := newFakeBackend()
	b.statusErr = api.NewError("status_unavailable", "backend starting", nil)
	r := newTestReconciler(t, b, nil)

	sess := r.Start(context.Background())
	defer sess.Close()

	assert.Equal(t, 1, b.called("list_channel_tags"))
	assert.Equal(t, 1, b.called("resolve_latest_manifest"))
	assert.Contains(t, entries(r, activity.LevelError, activity.ScopeUI), "backend starting")
	require.NotNil(t, r.State().LastError, "status failure stays visible after the release loads")
	assert.Equal(t, "status_unavailable", r.State().LastError.Code)
}

func TestStartTwiceReturnsRunningSession(t *testing.T) {
	b := newFakeBackend()
	r := newTestReconciler(t, b, nil)
	first := r.Start(context.Background())
	defer first.Close()

	second := r.Start(context.Background())
	assert.Same(t, first, second)
	assert.Equal(t, 1, b.called("status_get"))
}

func TestTeardownReleasesEveryResource(t *testing.T) {
	b := newFakeBackend()
	ev := &fakeEvents{installUErr: errors.New("listener gone")}
	r := newTestReconciler(t, b, ev)

	sess := r.Start(context.Background())
	err := sess.Close()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsubscribe install events")
	assert.Equal(t, int32(2), ev.unsubs.Load(), "flash unsubscribe still runs")
	assert.True(t, sess.Closed())
}

func TestStartSurvivesMissingFlashStream(t *testing.T) {
	ev := &fakeEvents{flashSubErr: errors.New("no stream")}
	r := newTestReconciler(t, newFakeBackend(), ev)

	sess := r.Start(context.Background())
	require.NoError(t, sess.Close())
	assert.Contains(t, entries(r, activity.LevelWarn, activity.ScopeNet), "flash events unavailable")
	assert.Equal(t, int32(1), ev.unsubs.Load())
}

func TestSetChannelRefreshesTagsAndRelease(t *testing.T) {
	b := newFakeBackend()
	r := newTestReconciler(t, b, nil)
	require.NoError(t, r.RefreshStatus(context.Background()))

	out := r.SetChannel(context.Background(), api.ChannelBeta)
	require.Equal(t, Applied, out)

	calls := b.Calls()
	assert.Equal(t, []string{
		"status_get",
		"settings_set_channel channel=beta",
		"list_channel_tags channel=beta",
		"resolve_latest_manifest channel=beta",
	}, calls)

	s := r.State()
	assert.Equal(t, api.ChannelBeta, s.Channel)
	assert.Equal(t, []string{"v1.2.0-beta.1"}, s.Tags)
	require.NotNil(t, s.Release)
	assert.False(t, s.Release.Available)
	assert.Contains(t, entries(r, activity.LevelWarn, activity.ScopeNet), "no beta release published")
	assert.False(t, s.SavingSettings)
}

func TestSetChannelFailureKeepsChannel(t *testing.T) {
	b := newFakeBackend()
	b.setChannelErr = api.NewError("settings_write_failed", "disk full", nil)
	r := newTestReconciler(t, b, nil)

	out := r.SetChannel(context.Background(), api.ChannelNightly)

	assert.Equal(t, Failed, out)
	s := r.State()
	assert.Equal(t, api.ChannelStable, s.Channel)
	require.NotNil(t, s.LastError)
	assert.Equal(t, "settings_write_failed", s.LastError.Code)
	assert.False(t, s.SavingSettings)
	assert.Equal(t, 0, b.called("list_channel_tags"))
}

func TestSettingsActionsGuardReentrancy(t *testing.T) {
	r := newTestReconciler(t, newFakeBackend(), nil)
	r.store.Update(func(s State) State {
		s.SavingSettings = true
		return s
	})

	assert.Equal(t, Noop, r.SetChannel(context.Background(), api.ChannelBeta))
	assert.Equal(t, Noop, r.SetProfile(context.Background(), "bitwig"))
	assert.Equal(t, Noop, r.SetPinnedTag(context.Background(), "v1.0.0"))
}

func TestSetProfileFoldsBackendAnswer(t *testing.T) {
	b := newFakeBackend()
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Applied, r.SetProfile(context.Background(), "bitwig"))
	assert.Equal(t, "bitwig", r.State().Profile)
}

func TestSetPinnedTagResolvesThatTag(t *testing.T) {
	b := newFakeBackend()
	b.releases["stable@v1.0.0"] = api.LatestManifestResponse{Channel: api.ChannelStable, Available: true, Tag: "v1.0.0"}
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Applied, r.SetPinnedTag(context.Background(), "v1.0.0"))

	s := r.State()
	assert.Equal(t, "v1.0.0", s.PinnedTag)
	assert.Equal(t, 1, b.called("resolve_manifest_for_tag channel=stable tag=v1.0.0"))
	assert.Equal(t, 0, b.called("list_channel_tags"))
	assert.Contains(t, entries(r, activity.LevelOK, activity.ScopeNet), "release tag=v1.0.0")
}

func TestRefreshTagsOffersPinnedTag(t *testing.T) {
	b := newFakeBackend()
	b.settings.PinnedTag = "v0.9.0"
	r := newTestReconciler(t, b, nil)
	require.NoError(t, r.RefreshStatus(context.Background()))

	assert.Equal(t, Applied, r.RefreshTags(context.Background()))
	assert.Equal(t, []string{"v0.9.0", "v1.1.0", "v1.0.0"}, r.State().Tags)
	assert.Contains(t, entries(r, activity.LevelOK, activity.ScopeNet), "tags count=3")
	assert.False(t, r.State().LoadingTags)
}

func TestRefreshTagsFailureOnlyWarns(t *testing.T) {
	b := newFakeBackend()
	b.tagsErr = errors.New("rate limited")
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Failed, r.RefreshTags(context.Background()))
	assert.Nil(t, r.State().LastError)
	assert.Contains(t, entries(r, activity.LevelWarn, activity.ScopeNet), "list tags failed")
}

func TestRefreshReleaseCorrectsProfile(t *testing.T) {
	b := newFakeBackend()
	b.releases["stable"] = api.LatestManifestResponse{Channel: api.ChannelStable, Available: true, Tag: "v2.0.0", Manifest: manifest("v2.0.0", "ableton", "bitwig")}
	r := newTestReconciler(t, b, nil)
	require.NoError(t, r.RefreshStatus(context.Background()))

	assert.Equal(t, Applied, r.RefreshRelease(context.Background()))

	s := r.State()
	assert.Equal(t, []string{"ableton", "bitwig"}, s.ProfileOptions)
	assert.Equal(t, "ableton", s.Profile)
	assert.Equal(t, 1, b.called("settings_set_profile profile=ableton"))
	assert.False(t, s.LoadingRelease)
}

func TestRefreshReleaseFallsBackToDefaultProfile(t *testing.T) {
	b := newFakeBackend()
	m := manifest("v2.0.0")
	m.InstallSets = []api.InstallSet{{ID: "mac-only", OS: api.OSMacOS, Arch: api.ArchARM64}}
	b.releases["stable"] = api.LatestManifestResponse{Channel: api.ChannelStable, Available: true, Tag: "v2.0.0", Manifest: m}
	r := newTestReconciler(t, b, nil)
	require.NoError(t, r.RefreshStatus(context.Background()))

	r.RefreshRelease(context.Background())

	assert.Equal(t, []string{"default"}, r.State().ProfileOptions)
	assert.Equal(t, 0, b.called("settings_set_profile"))
}

func TestRefreshReleaseWithoutPlatformKeepsOptions(t *testing.T) {
	b := newFakeBackend()
	b.releases["stable"] = api.LatestManifestResponse{Channel: api.ChannelStable, Available: true, Tag: "v2.0.0", Manifest: manifest("v2.0.0", "ableton")}
	r := newTestReconciler(t, b, nil)

	r.RefreshRelease(context.Background())

	assert.Equal(t, []string{"default", "bitwig"}, r.State().ProfileOptions)
	assert.Equal(t, 0, b.called("settings_set_profile"))
}

func TestProfileCorrectionFailureSetsError(t *testing.T) {
	b := newFakeBackend()
	b.releases["stable"] = api.LatestManifestResponse{Channel: api.ChannelStable, Available: true, Tag: "v2.0.0", Manifest: manifest("v2.0.0", "ableton")}
	r := newTestReconciler(t, b, nil)
	require.NoError(t, r.RefreshStatus(context.Background()))
	b.setProfileErr = api.NewError("settings_write_failed", "read-only", nil)

	assert.Equal(t, Failed, r.RefreshRelease(context.Background()))
	require.NotNil(t, r.State().LastError)
	assert.Equal(t, "default", r.State().Profile)
}

func TestInstallFoldsStateAndRefreshes(t *testing.T) {
	b := newFakeBackend()
	b.installed = api.InstallState{Schema: 1, Channel: api.ChannelStable, Profile: "default", Tag: "v1.1.0"}
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Applied, r.Install(context.Background()))
	assert.Equal(t, 1, b.called("install_selected"))
	assert.Equal(t, 1, b.called("status_get"))
	assert.Equal(t, 1, b.called("resolve_latest_manifest"))
	assert.False(t, r.State().Installing)
}

func TestInstallKeepsStatusRefreshError(t *testing.T) {
	b := newFakeBackend()
	b.installed = api.InstallState{Schema: 1, Channel: api.ChannelStable, Profile: "default", Tag: "v1.1.0"}
	b.statusErr = api.NewError("status_unavailable", "backend restarting", nil)
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Applied, r.Install(context.Background()))
	assert.Equal(t, 1, b.called("resolve_latest_manifest"))
	require.NotNil(t, r.State().LastError)
	assert.Equal(t, "status_unavailable", r.State().LastError.Code)
}

func TestRefreshReleaseClearsError(t *testing.T) {
	b := newFakeBackend()
	b.statusErr = api.NewError("status_unavailable", "backend starting", nil)
	r := newTestReconciler(t, b, nil)
	require.Error(t, r.RefreshStatus(context.Background()))
	require.NotNil(t, r.State().LastError)

	assert.Equal(t, Applied, r.RefreshRelease(context.Background()))
	assert.Nil(t, r.State().LastError)
}

func TestProfileChangeAndCorrectionAreOrdered(t *testing.T) {
	b := newFakeBackend()
	b.releases["stable"] = api.LatestManifestResponse{Channel: api.ChannelStable, Available: true, Tag: "v1.1.0", Manifest: manifest("v1.1.0", "bitwig")}
	r := newTestReconciler(t, b, nil)
	require.NoError(t, r.RefreshStatus(context.Background()))
	require.Equal(t, "default", r.State().Profile)

	b.setProfileGate = make(chan struct{})
	saved := make(chan Outcome, 1)
	go func() { saved <- r.SetProfile(context.Background(), "bitwig") }()
	waitFor(t, func() bool { return b.called("settings_set_profile") == 1 })

	refreshed := make(chan Outcome, 1)
	go func() { refreshed <- r.RefreshRelease(context.Background()) }()
	waitFor(t, func() bool { return len(r.State().ProfileOptions) == 1 })
	time.Sleep(20 * time.Millisecond)
	close(b.setProfileGate)

	assert.Equal(t, Applied, <-saved)
	assert.Equal(t, Applied, <-refreshed)
	assert.Equal(t, 1, b.called("settings_set_profile"), "correction sees the saved profile under the permit")
	assert.Equal(t, "bitwig", r.State().Profile)
	assert.Nil(t, r.State().LastError)
}

func TestInstallFailure(t *testing.T) {
	b := newFakeBackend()
	b.installErr = api.NewError("downgrade_refused", "refusing downgrade", map[string]any{"installed": "v1.1.0"})
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Failed, r.Install(context.Background()))
	s := r.State()
	assert.False(t, s.Installing)
	require.NotNil(t, s.LastError)
	assert.Equal(t, "downgrade_refused", s.LastError.Code)
	assert.Contains(t, entries(r, activity.LevelError, activity.ScopeUI), "refusing downgrade")
}

func TestAppUpdate(t *testing.T) {
	b := newFakeBackend()
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Noop, r.InstallAppUpdate(context.Background()), "nothing known yet")

	r.CheckAppUpdate(context.Background())
	assert.Contains(t, entries(r, activity.LevelOK, activity.ScopeNet), "app is up to date")
	assert.Equal(t, Noop, r.InstallAppUpdate(context.Background()))

	b.appUpdate = api.AppUpdateStatus{CurrentVersion: "0.4.0", Available: true, Update: &api.AppUpdateInfo{Version: "0.5.0"}}
	r.CheckAppUpdate(context.Background())
	assert.Contains(t, entries(r, activity.LevelOK, activity.ScopeNet), "app update available: 0.5.0")

	r.store.Update(func(s State) State {
		s.Flashing = true
		return s
	})
	assert.Equal(t, Noop, r.InstallAppUpdate(context.Background()), "busy")
	r.store.Update(func(s State) State {
		s.Flashing = false
		return s
	})

	assert.Equal(t, Applied, r.InstallAppUpdate(context.Background()))
	assert.Equal(t, 1, b.called("app_update_open_latest"))
	assert.False(t, r.State().InstallingAppUpdate)
}

func TestAppUpdateCheckReportedError(t *testing.T) {
	b := newFakeBackend()
	b.appUpdate = api.AppUpdateStatus{CurrentVersion: "0.4.0", Error: "offline"}
	r := newTestReconciler(t, b, nil)

	assert.Equal(t, Applied, r.CheckAppUpdate(context.Background()))
	assert.Contains(t, entries(r, activity.LevelWarn, activity.ScopeNet), "app update check failed: offline")
	assert.Nil(t, r.State().LastError)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "noop", Noop.String())
	assert.Equal(t, "applied", Applied.String())
	assert.Equal(t, "failed", Failed.String())
}
