package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"msmanager/internal/activity"
	"msmanager/internal/api"
)

// fakeBackend is an in-memory api.Backend that records every call.
type fakeBackend struct {
	mu    sync.Mutex
	calls []string

	status    api.Status
	statusErr error

	device      api.DeviceStatus
	deviceErr   error
	deviceGate  chan struct{}
	deviceCalls atomic.Int32

	bridge    api.BridgeStatus
	bridgeErr error

	settings       api.Settings
	setProfileErr  error
	setProfileGate chan struct{}
	setChannelErr  error

	tags     map[api.Channel][]string
	tagsErr  error
	releases map[string]api.LatestManifestResponse

	installed  api.InstallState
	installErr error

	flashErr  error
	flashGate chan struct{}

	relocateErr  error
	relocateGate chan struct{}

	appUpdate api.AppUpdateStatus
	openErr   error
}

func newFakeBackend() *fakeBackend {
	settings := api.Settings{Schema: 1, Channel: api.ChannelStable, Profile: "default"}
	return &fakeBackend{
		status: api.Status{
			Settings:      settings,
			HostInstalled: true,
			Platform:      api.Platform{OS: api.OSLinux, Arch: api.ArchX86_64},
			PayloadRoot:   "/opt/ms",
			Bridge:        api.BridgeStatus{Installed: true, Running: true},
		},
		settings: settings,
		tags: map[api.Channel][]string{
			api.ChannelStable: {"v1.1.0", "v1.0.0"},
			api.ChannelBeta:   {"v1.2.0-beta.1"},
		},
		releases: map[string]api.LatestManifestResponse{
			"stable": {Channel: api.ChannelStable, Available: true, Tag: "v1.1.0", Manifest: manifest("v1.1.0", "default", "bitwig")},
			"beta":   {Channel: api.ChannelBeta, Available: false, Message: "no beta release published"},
		},
		appUpdate: api.AppUpdateStatus{CurrentVersion: "0.4.0"},
	}
}

func manifest(tag string, profiles ...string) *api.Manifest {
	m := &api.Manifest{Schema: 1, Tag: tag}
	for _, p := range profiles {
		m.InstallSets = append(m.InstallSets, api.InstallSet{ID: p, OS: api.OSLinux, Arch: api.ArchX86_64})
	}
	return m
}

func (f *fakeBackend) record(format string, args ...any) {
	f.mu.Lock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	f.mu.Unlock()
}

func (f *fakeBackend) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeBackend) called(prefix string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeBackend) Status(ctx context.Context) (api.Status, error) {
	f.record("status_get")
	f.mu.Lock()
	defer f.mu.Unlock()
	st := f.status
	st.Settings = f.settings
	return st, f.statusErr
}

func (f *fakeBackend) DeviceStatus(ctx context.Context) (api.DeviceStatus, error) {
	f.deviceCalls.Add(1)
	f.record("device_status_get")
	if f.deviceGate != nil {
		<-f.deviceGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.device, f.deviceErr
}

func (f *fakeBackend) BridgeStatus(ctx context.Context) (api.BridgeStatus, error) {
	f.record("bridge_status_get")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bridge, f.bridgeErr
}

func (f *fakeBackend) SetChannel(ctx context.Context, ch api.Channel) (api.Settings, error) {
	f.record("settings_set_channel channel=%s", ch)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setChannelErr != nil {
		return api.Settings{}, f.setChannelErr
	}
	f.settings.Channel = ch
	f.settings.PinnedTag = ""
	return f.settings, nil
}

func (f *fakeBackend) SetProfile(ctx context.Context, p string) (api.Settings, error) {
	f.record("settings_set_profile profile=%s", p)
	if f.setProfileGate != nil {
		<-f.setProfileGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setProfileErr != nil {
		return api.Settings{}, f.setProfileErr
	}
	f.settings.Profile = p
	return f.settings, nil
}

func (f *fakeBackend) SetPinnedTag(ctx context.Context, tag string) (api.Settings, error) {
	f.record("settings_set_pinned_tag tag=%s", tag)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings.PinnedTag = tag
	return f.settings, nil
}

func (f *fakeBackend) ResolveLatestManifest(ctx context.Context, ch api.Channel) (api.LatestManifestResponse, error) {
	f.record("resolve_latest_manifest channel=%s", ch)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases[string(ch)], nil
}

func (f *fakeBackend) ResolveManifestForTag(ctx context.Context, ch api.Channel, tag string) (api.LatestManifestResponse, error) {
	f.record("resolve_manifest_for_tag channel=%s tag=%s", ch, tag)
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.releases[string(ch)+"@"+tag]; ok {
		return r, nil
	}
	return api.LatestManifestResponse{Channel: ch, Available: false, Message: "tag not found: " + tag}, nil
}

func (f *fakeBackend) ListChannelTags(ctx context.Context, ch api.Channel) ([]string, error) {
	f.record("list_channel_tags channel=%s", ch)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tags[ch], f.tagsErr
}

func (f *fakeBackend) InstallSelected(ctx context.Context) (api.InstallState, error) {
	f.record("install_selected")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed, f.installErr
}

func (f *fakeBackend) FlashFirmware(ctx context.Context, profile string) (api.LastFlashed, error) {
	f.record("flash_firmware profile=%s", profile)
	if f.flashGate != nil {
		<-f.flashGate
	}
	if f.flashErr != nil {
		return api.LastFlashed{}, f.flashErr
	}
	lf := api.LastFlashed{Channel: api.ChannelStable, Tag: "v1.1.0", Profile: profile, FlashedAtMS: 1}
	f.mu.Lock()
	f.status.LastFlashed = &lf
	f.mu.Unlock()
	return lf, nil
}

func (f *fakeBackend) RelocatePayloadRoot(ctx context.Context, root string) (api.Status, error) {
	f.record("payload_root_relocate newRoot=%s", root)
	if f.relocateGate != nil {
		<-f.relocateGate
	}
	if f.relocateErr != nil {
		return api.Status{}, f.relocateErr
	}
	f.mu.Lock()
	f.status.PayloadRoot = root
	st := f.status
	st.Settings = f.settings
	f.mu.Unlock()
	return st, nil
}

func (f *fakeBackend) CheckAppUpdate(ctx context.Context) (api.AppUpdateStatus, error) {
	f.record("app_update_check")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.appUpdate, nil
}

func (f *fakeBackend) OpenLatestAppUpdate(ctx context.Context) error {
	f.record("app_update_open_latest")
	return f.openErr
}

type fakeSub struct {
	fn func() error
}

func (s fakeSub) Unsubscribe() error { return s.fn() }

// fakeEvents hands the registered handlers back to the test.
type fakeEvents struct {
	mu          sync.Mutex
	install     func(api.InstallEvent)
	flash       func(api.FlashEvent)
	unsubs      atomic.Int32
	installUErr error
	flashSubErr error
}

func (e *fakeEvents) SubscribeInstall(ctx context.Context, fn func(api.InstallEvent)) (api.Subscription, error) {
	e.mu.Lock()
	e.install = fn
	e.mu.Unlock()
	return fakeSub{fn: func() error {
		e.unsubs.Add(1)
		return e.installUErr
	}}, nil
}

func (e *fakeEvents) SubscribeFlash(ctx context.Context, fn func(api.FlashEvent)) (api.Subscription, error) {
	if e.flashSubErr != nil {
		return nil, e.flashSubErr
	}
	e.mu.Lock()
	e.flash = fn
	e.mu.Unlock()
	return fakeSub{fn: func() error {
		e.unsubs.Add(1)
		return nil
	}}, nil
}

func testConfig() Config {
	return DefaultConfig().
		WithDevicePollInterval(time.Hour).
		WithBridgePollInterval(time.Hour).
		WithPollTimeout(time.Second)
}

func newTestReconciler(t *testing.T, b *fakeBackend, ev api.EventSource, opts ...Option) *Reconciler {
	t.Helper()
	r, err := New(testConfig(), b, ev, activity.New(100), opts...)
	require.NoError(t, err)
	return r
}

func entries(r *Reconciler, level activity.Level, scope activity.Scope) []string {
	var out []string
	for _, e := range r.Activity().Entries() {
		if e.Level == level && e.Scope == scope {
			out = append(out, e.Message)
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}
