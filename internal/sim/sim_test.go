package sim

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"msmanager/internal/api"
	"msmanager/internal/progress"
)

var linux = api.Platform{OS: api.OSLinux, Arch: api.ArchX86_64}

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func newBackend(t *testing.T, opts ...Option) (*Backend, *StaticProbe) {
	t.Helper()
	store, _ := openStore(t)
	probe := NewStaticProbe(api.DeviceTarget{ID: "usb:1-4", Kind: api.TargetSerial})
	base := []Option{WithPlatform(linux), WithProbe(probe), WithPayloadRoot(t.TempDir())}
	b, err := New(store, append(base, opts...)...)
	require.NoError(t, err)
	return b, probe
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	var e *api.Error
	require.True(t, errors.As(err, &e), "want *api.Error, got %T", err)
	return e.Code
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := OpenStore(path)
	require.NoError(t, err)

	settings := api.Settings{Schema: 1, Channel: api.ChannelBeta, Profile: "bitwig", PinnedTag: "v1.2.0-beta.1"}
	require.NoError(t, s.PutSettings(settings))
	require.NoError(t, s.PutInstalled(api.InstallState{Schema: 1, Channel: api.ChannelBeta, Profile: "bitwig", Tag: "v1.2.0-beta.1"}))
	require.NoError(t, s.PutPayloadRoot("/data/ms"))
	require.NoError(t, s.Close())

	s, err = OpenStore(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Settings(api.Settings{})
	require.NoError(t, err)
	assert.Equal(t, settings, got)

	inst, err := s.Installed()
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "v1.2.0-beta.1", inst.Tag)

	last, err := s.LastFlashed()
	require.NoError(t, err)
	assert.Nil(t, last)

	root, err := s.PayloadRoot()
	require.NoError(t, err)
	assert.Equal(t, "/data/ms", root)
}

func TestStoreSettingsFallback(t *testing.T) {
	s, _ := openStore(t)
	fallback := api.Settings{Schema: 1, Channel: api.ChannelStable, Profile: "default"}
	got, err := s.Settings(fallback)
	require.NoError(t, err)
	assert.Equal(t, fallback, got)
}

func TestPlatformOf(t *testing.T) {
	tests := []struct {
		os, arch string
		want     api.Platform
		wantErr  bool
	}{
		{"linux", "x86_64", api.Platform{OS: api.OSLinux, Arch: api.ArchX86_64}, false},
		{"darwin", "arm64", api.Platform{OS: api.OSMacOS, Arch: api.ArchARM64}, false},
		{"windows", "amd64", api.Platform{OS: api.OSWindows, Arch: api.ArchX86_64}, false},
		{"linux", "aarch64", api.Platform{OS: api.OSLinux, Arch: api.ArchARM64}, false},
		{"freebsd", "x86_64", api.Platform{}, true},
		{"linux", "riscv64", api.Platform{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.os+"/"+tt.arch, func(t *testing.T) {
			got, err := PlatformOf(tt.os, tt.arch)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("PlatformOf(%q, %q) expected error", tt.os, tt.arch)
				}
				return
			}
			if err != nil {
				t.Fatalf("PlatformOf(%q, %q) unexpected error: %v", tt.os, tt.arch, err)
			}
			if got != tt.want {
				t.Errorf("PlatformOf(%q, %q) = %+v, want %+v", tt.os, tt.arch, got, tt.want)
			}
		})
	}
}

func TestCatalog(t *testing.T) {
	c := DefaultCatalog()

	assert.Equal(t, []string{"v1.1.0", "v1.0.0"}, c.Tags(api.ChannelStable))
	assert.Empty(t, c.Tags(api.ChannelNightly))

	latest := c.Latest(api.ChannelStable)
	assert.True(t, latest.Available)
	assert.Equal(t, "v1.1.0", latest.Tag)
	assert.Equal(t, []string{"default", "bitwig"}, latest.Manifest.ProfilesFor(linux))

	nightly := c.Latest(api.ChannelNightly)
	assert.False(t, nightly.Available)
	assert.Equal(t, "no nightly builds published", nightly.Message)

	old := c.ForTag(api.ChannelStable, "v1.0.0")
	assert.True(t, old.Available)
	assert.Equal(t, []string{"default"}, old.Manifest.ProfilesFor(linux))
	assert.False(t, c.ForTag(api.ChannelStable, "v9").Available)
}

func TestPlan(t *testing.T) {
	m := DefaultCatalog().Find(api.ChannelStable, "v1.1.0")

	assets, err := Plan(m, linux, "bitwig")
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "bundle-linux-x86_64", assets[0].ID)
	assert.Equal(t, "firmware-bitwig-v1.1.0.hex", assets[1].Filename)

	_, err = Plan(m, api.Platform{OS: api.OSWindows, Arch: api.ArchARM64}, "default")
	assert.Equal(t, CodeNoMatchingSet, codeOf(t, err))
}

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub[int](0)
	var mu sync.Mutex
	var got []int
	sub := listen(context.Background(), h, func(v int) {
		mu.Lock()
		got = append(got, v)
		mu.Unlock()
	})
	for i := range 100 {
		h.Publish(i)
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 100
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, sub.Unsubscribe())

	for i, v := range got {
		if v != i {
			t.Fatalf("event %d = %d, out of order", i, v)
		}
	}
	assert.Zero(t, h.Subscribers())
}

func TestHubDropsForFullQueue(t *testing.T) {
	h := NewHub[int](2)
	_, cancel := h.Subscribe()
	defer cancel()
	for i := range 5 {
		h.Publish(i)
	}
	assert.Equal(t, int64(3), h.Dropped())
}

func TestSettingsCommands(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	s, err := b.SetPinnedTag(ctx, "v1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "v1.0.0", s.PinnedTag)

	_, err = b.SetPinnedTag(ctx, "v0.0.1")
	assert.Equal(t, CodeNoReleases, codeOf(t, err))

	s, err = b.SetChannel(ctx, api.ChannelBeta)
	require.NoError(t, err)
	assert.Equal(t, api.ChannelBeta, s.Channel)
	assert.Empty(t, s.PinnedTag, "switching channel unpins")

	_, err = b.SetChannel(ctx, "edge")
	assert.Equal(t, CodeInvalidChannel, codeOf(t, err))

	_, err = b.SetProfile(ctx, "  ")
	assert.Equal(t, CodeInvalidProfile, codeOf(t, err))

	s, err = b.SetProfile(ctx, "bitwig")
	require.NoError(t, err)

	st, err := b.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, s, st.Settings)
}

func TestStatusBeforeInstall(t *testing.T) {
	b, _ := newBackend(t)
	st, err := b.Status(context.Background())
	require.NoError(t, err)

	assert.False(t, st.HostInstalled)
	assert.Nil(t, st.Installed)
	assert.Equal(t, linux, st.Platform)
	assert.True(t, st.Device.Connected)
	assert.Equal(t, 1, st.Device.Count)
	assert.False(t, st.Bridge.Running)
	assert.Equal(t, "host bundle not installed", st.Bridge.Message)
}

func TestInstallSelectedEmitsEvents(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	var mu sync.Mutex
	var events []api.InstallEvent
	sub, err := b.SubscribeInstall(ctx, func(e api.InstallEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	inst, err := b.InstallSelected(ctx)
	require.NoError(t, err)
	assert.Equal(t, api.InstallState{Schema: 1, Channel: api.ChannelStable, Profile: "default", Tag: "v1.1.0"}, inst)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 5
	}, time.Second, 5*time.Millisecond)

	types := make([]api.InstallEventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []api.InstallEventType{
		api.InstallBegin, api.InstallDownloading, api.InstallDownloading, api.InstallApplying, api.InstallDone,
	}, types)
	assert.Equal(t, 2, events[0].AssetsTotal)
	assert.Equal(t, 1, events[1].Index)
	assert.Equal(t, 2, events[2].Index)
	assert.Equal(t, "extract_and_stage", events[3].Step)

	st, err := b.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.HostInstalled)
	assert.True(t, st.Bridge.Running)
}

func TestInstallUnavailableChannel(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()
	_, err := b.SetChannel(ctx, api.ChannelNightly)
	require.NoError(t, err)

	_, err = b.InstallSelected(ctx)
	assert.Equal(t, CodeNoReleases, codeOf(t, err))
}

func TestFlashFirmware(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	b, probe := newBackend(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := b.FlashFirmware(ctx, "default")
	assert.Equal(t, CodeNotInstalled, codeOf(t, err))

	_, err = b.InstallSelected(ctx)
	require.NoError(t, err)

	_, err = b.FlashFirmware(ctx, "ableton")
	assert.Equal(t, CodeInvalidProfile, codeOf(t, err))

	var mu sync.Mutex
	var events []api.FlashEvent
	sub, _ := b.SubscribeFlash(ctx, func(e api.FlashEvent) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	last, err := b.FlashFirmware(ctx, "bitwig")
	require.NoError(t, err)
	assert.Equal(t, api.LastFlashed{Channel: api.ChannelStable, Tag: "v1.1.0", Profile: "bitwig", FlashedAtMS: now.UnixMilli()}, last)

	want := 1 + 3 + FlashBlocks + 1
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == want
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, api.FlashBegin, events[0].Type)
	assert.Equal(t, "bitwig", events[0].Profile)
	final := progress.Decode(events[want-2].Line)
	assert.Equal(t, 100, final.Percent)
	assert.Equal(t, api.FlashEvent{Type: api.FlashDone, OK: true}, events[want-1])

	st, err := b.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.LastFlashed)
	assert.Equal(t, "bitwig", st.LastFlashed.Profile)

	probe.Set()
	_, err = b.FlashFirmware(ctx, "bitwig")
	assert.Equal(t, CodeNoDevice, codeOf(t, err))
}

func TestFlashFailure(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()
	_, err := b.InstallSelected(ctx)
	require.NoError(t, err)
	b.SetFlashFailure(true)

	_, err = b.FlashFirmware(ctx, "default")
	var e *api.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CodeFlashFailed, e.Code)
	assert.Equal(t, map[string]any{"exit_code": 1, "profile": "default"}, e.Details)

	last, err := b.store.LastFlashed()
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestRelocatePayloadRoot(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	_, err := b.RelocatePayloadRoot(ctx, "   ")
	assert.Equal(t, CodePayloadRootInvalid, codeOf(t, err))
	_, err = b.RelocatePayloadRoot(ctx, "relative/dir")
	assert.Equal(t, CodeInvalidPath, codeOf(t, err))

	target := filepath.Join(t.TempDir(), "moved")
	st, err := b.RelocatePayloadRoot(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, target, st.PayloadRoot)
	assert.DirExists(t, target)
}

func TestAppUpdate(t *testing.T) {
	b, _ := newBackend(t)
	ctx := context.Background()

	st, err := b.CheckAppUpdate(ctx)
	require.NoError(t, err)
	assert.False(t, st.Available)
	assert.Equal(t, CodeAppUpdateMissing, codeOf(t, b.OpenLatestAppUpdate(ctx)))

	b, _ = newBackend(t, WithAppVersion("0.4.0", &api.AppUpdateInfo{Version: "0.5.0", Notes: "bridge fixes"}))
	st, err = b.CheckAppUpdate(ctx)
	require.NoError(t, err)
	assert.True(t, st.Available)
	assert.Equal(t, "0.5.0", st.Update.Version)
	require.NoError(t, b.OpenLatestAppUpdate(ctx))
	assert.Equal(t, 1, b.Opened())
}

func TestInstallHonoursCancellation(t *testing.T) {
	b, _ := newBackend(t, WithStepDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.InstallSelected(ctx)
	assert.Equal(t, api.CodeCanceled, codeOf(t, err))
	inst, err := b.store.Installed()
	require.NoError(t, err)
	assert.Nil(t, inst)
}
