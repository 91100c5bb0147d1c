package sim

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"msmanager/internal/api"
	"msmanager/internal/logging"
)

// FlashBlocks is the number of block lines a simulated flash reports.
const FlashBlocks = 8

// Backend is an in-process implementation of every backend command. It
// persists its state in a Store and publishes install and flash events.
type Backend struct {
	store    *Store
	catalog  *Catalog
	probe    DeviceProbe
	platform api.Platform
	root     string
	step     time.Duration
	now      func() time.Time
	logger   *log.Logger

	appVersion string
	appLatest  *api.AppUpdateInfo

	mu          sync.Mutex
	bridge      api.BridgeStatus
	flashFailed bool
	opened      int

	// one install or flash at a time
	opMu sync.Mutex

	installs *Hub[api.InstallEvent]
	flashes  *Hub[api.FlashEvent]
}

var (
	_ api.Backend     = (*Backend)(nil)
	_ api.EventSource = (*Backend)(nil)
)

type Option func(*Backend)

func WithCatalog(c *Catalog) Option { return func(b *Backend) { b.catalog = c } }

func WithProbe(p DeviceProbe) Option { return func(b *Backend) { b.probe = p } }

func WithPlatform(p api.Platform) Option { return func(b *Backend) { b.platform = p } }

// WithPayloadRoot sets the root used until a relocation overrides it.
func WithPayloadRoot(root string) Option { return func(b *Backend) { b.root = root } }

// WithStepDelay spaces out install and flash events.
func WithStepDelay(d time.Duration) Option { return func(b *Backend) { b.step = d } }

func WithClock(now func() time.Time) Option { return func(b *Backend) { b.now = now } }

// WithAppVersion sets the running version and, when latest is not nil, the
// newest published one.
func WithAppVersion(current string, latest *api.AppUpdateInfo) Option {
	return func(b *Backend) {
		b.appVersion = current
		b.appLatest = latest
	}
}

// WithBridge sets the bridge state reported once the host bundle is installed.
func WithBridge(s api.BridgeStatus) Option { return func(b *Backend) { b.bridge = s } }

// New creates a backend over store. Without WithPlatform the host platform
// is detected; without WithProbe the USB bus is probed.
func New(store *Store, opts ...Option) (*Backend, error) {
	if store == nil {
		return nil, ErrStoreClosed
	}
	b := &Backend{
		store:      store,
		catalog:    DefaultCatalog(),
		now:        time.Now,
		logger:     logging.Logger(logging.SourceSim),
		appVersion: "0.1.0",
		bridge:     api.BridgeStatus{Installed: true, Running: true, SerialOpen: true, Version: "0.3.2"},
		installs:   NewHub[api.InstallEvent](0),
		flashes:    NewHub[api.FlashEvent](0),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	if b.platform == (api.Platform{}) {
		p, err := HostPlatform(context.Background())
		if err != nil {
			return nil, err
		}
		b.platform = p
	}
	if b.probe == nil {
		b.probe = USBProbe{}
	}
	if b.root == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			dir = os.TempDir()
		}
		b.root = filepath.Join(dir, "msmanager", "payload")
	}
	return b, nil
}

// SetFlashFailure makes the following flashes fail.
func (b *Backend) SetFlashFailure(fail bool) {
	b.mu.Lock()
	b.flashFailed = fail
	b.mu.Unlock()
}

// SetBridge replaces the reported bridge state.
func (b *Backend) SetBridge(s api.BridgeStatus) {
	b.mu.Lock()
	b.bridge = s
	b.mu.Unlock()
}

// Opened counts app_update_open_latest calls that succeeded.
func (b *Backend) Opened() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened
}

func (b *Backend) InstallEvents() *Hub[api.InstallEvent] { return b.installs }

func (b *Backend) FlashEvents() *Hub[api.FlashEvent] { return b.flashes }

func (b *Backend) SubscribeInstall(ctx context.Context, fn func(api.InstallEvent)) (api.Subscription, error) {
	return listen(ctx, b.installs, fn), nil
}

func (b *Backend) SubscribeFlash(ctx context.Context, fn func(api.FlashEvent)) (api.Subscription, error) {
	return listen(ctx, b.flashes, fn), nil
}

func (b *Backend) defaultSettings() api.Settings {
	return api.Settings{Schema: 1, Channel: api.ChannelStable, Profile: "default"}
}

func (b *Backend) settings() (api.Settings, error) {
	s, err := b.store.Settings(b.defaultSettings())
	if err != nil {
		return s, storageError(err)
	}
	return s, nil
}

func (b *Backend) payloadRoot() (string, error) {
	root, err := b.store.PayloadRoot()
	if err != nil {
		return "", storageError(err)
	}
	if root == "" {
		root = b.root
	}
	return root, nil
}

func (b *Backend) Status(ctx context.Context) (api.Status, error) {
	var st api.Status
	var err error
	if st.Settings, err = b.settings(); err != nil {
		return st, err
	}
	if st.Installed, err = b.store.Installed(); err != nil {
		return st, storageError(err)
	}
	if st.LastFlashed, err = b.store.LastFlashed(); err != nil {
		return st, storageError(err)
	}
	if st.PayloadRoot, err = b.payloadRoot(); err != nil {
		return st, err
	}
	st.HostInstalled = st.Installed != nil
	st.Platform = b.platform

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := b.DeviceStatus(gctx)
		st.Device = d
		return err
	})
	g.Go(func() error {
		br, err := b.BridgeStatus(gctx)
		st.Bridge = br
		return err
	})
	if err := g.Wait(); err != nil {
		return api.Status{}, err
	}
	return st, nil
}

func (b *Backend) DeviceStatus(ctx context.Context) (api.DeviceStatus, error) {
	d, err := b.probe.Probe(ctx)
	if err != nil {
		return api.DeviceStatus{}, api.Normalize(err)
	}
	return d, nil
}

func (b *Backend) BridgeStatus(ctx context.Context) (api.BridgeStatus, error) {
	installed, err := b.store.Installed()
	if err != nil {
		return api.BridgeStatus{}, storageError(err)
	}
	if installed == nil {
		return api.BridgeStatus{Message: "host bundle not installed"}, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bridge, nil
}

// updateSettings applies fn to the stored settings and persists the result.
func (b *Backend) updateSettings(fn func(*api.Settings) error) (api.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, err := b.settings()
	if err != nil {
		return s, err
	}
	if err := fn(&s); err != nil {
		return api.Settings{}, err
	}
	if err := b.store.PutSettings(s); err != nil {
		return api.Settings{}, storageError(err)
	}
	return s, nil
}

// SetChannel switches channel and drops any pinned tag.
func (b *Backend) SetChannel(ctx context.Context, channel api.Channel) (api.Settings, error) {
	ch, err := checkChannel(channel)
	if err != nil {
		return api.Settings{}, err
	}
	return b.updateSettings(func(s *api.Settings) error {
		s.Channel = ch
		s.PinnedTag = ""
		return nil
	})
}

func (b *Backend) SetProfile(ctx context.Context, profile string) (api.Settings, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return api.Settings{}, failure(CodeInvalidProfile, "profile cannot be empty", nil)
	}
	return b.updateSettings(func(s *api.Settings) error {
		s.Profile = profile
		return nil
	})
}

// SetPinnedTag pins a release of the current channel; "" tracks latest.
func (b *Backend) SetPinnedTag(ctx context.Context, tag string) (api.Settings, error) {
	tag = strings.TrimSpace(tag)
	return b.updateSettings(func(s *api.Settings) error {
		if tag != "" && b.catalog.Find(s.Channel, tag) == nil {
			return failure(CodeNoReleases, fmt.Sprintf("tag %s not found on channel %s", tag, s.Channel), nil)
		}
		s.PinnedTag = tag
		return nil
	})
}

func (b *Backend) ResolveLatestManifest(ctx context.Context, channel api.Channel) (api.LatestManifestResponse, error) {
	ch, err := checkChannel(channel)
	if err != nil {
		return api.LatestManifestResponse{}, err
	}
	return b.catalog.Latest(ch), nil
}

func (b *Backend) ResolveManifestForTag(ctx context.Context, channel api.Channel, tag string) (api.LatestManifestResponse, error) {
	ch, err := checkChannel(channel)
	if err != nil {
		return api.LatestManifestResponse{}, err
	}
	return b.catalog.ForTag(ch, tag), nil
}

func (b *Backend) ListChannelTags(ctx context.Context, channel api.Channel) ([]string, error) {
	ch, err := checkChannel(channel)
	if err != nil {
		return nil, err
	}
	return b.catalog.Tags(ch), nil
}

// InstallSelected installs the release and profile named by the settings.
func (b *Backend) InstallSelected(ctx context.Context) (api.InstallState, error) {
	b.opMu.Lock()
	defer b.opMu.Unlock()

	s, err := b.settings()
	if err != nil {
		return api.InstallState{}, err
	}
	rel := b.catalog.Latest(s.Channel)
	if s.PinnedTag != "" {
		rel = b.catalog.ForTag(s.Channel, s.PinnedTag)
	}
	if !rel.Available || rel.Manifest == nil {
		return api.InstallState{}, failure(CodeNoReleases, rel.Message, map[string]any{"channel": s.Channel})
	}
	assets, err := Plan(rel.Manifest, b.platform, s.Profile)
	if err != nil {
		return api.InstallState{}, err
	}

	b.logger.Info("install", "channel", s.Channel, "tag", rel.Tag, "profile", s.Profile)
	b.installs.Publish(api.InstallEvent{
		Type: api.InstallBegin, Channel: s.Channel, Tag: rel.Tag, Profile: s.Profile, AssetsTotal: len(assets),
	})
	for i, a := range assets {
		if err := b.pause(ctx); err != nil {
			return api.InstallState{}, api.Normalize(err)
		}
		b.installs.Publish(api.InstallEvent{
			Type: api.InstallDownloading, Index: i + 1, Total: len(assets), AssetID: a.ID, Filename: a.Filename,
		})
	}
	if err := b.pause(ctx); err != nil {
		return api.InstallState{}, api.Normalize(err)
	}
	b.installs.Publish(api.InstallEvent{Type: api.InstallApplying, Step: "extract_and_stage"})

	state := api.InstallState{Schema: 1, Channel: s.Channel, Profile: s.Profile, Tag: rel.Tag}
	if err := b.store.PutInstalled(state); err != nil {
		return api.InstallState{}, storageError(err)
	}
	b.installs.Publish(api.InstallEvent{Type: api.InstallDone, Tag: rel.Tag, Profile: s.Profile})
	return state, nil
}

// FlashFirmware flashes profile's firmware from the installed release onto
// the attached controller.
func (b *Backend) FlashFirmware(ctx context.Context, profile string) (api.LastFlashed, error) {
	profile = strings.TrimSpace(profile)
	if profile == "" {
		return api.LastFlashed{}, failure(CodeInvalidProfile, "profile cannot be empty", nil)
	}

	b.opMu.Lock()
	defer b.opMu.Unlock()

	installed, err := b.store.Installed()
	if err != nil {
		return api.LastFlashed{}, storageError(err)
	}
	if installed == nil {
		return api.LastFlashed{}, failure(CodeNotInstalled, "install the host bundle first", nil)
	}
	m := b.catalog.Find(installed.Channel, installed.Tag)
	if m == nil || !contains(m.ProfilesFor(b.platform), profile) {
		return api.LastFlashed{}, failure(CodeInvalidProfile,
			fmt.Sprintf("firmware for profile %s not found in %s", profile, installed.Tag), nil)
	}
	dev, err := b.DeviceStatus(ctx)
	if err != nil {
		return api.LastFlashed{}, err
	}
	if !dev.Connected {
		return api.LastFlashed{}, failure(CodeNoDevice, "no controller detected", nil)
	}

	b.mu.Lock()
	fail := b.flashFailed
	b.mu.Unlock()

	b.logger.Info("flash", "tag", installed.Tag, "profile", profile, "targets", dev.Count)
	b.flashes.Publish(api.FlashEvent{Type: api.FlashBegin, Channel: installed.Channel, Tag: installed.Tag, Profile: profile})

	lines := []string{
		`{"event":"discover_start"}`,
		fmt.Sprintf(`{"event":"discover_done","count":%d}`, dev.Count),
		fmt.Sprintf(`{"event":"hex_loaded","bytes":%d}`, 512<<10),
	}
	blocks := FlashBlocks
	if fail {
		blocks = FlashBlocks / 2
	}
	for i := 0; i < blocks; i++ {
		lines = append(lines, fmt.Sprintf(`{"event":"block","i":%d,"n":%d}`, i, FlashBlocks))
	}
	if fail {
		lines = append(lines, `{"event":"error","message":"write block failed"}`)
	}
	for _, line := range lines {
		if err := b.pause(ctx); err != nil {
			b.flashes.Publish(api.FlashEvent{Type: api.FlashDone, OK: false})
			return api.LastFlashed{}, api.Normalize(err)
		}
		b.flashes.Publish(api.FlashEvent{Type: api.FlashOutput, Line: line})
	}

	if fail {
		b.flashes.Publish(api.FlashEvent{Type: api.FlashDone, OK: false})
		return api.LastFlashed{}, failure(CodeFlashFailed, "firmware flash failed",
			map[string]any{"exit_code": 1, "profile": profile})
	}

	last := api.LastFlashed{Channel: installed.Channel, Tag: installed.Tag, Profile: profile, FlashedAtMS: b.now().UnixMilli()}
	if err := b.store.PutLastFlashed(last); err != nil {
		return api.LastFlashed{}, storageError(err)
	}
	b.flashes.Publish(api.FlashEvent{Type: api.FlashDone, OK: true})
	return last, nil
}

// RelocatePayloadRoot moves the payload root and returns the new status.
func (b *Backend) RelocatePayloadRoot(ctx context.Context, newRoot string) (api.Status, error) {
	newRoot = strings.TrimSpace(newRoot)
	if newRoot == "" {
		return api.Status{}, failure(CodePayloadRootInvalid, "new_root cannot be empty", nil)
	}
	if !filepath.IsAbs(newRoot) {
		return api.Status{}, failure(CodeInvalidPath, fmt.Sprintf("payload root must be absolute: %s", newRoot), nil)
	}

	b.opMu.Lock()
	err := os.MkdirAll(newRoot, 0o755)
	if err == nil {
		err = b.store.PutPayloadRoot(filepath.Clean(newRoot))
	}
	b.opMu.Unlock()
	if err != nil {
		return api.Status{}, storageError(err)
	}
	b.logger.Info("payload root relocated", "root", newRoot)
	return b.Status(ctx)
}

func (b *Backend) CheckAppUpdate(ctx context.Context) (api.AppUpdateStatus, error) {
	st := api.AppUpdateStatus{CurrentVersion: b.appVersion}
	if b.appLatest != nil && b.appLatest.Version != b.appVersion {
		latest := *b.appLatest
		st.Available = true
		st.Update = &latest
	}
	return st, nil
}

func (b *Backend) OpenLatestAppUpdate(ctx context.Context) error {
	st, _ := b.CheckAppUpdate(ctx)
	if !st.Available {
		return failure(CodeAppUpdateMissing, "no application update available", nil)
	}
	b.mu.Lock()
	b.opened++
	b.mu.Unlock()
	b.logger.Info("opening application release", "version", st.Update.Version)
	return nil
}

func (b *Backend) pause(ctx context.Context) error {
	if b.step <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(b.step)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func checkChannel(ch api.Channel) (api.Channel, error) {
	out, err := api.ParseChannel(string(ch))
	if err != nil {
		return "", failure(CodeInvalidChannel, err.Error(), nil)
	}
	return out, nil
}

func storageError(err error) *api.Error {
	return failure(CodeStorage, err.Error(), nil)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
