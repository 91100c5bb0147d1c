package sim

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"msmanager/internal/api"
)

// Catalog is the fixed set of releases the simulated backend publishes.
// Releases of a channel are kept newest first.
type Catalog struct {
	releases map[api.Channel][]*api.Manifest
	messages map[api.Channel]string
}

var platforms = []api.Platform{
	{OS: api.OSLinux, Arch: api.ArchX86_64},
	{OS: api.OSLinux, Arch: api.ArchARM64},
	{OS: api.OSMacOS, Arch: api.ArchX86_64},
	{OS: api.OSMacOS, Arch: api.ArchARM64},
	{OS: api.OSWindows, Arch: api.ArchX86_64},
}

// DefaultCatalog publishes two stable releases and one beta. Nightly has
// nothing published.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		releases: make(map[api.Channel][]*api.Manifest),
		messages: map[api.Channel]string{
			api.ChannelNightly: "no nightly builds published",
		},
	}
	c.Publish(Release(api.ChannelStable, "v1.1.0", "2026-09-02T10:00:00Z", "default", "bitwig"))
	c.Publish(Release(api.ChannelStable, "v1.0.0", "2026-06-14T10:00:00Z", "default"))
	c.Publish(Release(api.ChannelBeta, "v1.2.0-beta.1", "2026-10-01T10:00:00Z", "default", "bitwig", "ableton"))
	return c
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{releases: make(map[api.Channel][]*api.Manifest), messages: make(map[api.Channel]string)}
}

// Publish adds m as the newest release of its channel.
func (c *Catalog) Publish(m *api.Manifest) {
	c.releases[m.Channel] = append([]*api.Manifest{m}, c.releases[m.Channel]...)
}

// SetMessage sets the explanation given when a channel has no release.
func (c *Catalog) SetMessage(ch api.Channel, msg string) {
	c.messages[ch] = msg
}

// Release builds a manifest carrying a host bundle per platform and one
// firmware image per profile.
func Release(ch api.Channel, tag, published string, profiles ...string) *api.Manifest {
	m := &api.Manifest{Schema: 1, Channel: ch, Tag: tag, PublishedAt: published}
	for _, p := range platforms {
		bundle := fmt.Sprintf("bundle-%s-%s", p.OS, p.Arch)
		m.Assets = append(m.Assets, asset(bundle, "bundle", p, fmt.Sprintf("ms-%s-%s-%s.zip", tag, p.OS, p.Arch), 48<<20))
		for _, profile := range profiles {
			m.InstallSets = append(m.InstallSets, api.InstallSet{
				ID:     profile,
				OS:     p.OS,
				Arch:   p.Arch,
				Assets: []string{bundle, "firmware-" + profile},
			})
		}
	}
	for _, profile := range profiles {
		m.Assets = append(m.Assets, asset("firmware-"+profile, "firmware", api.Platform{}, fmt.Sprintf("firmware-%s-%s.hex", profile, tag), 512<<10))
	}
	return m
}

func asset(id, kind string, p api.Platform, filename string, size int64) api.ManifestAsset {
	sum := sha256.Sum256([]byte(filename))
	return api.ManifestAsset{
		ID:       id,
		Kind:     kind,
		OS:       p.OS,
		Arch:     p.Arch,
		Filename: filename,
		Size:     size,
		SHA256:   hex.EncodeToString(sum[:]),
	}
}

// Tags lists a channel's release tags, newest first.
func (c *Catalog) Tags(ch api.Channel) []string {
	out := make([]string, 0, len(c.releases[ch]))
	for _, m := range c.releases[ch] {
		out = append(out, m.Tag)
	}
	return out
}

// Latest resolves the newest release of ch.
func (c *Catalog) Latest(ch api.Channel) api.LatestManifestResponse {
	list := c.releases[ch]
	if len(list) == 0 {
		msg := c.messages[ch]
		if msg == "" {
			msg = fmt.Sprintf("no releases on channel %s", ch)
		}
		return api.LatestManifestResponse{Channel: ch, Available: false, Message: msg}
	}
	return api.LatestManifestResponse{Channel: ch, Available: true, Tag: list[0].Tag, Manifest: list[0]}
}

// ForTag resolves one release of ch by tag.
func (c *Catalog) ForTag(ch api.Channel, tag string) api.LatestManifestResponse {
	if m := c.Find(ch, tag); m != nil {
		return api.LatestManifestResponse{Channel: ch, Available: true, Tag: m.Tag, Manifest: m}
	}
	return api.LatestManifestResponse{Channel: ch, Available: false, Message: fmt.Sprintf("tag %s not found on channel %s", tag, ch)}
}

func (c *Catalog) Find(ch api.Channel, tag string) *api.Manifest {
	for _, m := range c.releases[ch] {
		if m.Tag == tag {
			return m
		}
	}
	return nil
}

// Plan picks the install set of profile for p and returns its assets in
// install-set order.
func Plan(m *api.Manifest, p api.Platform, profile string) ([]api.ManifestAsset, error) {
	var set *api.InstallSet
	for i := range m.InstallSets {
		s := &m.InstallSets[i]
		if s.ID == profile && s.OS == p.OS && s.Arch == p.Arch {
			set = s
			break
		}
	}
	if set == nil {
		return nil, failure(CodeNoMatchingSet,
			fmt.Sprintf("no install set %q for %s/%s in %s", profile, p.OS, p.Arch, m.Tag),
			map[string]any{"profile": profile, "os": p.OS, "arch": p.Arch, "tag": m.Tag})
	}

	byID := make(map[string]api.ManifestAsset, len(m.Assets))
	for _, a := range m.Assets {
		byID[a.ID] = a
	}
	out := make([]api.ManifestAsset, 0, len(set.Assets))
	for _, id := range set.Assets {
		a, ok := byID[id]
		if !ok {
			return nil, failure("manifest_invalid_install_set", fmt.Sprintf("unknown asset id %s", id), nil)
		}
		out = append(out, a)
	}
	return out, nil
}
