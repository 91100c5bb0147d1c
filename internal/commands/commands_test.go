package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	base []string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	return &harness{base: []string{
		"msmanager",
		"--state-file", filepath.Join(dir, "state.db"),
		"--payload-root", filepath.Join(dir, "payload"),
		"--fake-controllers", "1",
		"--step-delay", "0s",
		"--no-journal",
	}}
}

func (h *harness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := Root()
	root.Writer = &out
	err := root.Run(context.Background(), append(append([]string{}, h.base...), args...))
	return out.String(), err
}

func TestStatusPrintsReport(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "MS MANAGER REPORT")
	assert.Contains(t, out, "Selection")
	assert.Contains(t, out, "stable")
}

func TestChannelPersists(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "channel", "beta")
	require.NoError(t, err)
	assert.Contains(t, out, "channel: beta")
	assert.Contains(t, out, "release: v1.2.0-beta.1")

	out, err = h.run(t, "channel", "nightly")
	require.NoError(t, err)
	assert.Contains(t, out, "release: none (no nightly builds published)")

	_, err = h.run(t, "channel")
	assert.ErrorIs(t, err, errChannelRequired)

	_, err = h.run(t, "channel", "weekly")
	assert.Error(t, err)
}

func TestPinAndProfile(t *testing.T) {
	h := newHarness(t)

	out, err := h.run(t, "pin", "v1.0.0")
	require.NoError(t, err)
	assert.Contains(t, out, "pinned:  v1.0.0")
	assert.Contains(t, out, "release: v1.0.0")

	out, err = h.run(t, "pin")
	require.NoError(t, err)
	assert.Contains(t, out, "pinned:  latest")

	out, err = h.run(t, "profile", "bitwig")
	require.NoError(t, err)
	assert.Contains(t, out, "profile: bitwig")

	_, err = h.run(t, "profile")
	assert.ErrorIs(t, err, errProfileRequired)
}

func TestInstallThenFlash(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "flash")
	assert.ErrorIs(t, err, errAckRequired)

	out, err := h.run(t, "install")
	require.NoError(t, err)
	assert.Contains(t, out, "installed v1.1.0 (default) from stable")

	out, err = h.run(t, "flash", "--yes")
	require.NoError(t, err)
	assert.Contains(t, out, "flashed v1.1.0 (default)")
}

func TestFlashFailsWithoutInstall(t *testing.T) {
	h := newHarness(t)

	_, err := h.run(t, "flash", "--yes", "--profile", "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not_installed")
}

func TestRelocate(t *testing.T) {
	h := newHarness(t)
	target := filepath.Join(t.TempDir(), "moved")

	_, err := h.run(t, "relocate")
	assert.ErrorIs(t, err, errPathRequired)

	_, err = h.run(t, "relocate", target)
	assert.ErrorIs(t, err, errAckRequired)

	out, err := h.run(t, "relocate", "--yes", target)
	require.NoError(t, err)
	assert.Contains(t, out, "payload root: "+target)
}

func TestHistoryReadsArchive(t *testing.T) {
	h := newHarness(t)
	journal := filepath.Join(t.TempDir(), "activity.duckdb")
	h.base = append(h.base[:len(h.base)-1], "--journal", journal)

	_, err := h.run(t, "channel", "beta")
	require.NoError(t, err)

	out, err := h.run(t, "history", "--scope", "ui")
	require.NoError(t, err)
	assert.Contains(t, out, "set channel=beta")
	assert.NotContains(t, out, " NET ")

	_, err = h.run(t, "history", "--scope", "kernel")
	assert.Error(t, err)
}

func TestHistoryNeedsJournal(t *testing.T) {
	h := newHarness(t)
	_, err := h.run(t, "history")
	assert.ErrorIs(t, err, errJournalDisabled)
}

func TestBuildDisplayVersion(t *testing.T) {
	assert.Equal(t, "dev", BuildDisplayVersion())

	BuildVersion, BuildCommit = "1.2.0", "abc123"
	t.Cleanup(func() { BuildVersion, BuildCommit = "dev", "unknown" })
	assert.Equal(t, "1.2.0 (abc123)", BuildDisplayVersion())
}
