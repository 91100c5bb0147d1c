package dashboard

import (
	"context"
	"fmt"
	"strings"

	"msmanager/internal/activity"
	"msmanager/internal/api"
)

// saveSettings runs one settings gateway call under the settings permit and
// folds the backend's answer into the state before releasing it.
func (r *Reconciler) saveSettings(ctx context.Context, call func(context.Context) (api.Settings, error), fold func(*State, api.Settings)) error {
	if err := r.settings.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.settings.Release(1)

	saved, err := call(ctx)
	if err != nil {
		return err
	}
	r.store.Update(func(s State) State {
		fold(&s, saved)
		return s
	})
	return nil
}

// SetChannel switches the release channel, then reloads the tag list and
// the release for the channel the backend reports.
func (r *Reconciler) SetChannel(ctx context.Context, next api.Channel) Outcome {
	if !r.acquire(flagSavingSettings) {
		return Noop
	}
	defer r.releaseFlag(flagSavingSettings)
	r.clearError()

	r.note(activity.LevelInfo, activity.ScopeUI, "set channel="+string(next), nil)
	err := r.saveSettings(ctx, func(ctx context.Context) (api.Settings, error) {
		return r.backend.SetChannel(ctx, next)
	}, func(s *State, saved api.Settings) {
		s.Channel = saved.Channel
		s.PinnedTag = saved.PinnedTag
		s.Profile = saved.Profile
	})
	if err != nil {
		r.setError(err)
		return Failed
	}

	r.RefreshTags(ctx)
	r.refreshRelease(ctx)
	return Applied
}

// SetProfile selects the install/flash profile.
func (r *Reconciler) SetProfile(ctx context.Context, next string) Outcome {
	if !r.acquire(flagSavingSettings) {
		return Noop
	}
	defer r.releaseFlag(flagSavingSettings)
	r.clearError()

	r.note(activity.LevelInfo, activity.ScopeUI, "set profile="+next, nil)
	err := r.saveSettings(ctx, func(ctx context.Context) (api.Settings, error) {
		return r.backend.SetProfile(ctx, next)
	}, func(s *State, saved api.Settings) {
		s.Profile = saved.Profile
	})
	if err != nil {
		r.setError(err)
		return Failed
	}
	return Applied
}

// SetPinnedTag pins a release tag; an empty tag tracks the latest release.
func (r *Reconciler) SetPinnedTag(ctx context.Context, tag string) Outcome {
	if !r.acquire(flagSavingSettings) {
		return Noop
	}
	defer r.releaseFlag(flagSavingSettings)
	r.clearError()

	label := tag
	if label == "" {
		label = "latest"
	}
	r.note(activity.LevelInfo, activity.ScopeUI, "pin tag="+label, nil)
	err := r.saveSettings(ctx, func(ctx context.Context) (api.Settings, error) {
		return r.backend.SetPinnedTag(ctx, tag)
	}, func(s *State, saved api.Settings) {
		s.PinnedTag = saved.PinnedTag
	})
	if err != nil {
		r.setError(err)
		return Failed
	}

	r.refreshRelease(ctx)
	return Applied
}

// Install installs the selected release and profile.
func (r *Reconciler) Install(ctx context.Context) Outcome {
	if !r.acquire(flagInstalling) {
		return Noop
	}
	defer r.releaseFlag(flagInstalling)
	r.clearError()

	snap := r.store.Get()
	r.note(activity.LevelInfo, activity.ScopeInstall, fmt.Sprintf("install channel=%s profile=%s", snap.Channel, snap.Profile), nil)
	installed, err := r.backend.InstallSelected(ctx)
	if err != nil {
		r.setError(err)
		return Failed
	}
	r.store.Update(func(s State) State {
		s.Installed = &installed
		return s
	})

	_ = r.RefreshStatus(ctx)
	r.refreshRelease(ctx)
	return Applied
}

// ConfirmFlashModal flashes the modal's target profile. Without a target or
// an acknowledgement it does nothing.
func (r *Reconciler) ConfirmFlashModal(ctx context.Context) Outcome {
	var target string
	if !r.store.TryUpdate(func(s State) (State, bool) {
		if s.Flashing || s.FlashModal.Profile == "" || !s.FlashModal.Ack {
			return s, false
		}
		target = s.FlashModal.Profile
		s.Flashing = true
		s.FlashPercent = 0
		return s, true
	}) {
		return Noop
	}
	defer r.store.Update(func(s State) State {
		s.Flashing = false
		s.FlashPercent = 0
		return s
	})
	r.clearError()

	r.note(activity.LevelInfo, activity.ScopeFlash, "flash start profile="+target, nil)
	out, err := r.backend.FlashFirmware(ctx, target)
	if err != nil {
		r.setError(err)
		return Failed
	}
	r.store.Update(func(s State) State {
		s.LastFlashed = &out
		return s
	})
	r.note(activity.LevelOK, activity.ScopeFlash, "flash done profile="+out.Profile, nil)
	r.CancelFlashModal()

	_ = r.RefreshStatus(ctx)
	return Applied
}

// ConfirmRelocateModal moves the payload root to the modal's path. Without
// an acknowledgement or with a blank path it does nothing. The pollers stay
// idle while it runs.
func (r *Reconciler) ConfirmRelocateModal(ctx context.Context) Outcome {
	var nextRoot string
	if !r.store.TryUpdate(func(s State) (State, bool) {
		root := strings.TrimSpace(s.RelocateModal.NextRoot)
		if s.Relocating || !s.RelocateModal.Ack || root == "" {
			return s, false
		}
		nextRoot = root
		s.Relocating = true
		return s, true
	}) {
		return Noop
	}
	defer r.releaseFlag(flagRelocating)
	r.clearError()

	r.note(activity.LevelInfo, activity.ScopeFS, "relocate payload root -> "+nextRoot, nil)
	st, err := r.backend.RelocatePayloadRoot(ctx, nextRoot)
	if err != nil {
		r.setError(err)
		return Failed
	}
	r.applyStatus(st)
	r.note(activity.LevelOK, activity.ScopeFS, "payload root: "+st.PayloadRoot, nil)
	r.CancelRelocateModal()

	r.RefreshTags(ctx)
	r.refreshRelease(ctx)
	return Applied
}

// InstallAppUpdate opens the latest application release. It does nothing
// unless an update is known to be available and no other action runs.
func (r *Reconciler) InstallAppUpdate(ctx context.Context) Outcome {
	if !r.store.TryUpdate(func(s State) (State, bool) {
		if !s.CanInstallAppUpdate() {
			return s, false
		}
		s.InstallingAppUpdate = true
		return s, true
	}) {
		return Noop
	}
	defer r.releaseFlag(flagInstallingAppUpdate)
	r.clearError()

	r.note(activity.LevelInfo, activity.ScopeUI, "opening latest application release", nil)
	if err := r.backend.OpenLatestAppUpdate(ctx); err != nil {
		r.setError(err)
		return Failed
	}
	return Applied
}
