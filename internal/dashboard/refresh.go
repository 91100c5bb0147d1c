package dashboard

import (
	"context"
	"fmt"

	"msmanager/internal/activity"
	"msmanager/internal/api"
)

// RefreshStatus fetches the full status and folds it into the state.
func (r *Reconciler) RefreshStatus(ctx context.Context) error {
	r.note(activity.LevelInfo, activity.ScopeUI, "status refresh", nil)
	st, err := r.backend.Status(ctx)
	if err != nil {
		return r.setError(err)
	}
	r.applyStatus(st)
	return nil
}

func (r *Reconciler) applyStatus(st api.Status) {
	platform := st.Platform
	r.store.Update(func(s State) State {
		s.Channel = st.Settings.Channel
		s.PinnedTag = st.Settings.PinnedTag
		s.Profile = st.Settings.Profile
		s.Platform = &platform
		s.PayloadRoot = st.PayloadRoot
		s.Installed = st.Installed
		s.HostInstalled = st.HostInstalled
		s.Device = st.Device
		s.LastFlashed = st.LastFlashed
		s.Bridge = st.Bridge
		return s
	})
}

// RefreshTags reloads the tag list of the selected channel. The pinned tag
// is always offered even when the backend no longer lists it. Failures are
// logged only.
func (r *Reconciler) RefreshTags(ctx context.Context) Outcome {
	gen := r.beginLoad(&r.tags, flagLoadingTags)
	defer r.endLoad(&r.tags, flagLoadingTags)

	snap := r.store.Get()
	r.note(activity.LevelInfo, activity.ScopeNet, fmt.Sprintf("list tags channel=%s", snap.Channel), nil)
	tags, err := r.backend.ListChannelTags(ctx, snap.Channel)
	if err != nil {
		r.note(activity.LevelWarn, activity.ScopeNet, "list tags failed", api.Normalize(err))
		return Failed
	}
	if !r.tags.current(gen) {
		return Noop
	}

	out := tags
	if snap.PinnedTag != "" && !contains(tags, snap.PinnedTag) {
		out = append([]string{snap.PinnedTag}, tags...)
	}
	r.store.Update(func(s State) State {
		s.Tags = out
		return s
	})
	r.note(activity.LevelOK, activity.ScopeNet, fmt.Sprintf("tags count=%d", len(out)), nil)
	return Applied
}

// RefreshRelease resolves the release for the selected channel and pinned
// tag, then derives the profiles the release offers on this platform. A
// selected profile the release does not offer is replaced by the first one
// offered, through the settings path.
func (r *Reconciler) RefreshRelease(ctx context.Context) Outcome {
	r.clearError()
	return r.refreshRelease(ctx)
}

// refreshRelease leaves an error captured earlier in the same action in place.
func (r *Reconciler) refreshRelease(ctx context.Context) Outcome {
	gen := r.beginLoad(&r.release, flagLoadingRelease)
	defer r.endLoad(&r.release, flagLoadingRelease)

	snap := r.store.Get()
	tagLabel := snap.PinnedTag
	if tagLabel == "" {
		tagLabel = "latest"
	}
	r.note(activity.LevelInfo, activity.ScopeNet, fmt.Sprintf("resolve release channel=%s tag=%s", snap.Channel, tagLabel), nil)

	var (
		out api.LatestManifestResponse
		err error
	)
	if snap.PinnedTag != "" {
		out, err = r.backend.ResolveManifestForTag(ctx, snap.Channel, snap.PinnedTag)
	} else {
		out, err = r.backend.ResolveLatestManifest(ctx, snap.Channel)
	}
	if err != nil {
		r.setError(err)
		return Failed
	}
	if !r.release.current(gen) {
		return Noop
	}

	r.store.Update(func(s State) State {
		s.Release = &out
		return s
	})
	if !out.Available {
		msg := out.Message
		if msg == "" {
			msg = "no release"
		}
		r.note(activity.LevelWarn, activity.ScopeNet, msg, nil)
	} else {
		tag := out.Tag
		if tag == "" {
			tag = "?"
		}
		r.note(activity.LevelOK, activity.ScopeNet, "release tag="+tag, nil)
	}

	if out.Manifest == nil || snap.Platform == nil {
		return Applied
	}
	options := out.Manifest.ProfilesFor(*snap.Platform)
	if len(options) == 0 {
		options = []string{r.cfg.FallbackProfile}
	}
	r.store.Update(func(s State) State {
		s.ProfileOptions = options
		return s
	})

	if contains(options, r.store.Get().Profile) {
		return Applied
	}
	if err := r.correctProfile(ctx, options); err != nil {
		r.setError(err)
		return Failed
	}
	return Applied
}

// correctProfile persists the first offered profile. The check is repeated
// under the settings permit so a concurrent profile change that already
// picked a valid profile wins.
func (r *Reconciler) correctProfile(ctx context.Context, options []string) error {
	if err := r.settings.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.settings.Release(1)

	if contains(options, r.store.Get().Profile) {
		return nil
	}
	next := options[0]
	r.note(activity.LevelInfo, activity.ScopeUI, "profile not offered by release, switching to "+next, nil)
	saved, err := r.backend.SetProfile(ctx, next)
	if err != nil {
		return err
	}
	r.store.Update(func(s State) State {
		s.Profile = saved.Profile
		return s
	})
	return nil
}

// CheckAppUpdate asks whether a newer application release exists. It never
// sets the displayed error.
func (r *Reconciler) CheckAppUpdate(ctx context.Context) Outcome {
	if !r.acquire(flagCheckingAppUpdate) {
		return Noop
	}
	defer r.releaseFlag(flagCheckingAppUpdate)

	r.note(activity.LevelInfo, activity.ScopeNet, "check app update", nil)
	out, err := r.backend.CheckAppUpdate(ctx)
	if err != nil {
		r.note(activity.LevelWarn, activity.ScopeNet, "app update check failed", api.Normalize(err))
		return Failed
	}
	r.store.Update(func(s State) State {
		s.AppUpdate = &out
		return s
	})

	switch {
	case out.Error != "":
		r.note(activity.LevelWarn, activity.ScopeNet, "app update check failed: "+out.Error, nil)
	case out.Available && out.Update != nil:
		r.note(activity.LevelOK, activity.ScopeNet, "app update available: "+out.Update.Version, nil)
	default:
		r.note(activity.LevelOK, activity.ScopeNet, "app is up to date", nil)
	}
	return Applied
}
