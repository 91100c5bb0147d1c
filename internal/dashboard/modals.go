package dashboard

import (
	"context"
	"strings"

	"msmanager/internal/activity"
	"msmanager/internal/api"
)

// OpenFlashModal starts a flash confirmation for profile.
func (r *Reconciler) OpenFlashModal(profile string) {
	r.store.Update(func(s State) State {
		s.FlashModal = FlashModal{Open: true, Profile: profile}
		return s
	})
}

func (r *Reconciler) CancelFlashModal() {
	r.store.Update(func(s State) State {
		s.FlashModal = FlashModal{}
		return s
	})
}

func (r *Reconciler) SetFlashAck(ack bool) {
	r.store.Update(func(s State) State {
		s.FlashModal.Ack = ack
		return s
	})
}

// OpenRelocateModal starts a relocation seeded with the current root.
func (r *Reconciler) OpenRelocateModal() {
	r.store.Update(func(s State) State {
		s.RelocateModal = RelocateModal{Open: true, NextRoot: s.PayloadRoot}
		return s
	})
}

func (r *Reconciler) CancelRelocateModal() {
	r.store.Update(func(s State) State {
		s.RelocateModal = RelocateModal{}
		return s
	})
}

func (r *Reconciler) SetRelocateRoot(root string) {
	r.store.Update(func(s State) State {
		s.RelocateModal.NextRoot = root
		return s
	})
}

func (r *Reconciler) SetRelocateAck(ack bool) {
	r.store.Update(func(s State) State {
		s.RelocateModal.Ack = ack
		return s
	})
}

// BrowseRelocateRoot lets the user pick the relocation target with the
// folder picker. A failing picker is logged and otherwise ignored.
func (r *Reconciler) BrowseRelocateRoot(ctx context.Context) Outcome {
	snap := r.store.Get()
	start := snap.RelocateModal.NextRoot
	if strings.TrimSpace(start) == "" {
		start = snap.PayloadRoot
	}
	if r.picker == nil {
		r.note(activity.LevelWarn, activity.ScopeUI, "folder picker failed", "no folder picker available")
		return Failed
	}

	path, ok, err := r.picker.PickFolder(ctx, start)
	if err != nil {
		r.note(activity.LevelWarn, activity.ScopeUI, "folder picker failed", api.Normalize(err))
		return Failed
	}
	if !ok || strings.TrimSpace(path) == "" {
		return Noop
	}
	r.SetRelocateRoot(path)
	return Applied
}

// OpenContextMenu anchors the profile menu at cell (x, y).
func (r *Reconciler) OpenContextMenu(profile string, x, y int) {
	r.store.Update(func(s State) State {
		s.ContextMenu = ContextMenu{Open: true, X: x, Y: y, Profile: profile}
		return s
	})
}

func (r *Reconciler) CloseContextMenu() {
	r.store.Update(func(s State) State {
		s.ContextMenu = ContextMenu{}
		return s
	})
}

func (r *Reconciler) ToggleActivity() {
	r.store.Update(func(s State) State {
		s.ActivityOpen = !s.ActivityOpen
		return s
	})
}

// SetActivityFilter narrows the activity panel to one scope; empty shows all.
func (r *Reconciler) SetActivityFilter(scope activity.Scope) {
	r.store.Update(func(s State) State {
		s.ActivityFilter = scope
		return s
	})
}

// ClearActivity empties the activity log.
func (r *Reconciler) ClearActivity() {
	r.activity.Clear()
}
