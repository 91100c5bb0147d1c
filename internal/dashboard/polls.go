package dashboard

import (
	"context"
	"fmt"

	"msmanager/internal/activity"
	"msmanager/internal/api"
)

// DevicePoller builds the controller presence poller. Start uses it; it is
// exported so callers can drive ticks by hand.
func (r *Reconciler) DevicePoller() *Poller {
	return NewPoller("device", r.cfg.DevicePollInterval, r.pollDevice, r.relocating)
}

// BridgePoller builds the bridge health poller.
func (r *Reconciler) BridgePoller() *Poller {
	return NewPoller("bridge", r.cfg.BridgePollInterval, r.pollBridge, r.relocating)
}

// relocating keeps both pollers idle while the payload root moves.
func (r *Reconciler) relocating() bool {
	return r.store.Get().Relocating
}

func (r *Reconciler) pollDevice(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
	defer cancel()

	d, err := r.backend.DeviceStatus(ctx)
	if err != nil {
		r.pollFailed(&r.devicePollErr, activity.ScopeDevice, "device poll failed", err)
		return
	}
	r.pollRecovered(&r.devicePollErr)

	sig := fmt.Sprintf("%t:%d", d.Connected, d.Count)
	r.pollMu.Lock()
	changed := sig != r.deviceSig
	r.deviceSig = sig
	r.pollMu.Unlock()

	if changed {
		msg := "controller not detected"
		if d.Connected {
			msg = fmt.Sprintf("controller detected (%d)", d.Count)
		}
		r.note(activity.LevelInfo, activity.ScopeDevice, msg, nil)
	}
	r.store.Update(func(s State) State {
		s.Device = d
		return s
	})
}

func (r *Reconciler) pollBridge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.PollTimeout)
	defer cancel()

	b, err := r.backend.BridgeStatus(ctx)
	if err != nil {
		r.pollFailed(&r.bridgePollErr, activity.ScopeNet, "bridge poll failed", err)
		return
	}
	r.pollRecovered(&r.bridgePollErr)
	r.store.Update(func(s State) State {
		s.Bridge = b
		return s
	})
}

// pollFailed logs a poll failure once per distinct message.
func (r *Reconciler) pollFailed(last *string, scope activity.Scope, msg string, err error) {
	e := api.Normalize(err)
	r.pollMu.Lock()
	repeat := *last == e.Message
	*last = e.Message
	r.pollMu.Unlock()
	if !repeat {
		r.note(activity.LevelWarn, scope, msg, e)
	}
}

func (r *Reconciler) pollRecovered(last *string) {
	r.pollMu.Lock()
	*last = ""
	r.pollMu.Unlock()
}
