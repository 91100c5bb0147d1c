package dashboard

import (
	"fmt"

	"msmanager/internal/activity"
	"msmanager/internal/api"
	"msmanager/internal/progress"
)

// HandleInstallEvent narrates one install event. Install progress carries no
// percentage.
func (r *Reconciler) HandleInstallEvent(e api.InstallEvent) {
	now, msg, level := installNarration(e)
	if now == "" {
		r.logger.Debug("ignoring install event", "type", e.Type)
		return
	}
	r.store.Update(func(s State) State {
		s.Now = now
		return s
	})
	r.note(level, activity.ScopeInstall, msg, nil)
}

func installNarration(e api.InstallEvent) (now, msg string, level activity.Level) {
	switch e.Type {
	case api.InstallBegin:
		return fmt.Sprintf("Installing %s (%s)…", e.Tag, e.Profile),
			fmt.Sprintf("begin %s (%s)", e.Tag, e.Profile), activity.LevelInfo
	case api.InstallDownloading:
		return fmt.Sprintf("Downloading %d/%d: %s", e.Index, e.Total, e.Filename),
			fmt.Sprintf("download %d/%d %s", e.Index, e.Total, e.Filename), activity.LevelInfo
	case api.InstallApplying:
		return "Applying: " + e.Step, "apply " + e.Step, activity.LevelInfo
	case api.InstallDone:
		return fmt.Sprintf("Installed %s (%s)", e.Tag, e.Profile),
			fmt.Sprintf("done %s (%s)", e.Tag, e.Profile), activity.LevelOK
	}
	return "", "", ""
}

// HandleFlashEvent narrates one flash event and tracks the flash percentage.
// Every output line is logged whether or not it carried a percentage.
func (r *Reconciler) HandleFlashEvent(e api.FlashEvent) {
	switch e.Type {
	case api.FlashBegin:
		r.store.Update(func(s State) State {
			s.Now = fmt.Sprintf("Flashing firmware: %s…", e.Profile)
			s.FlashPercent = 0
			return s
		})
		r.note(activity.LevelInfo, activity.ScopeFlash, fmt.Sprintf("begin %s (%s)", e.Tag, e.Profile), nil)

	case api.FlashOutput:
		reading := progress.Decode(e.Line)
		r.store.Update(func(s State) State {
			s.Now = reading.Text
			if reading.HasPercent {
				s.FlashPercent = reading.Percent
			}
			return s
		})
		r.note(activity.LevelInfo, activity.ScopeFlash, e.Line, nil)

	case api.FlashDone:
		now, msg, level := "Flash failed", "failed", activity.LevelError
		if e.OK {
			now, msg, level = "Flash done", "done", activity.LevelOK
		}
		r.store.Update(func(s State) State {
			s.Now = now
			s.FlashPercent = 0
			return s
		})
		r.note(level, activity.ScopeFlash, msg, nil)

	default:
		r.logger.Debug("ignoring flash event", "type", e.Type)
	}
}
