package activity

import "github.com/charmbracelet/log"

// LoggerSink mirrors entries to a structured logger.
type LoggerSink struct {
	Logger *log.Logger
}

func (s LoggerSink) Record(e Entry) {
	if s.Logger == nil {
		return
	}
	kv := []any{"scope", string(e.Scope)}
	if e.Details != nil {
		kv = append(kv, "details", e.Details)
	}
	switch e.Level {
	case LevelWarn:
		s.Logger.Warn(e.Message, kv...)
	case LevelError:
		s.Logger.Error(e.Message, kv...)
	case LevelOK:
		s.Logger.Info(e.Message, append(kv, "ok", true)...)
	default:
		s.Logger.Info(e.Message, kv...)
	}
}
