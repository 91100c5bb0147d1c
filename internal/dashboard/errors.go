package dashboard

import "errors"

var (
	ErrPollerRunning = errors.New("poller already running")
	ErrNoBackend     = errors.New("backend is required")
	ErrNoActivityLog = errors.New("activity log is required")
)
