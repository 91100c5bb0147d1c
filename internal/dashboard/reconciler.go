// Package dashboard reconciles the firmware manager's UI state from the
// status API, the install and flash event streams and the device and bridge
// polls, and serializes the user's actions against the backend.
package dashboard

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"msmanager/internal/activity"
	"msmanager/internal/api"
	"msmanager/internal/logging"
)

// Outcome tells a caller what a command did.
type Outcome int

const (
	// Noop means a precondition was not met and nothing was called.
	Noop Outcome = iota
	// Applied means the backend accepted the action.
	Applied
	// Failed means the backend call failed; the error is in State.LastError.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	default:
		return "noop"
	}
}

// FolderPicker asks the user for a directory. ok is false when the user
// cancelled.
type FolderPicker interface {
	PickFolder(ctx context.Context, start string) (path string, ok bool, err error)
}

// Reconciler owns the dashboard state and every transition of it.
type Reconciler struct {
	cfg      Config
	backend  api.Backend
	events   api.EventSource
	activity *activity.Log
	store    *Store
	picker   FolderPicker
	logger   *log.Logger

	// settings serializes every settings mutation, including the profile
	// correction a release refresh may issue.
	settings *semaphore.Weighted

	tags    loader
	release loader

	pollMu        sync.Mutex
	deviceSig     string
	devicePollErr string
	bridgePollErr string

	startMu sync.Mutex
	session *Session
}

// Option configures a Reconciler.
type Option func(*Reconciler)

func WithFolderPicker(p FolderPicker) Option {
	return func(r *Reconciler) { r.picker = p }
}

func WithLogger(l *log.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a reconciler. events may be nil for one-shot use without
// live progress.
func New(cfg Config, backend api.Backend, events api.EventSource, activityLog *activity.Log, opts ...Option) (*Reconciler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if backend == nil {
		return nil, ErrNoBackend
	}
	if activityLog == nil {
		return nil, ErrNoActivityLog
	}
	r := &Reconciler{
		cfg:      cfg,
		backend:  backend,
		events:   events,
		activity: activityLog,
		store:    NewStore(InitialState(cfg)),
		settings: semaphore.NewWeighted(1),
		logger:   logging.Logger(logging.SourceDashboard),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// State returns the current snapshot.
func (r *Reconciler) State() State { return r.store.Get() }

// Subscribe forwards every committed state change to fn.
func (r *Reconciler) Subscribe(fn func(State)) func() { return r.store.Subscribe(fn) }

// Activity returns the session's activity log.
func (r *Reconciler) Activity() *activity.Log { return r.activity }

func (r *Reconciler) Config() Config { return r.cfg }

// Start loads the initial data, subscribes to both event streams and starts
// both pollers. A reconciler runs one session; calling Start again returns
// it. The session is the only way to tear everything down.
func (r *Reconciler) Start(ctx context.Context) *Session {
	r.startMu.Lock()
	defer r.startMu.Unlock()
	if r.session != nil {
		r.logger.Warn("start called twice; returning the running session")
		return r.session
	}
	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{store: r.store, cancel: cancel}
	r.session = sess

	r.note(activity.LevelInfo, activity.ScopeUI, "boot", nil)
	_ = r.RefreshStatus(ctx)
	r.RefreshTags(ctx)
	r.refreshRelease(ctx)

	go r.CheckAppUpdate(ctx)

	if r.events != nil {
		sub, err := r.events.SubscribeInstall(ctx, r.HandleInstallEvent)
		if err != nil {
			r.note(activity.LevelWarn, activity.ScopeNet, "install events unavailable", api.Normalize(err))
		}
		sess.installSub = sub

		sub, err = r.events.SubscribeFlash(ctx, r.HandleFlashEvent)
		if err != nil {
			r.note(activity.LevelWarn, activity.ScopeNet, "flash events unavailable", api.Normalize(err))
		}
		sess.flashSub = sub
	}

	sess.devicePoll = r.DevicePoller()
	sess.bridgePoll = r.BridgePoller()
	for _, p := range []*Poller{sess.devicePoll, sess.bridgePoll} {
		if err := p.Start(ctx); err != nil {
			r.logger.Error("poller did not start", "poller", p.Name(), "err", err)
		}
	}
	return sess
}

// note appends to the activity log unless the session has been torn down.
func (r *Reconciler) note(level activity.Level, scope activity.Scope, msg string, details any) {
	if r.store.Sealed() {
		return
	}
	r.activity.Add(level, scope, msg, details)
}

func (r *Reconciler) setError(err error) *api.Error {
	e := api.Normalize(err)
	if !r.store.Update(func(s State) State {
		s.LastError = e
		return s
	}) {
		return e
	}
	r.note(activity.LevelError, activity.ScopeUI, e.Message, e.Details)
	return e
}

func (r *Reconciler) clearError() {
	r.store.Update(func(s State) State {
		s.LastError = nil
		return s
	})
}

// ClearError dismisses the displayed error.
func (r *Reconciler) ClearError() { r.clearError() }

// acquire checks and sets one operation flag in a single step.
func (r *Reconciler) acquire(flag func(*State) *bool) bool {
	return r.store.TryUpdate(func(s State) (State, bool) {
		f := flag(&s)
		if *f {
			return s, false
		}
		*f = true
		return s, true
	})
}

func (r *Reconciler) releaseFlag(flag func(*State) *bool) {
	r.store.Update(func(s State) State {
		*flag(&s) = false
		return s
	})
}

// loader tracks overlapping refreshes of one kind: the flag stays set until
// the last one ends, and only the newest one may commit its result.
type loader struct {
	gen      atomic.Uint64
	inflight atomic.Int32
}

func (r *Reconciler) beginLoad(l *loader, flag func(*State) *bool) uint64 {
	g := l.gen.Add(1)
	r.store.Update(func(s State) State {
		l.inflight.Add(1)
		*flag(&s) = true
		return s
	})
	return g
}

func (r *Reconciler) endLoad(l *loader, flag func(*State) *bool) {
	r.store.Update(func(s State) State {
		*flag(&s) = l.inflight.Add(-1) > 0
		return s
	})
}

func (l *loader) current(g uint64) bool { return l.gen.Load() == g }
