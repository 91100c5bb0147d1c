// Package activity implements the bounded, append-only session journal that
// every component writes its diagnostics to.
package activity

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultLimit is the number of entries a log keeps when no capacity is given.
const DefaultLimit = 500

type Level string

const (
	LevelInfo  Level = "info"
	LevelOK    Level = "ok"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Scope string

const (
	ScopeUI      Scope = "ui"
	ScopeNet     Scope = "net"
	ScopeInstall Scope = "install"
	ScopeFlash   Scope = "flash"
	ScopeDevice  Scope = "device"
	ScopeFS      Scope = "fs"
)

// Scopes lists every scope in display order.
func Scopes() []Scope {
	return []Scope{ScopeUI, ScopeNet, ScopeInstall, ScopeFlash, ScopeDevice, ScopeFS}
}

// ParseScope returns the scope named s, or false when s names none.
func ParseScope(s string) (Scope, bool) {
	for _, sc := range Scopes() {
		if string(sc) == s {
			return sc, true
		}
	}
	return "", false
}

// Entry is immutable once appended.
type Entry struct {
	ID      uuid.UUID `json:"id"`
	Time    time.Time `json:"ts"`
	Level   Level     `json:"level"`
	Scope   Scope     `json:"scope"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Sink receives every entry after it has been appended, one call at a time
// and in insertion order.
type Sink interface {
	Record(Entry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Entry)

func (f SinkFunc) Record(e Entry) { f(e) }

// Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	sinkMu  sync.Mutex // held across sink calls; taken while mu is held
	limit   int
	entries []Entry
	now     func() time.Time
	sinks   []Sink
	subs    map[int]func([]Entry)
	nextSub int
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSink mirrors appended entries to s.
func WithSink(s Sink) Option {
	return func(l *Log) {
		if s != nil {
			l.sinks = append(l.sinks, s)
		}
	}
}

// New creates a log retaining at most limit entries.
func New(limit int, opts ...Option) *Log {
	if limit <= 0 {
		limit = DefaultLimit
	}
	l := &Log{
		limit: limit,
		now:   time.Now,
		subs:  make(map[int]func([]Entry)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// AddSink attaches s to an existing log.
func (l *Log) AddSink(s Sink) {
	if s == nil {
		return
	}
	l.mu.Lock()
	l.sinks = append(l.sinks, s)
	l.mu.Unlock()
}

// Add appends an entry, evicting the oldest ones past capacity.
func (l *Log) Add(level Level, scope Scope, message string, details any) Entry {
	l.mu.Lock()
	e := Entry{
		ID:      uuid.New(),
		Time:    l.now(),
		Level:   level,
		Scope:   scope,
		Message: message,
		Details: details,
	}
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.limit; over > 0 {
		l.entries = append(l.entries[:0:0], l.entries[over:]...)
	}
	snapshot, subs, sinks := l.snapshotLocked()
	l.sinkMu.Lock()
	l.mu.Unlock()

	for _, s := range sinks {
		s.Record(e)
	}
	l.sinkMu.Unlock()
	for _, fn := range subs {
		fn(snapshot)
	}
	return e
}

func (l *Log) Info(scope Scope, message string, details any) Entry {
	return l.Add(LevelInfo, scope, message, details)
}

func (l *Log) OK(scope Scope, message string, details any) Entry {
	return l.Add(LevelOK, scope, message, details)
}

func (l *Log) Warn(scope Scope, message string, details any) Entry {
	return l.Add(LevelWarn, scope, message, details)
}

func (l *Log) Error(scope Scope, message string, details any) Entry {
	return l.Add(LevelError, scope, message, details)
}

// Clear drops every entry.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	snapshot, subs, _ := l.snapshotLocked()
	l.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// Entries returns a copy of the retained entries, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *Log) Limit() int { return l.limit }

// Subscribe registers fn to receive the full entry list after every change.
// The returned function removes the subscription.
func (l *Log) Subscribe(fn func([]Entry)) func() {
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

func (l *Log) snapshotLocked() ([]Entry, []func([]Entry), []Sink) {
	var subs []func([]Entry)
	for _, fn := range l.subs {
		subs = append(subs, fn)
	}
	var snapshot []Entry
	if len(subs) > 0 {
		snapshot = append([]Entry(nil), l.entries...)
	}
	return snapshot, subs, append([]Sink(nil), l.sinks...)
}
