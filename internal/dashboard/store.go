package dashboard

import "sync"

// Store holds the dashboard state. Every change is one indivisible
// old-state to new-state transform; nothing blocks while the lock is held.
type Store struct {
	mu      sync.Mutex
	state   State
	sealed  bool
	subs    map[int]func(State)
	nextSub int
}

func NewStore(initial State) *Store {
	return &Store{state: initial, subs: make(map[int]func(State))}
}

// Get returns the current snapshot.
func (s *Store) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Update applies fn atomically. It reports false, without calling fn, once
// the store has been sealed.
func (s *Store) Update(fn func(State) State) bool {
	return s.TryUpdate(func(st State) (State, bool) {
		return fn(st), true
	})
}

// TryUpdate applies fn atomically and commits its result only when fn
// returns true. Use it to check and set a flag in one step.
func (s *Store) TryUpdate(fn func(State) (State, bool)) bool {
	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return false
	}
	next, ok := fn(s.state)
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.state = next
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return true
}

// Subscribe registers fn to be called after every committed change. fn runs
// on the goroutine that made the change and must not block; treat the value
// as a change signal and call Get for rendering.
func (s *Store) Subscribe(fn func(State)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Seal freezes the state. Later updates are dropped.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.subs = make(map[int]func(State))
	s.mu.Unlock()
}

func (s *Store) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

func (s *Store) subscribersLocked() []func(State) {
	if len(s.subs) == 0 {
		return nil
	}
	out := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}
