package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"msmanager/internal/api"
)

// Session owns everything a started reconciler holds open: both event
// subscriptions and both pollers. Close releases them.
type Session struct {
	store      *Store
	cancel     context.CancelFunc
	installSub api.Subscription
	flashSub   api.Subscription
	devicePoll *Poller
	bridgePoll *Poller

	once sync.Once
	err  error
}

// Close seals the state, unsubscribes both streams and stops both pollers.
// Each resource is released even when another fails; the failures are
// joined. Calling Close again returns the first result.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.store.Seal()

		var errs []error
		if s.installSub != nil {
			errs = append(errs, release("unsubscribe install events", s.installSub.Unsubscribe))
		}
		if s.flashSub != nil {
			errs = append(errs, release("unsubscribe flash events", s.flashSub.Unsubscribe))
		}
		if s.devicePoll != nil {
			errs = append(errs, release("stop device poll", s.devicePoll.Stop))
		}
		if s.bridgePoll != nil {
			errs = append(errs, release("stop bridge poll", s.bridgePoll.Stop))
		}
		if s.cancel != nil {
			s.cancel()
		}
		s.err = errors.Join(errs...)
	})
	return s.err
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	return s.store.Sealed()
}

func release(what string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", what, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
