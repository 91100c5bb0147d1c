package dashboard

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Poller runs fn on a fixed interval. A tick that arrives while the previous
// fn call is still running is dropped, not queued, and a tick is skipped
// entirely while skip reports true.
type Poller struct {
	name     string
	interval time.Duration
	fn       func(ctx context.Context)
	skip     func() bool

	busy    atomic.Bool
	dropped atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// NewPoller creates a stopped poller. skip may be nil.
func NewPoller(name string, interval time.Duration, fn func(ctx context.Context), skip func() bool) *Poller {
	return &Poller{name: name, interval: interval, fn: fn, skip: skip}
}

func (p *Poller) Name() string { return p.name }

// Start begins ticking until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return ErrPollerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.wg.Add(1)
	p.mu.Unlock()

	go p.loop(ctx)
	return nil
}

// Stop halts the ticker and waits for an in-flight fn call to return.
func (p *Poller) Stop() error {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.running = false
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	return nil
}

// Tick handles one timer tick. It reports whether fn was started.
func (p *Poller) Tick(ctx context.Context) bool {
	if p.skip != nil && p.skip() {
		return false
	}
	if !p.busy.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		p.fn(ctx)
	}()
	return true
}

// Dropped counts ticks discarded because fn was still running.
func (p *Poller) Dropped() int64 { return p.dropped.Load() }

func (p *Poller) loop(ctx context.Context) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}
