package sim

import (
	"context"
	"sync"
	"sync/atomic"

	"msmanager/internal/api"
)

// DefaultHubBuffer is the per-subscriber queue length.
const DefaultHubBuffer = 256

// Hub fans events out to subscribers. Each subscriber gets its own queue so
// it sees events in publication order; a subscriber whose queue is full
// misses events rather than stalling the publisher.
type Hub[T any] struct {
	mu      sync.Mutex
	subs    map[int]chan T
	next    int
	buffer  int
	dropped atomic.Int64
}

func NewHub[T any](buffer int) *Hub[T] {
	if buffer <= 0 {
		buffer = DefaultHubBuffer
	}
	return &Hub[T]{subs: make(map[int]chan T), buffer: buffer}
}

// Subscribe returns the subscriber's queue and a cancel func that closes it.
func (h *Hub[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, h.buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish queues v for every subscriber.
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- v:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped counts events lost to full subscriber queues.
func (h *Hub[T]) Dropped() int64 { return h.dropped.Load() }

// listen calls fn for every event on the hub until the subscription is
// cancelled or ctx ends.
func listen[T any](ctx context.Context, h *Hub[T], fn func(T)) api.Subscription {
	ch, cancel := h.Subscribe()
	ctx, stop := context.WithCancel(ctx)
	s := &listener{cancel: cancel, stop: stop, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					return
				}
				fn(v)
			}
		}
	}()
	return s
}

type listener struct {
	cancel func()
	stop   context.CancelFunc
	done   chan struct{}
}

func (l *listener) Unsubscribe() error {
	l.stop()
	l.cancel()
	<-l.done
	return nil
}
