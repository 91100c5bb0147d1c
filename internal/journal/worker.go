package journal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"msmanager/internal/activity"
	"msmanager/internal/logging"
)

const (
	defaultFlushInterval = time.Second
	defaultBatchSize     = 64
	defaultQueueSize     = 1024
)

// Worker is an activity.Sink that archives entries in the background.
// Record never blocks; entries that do not fit in the queue are counted and
// dropped.
type Worker struct {
	journal  *Journal
	queue    chan activity.Entry
	interval time.Duration
	batch    int
	logger   *log.Logger
	dropped  atomic.Int64

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

var _ activity.Sink = (*Worker)(nil)

type WorkerOption func(*Worker)

func WithFlushInterval(d time.Duration) WorkerOption {
	return func(w *Worker) { w.interval = d }
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) { w.batch = n }
}

func WithQueueSize(n int) WorkerOption {
	return func(w *Worker) { w.queue = make(chan activity.Entry, n) }
}

func NewWorker(j *Journal, opts ...WorkerOption) *Worker {
	w := &Worker{
		journal:  j,
		queue:    make(chan activity.Entry, defaultQueueSize),
		interval: defaultFlushInterval,
		batch:    defaultBatchSize,
		logger:   logging.Logger(logging.SourceJournal),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	if w.batch <= 0 {
		w.batch = defaultBatchSize
	}
	if w.interval <= 0 {
		w.interval = defaultFlushInterval
	}
	return w
}

// Record queues e for archiving.
func (w *Worker) Record(e activity.Entry) {
	select {
	case w.queue <- e:
	default:
		w.dropped.Add(1)
	}
}

// Dropped counts entries lost to a full queue.
func (w *Worker) Dropped() int64 { return w.dropped.Load() }

// Start begins the flush loop.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return ErrWorkerRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.running = true
	w.wg.Add(1)
	w.mu.Unlock()

	go w.loop(ctx)
	return nil
}

// Stop halts the loop and writes whatever is still queued.
func (w *Worker) Stop() error {
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.running = false
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	return w.Flush(ctx)
}

// Flush writes every queued entry now.
func (w *Worker) Flush(ctx context.Context) error {
	var pending []activity.Entry
	for {
		select {
		case e := <-w.queue:
			pending = append(pending, e)
		default:
			return w.journal.Append(ctx, pending...)
		}
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	pending := make([]activity.Entry, 0, w.batch)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := w.journal.Append(ctx, pending...); err != nil {
			w.logger.Warn("archive failed", "entries", len(pending), "err", err)
		}
		pending = pending[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Unwritten entries go back to Stop's final flush.
			for _, e := range pending {
				w.Record(e)
			}
			return
		case e := <-w.queue:
			pending = append(pending, e)
			if len(pending) >= w.batch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
