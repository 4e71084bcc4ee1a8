package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/voicectl/internal/logger"
	"github.com/MrSnakeDoc/voicectl/internal/supervisor"
)

// journalQueue is the number of events buffered before new ones are dropped.
const journalQueue = 256

// EventAppender persists lifecycle events.
type EventAppender interface {
	AppendEvent(ctx context.Context, ev supervisor.Event) error
}

// Journal copies lifecycle events to a store from its own goroutine, so
// lifecycle operations never wait on Redis. It implements supervisor.Observer.
type Journal struct {
	store    EventAppender
	logger   logger.Logger
	timeout  time.Duration
	queue    chan supervisor.Event
	stopCh   chan struct{}
	stopOnce sync.Once
	started  atomic.Bool
	done     chan struct{}
}

// NewJournal creates a journal writing to store, with a per-write timeout.
func NewJournal(store EventAppender, log logger.Logger, timeout time.Duration) *Journal {
	return &Journal{
		store:   store,
		logger:  log,
		timeout: timeout,
		queue:   make(chan supervisor.Event, journalQueue),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Observe queues an event. It never blocks; a full queue drops the event.
func (j *Journal) Observe(ev supervisor.Event) {
	select {
	case j.queue <- ev:
	default:
		j.logger.Warn("event journal queue full, dropping event",
			logger.String("service", ev.Service),
			logger.String("kind", string(ev.Kind)))
	}
}

// Start begins writing queued events
func (j *Journal) Start() {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(j.done)
		for {
			select {
			case ev := <-j.queue:
				j.write(ev)
			case <-j.stopCh:
				j.drain()
				return
			}
		}
	}()
}

// Stop writes what is still queued and stops the writer
func (j *Journal) Stop() {
	j.stopOnce.Do(func() { close(j.stopCh) })
	if j.started.Load() {
		<-j.done
	}
}

func (j *Journal) drain() {
	for {
		select {
		case ev := <-j.queue:
			j.write(ev)
		default:
			return
		}
	}
}

func (j *Journal) write(ev supervisor.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.store.AppendEvent(ctx, ev); err != nil {
		j.logger.Warn("failed to write event to journal",
			logger.String("service", ev.Service),
			logger.String("kind", string(ev.Kind)),
			logger.Error(err))
	}
}
