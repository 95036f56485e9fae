package db

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mdobak/go-xerrors"

	"noise-lab/identity"
	"noise-lab/utils"
)

const writeTimeout = 5 * time.Second

// EventStore persists lifecycle events.
type EventStore interface {
	StoreEvent(ctx context.Context, e identity.Event) error
}

// RecorderStats receives journal outcomes; *metrics.Metrics satisfies it.
type RecorderStats interface {
	RecordJournalWrite()
	RecordJournalDropped()
	RecordJournalError()
}

// Recorder is an identity.Observer that writes events to an EventStore from a
// background goroutine. Observe never blocks: when the queue is full the event
// is dropped and counted.
type Recorder struct {
	store  EventStore
	stats  RecorderStats
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	events chan identity.Event
	done   chan struct{}
}

// NewRecorder starts the writer goroutine. stats may be nil.
func NewRecorder(store EventStore, buffer int, stats RecorderStats) *Recorder {
	if buffer < 1 {
		buffer = 1
	}
	r := &Recorder{
		store:  store,
		stats:  stats,
		logger: utils.GetLogger(),
		events: make(chan identity.Event, buffer),
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) Observe(e identity.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.events <- e:
	default:
		if r.stats != nil {
			r.stats.RecordJournalDropped()
		}
		r.logger.Warn("journal queue full, dropping event",
			slog.String("kind", string(e.Kind)),
			slog.String("identityID", e.IdentityID),
		)
	}
}

func (r *Recorder) run() {
	defer close(r.done)

	for e := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := r.store.StoreEvent(ctx, e)
		cancel()

		if err != nil {
			if r.stats != nil {
				r.stats.RecordJournalError()
			}
			err := xerrors.New(err)
			r.logger.Error("failed to journal identity event",
				slog.String("kind", string(e.Kind)),
				slog.Any("error", err),
			)
			continue
		}
		if r.stats != nil {
			r.stats.RecordJournalWrite()
		}
	}
}

// Close stops accepting events, flushes the queue and waits for the writer.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		<-r.done
		return
	}
	r.closed = true
	close(r.events)
	r.mu.Unlock()

	<-r.done
}
