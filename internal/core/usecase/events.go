package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/virtual-fitting/internal/core/ports"
	"github.com/kirillkom/virtual-fitting/internal/core/session"
)

const (
	eventBuffer         = 64
	eventPublishTimeout = 2 * time.Second
)

// EventForwarder relays session events to a publisher on its own goroutine
// so a slow broker never blocks a session mutation. Events that do not fit
// the buffer are dropped and logged.
type EventForwarder struct {
	publisher ports.EventPublisher
	logger    *slog.Logger
	events    chan session.Event

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func NewEventForwarder(publisher ports.EventPublisher, logger *slog.Logger) *EventForwarder {
	return &EventForwarder{
		publisher: publisher,
		logger:    loggerOrDefault(logger),
		events:    make(chan session.Event, eventBuffer),
		done:      make(chan struct{}),
	}
}

// Attach subscribes the forwarder to store and starts delivery.
func (f *EventForwarder) Attach(store *session.Store) {
	store.Observe(f.enqueue)
	go f.run()
}

func (f *EventForwarder) enqueue(ev session.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return
	}
	select {
	case f.events <- ev:
	default:
		f.logger.Warn("session_event_dropped", "type", ev.Type, "session_id", ev.Snapshot.ID)
	}
}

func (f *EventForwarder) run() {
	defer close(f.done)
	for ev := range f.events {
		ctx, cancel := context.WithTimeout(context.Background(), eventPublishTimeout)
		if err := f.publisher.PublishSessionEvent(ctx, ev.Type, ev.Snapshot); err != nil {
			f.logger.Warn("session_event_publish_failed", "type", ev.Type, "error", err)
		}
		cancel()
	}
}

// Close flushes queued events and waits for delivery to finish.
func (f *EventForwarder) Close() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	close(f.events)
	f.mu.Unlock()
	<-f.done
}
