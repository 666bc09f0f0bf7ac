package database

import (
	"context"
	"sync"
	"time"

	"github.com/life-stream-dev/go-scmirroring/internal/logger"
)

// AsyncJournal queues Record calls for a single writer goroutine so callers on
// the event loop never wait for the backing store.
type AsyncJournal struct {
	inner        Journal
	writeTimeout time.Duration

	mu     sync.RWMutex
	queue  chan *Event
	closed bool
	done   chan struct{}
}

func NewAsyncJournal(inner Journal, size int, writeTimeout time.Duration) *AsyncJournal {
	if size <= 0 {
		size = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	j := &AsyncJournal{
		inner:        inner,
		writeTimeout: writeTimeout,
		queue:        make(chan *Event, size),
		done:         make(chan struct{}),
	}
	go j.writeLoop()
	return j
}

func (j *AsyncJournal) writeLoop() {
	defer close(j.done)
	for event := range j.queue {
		ctx, cancel := context.WithTimeout(context.Background(), j.writeTimeout)
		if err := j.inner.Record(ctx, event); err != nil {
			logger.WarnF("[journal] write %s for %s: %v", event.Kind, event.SessionID, err)
		}
		cancel()
	}
}

// Record enqueues event. A full queue drops the event instead of blocking.
func (j *AsyncJournal) Record(_ context.Context, event *Event) error {
	if event.SessionID == "" {
		return SessionIdEmptyError
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		logger.WarnF("[journal] dropping %s after shutdown", event.Kind)
		return nil
	}
	select {
	case j.queue <- event:
	default:
		logger.WarnF("[journal] queue full, dropping %s for %s", event.Kind, event.SessionID)
	}
	return nil
}

func (j *AsyncJournal) List(ctx context.Context, sessionID string) ([]*Event, error) {
	return j.inner.List(ctx, sessionID)
}

// Invoke drains queued events into the backing store, then shuts it down.
func (j *AsyncJournal) Invoke(ctx context.Context) error {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	select {
	case <-j.done:
	case <-ctx.Done():
		logger.WarnF("[journal] shutdown before the queue drained: %v", ctx.Err())
	}
	return j.inner.Invoke(ctx)
}
