// Package reactor provides the single-goroutine cooperative loop that owns
// socket read events, deferred callbacks and command dispatch.
package reactor

import (
	"context"
	"errors"
	"io"
	"sync"
)

// EventLoop is what components need from the loop that drives them.
type EventLoop interface {
	Post(fn func()) bool
	Watch(r io.Reader, bufSize int, onData func([]byte), onClose func(error))
	Run(ctx context.Context) error
	Quit()
}

type Loop struct {
	mu       sync.Mutex
	queue    []func()
	wake     chan struct{}
	quit     chan struct{}
	quitOnce sync.Once
}

var ErrQuit = errors.New("reactor: loop quit")

func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
	}
}

// Post queues fn for the loop goroutine. It never runs fn inline and reports
// false once the loop has quit.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run dispatches queued tasks in FIFO order until Quit is called or ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.mu.Lock()
		tasks := l.queue
		l.queue = nil
		l.mu.Unlock()

		for i, task := range tasks {
			if l.Stopped() {
				l.requeue(tasks[i:])
				return nil
			}
			task()
		}

		select {
		case <-l.wake:
		case <-l.quit:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (l *Loop) requeue(tasks []func()) {
	l.mu.Lock()
	l.queue = append(tasks, l.queue...)
	l.mu.Unlock()
}

func (l *Loop) Quit() {
	l.quitOnce.Do(func() {
		close(l.quit)
	})
}

func (l *Loop) Stopped() bool {
	select {
	case <-l.quit:
		return true
	default:
		return false
	}
}

// Done is closed when Quit has been called.
func (l *Loop) Done() <-chan struct{} {
	return l.quit
}

// Watch reads r on its own goroutine and hands every chunk to onData on the
// loop. onClose runs on the loop once with the terminating read error
// (nil on EOF). Nothing is delivered after the loop quits.
func (l *Loop) Watch(r io.Reader, bufSize int, onData func([]byte), onClose func(error)) {
	go func() {
		buf := make([]byte, bufSize)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				if !l.Post(func() { onData(chunk) }) {
					return
				}
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				if onClose != nil {
					l.Post(func() { onClose(err) })
				}
				return
			}
		}
	}()
}
