package dom

import (
	"context"
	"errors"
	"sync"
	"time"
)

var ErrLoopStopped = errors.New("event loop stopped")

// EventLoop runs page tasks one at a time on a single goroutine. Every read or
// write of a Document must happen inside a task. Microtasks queued during a
// task run after it, before the next task.
type EventLoop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}

	micro []func() // loop goroutine only
}

func NewEventLoop() *EventLoop {
	return &EventLoop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn as a task. It returns false once the loop has stopped.
func (l *EventLoop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for it. Must not be called from a task.
func (l *EventLoop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopStopped
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		// the task may have run right before shutdown
		select {
		case <-finished:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc posts fn as a task once d has elapsed.
func (l *EventLoop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// QueueMicrotask schedules fn to run at the end of the current task.
// Only valid inside a task.
func (l *EventLoop) QueueMicrotask(fn func()) {
	l.micro = append(l.micro, fn)
}

// Run processes tasks until ctx is done or Stop is called.
func (l *EventLoop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		l.mu.Lock()
		if l.stopped {
			l.mu.Unlock()
			return
		}
		tasks := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(tasks) == 0 {
			select {
			case <-l.wake:
				continue
			case <-ctx.Done():
				l.Stop()
				return
			}
		}

		for _, task := range tasks {
			if l.isStopped() {
				return
			}
			task()
			l.drainMicrotasks()
		}
	}
}

func (l *EventLoop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

func (l *EventLoop) drainMicrotasks() {
	for len(l.micro) > 0 {
		fn := l.micro[0]
		l.micro = l.micro[1:]
		fn()
	}
}

// Stop discards pending tasks. Run returns after the current task.
func (l *EventLoop) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run has returned.
func (l *EventLoop) Done() <-chan struct{} {
	return l.done
}
