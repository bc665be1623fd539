package session

import (
	"context"
	"errors"
	"sync"
)

// ErrLoopStopped is returned by Do once the loop has exited.
var ErrLoopStopped = errors.New("session loop stopped")

// Loop is the single consumer that serializes every event touching session
// state. Producers (engine callbacks, relay callbacks, the presenter) Post
// closures; Run executes them one at a time in FIFO order.
//
// Post never blocks, so a callback fired synchronously from inside the loop
// cannot deadlock it.
type Loop struct {
	mu      sync.Mutex
	inbox   []func()
	stopped bool

	wake chan struct{}
	done chan struct{}
}

// NewLoop creates an idle loop. Call Run to start consuming.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post schedules fn on the loop. Closures posted after the loop stopped are
// dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.inbox = append(l.inbox, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do posts fn and waits until it has run. It must not be called from inside
// the loop.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	l.Post(func() {
		fn()
		close(ran)
	})

	select {
	case <-ran:
		return nil
	case <-l.done:
		// The closure may have been the last one executed.
		select {
		case <-ran:
			return nil
		default:
			return ErrLoopStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run consumes posted closures until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.inbox = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()

			if ctx.Err() != nil {
				return
			}
		}

		select {
		case <-l.wake:
		case <-ctx.Done():
			return
		}
	}
}

// Done returns a channel that is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.inbox) == 0 {
		return nil, false
	}

	fn := l.inbox[0]
	l.inbox[0] = nil
	l.inbox = l.inbox[1:]
	return fn, true
}
