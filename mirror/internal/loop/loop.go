// Package loop runs the mirror client's work on a single goroutine.
//
// Every task (initial delivery, coalesced reductions) executes on the loop
// goroutine in the order it became ready, so tasks never overlap. Delayed
// tasks are named for diagnostics and can be cancelled as a group.
package loop

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type task struct {
	name string
	fn   func()
}

// Loop is a single-goroutine executor with delayed scheduling.
type Loop struct {
	mu       sync.Mutex
	queue    []task
	timers   map[uint64]*time.Timer
	seq      uint64
	stopped  bool
	draining bool

	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// New starts a loop. A nil logger means slog.Default().
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		timers: make(map[uint64]*time.Timer),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

// After schedules fn to run on the loop once d has elapsed. A zero delay
// still defers fn to a later turn. It returns false when the loop no longer
// accepts work.
func (l *Loop) After(name string, d time.Duration, fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.draining {
		return false
	}
	if d <= 0 {
		l.enqueueLocked(task{name: name, fn: fn})
		return true
	}
	l.seq++
	id := l.seq
	l.timers[id] = time.AfterFunc(d, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.timers[id]; !ok {
			return
		}
		delete(l.timers, id)
		if l.stopped {
			return
		}
		l.enqueueLocked(task{name: name, fn: fn})
	})
	return true
}

func (l *Loop) enqueueLocked(t task) {
	l.queue = append(l.queue, t)
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of scheduled tasks that have not run yet.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers) + len(l.queue)
}

// Stop cancels every pending task and ends the loop. The task running at
// the time of the call completes.
func (l *Loop) Stop() {
	l.mu.Lock()
	if !l.stopped {
		l.stopped = true
		for id, t := range l.timers {
			t.Stop()
			delete(l.timers, id)
		}
		l.queue = nil
	}
	l.mu.Unlock()
	l.signal()
}

// Drain refuses new work and ends the loop once the pending tasks have run.
func (l *Loop) Drain() {
	l.mu.Lock()
	l.draining = true
	l.mu.Unlock()
	l.signal()
}

// Done is closed when the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run() {
	defer close(l.done)
	for range l.wake {
		for {
			l.mu.Lock()
			if l.stopped {
				l.mu.Unlock()
				return
			}
			if len(l.queue) == 0 {
				finished := l.draining && len(l.timers) == 0
				l.mu.Unlock()
				if finished {
					return
				}
				break
			}
			t := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()
			l.exec(t)
		}
	}
}

func (l *Loop) exec(t task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop: task panicked", "task", t.name, "panic", fmt.Sprint(r))
		}
	}()
	t.fn()
	l.logger.Debug("loop: task done", "task", t.name, "duration", time.Since(start))
}
