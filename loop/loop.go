// Package loop implements the single control thread shared by component instances and channel listeners.
//
// Three kinds of deferred work are supported, none of them run in parallel:
//
//   - tasks (Post): externally scheduled units of work, executed one at a time
//   - microtasks (QueueMicrotask): run after the current task, frame, or microtask finishes, before the next task
//   - frame callbacks (RequestFrame): run together once per rendering frame
package loop

import (
	"context"
	"sync"
	"time"

	log "github.com/golang/glog"
	"github.com/syntax-framework/stx/cmn"
)

// DefaultFrameInterval ~60 frames per second
const DefaultFrameInterval = 16 * time.Millisecond

// Host the deferred execution primitives consumed by component instances
type Host interface {
	// QueueMicrotask schedules the task to run once the current synchronous execution fully drains
	QueueMicrotask(task func())
	// RequestFrame schedules the callback for the next rendering frame
	RequestFrame(callback func())
}

// Loop a Host that owns the control thread. Post, QueueMicrotask and RequestFrame are safe for concurrent use, the
// callbacks always run on the goroutine executing Run (or the Run*/Drain methods).
type Loop struct {
	FrameInterval time.Duration

	mu         sync.Mutex
	tasks      []func()
	microtasks []func()
	frames     []func()
	wake       chan struct{}
}

// New creates a Loop with the default frame interval
func New() *Loop {
	return &Loop{FrameInterval: DefaultFrameInterval, wake: make(chan struct{}, 1)}
}

func (l *Loop) notify() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Post schedules a task
func (l *Loop) Post(task func()) {
	l.mu.Lock()
	l.tasks = append(l.tasks, task)
	l.mu.Unlock()
	l.notify()
}

func (l *Loop) QueueMicrotask(task func()) {
	l.mu.Lock()
	l.microtasks = append(l.microtasks, task)
	l.mu.Unlock()
}

func (l *Loop) RequestFrame(callback func()) {
	l.mu.Lock()
	l.frames = append(l.frames, callback)
	l.mu.Unlock()
}

// Pending reports the number of queued tasks, microtasks and frame callbacks
func (l *Loop) Pending() (tasks, microtasks, frames int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks), len(l.microtasks), len(l.frames)
}

func (l *Loop) exec(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("loop: %s failed: %v", kind, cmn.Recovered(r))
		}
	}()
	fn()
}

// RunMicrotasks drains the microtask queue, including microtasks queued while draining
func (l *Loop) RunMicrotasks() {
	for {
		l.mu.Lock()
		if len(l.microtasks) == 0 {
			l.mu.Unlock()
			return
		}
		task := l.microtasks[0]
		l.microtasks = l.microtasks[1:]
		l.mu.Unlock()

		l.exec("microtask", task)
	}
}

// RunOnce executes the oldest task followed by all microtasks. Returns false when there was no task.
func (l *Loop) RunOnce() bool {
	l.mu.Lock()
	if len(l.tasks) == 0 {
		l.mu.Unlock()
		return false
	}
	task := l.tasks[0]
	l.tasks = l.tasks[1:]
	l.mu.Unlock()

	l.exec("task", task)
	l.RunMicrotasks()
	return true
}

// RunFrame executes the frame callbacks requested so far followed by all microtasks. Callbacks requested during the
// frame are kept for the next one. Returns false when there was no callback.
func (l *Loop) RunFrame() bool {
	l.mu.Lock()
	callbacks := l.frames
	l.frames = nil
	l.mu.Unlock()

	if len(callbacks) == 0 {
		return false
	}
	for _, callback := range callbacks {
		l.exec("frame", callback)
	}
	l.RunMicrotasks()
	return true
}

// Drain runs microtasks, tasks and frames until everything settles
func (l *Loop) Drain() {
	l.RunMicrotasks()
	for {
		for l.RunOnce() {
		}
		if !l.RunFrame() {
			if tasks, _, _ := l.Pending(); tasks == 0 {
				return
			}
		}
	}
}

// Run executes tasks as they arrive and frame callbacks at every FrameInterval, until the context is done
func (l *Loop) Run(ctx context.Context) error {
	interval := l.FrameInterval
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		l.RunMicrotasks()
		for l.RunOnce() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case <-ticker.C:
			l.RunFrame()
		}
	}
}
