package debounce

import (
	"sync"
	"time"
)

// Timer is the subset of *time.Timer the task needs.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Task runs action once the trigger has been quiet for delay.
type Task struct {
	delay     time.Duration
	action    func()
	afterFunc AfterFunc

	mu      sync.Mutex
	timer   Timer
	gen     uint64
	pending bool
}

func New(delay time.Duration, action func()) *Task {
	return NewWithAfterFunc(delay, action, realAfterFunc)
}

func NewWithAfterFunc(delay time.Duration, action func(), afterFunc AfterFunc) *Task {
	if afterFunc == nil {
		afterFunc = realAfterFunc
	}
	return &Task{
		delay:     delay,
		action:    action,
		afterFunc: afterFunc,
	}
}

// Trigger (re)starts the quiet period.
func (t *Task) Trigger() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.gen++
	gen := t.gen
	t.pending = true
	t.timer = t.afterFunc(t.delay, func() { t.fire(gen) })
}

// Flush runs a pending action immediately. It reports whether anything ran.
func (t *Task) Flush() bool {
	t.mu.Lock()
	if !t.pending {
		t.mu.Unlock()
		return false
	}
	t.stopLocked()
	t.mu.Unlock()
	t.action()
	return true
}

// Cancel drops a pending action.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Task) stopLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	// a timer that already fired must not run the action for this generation
	t.gen++
	t.pending = false
}

func (t *Task) fire(gen uint64) {
	t.mu.Lock()
	if gen != t.gen || !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.timer = nil
	t.mu.Unlock()
	t.action()
}
