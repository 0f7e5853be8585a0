package debounce

import (
	"sync"
	"testing"
	"time"
)

type fakeTimer struct {
	at      time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{at: s.now + d, f: f}
	s.timers = append(s.timers, t)
	return t
}

func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	var due []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped && t.at <= s.now {
			t.stopped = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func TestTrigger_CoalescesBurstIntoOneRun(t *testing.T) {
	sched := &fakeScheduler{}
	runs := 0
	task := NewWithAfterFunc(time.Second, func() { runs++ }, sched.AfterFunc)

	for i := 0; i < 10; i++ {
		task.Trigger()
		sched.Advance(100 * time.Millisecond)
	}
	if runs != 0 {
		t.Fatalf("expected no run inside the quiet period, got %d", runs)
	}
	sched.Advance(time.Second)
	if runs != 1 {
		t.Fatalf("expected exactly one run, got %d", runs)
	}
	if task.Pending() {
		t.Fatal("expected no pending run after fire")
	}
}

func TestTrigger_SpacedTriggersRunEachTime(t *testing.T) {
	sched := &fakeScheduler{}
	runs := 0
	task := NewWithAfterFunc(time.Second, func() { runs++ }, sched.AfterFunc)

	for i := 0; i < 5; i++ {
		task.Trigger()
		sched.Advance(2 * time.Second)
	}
	if runs != 5 {
		t.Fatalf("expected 5 runs, got %d", runs)
	}
}

func TestCancel_DropsPendingRun(t *testing.T) {
	sched := &fakeScheduler{}
	runs := 0
	task := NewWithAfterFunc(time.Second, func() { runs++ }, sched.AfterFunc)

	task.Trigger()
	task.Cancel()
	sched.Advance(5 * time.Second)
	if runs != 0 {
		t.Fatalf("expected canceled task not to run, got %d", runs)
	}
}

func TestFlush_RunsPendingImmediately(t *testing.T) {
	sched := &fakeScheduler{}
	runs := 0
	task := NewWithAfterFunc(time.Second, func() { runs++ }, sched.AfterFunc)

	if task.Flush() {
		t.Fatal("expected flush without pending run to report false")
	}
	task.Trigger()
	if !task.Flush() {
		t.Fatal("expected flush to report a run")
	}
	sched.Advance(5 * time.Second)
	if runs != 1 {
		t.Fatalf("expected flush to replace the timer run, got %d runs", runs)
	}
}

func TestStaleTimerCallbackIsIgnored(t *testing.T) {
	sched := &fakeScheduler{}
	runs := 0
	task := NewWithAfterFunc(time.Second, func() { runs++ }, sched.AfterFunc)

	task.Trigger()
	stale := sched.timers[0].f
	task.Cancel()
	stale()
	if runs != 0 {
		t.Fatalf("expected stale callback to be ignored, got %d runs", runs)
	}
}

func TestNew_UsesRealTimer(t *testing.T) {
	done := make(chan struct{})
	task := New(10*time.Millisecond, func() { close(done) })
	task.Trigger()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected real timer to fire")
	}
}
