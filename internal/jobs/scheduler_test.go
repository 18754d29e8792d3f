package jobs

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduler_Fires(t *testing.T) {
	s := NewScheduler()
	done := make(chan struct{})
	s.Schedule("a", 10*time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
	waitFor(t, func() bool { return s.Pending() == 0 })
}

func TestScheduler_CancelAndReplace(t *testing.T) {
	s := NewScheduler()
	var first, second atomic.Int32

	s.Schedule("k", 20*time.Millisecond, func() { first.Add(1) })
	s.Schedule("k", 20*time.Millisecond, func() { second.Add(1) })
	if s.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1 after replace", s.Pending())
	}

	s.Schedule("c", 20*time.Millisecond, func() { t.Error("cancelled task ran") })
	if !s.Cancel("c") {
		t.Error("Cancel() = false for pending task")
	}
	if s.Cancel("c") {
		t.Error("Cancel() = true for already cancelled task")
	}

	waitFor(t, func() bool { return second.Load() == 1 })
	time.Sleep(40 * time.Millisecond)
	if first.Load() != 0 {
		t.Error("replaced task ran")
	}
}

func TestScheduler_Reschedule(t *testing.T) {
	s := NewScheduler()
	done := make(chan struct{})
	s.Schedule("k", time.Hour, func() { close(done) })

	if !s.Reschedule("k", 10*time.Millisecond) {
		t.Fatal("Reschedule() = false for pending task")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("rescheduled task did not run")
	}
	waitFor(t, func() bool { return s.Pending() == 0 })

	if s.Reschedule("k", 10*time.Millisecond) {
		t.Error("Reschedule() = true after the task ran")
	}
	if s.Reschedule("missing", 10*time.Millisecond) {
		t.Error("Reschedule() = true for unknown key")
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", s.Pending())
	}
}

func TestScheduler_ShutdownFlush(t *testing.T) {
	s := NewScheduler()
	var ran atomic.Int32
	for _, k := range []string{"a", "b", "c"} {
		s.Schedule(k, time.Hour, func() { ran.Add(1) })
	}

	s.Shutdown(true)
	if ran.Load() != 3 {
		t.Errorf("flushed %d tasks, want 3", ran.Load())
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d after shutdown", s.Pending())
	}
	if s.Schedule("late", time.Millisecond, func() { ran.Add(1) }) {
		t.Error("Schedule() after shutdown should be rejected")
	}
}

func TestScheduler_ShutdownSkip(t *testing.T) {
	s := NewScheduler()
	var ran atomic.Int32
	s.Schedule("a", 30*time.Millisecond, func() { ran.Add(1) })

	s.Shutdown(false)
	time.Sleep(60 * time.Millisecond)
	if ran.Load() != 0 {
		t.Error("skipped task ran after shutdown")
	}
}

func TestScheduler_PanicRecovered(t *testing.T) {
	s := NewScheduler()
	s.Schedule("p", time.Hour, func() { panic("boom") })
	s.Shutdown(true)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
