package jobs

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Scheduler runs keyed deferred tasks, such as artifact cleanup, and lets
// them be cancelled, replaced, or flushed at shutdown.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*task
	closed  bool
	running sync.WaitGroup
}

type task struct {
	timer *time.Timer
	fn    func()
}

// NewScheduler returns an empty Scheduler.
func NewScheduler() *Scheduler {
	return &Scheduler{tasks: make(map[string]*task)}
}

// Schedule runs fn after delay under key, replacing any task already pending
// for that key. It returns false once the scheduler has shut down.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if old, ok := s.tasks[key]; ok {
		old.timer.Stop()
	}
	t := &task{fn: fn}
	t.timer = time.AfterFunc(delay, func() { s.fire(key, t) })
	s.tasks[key] = t
	return true
}

// Reschedule moves the task pending under key to run after delay. It
// reports false, and schedules nothing, when no task is pending for key.
func (s *Scheduler) Reschedule(key string, delay time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.tasks[key]
	if !ok || s.closed {
		return false
	}
	old.timer.Stop()
	t := &task{fn: old.fn}
	t.timer = time.AfterFunc(delay, func() { s.fire(key, t) })
	s.tasks[key] = t
	return true
}

// Cancel drops the pending task for key. It reports whether one was pending.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(s.tasks, key)
	return true
}

// Pending returns the number of tasks that have not yet run.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown stops accepting tasks. Pending tasks run immediately when flush
// is true and are dropped otherwise. It returns once no task is running.
func (s *Scheduler) Shutdown(flush bool) {
	s.mu.Lock()
	s.closed = true
	pending := make([]*task, 0, len(s.tasks))
	for key, t := range s.tasks {
		t.timer.Stop()
		pending = append(pending, t)
		delete(s.tasks, key)
	}
	s.mu.Unlock()

	log.Info().
		Int("pending", len(pending)).
		Bool("flush", flush).
		Msg("Scheduler shutting down")

	if flush {
		for _, t := range pending {
			s.running.Add(1)
			s.run(t)
		}
	}
	s.running.Wait()
}

// fire runs t if it is still the task registered under key.
func (s *Scheduler) fire(key string, t *task) {
	s.mu.Lock()
	if s.tasks[key] != t {
		s.mu.Unlock()
		return
	}
	delete(s.tasks, key)
	s.running.Add(1)
	s.mu.Unlock()

	s.run(t)
}

func (s *Scheduler) run(t *task) {
	defer s.running.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Scheduled task panicked")
		}
	}()
	t.fn()
}
