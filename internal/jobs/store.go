package jobs

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fpang/autocrop/internal/apperr"
)

// ErrTerminal is returned by Update when the job already completed or failed.
var ErrTerminal = errors.New("job is in a terminal state")

// Store holds job records. Implementations must make Update atomic per job.
type Store interface {
	Create(id, source string) (Job, error)
	Get(id string) (Job, error)
	// Update applies fn to a copy of the job and stores the result. Jobs in a
	// terminal state are left untouched and ErrTerminal is returned.
	Update(id string, fn func(*Job)) (Job, error)
	Delete(id string) (Job, error)
}

type record struct {
	mu  sync.Mutex
	job Job
}

// MemoryStore is an in-process Store. Records are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*record), now: time.Now}
}

// Create adds a processing job.
func (s *MemoryStore) Create(id, source string) (Job, error) {
	if id == "" {
		return Job{}, apperr.Validation("create job", "job id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; ok {
		return Job{}, apperr.Validation("create job", fmt.Sprintf("job %s already exists", id))
	}
	rec := &record{job: Job{
		ID:        id,
		Status:    StatusProcessing,
		Source:    source,
		CreatedAt: s.now().UTC(),
	}}
	s.records[id] = rec
	return rec.job, nil
}

// Get returns a snapshot of the job.
func (s *MemoryStore) Get(id string) (Job, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return Job{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job, nil
}

// Update mutates one job under its own lock. Progress never decreases and is
// kept within 0..100; completing forces it to 100 and stamps CompletedAt.
func (s *MemoryStore) Update(id string, fn func(*Job)) (Job, error) {
	rec, err := s.lookup(id)
	if err != nil {
		return Job{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()

	prev := rec.job
	if prev.Status.Terminal() {
		return prev, ErrTerminal
	}

	next := prev
	fn(&next)

	next.ID = prev.ID
	next.CreatedAt = prev.CreatedAt
	switch next.Status {
	case StatusProcessing, StatusCompleted, StatusError:
	default:
		return prev, apperr.Validation("update job", fmt.Sprintf("invalid status %q", next.Status))
	}
	next.Progress = min(max(next.Progress, prev.Progress, 0), 100)
	if next.Status == StatusCompleted {
		next.Progress = 100
	}
	if next.Status.Terminal() && next.CompletedAt.IsZero() {
		next.CompletedAt = s.now().UTC()
	}

	rec.job = next
	return next, nil
}

// Delete removes the job and returns its last state.
func (s *MemoryStore) Delete(id string) (Job, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	delete(s.records, id)
	s.mu.Unlock()
	if !ok {
		return Job{}, apperr.NotFound("delete job", "job not found: "+id)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.job, nil
}

// Len returns the number of stored jobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) lookup(id string) (*record, error) {
	s.mu.RLock()
	rec, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("get job", "job not found: "+id)
	}
	return rec, nil
}
