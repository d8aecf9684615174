package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ytget/yt-audio/internal/model"
)

var (
	// ErrNotFound is returned when an update targets an unknown job id.
	ErrNotFound = errors.New("job not found")

	// ErrDuplicateID is returned when a job id is created twice.
	ErrDuplicateID = errors.New("duplicate job id")

	// ErrInvalidTransition is returned when a mutation would break the status state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Observer receives a snapshot of a job after every create or update.
type Observer interface {
	JobChanged(job model.Job)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(job model.Job)

// JobChanged calls f(job).
func (f ObserverFunc) JobChanged(job model.Job) { f(job) }

// Mutation is a partial update applied atomically to one job.
// Zero-valued fields are left untouched.
type Mutation struct {
	Status    model.JobStatus
	Progress  *model.Progress
	Title     string
	Filename  string
	Error     string
	ObjectKey string
}

// Store holds every job of the process behind a single lock.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*model.Job
	order     []string
	observers []Observer
}

// New creates an empty store.
func New() *Store {
	return &Store{
		jobs: make(map[string]*model.Job),
	}
}

// Subscribe registers an observer. Observers run outside the lock on the
// goroutine that performed the change.
func (s *Store) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Create inserts a new job.
func (s *Store) Create(job *model.Job) error {
	s.mu.Lock()
	if _, exists := s.jobs[job.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateID, job.ID)
	}

	stored := job.Clone()
	s.jobs[job.ID] = &stored
	s.order = append(s.order, job.ID)
	snapshot := stored.Clone()
	observers := s.observers
	s.mu.Unlock()

	notify(observers, snapshot)
	return nil
}

// Update applies mut to the job with the given id and returns the resulting snapshot.
func (s *Store) Update(id string, mut Mutation) (model.Job, error) {
	s.mu.Lock()
	job, exists := s.jobs[id]
	if !exists {
		s.mu.Unlock()
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if err := apply(job, mut); err != nil {
		current := job.Clone()
		s.mu.Unlock()
		return current, err
	}

	snapshot := job.Clone()
	observers := s.observers
	s.mu.Unlock()

	notify(observers, snapshot)
	return snapshot, nil
}

// Get returns a snapshot of one job.
func (s *Store) Get(id string) (model.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return model.Job{}, false
	}
	return job.Clone(), true
}

// All returns a point-in-time copy of every job in insertion order.
func (s *Store) All() []model.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]model.Job, 0, len(s.order))
	for _, id := range s.order {
		jobs = append(jobs, s.jobs[id].Clone())
	}
	return jobs
}

// Len returns the number of jobs in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// apply mutates job in place. Terminal jobs reject every mutation, and the
// result fields may only be written together with the matching terminal status.
func apply(job *model.Job, mut Mutation) error {
	if job.Status.IsFinished() {
		return fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, job.ID, job.Status)
	}

	if mut.Status != "" && mut.Status != job.Status {
		if !job.Status.CanTransition(mut.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, mut.Status)
		}
	}

	next := job.Status
	if mut.Status != "" {
		next = mut.Status
	}
	if (mut.Title != "" || mut.Filename != "") && next != model.StatusCompleted {
		return fmt.Errorf("%w: result fields require %s", ErrInvalidTransition, model.StatusCompleted)
	}
	if mut.Error != "" && next != model.StatusFailed {
		return fmt.Errorf("%w: error requires %s", ErrInvalidTransition, model.StatusFailed)
	}
	if next == model.StatusCompleted && (mut.Title == "" || mut.Filename == "") {
		return fmt.Errorf("%w: %s requires title and filename", ErrInvalidTransition, model.StatusCompleted)
	}
	if next == model.StatusFailed && mut.Error == "" {
		return fmt.Errorf("%w: %s requires an error message", ErrInvalidTransition, model.StatusFailed)
	}

	job.Status = next
	if mut.Progress != nil {
		p := *mut.Progress
		job.Progress = &p
	}
	if mut.Title != "" {
		job.Title = mut.Title
	}
	if mut.Filename != "" {
		job.Filename = mut.Filename
	}
	if mut.Error != "" {
		job.Error = mut.Error
	}
	if mut.ObjectKey != "" {
		job.ObjectKey = mut.ObjectKey
	}
	job.UpdatedAt = time.Now()
	return nil
}

func notify(observers []Observer, job model.Job) {
	for _, o := range observers {
		o.JobChanged(job)
	}
}
