// Package jobstore is the single source of truth for job records. All
// access goes through one mutex so no caller ever observes a partially
// updated record, and insertion order is retained for queue-position
// computation.
package jobstore

import (
	"fmt"
	"sync"
	"time"

	"mesh3d/internal/domain"
)

type entry struct {
	job  domain.Job
	done chan struct{}
}

// Stats summarizes the live portion of the store.
type Stats struct {
	Queued     int
	Processing int
}

// Store maps job ids to records in insertion order.
type Store struct {
	mu    sync.Mutex
	jobs  map[string]*entry
	order []string

	now func() time.Time
}

func New() *Store {
	return &Store{
		jobs: make(map[string]*entry),
		now:  time.Now,
	}
}

// Insert adds a new record at the end of insertion order. The record must
// be in the queued state; a duplicate id is a programming error surfaced
// as domain.ErrDuplicateID.
func (s *Store) Insert(job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("jobstore: insert %s: %w", job.ID, domain.ErrDuplicateID)
	}
	if job.Status == "" {
		job.Status = domain.StatusQueued
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	s.jobs[job.ID] = &entry{job: job, done: make(chan struct{})}
	s.order = append(s.order, job.ID)
	return nil
}

// Get returns a copy of the record.
func (s *Store) Get(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("jobstore: job %s: %w", id, domain.ErrNotFound)
	}
	return e.job, nil
}

// MarkProcessing transitions queued -> processing and stamps StartedAt.
func (s *Store) MarkProcessing(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("jobstore: job %s: %w", id, domain.ErrNotFound)
	}
	if e.job.Status != domain.StatusQueued {
		return domain.Job{}, fmt.Errorf("jobstore: job %s is %s: %w", id, e.job.Status, domain.ErrInvalidTransition)
	}
	started := s.now()
	e.job.Status = domain.StatusProcessing
	e.job.StartedAt = &started
	return e.job, nil
}

// Complete transitions processing -> completed, attaches the artifact and
// stamps CompletedAt. The job's one-shot done channel is closed.
func (s *Store) Complete(id string, art domain.Artifact) (domain.Job, error) {
	return s.finish(id, domain.StatusCompleted, &art, "")
}

// Fail transitions processing -> failed with a human-readable cause.
func (s *Store) Fail(id string, cause string) (domain.Job, error) {
	return s.finish(id, domain.StatusFailed, nil, cause)
}

func (s *Store) finish(id string, status domain.JobStatus, art *domain.Artifact, cause string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("jobstore: job %s: %w", id, domain.ErrNotFound)
	}
	if e.job.Status != domain.StatusProcessing {
		return domain.Job{}, fmt.Errorf("jobstore: job %s is %s: %w", id, e.job.Status, domain.ErrInvalidTransition)
	}
	completed := s.now()
	e.job.Status = status
	e.job.CompletedAt = &completed
	e.job.Artifact = art
	e.job.Error = cause
	close(e.done)
	return e.job, nil
}

// FailAllProcessing force-fails every record stuck in processing. The
// watchdog calls this after the executor died so no job is left in
// processing forever. Returns the ids that were failed.
func (s *Store) FailAllProcessing(cause string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var failed []string
	for _, id := range s.order {
		e := s.jobs[id]
		if e == nil || e.job.Status != domain.StatusProcessing {
			continue
		}
		completed := s.now()
		e.job.Status = domain.StatusFailed
		e.job.CompletedAt = &completed
		e.job.Error = cause
		close(e.done)
		failed = append(failed, id)
	}
	return failed
}

// PositionOf returns the number of not-yet-terminal records inserted before
// this one. 0 means currently processing or first in line.
func (s *Store) PositionOf(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return 0, fmt.Errorf("jobstore: job %s: %w", id, domain.ErrNotFound)
	}
	pos := 0
	for _, other := range s.order {
		if other == id {
			return pos, nil
		}
		if e := s.jobs[other]; e != nil && !e.job.Status.Terminal() {
			pos++
		}
	}
	return 0, fmt.Errorf("jobstore: job %s: %w", id, domain.ErrNotFound)
}

// Stats counts the queued and processing records.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st Stats
	for _, e := range s.jobs {
		switch e.job.Status {
		case domain.StatusQueued:
			st.Queued++
		case domain.StatusProcessing:
			st.Processing++
		}
	}
	return st
}

// Remove deletes the record and returns it. Admission rolls back records
// it could not publish; the sweeper evicts expired terminal ones.
func (s *Store) Remove(id string) (domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return domain.Job{}, fmt.Errorf("jobstore: job %s: %w", id, domain.ErrNotFound)
	}
	delete(s.jobs, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return e.job, nil
}

// Done returns the job's one-shot completion channel. It is closed when
// the job reaches a terminal state, so waiters never have to poll.
func (s *Store) Done(id string) (<-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("jobstore: job %s: %w", id, domain.ErrNotFound)
	}
	return e.done, nil
}

// ExpiredBefore returns copies of terminal records whose CompletedAt is
// older than the cutoff. Queued and processing records are never included
// regardless of age.
func (s *Store) ExpiredBefore(cutoff time.Time) []domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []domain.Job
	for _, id := range s.order {
		e := s.jobs[id]
		if e == nil || !e.job.Status.Terminal() {
			continue
		}
		if e.job.CompletedAt != nil && e.job.CompletedAt.Before(cutoff) {
			expired = append(expired, e.job)
		}
	}
	return expired
}

// Len reports the total number of records, any status.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}
